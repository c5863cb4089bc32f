// Package harness runs synchronization scenarios end to end: a fresh
// in-memory SQLite indexer is seeded, a mirror session hydrates and
// follows it, and assertions check the resulting views.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	table_id: Season1
//	page_size: 2
//	seed:
//	  - models:
//	      pistols-Duelist: { duelist_id: "0xa", name: "0x626f62", timestamp: 1 }
//	steps:
//	  - hydrate: [default]
//	  - fetch_duelists: true
//	  - follow: true
//	  - write:
//	      - models:
//	          pistols-Scoreboard: { duelist_id: "0xa", score: { ... } }
//	  - reset: true
//	assertions:
//	  - type: count
//	    view: duelists
//	    count: 1
//	  - type: order
//	    view: challenges
//	    sort: time
//	    dir: desc
//	    ids: ["0x1", "0x2"]
//	  - type: row
//	    view: duelists
//	    id: "0xa"
//	    expect: { name: bob, wins: 2 }
//	  - type: trace_count
//	    step: write
//	    count: 1
//
// # Golden Files
//
// RunWithGolden compares the trace and every view against
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
