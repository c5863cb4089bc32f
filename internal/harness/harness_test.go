package harness

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/duelsync/internal/model"
)

func mustParse(t *testing.T, doc string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(doc))
	require.NoError(t, err)
	return s
}

func runFile(t *testing.T, name string) *Result {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name))
	require.NoError(t, err)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	return result
}

const seedDoc = `
seed:
  - models:
      pistols-Challenge:
        duel_id: "0x1"
        table_id: "0x536561736f6e31"
        state: Awaiting
        duelist_id_a: "0xa"
        duelist_id_b: "0xb"
        timestamps: { start: 10, end: 0 }
  - models:
      pistols-Duelist: { duelist_id: "0xa", name: "0x616c696365", timestamp: 1 }
  - models:
      pistols-Duelist: { duelist_id: "0xb", name: "0x626f62", timestamp: 2 }
  - models:
      pistols-Player: { player_address: "0xabc", username: "0x616e6e", timestamps: { registered: 5 } }
`

// =============================================================================
// Run
// =============================================================================

func TestRun_TableFollowScenario(t *testing.T) {
	result := runFile(t, "table_follow.yaml")

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Trace, 5)
	assert.Equal(t, StepHydrate, result.Trace[0].Kind)
	assert.Equal(t, "challenges", result.Trace[0].Purpose)
	assert.Equal(t, 2, result.Trace[0].Entities, "other tables are filtered")
	assert.Equal(t, "players", result.Trace[1].Purpose)
	assert.Equal(t, 1, result.Trace[1].Entities)
	assert.Equal(t, TraceEvent{Step: 1, Kind: StepFetchDuelists, Purpose: "duelists", Entities: 3, Pages: 2}, result.Trace[2])
	assert.Equal(t, StepFollow, result.Trace[3].Kind)
	assert.Equal(t, TraceEvent{Step: 3, Kind: StepWrite, Entities: 2}, result.Trace[4])

	assert.Len(t, result.State.Challenges, 2)
	assert.Len(t, result.State.Duelists, 3)
	assert.Len(t, result.State.Players, 1)
	assert.Equal(t, 6, result.State.StoreEntities)
}

func TestRun_HydrateDefault(t *testing.T) {
	s := mustParse(t, `
name: hydrate_default
description: "Startup hydration of one table"
table_id: Season1
`+seedDoc+`
steps:
  - hydrate: [default]
assertions:
  - type: count
    view: challenges
    count: 1
  - type: count
    view: duelists
    count: 2
  - type: count
    view: players
    count: 1
  - type: row
    view: players
    id: "0xabc"
    expect: { username: ann, registered: 5 }
  - type: trace_count
    step: hydrate
    count: 3
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_FetchDuelistsOnlyOnce(t *testing.T) {
	s := mustParse(t, `
name: fetch_once
description: "Resolved duelist ids are not fetched again"
`+seedDoc+`
steps:
  - hydrate: [challenges]
  - fetch_duelists: true
  - fetch_duelists: true
assertions:
  - type: count
    view: duelists
    count: 2
  - type: trace_count
    step: fetch_duelists
    count: 2
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, 2, result.Trace[1].Entities)
	assert.Zero(t, result.Trace[2].Entities)
}

func TestRun_FetchByID(t *testing.T) {
	s := mustParse(t, `
name: fetch_by_id
description: "Current duels and rewards are fetched by id, once each"
table_id: Other
`+seedDoc+`
  - models:
      pistols-DuelistChallenge: { duelist_id: "0xa", duel_id: "0x1" }
  - models:
      pistols-ChallengeRewardsEvent:
        duel_id: "0x1"
        duelist_id: "0xa"
        rewards: { fame_gained: "0x0", fame_lost: "0x0", fools_gained: "0x0", points_scored: 30, position: 1, survived: true }
  - models:
      pistols-ChallengeRewardsEvent:
        duel_id: "0x1"
        duelist_id: "0xb"
        rewards: { fame_gained: "0x0", fame_lost: "0x0", fools_gained: "0x0", points_scored: 5, position: 2, survived: false }
steps:
  - hydrate: [default]
  - fetch_challenges: true
  - fetch_rewards: ["0xa"]
  - fetch_rewards: [all]
assertions:
  - type: count
    view: challenges
    count: 1
  - type: count
    view: rewards
    count: 2
  - type: trace_count
    step: fetch_rewards
    count: 2
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 6)
	assert.Equal(t, TraceEvent{Step: 1, Kind: StepFetchChallenges, Purpose: "challenges-by-id", Entities: 1, Pages: 1}, result.Trace[3])
	assert.Equal(t, 1, result.Trace[4].Entities)
	assert.Equal(t, "challenge-rewards-by-duelist", result.Trace[4].Purpose)
	assert.Equal(t, 1, result.Trace[5].Entities, "only duelist 0xb is new")
}

func TestRun_SeasonsAndTokens(t *testing.T) {
	s := mustParse(t, `
name: seasons_tokens
description: "Seasons hydrate with their leaderboard; tokens are fetched by address once"
seed:
  - models:
      pistols-Config: { key: 1, current_season_id: 3, is_paused: false }
  - models:
      pistols-SeasonConfig: { season_id: 2, rules: Season, phase: Ended, period: { start: 10, end: 20 } }
  - models:
      pistols-SeasonConfig: { season_id: 3, rules: Season, phase: InProgress, period: { start: 20, end: 30 } }
      pistols-Leaderboard: { season_id: 3, positions: 2, duelist_ids: "0x00000b00000a", scores: "0x00001400001e" }
  - models:
      pistols-TokenConfig: { token_address: "0x100", minter_address: "0x3a1", minted_count: 12 }
  - models:
      pistols-TokenConfig: { token_address: "0x200", minter_address: "0x3a1", minted_count: 3 }
steps:
  - hydrate: [seasons]
  - fetch_tokens: ["0x100"]
  - fetch_tokens: ["0x100", "0x200"]
assertions:
  - type: count
    view: seasons
    count: 2
  - type: count
    view: tokens
    count: 2
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, "seasons", result.Trace[0].Purpose)
	assert.Equal(t, TraceEvent{Step: 1, Kind: StepFetchTokens, Purpose: "tokens-by-id", Entities: 1, Pages: 1}, result.Trace[1])
	assert.Equal(t, 1, result.Trace[2].Entities, "0x100 is not fetched again")

	require.Len(t, result.State.Seasons, 2)
	current := result.State.Seasons[1].Row
	if current.SeasonID != 3 {
		current = result.State.Seasons[0].Row
	}
	assert.True(t, current.IsActive)
	assert.Equal(t, []model.DuelistScore{{DuelistID: "0xa", Points: 30}, {DuelistID: "0xb", Points: 20}}, current.Leaderboard)
}

func TestRun_LimitTruncates(t *testing.T) {
	s := mustParse(t, `
name: limit
description: "Hydration stops at the limit"
page_size: 1
limit: 1
`+seedDoc+`
steps:
  - hydrate: [duelists]
assertions:
  - type: count
    view: duelists
    count: 1
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 1)
	assert.True(t, result.Trace[0].Truncated)
}

func TestRun_ResetClearsSession(t *testing.T) {
	s := mustParse(t, `
name: reset
description: "Reset drops the cache but not the indexer"
`+seedDoc+`
steps:
  - hydrate: [default]
  - reset: true
  - hydrate: [players]
assertions:
  - type: count
    view: store
    count: 1
  - type: count
    view: duelists
    count: 0
  - type: row
    view: duelists
    id: "0xa"
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_WriteWithoutFollowIsNotDelivered(t *testing.T) {
	s := mustParse(t, `
name: no_follow
description: "Writes reach the cache only through the live feed"
`+seedDoc+`
steps:
  - hydrate: [duelists]
  - write:
      - models:
          pistols-Scoreboard:
            duelist_id: "0xa"
            score: { honour: 50, total_duels: 1, total_wins: 1 }
assertions:
  - type: row
    view: duelists
    id: "0xa"
    expect: { wins: 0, is_active: false }
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

// =============================================================================
// Failures
// =============================================================================

func TestRun_FailedAssertions(t *testing.T) {
	s := mustParse(t, `
name: failing
description: "Every assertion is wrong"
`+seedDoc+`
steps:
  - hydrate: [default]
assertions:
  - type: count
    view: duelists
    count: 5
  - type: order
    view: duelists
    ids: ["0xb", "0xa"]
  - type: row
    view: duelists
    id: "0xa"
    expect: { name: zed }
  - type: row
    view: duelists
    id: "0xa"
    expect: { nickname: zed }
  - type: row
    view: duelists
    id: "0xa"
  - type: row
    view: players
    id: "0xfff"
    expect: { username: ann }
  - type: trace_count
    step: write
    count: 1
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 7)

	want := []string{
		"duelists has 2 rows, expected 5",
		"order is [0xa 0xb], expected [0xb 0xa]",
		"name = alice, expected zed",
		`has no field "nickname"`,
		"exists, expected none",
		"not found",
		"0 write events, expected 1",
	}
	for i, w := range want {
		assert.Contains(t, result.Errors[i], w)
	}
}

func TestRun_FailedStepStopsRun(t *testing.T) {
	s := mustParse(t, `
name: bad_write
description: "A write whose keys cannot be resolved ends the run"
steps:
  - write:
      - models:
          other-Thing: { a: 1 }
  - reset: true
assertions:
  - type: trace_count
    step: reset
    count: 0
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0] write")
	assert.Contains(t, result.Errors[0], "keys is required")
	assert.Empty(t, result.Trace)
}

func TestRun_BadSeed(t *testing.T) {
	s := mustParse(t, `
name: bad_seed
description: "Seed records must resolve their keys"
seed:
  - models:
      other-Thing: { a: 1 }
steps:
  - reset: true
assertions:
  - type: count
    view: store
    count: 0
`)
	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed")
}

// =============================================================================
// Golden
// =============================================================================

func TestSnapshot_Shape(t *testing.T) {
	result := runFile(t, "table_follow.yaml")

	data, err := Snapshot("table_follow", result)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "}\n"))

	var snap map[string]any
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "table_follow", snap["scenario_name"])
	state := snap["state"].(map[string]any)
	assert.Len(t, state["duelists"], 3)
	assert.Len(t, state["challenges"], 2)
}

func TestGolden_RunsAreDeterministic(t *testing.T) {
	dir := t.TempDir()

	first := runFile(t, "table_follow.yaml")
	require.NoError(t, UpdateGoldenIn(t, dir, "table_follow", first))

	second := runFile(t, "table_follow.yaml")
	require.NoError(t, AssertGoldenIn(t, dir, "table_follow", second))
}
