package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/duelsync/internal/views"
)

// =============================================================================
// seed
// =============================================================================

func TestSeed(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "duelsync.db")
	a := writeFile(t, dir, "a.yaml", seasonFixture)
	b := writeFile(t, dir, "b.yaml", `
entities:
  - models:
      pistols-Duelist: { duelist_id: "0xe", name: "0x657665", timestamp: 9 }
`)

	stdout, _, err := execute(t, "seed", "--db", db, a, b)
	require.NoError(t, err)
	assert.Equal(t, "✓ Seeded 9 entities from 2 file(s) (ledger seq 9)\n", stdout)

	stdout, _, err = execute(t, "seed", "--db", db, b, "--format", "json")
	require.NoError(t, err)
	var result SeedResult
	resp := decodeEnvelope(t, stdout, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, result.Entities)
	assert.Equal(t, int64(10), result.LastSeq, "the ledger appends")
}

func TestSeed_InvalidFixture(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.yaml", "entities:\n  - models: {}\n")

	_, _, err := execute(t, "seed", "--db", filepath.Join(dir, "x.db"), bad)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid fixture")
}

func TestSeed_RejectsRemote(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, dir, "a.yaml", seasonFixture)

	_, _, err := execute(t, "seed", "--indexer-url", "http://127.0.0.1:1", f)

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// =============================================================================
// validate
// =============================================================================

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", seasonFixture)
	bad := writeFile(t, dir, "bad.yaml", `
entities:
  - models:
      pistols-Duelist: { duelist_id: "0xa", name: "0x616c696365", timestamp: soon }
`)

	t.Run("valid", func(t *testing.T) {
		stdout, _, err := execute(t, "validate", good)
		require.NoError(t, err)
		assert.Contains(t, stdout, "(9 entities)")
		assert.Contains(t, stdout, "✓ All fixtures valid")
	})

	t.Run("invalid", func(t *testing.T) {
		stdout, _, err := execute(t, "validate", good, bad)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, stdout, "✗ "+bad)
		assert.Contains(t, stdout, "entities[0]:")
		assert.Contains(t, stdout, "1 problem(s) found")
	})

	t.Run("invalid json", func(t *testing.T) {
		stdout, _, err := execute(t, "validate", bad, "--format", "json")
		require.Error(t, err)

		var result ValidateResult
		resp := decodeEnvelope(t, stdout, &result)
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeFixture, resp.Error.Code)
		assert.False(t, result.Valid)
		require.Len(t, result.Files, 1)
		assert.Len(t, result.Files[0].Problems, 1)
	})

	t.Run("missing file", func(t *testing.T) {
		stdout, _, err := execute(t, "validate", filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, stdout, "read fixture")
	})
}

// =============================================================================
// hydrate
// =============================================================================

func TestHydrate(t *testing.T) {
	db := seededDB(t)

	stdout, stderr, err := execute(t, "hydrate", "--db", db, "--table", "Season1", "--format", "json")
	require.NoError(t, err, "stderr: %s", stderr)

	var result HydrateResult
	resp := decodeEnvelope(t, stdout, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, resp.SessionID, result.Stats.SessionID)
	assert.Equal(t, 2, result.Stats.Challenges)
	assert.Equal(t, 4, result.Stats.Duelists)
	assert.Equal(t, 1, result.Stats.Players)
	assert.Equal(t, 7, result.Stats.Entities)
	assert.Empty(t, result.Metrics)
}

func TestHydrate_AllTables(t *testing.T) {
	db := seededDB(t)

	stdout, _, err := execute(t, "hydrate", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "challenges: 3")
	assert.Contains(t, stdout, "duelists:   4")
}

func TestHydrate_SnapshotAndMetrics(t *testing.T) {
	db := seededDB(t)
	snap := filepath.Join(t.TempDir(), "cache.json")

	stdout, _, err := execute(t, "hydrate", "--db", db, "--snapshot", snap, "--metrics", "--format", "json")
	require.NoError(t, err)

	var result HydrateResult
	decodeEnvelope(t, stdout, &result)
	assert.NotEmpty(t, result.Metrics)

	data, err := os.ReadFile(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pistols-Duelist")
}

func TestHydrate_UnreachableIndexer(t *testing.T) {
	_, _, err := execute(t, "hydrate", "--indexer-url", "http://127.0.0.1:1", "--format", "json")

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

// =============================================================================
// duels / duelists / players
// =============================================================================

func duelIDs(rows []views.ChallengeRow) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.DuelID
	}
	return ids
}

func TestDuels(t *testing.T) {
	db := seededDB(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"newest first", nil, []string{"0x1", "0x2"}},
		{"oldest first", []string{"--dir", "asc"}, []string{"0x2", "0x1"}},
		{"by state", []string{"--state", "InProgress"}, []string{"0x2"}},
		{"by player", []string{"--player", "0xdef"}, []string{"0x1", "0x2"}},
		{"unknown player", []string{"--player", "0x999"}, []string{}},
		{"paged", []string{"--rows", "1", "--page", "1"}, []string{"0x2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"duels", "--db", db, "--table", "Season1", "--format", "json"}, tt.args...)
			stdout, stderr, err := execute(t, args...)
			require.NoError(t, err, "stderr: %s", stderr)

			var result ListResult[views.ChallengeRow]
			decodeEnvelope(t, stdout, &result)
			assert.Equal(t, "challenges", result.View)
			assert.Equal(t, tt.want, duelIDs(result.Rows))
		})
	}
}

func TestDuels_Text(t *testing.T) {
	db := seededDB(t)

	stdout, _, err := execute(t, "duels", "--db", db, "--table", "Season1", "--rows", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "DUEL")
	assert.Contains(t, stdout, "Resolved")
	assert.Contains(t, stdout, "page 1/2, 2 rows")
}

func TestDuels_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"sort", []string{"--sort", "honour"}},
		{"dir", []string{"--dir", "sideways"}},
		{"state", []string{"--state", "Bogus"}},
		{"bookmark without contract", []string{"--bookmarked-by", "0xabc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"duels", "--db", filepath.Join(t.TempDir(), "x.db")}, tt.args...)
			_, _, err := execute(t, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestDuelists(t *testing.T) {
	db := seededDB(t)

	tests := []struct {
		name      string
		args      []string
		want      []string
		pageCount int
	}{
		{"by name", nil, []string{"0xa", "0xb", "0xc", "0xd"}, 1},
		{"by name desc", []string{"--dir", "desc"}, []string{"0xd", "0xc", "0xb", "0xa"}, 1},
		{"name filter ignores case", []string{"--name", "AL"}, []string{"0xa"}, 1},
		{"second page", []string{"--rows", "2", "--page", "1"}, []string{"0xc", "0xd"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"duelists", "--db", db, "--format", "json"}, tt.args...)
			stdout, stderr, err := execute(t, args...)
			require.NoError(t, err, "stderr: %s", stderr)

			var result ListResult[DuelistListRow]
			decodeEnvelope(t, stdout, &result)
			ids := make([]string, len(result.Rows))
			for i, r := range result.Rows {
				ids[i] = r.DuelistID
			}
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, tt.pageCount, result.PageCount)
		})
	}
}

func TestDuelists_Text(t *testing.T) {
	db := seededDB(t)

	stdout, _, err := execute(t, "duelists", "--db", db, "--rewards")
	require.NoError(t, err)
	assert.Contains(t, stdout, "alice")
	assert.Contains(t, stdout, "POINTS")
}

func TestPlayers(t *testing.T) {
	db := seededDB(t)

	stdout, stderr, err := execute(t, "players", "--db", db, "--format", "json")
	require.NoError(t, err, "stderr: %s", stderr)

	var result ListResult[views.PlayerRow]
	decodeEnvelope(t, stdout, &result)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "0xabc", result.Rows[0].Address)
	assert.Equal(t, "ann", result.Rows[0].Username)
	assert.Equal(t, int64(5), result.Rows[0].Registered)

	t.Run("bookmarked by nobody", func(t *testing.T) {
		stdout, _, err := execute(t, "players", "--db", db, "--bookmarked-by", "0xdef", "--format", "json")
		require.NoError(t, err)

		var result ListResult[views.PlayerRow]
		decodeEnvelope(t, stdout, &result)
		assert.Empty(t, result.Rows)
	})
}

// =============================================================================
// ledger / rebuild
// =============================================================================

func TestLedger(t *testing.T) {
	db := seededDB(t)

	t.Run("all", func(t *testing.T) {
		stdout, _, err := execute(t, "ledger", "--db", db, "--format", "json")
		require.NoError(t, err)

		var result LedgerResult
		decodeEnvelope(t, stdout, &result)
		assert.Len(t, result.Entries, 9)
		assert.Equal(t, int64(9), result.Next)
		assert.Equal(t, int64(9), result.Stats.LastSeq)
		assert.Equal(t, "pistols-Challenge", result.Entries[0].Model)
	})

	t.Run("after and count", func(t *testing.T) {
		stdout, _, err := execute(t, "ledger", "--db", db, "--after", "5", "--count", "2", "--format", "json")
		require.NoError(t, err)

		var result LedgerResult
		decodeEnvelope(t, stdout, &result)
		require.Len(t, result.Entries, 2)
		assert.Equal(t, int64(6), result.Entries[0].Seq)
		assert.Equal(t, int64(7), result.Next)
	})

	t.Run("by model", func(t *testing.T) {
		stdout, _, err := execute(t, "ledger", "--db", db, "--model", "pistols-Duelist", "--format", "json")
		require.NoError(t, err)

		var result LedgerResult
		decodeEnvelope(t, stdout, &result)
		assert.Len(t, result.Entries, 4)
		assert.Equal(t, int64(9), result.Next, "filtered entries still advance the cursor")
	})

	t.Run("text", func(t *testing.T) {
		stdout, _, err := execute(t, "ledger", "--db", db, "--count", "1")
		require.NoError(t, err)
		assert.Contains(t, stdout, "SEQ")
		assert.Contains(t, stdout, "1 of 9 ledger entries (last seq 9)")
	})
}

func TestRebuild(t *testing.T) {
	db := seededDB(t)

	stdout, _, err := execute(t, "rebuild", "--db", db, "--verify", "--format", "json")
	require.NoError(t, err)

	var result RebuildResult
	decodeEnvelope(t, stdout, &result)
	assert.Equal(t, int64(9), result.Models)
	assert.Equal(t, result.Before, result.After)
	require.NotNil(t, result.Deterministic)
	assert.True(t, *result.Deterministic)

	stdout, _, err = execute(t, "rebuild", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "✓ Rebuilt 9 models from 9 ledger entries\n", stdout)
}
