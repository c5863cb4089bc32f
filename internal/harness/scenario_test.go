package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "table_follow.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "table_follow", scenario.Name)
	assert.Equal(t, "Season1", scenario.TableID)
	assert.Equal(t, 2, scenario.PageSize)
	assert.Len(t, scenario.Seed, 8)
	require.Len(t, scenario.Steps, 4)
	assert.Equal(t, StepHydrate, scenario.Steps[0].Kind())
	assert.Equal(t, []string{"challenges", "players"}, scenario.Steps[0].Hydrate)
	assert.Equal(t, StepFetchDuelists, scenario.Steps[1].Kind())
	assert.Equal(t, StepFollow, scenario.Steps[2].Kind())
	assert.Equal(t, StepWrite, scenario.Steps[3].Kind())
	assert.Len(t, scenario.Steps[3].Write, 2)
	assert.Len(t, scenario.Assertions, 8)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	content := `
name: minimal
description: "One hydrate"
steps:
  - hydrate: [default]
assertions:
  - type: count
    view: store
    count: 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", scenario.Name)
	assert.Empty(t, scenario.Seed)
	assert.Zero(t, scenario.Limit)
}

// =============================================================================
// Validation
// =============================================================================

func TestParseScenario_Validation(t *testing.T) {
	const head = "name: s\ndescription: d\n"
	const steps = "steps:\n  - hydrate: [default]\n"
	const asserts = "assertions:\n  - type: count\n    view: store\n    count: 0\n"

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"missing name", "description: d\n" + steps + asserts, "name is required"},
		{"missing description", "name: s\n" + steps + asserts, "description is required"},
		{"negative page size", head + "page_size: -1\n" + steps + asserts, "page_size must be non-negative"},
		{"no steps", head + asserts, "steps list is required"},
		{"no assertions", head + steps, "assertions list is required"},
		{"unknown field", head + "flow: []\n" + steps + asserts, "failed to parse YAML"},
		{"empty step", head + "steps:\n  - {}\n" + asserts, "exactly one of"},
		{"two ops in one step", head + "steps:\n  - { follow: true, reset: true }\n" + asserts, "exactly one of"},
		{"unknown purpose", head + "steps:\n  - hydrate: [weapons]\n" + asserts, `unknown purpose "weapons"`},
		{"missing type", head + steps + "assertions:\n  - view: store\n", "type is required"},
		{"unknown type", head + steps + "assertions:\n  - type: trace_contains\n", "unknown assertion type"},
		{"unknown view", head + steps + "assertions:\n  - type: count\n    view: weapons\n", `unknown view "weapons"`},
		{"order on store", head + steps + "assertions:\n  - type: order\n    view: store\n    ids: []\n", "has no ordering"},
		{"order without ids", head + steps + "assertions:\n  - type: order\n    view: duelists\n", "ids is required"},
		{"row without id", head + steps + "assertions:\n  - type: row\n    view: duelists\n", "id is required"},
		{"row on rewards", head + steps + "assertions:\n  - type: row\n    view: rewards\n    id: x\n", "has no row lookup"},
		{"trace count without step", head + steps + "assertions:\n  - type: trace_count\n    count: 1\n", "step is required"},
		{"negative count", head + steps + "assertions:\n  - type: count\n    view: store\n    count: -2\n", "count must be non-negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_EmptyOrderIsValid(t *testing.T) {
	doc := `
name: s
description: d
steps:
  - reset: true
assertions:
  - type: order
    view: challenges
    ids: []
`
	scenario, err := ParseScenario([]byte(doc))
	require.NoError(t, err)
	assert.NotNil(t, scenario.Assertions[0].IDs)
}

func TestStep_Kind(t *testing.T) {
	tests := []struct {
		step Step
		want string
	}{
		{Step{Hydrate: []string{"default"}}, StepHydrate},
		{Step{FetchDuelists: true}, StepFetchDuelists},
		{Step{FetchChallenges: true}, StepFetchChallenges},
		{Step{FetchRewards: []string{"all"}}, StepFetchRewards},
		{Step{FetchTokens: []string{"0x100"}}, StepFetchTokens},
		{Step{Follow: true}, StepFollow},
		{Step{Reset: true}, StepReset},
		{Step{}, ""},
		{Step{Follow: true, FetchDuelists: true}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.step.Kind())
	}
}
