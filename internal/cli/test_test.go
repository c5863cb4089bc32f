package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioDir copies the harness's table_follow scenario into a fresh
// directory.
func scenarioDir(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "harness", "testdata", "scenarios", "table_follow.yaml"))
	require.NoError(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "table_follow.yaml", string(data))
	return dir
}

const failingScenario = `
name: wrong_count
description: "Expects a challenge the indexer never had"
seed:
  - models:
      pistols-Duelist: { duelist_id: "0xa", name: "0x616c696365", timestamp: 1 }
steps:
  - hydrate: [default]
assertions:
  - type: count
    view: challenges
    count: 1
`

func TestTestCommand_Flags(t *testing.T) {
	sub, _, err := NewRootCommand().Find([]string{"test"})
	require.NoError(t, err)

	assert.Equal(t, "false", sub.Flags().Lookup("update").DefValue)
	assert.NotNil(t, sub.Flags().Lookup("filter"))
}

func TestTestCommand_Passing(t *testing.T) {
	dir := scenarioDir(t)

	stdout, _, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ table_follow\n")
	assert.Contains(t, stdout, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommand_Golden(t *testing.T) {
	dir := scenarioDir(t)
	golden := filepath.Join(dir, "golden", "table_follow.golden")

	stdout, _, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ table_follow (golden updated)")
	require.FileExists(t, golden)

	stdout, _, err = execute(t, "test", dir)
	require.NoError(t, err, "a second run matches its golden file: %s", stdout)

	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0o644))
	stdout, _, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ table_follow")
	assert.Contains(t, stdout, "does not match golden file")
}

func TestTestCommand_Failing(t *testing.T) {
	dir := scenarioDir(t)
	writeFile(t, dir, "wrong_count.yaml", failingScenario)

	stdout, _, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result TestResult
	resp := decodeEnvelope(t, stdout, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTestFailed, resp.Error.Code)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)

	for _, s := range result.Scenarios {
		if s.Name == "wrong_count" {
			assert.False(t, s.Pass)
			assert.NotEmpty(t, s.Errors)
		}
	}
}

func TestTestCommand_Filter(t *testing.T) {
	dir := scenarioDir(t)
	writeFile(t, dir, "wrong_count.yaml", failingScenario)

	stdout, _, err := execute(t, "test", dir, "--filter", "table_*")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 total")

	stdout, _, err = execute(t, "test", dir, "--filter", "nothing-*")
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", stdout)
}

func TestTestCommand_BadScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "name: broken\nsteps: []\n")

	stdout, _, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, stdout, "✗ broken.yaml")
	assert.Contains(t, stdout, "failed to load scenario")
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, _, err := execute(t, "test", filepath.Join(t.TempDir(), "nope"))

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "")
	writeFile(t, dir, "b.yml", "")
	writeFile(t, dir, "notes.txt", "")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	writeFile(t, filepath.Join(dir, "golden"), "a.yaml", "")

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b.yml")}, files)

	_, err = findScenarioFiles(dir, "[")
	assert.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("scenarios", "golden", "table_follow.golden"),
		goldenFilePath(filepath.Join("scenarios", "table_follow.yaml")))
}
