package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// GoldenDir holds golden files relative to the test package.
const GoldenDir = "testdata/golden"

// RunSnapshot is the golden form of a run: the trace plus every view.
type RunSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
	State        State        `json:"state"`
}

// Snapshot renders the golden bytes of a run. Views are ordered by
// entity id and struct fields keep declaration order, so the output is
// stable across runs.
func Snapshot(name string, result *Result) ([]byte, error) {
	data, err := json.MarshalIndent(RunSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		State:        result.State,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()
	return AssertGoldenIn(t, GoldenDir, name, result)
}

// AssertGoldenIn compares a result against {dir}/{name}.golden.
func AssertGoldenIn(t *testing.T, dir, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	newGoldie(t, dir).Assert(t, name, data)
	return nil
}

// UpdateGoldenIn writes the snapshot of result to {dir}/{name}.golden.
func UpdateGoldenIn(t *testing.T, dir, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	return newGoldie(t, dir).Update(t, name, data)
}

func newGoldie(t *testing.T, dir string) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir(dir),
		goldie.WithNameSuffix(".golden"),
	)
}
