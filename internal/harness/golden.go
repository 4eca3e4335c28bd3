package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/kernattr/internal/ir"
)

// ResultSnapshot captures the inferred attributes of a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
// The trace is left out; trace_count assertions cover it.
type ResultSnapshot struct {
	ScenarioName string         `json:"scenario_name"`
	RunID        string         `json:"run_id"`
	Result       map[string]any `json:"result"`
}

func (s *ResultSnapshot) toCanonicalMap() map[string]any {
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"run_id":        s.RunID,
		"result":        s.Result,
	}
}

// Snapshot builds the golden snapshot of a result.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := ResultSnapshot{
		ScenarioName: scenarioName,
		RunID:        result.RunID,
		Result:       result.Report.Canonical(),
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its result against a golden
// file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the result doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
