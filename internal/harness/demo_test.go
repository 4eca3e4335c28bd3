package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDir = "../../testdata/scenarios"

// TestDemoScenarios runs the shipped scenarios end to end. They double as
// reference examples for the scenario format.
func TestDemoScenarios(t *testing.T) {
	tests := []string{
		"propagation",
		"aperture_cov4",
		"aperture_cov5",
		"aperture_gfx900",
		"uniform",
	}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			path, err := filepath.Abs(filepath.Join(scenarioDir, name+".yaml"))
			require.NoError(t, err)

			scenario, err := LoadScenario(path)
			require.NoError(t, err, "failed to load scenario from %s", path)
			assert.Equal(t, name, scenario.Name, "scenario name mismatch")
			assert.NotEmpty(t, scenario.Description, "scenario should have description")

			result, err := Run(scenario)
			require.NoError(t, err, "scenario execution failed")
			assert.True(t, result.Pass, "scenario should pass: errors=%v", result.Errors)
			assert.NotEmpty(t, result.Report.Trace, "trace should not be empty")

			t.Logf("Scenario %s: %d rounds, %d trace events", name, result.Report.Rounds, len(result.Report.Trace))
		})
	}
}

// TestDemoScenarioGolden pins the propagation scenario's inferred attributes.
func TestDemoScenarioGolden(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "propagation.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors=%v", result.Errors)
	require.NoError(t, AssertGolden(t, "propagation", result))
}

// TestDemoScenarioTraceOrder validates that trace sequence numbers increase
// and rounds never go backwards.
func TestDemoScenarioTraceOrder(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "uniform.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	trace := result.Report.Trace
	for i := 1; i < len(trace); i++ {
		assert.Greater(t, trace[i].Seq, trace[i-1].Seq, "trace[%d].Seq", i)
		assert.GreaterOrEqual(t, trace[i].Round, trace[i-1].Round, "trace[%d].Round", i)
	}
}
