package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inlineScenario embeds the propagation module in a scenario file.
func inlineScenario(name string, assertions string) string {
	var b strings.Builder
	b.WriteString("name: " + name + "\n")
	b.WriteString("source: |\n")
	for _, line := range strings.Split(strings.TrimRight(propagationModule, "\n"), "\n") {
		b.WriteString("  " + line + "\n")
	}
	b.WriteString("assertions:\n")
	b.WriteString(assertions)
	return b.String()
}

const passingAssertions = `  - type: uniform
    function: callee
    value: "false"
  - type: changed
    value: "true"
`

const failingAssertions = `  - type: absent
    function: kernel
    names: [workitem-id-y]
`

// writeScenarioDir writes scenarios (file name to content) into a temp dir.
func writeScenarioDir(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range scenarios {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(NewTestCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestTestCommandNonExistentPath(t *testing.T) {
	_, err := execute(NewTestCommand(&RootOptions{Format: "text"}), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}

func TestTestCommandEmptyDirectory(t *testing.T) {
	output, err := execute(NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, output, "No scenarios found.")
}

func TestTestCommandDemoScenarios(t *testing.T) {
	scenariosDir := filepath.Join("..", "..", "testdata", "scenarios")
	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		t.Skip("testdata/scenarios directory not found")
	}

	output, err := execute(NewTestCommand(&RootOptions{Format: "text"}), scenariosDir)
	require.NoError(t, err, output)
	assert.Contains(t, output, "✓ propagation")
	assert.Contains(t, output, "✓ aperture_cov4")
	assert.Contains(t, output, "0 failed")
}

func TestTestCommandPassAndFail(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{
		"pass.yaml": inlineScenario("pass", passingAssertions),
		"fail.yaml": inlineScenario("fail", failingAssertions),
	})

	output, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, output, "✓ pass")
	assert.Contains(t, output, "✗ fail")
	assert.Contains(t, output, "Assertion failed: absent")
	assert.Contains(t, output, "Results: 1 passed, 1 failed, 2 total")
}

func TestTestCommandJSON(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{
		"pass.yaml": inlineScenario("pass", passingAssertions),
		"fail.yaml": inlineScenario("fail", failingAssertions),
	})

	output, err := execute(NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)

	// Scenarios run in lexical file order.
	assert.Equal(t, "fail", resp.Data.Scenarios[0].Name)
	assert.Equal(t, "pass", resp.Data.Scenarios[1].Name)
}

func TestTestCommandFilter(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{
		"pass.yaml": inlineScenario("pass", passingAssertions),
		"fail.yaml": inlineScenario("fail", failingAssertions),
	})

	output, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir, "--filter", "pa*")
	require.NoError(t, err)
	assert.Contains(t, output, "✓ pass")
	assert.NotContains(t, output, "fail.yaml")
	assert.Contains(t, output, "1 total")
}

func TestTestCommandInvalidFilter(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{
		"pass.yaml": inlineScenario("pass", passingAssertions),
	})

	_, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandLoadError(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{
		"broken.yaml": "name: broken\nassertions: [\n",
	})

	output, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "failed to load scenario")
}

func TestTestCommandGoldenUpdateAndCompare(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{
		"pass.yaml": inlineScenario("pass", passingAssertions),
	})
	goldenPath := filepath.Join(dir, "golden", "pass.golden")

	output, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, output, "✓ pass (golden updated)")
	require.FileExists(t, goldenPath)

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"pass"`)
	assert.Contains(t, string(golden), `"run_id":"test-run-default"`)

	// A second run compares against the written file.
	_, err = execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)

	// A stale golden file fails the scenario.
	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"stale":true}`), 0644))
	output, err = execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, output, "do not match golden file")
}

func TestTestCommandSingleFile(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{
		"pass.yaml": inlineScenario("pass", passingAssertions),
		"fail.yaml": inlineScenario("fail", failingAssertions),
	})

	output, err := execute(NewTestCommand(&RootOptions{Format: "text"}), filepath.Join(dir, "pass.yaml"))
	require.NoError(t, err)
	assert.Contains(t, output, "1 passed, 0 failed, 1 total")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("scenarios", "golden", "propagation.golden"),
		goldenFilePath(filepath.Join("scenarios", "propagation.yaml"), "propagation"))
}
