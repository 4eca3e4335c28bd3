package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kernattr/internal/store"
)

func newTestRunCommand(format, runID string) *RunOptions {
	return &RunOptions{
		RootOptions:    &RootOptions{Format: format},
		RunIDGenerator: fixedRunID(runID),
	}
}

func TestRunPropagation(t *testing.T) {
	path := writeFile(t, "propagation.cue", propagationModule)

	output, err := execute(NewRunCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)

	assert.Contains(t, output, "Module propagation changed after")
	assert.Contains(t, output, "callee (c)")
	assert.Contains(t, output, "uniform-work-group-size: false")
	assert.Contains(t, output, "flat-work-group-size:    [1, 256]")
	assert.Contains(t, output, `"amdgpu-flat-work-group-size"="1,256"`)
	assert.NotContains(t, output, "Run ID:", "no --db, nothing stored")
}

func TestRunJSON(t *testing.T) {
	path := writeFile(t, "propagation.cue", propagationModule)

	output, err := execute(NewRunCommand(&RootOptions{Format: "json"}), path)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "propagation", resp.Data.Module)
	assert.True(t, resp.Data.Changed)
	assert.False(t, resp.Data.Exhausted)
	assert.Len(t, resp.Data.Result["functions"], 2, "intrinsics are not reported")
}

func TestRunStoresRun(t *testing.T) {
	path := writeFile(t, "propagation.cue", propagationModule)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	output, err := execute(newRunCommand(newTestRunCommand("text", "run-1")), path, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, output, "Run ID: run-1")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.ReadRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "propagation", run.Module)
	assert.True(t, run.Changed)

	trace, err := st.ReadTrace(context.Background(), "run-1", "callee")
	require.NoError(t, err)
	assert.NotEmpty(t, trace, "stored runs carry their trace")
}

func TestRunDefaultRunIDIsUUID(t *testing.T) {
	path := writeFile(t, "propagation.cue", propagationModule)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	output, err := execute(NewRunCommand(&RootOptions{Format: "json"}), path, "--db", dbPath)
	require.NoError(t, err)

	var resp struct {
		Data RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Len(t, resp.Data.RunID, 36)
}

func TestRunOutputFile(t *testing.T) {
	path := writeFile(t, "propagation.cue", propagationModule)
	outputFile := filepath.Join(t.TempDir(), "report.json")

	_, err := execute(NewRunCommand(&RootOptions{Format: "text"}), path, "-o", outputFile)
	require.NoError(t, err)

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "propagation", report["module"])
	assert.Equal(t, true, report["changed"])
}

func TestRunCodeObjectVersion(t *testing.T) {
	aperture := filepath.Join("..", "..", "testdata", "modules", "aperture.cue")
	if _, err := os.Stat(aperture); os.IsNotExist(err) {
		t.Skip("testdata/modules/aperture.cue not found")
	}

	tests := []struct {
		name        string
		cov         string
		wantAbsent  string
		wantPresent string
	}{
		{"cov4 needs queue-ptr", "4", "amdgpu-no-implicitarg-ptr", "amdgpu-no-queue-ptr"},
		{"cov5 needs implicitarg-ptr", "5", "amdgpu-no-queue-ptr", "amdgpu-no-implicitarg-ptr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := execute(NewRunCommand(&RootOptions{Format: "text"}), aperture,
				"--cpu", "gfx803", "--cov", tt.cov)
			require.NoError(t, err)
			assert.Contains(t, output, tt.wantAbsent)
			assert.NotContains(t, output, tt.wantPresent)
		})
	}
}

func TestRunUnknownCPU(t *testing.T) {
	path := writeFile(t, "propagation.cue", propagationModule)

	_, err := execute(NewRunCommand(&RootOptions{Format: "text"}), path, "--cpu", "gfx9999")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeTarget)
}

func TestRunInvalidModule(t *testing.T) {
	path := writeFile(t, "invalid.cue", invalidModule)

	output, err := execute(NewRunCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "module is invalid")
	assert.Contains(t, output, "[E106]")
}

func TestRunNonExistentModule(t *testing.T) {
	_, err := execute(NewRunCommand(&RootOptions{Format: "text"}), "/nonexistent/module.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunMaxIterations(t *testing.T) {
	path := writeFile(t, "recursive.cue", recursiveModule)

	output, err := execute(NewRunCommand(&RootOptions{Format: "json"}), path, "--max-iterations", "1")
	require.NoError(t, err)

	var resp struct {
		Data RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.LessOrEqual(t, resp.Data.Rounds, 1)
}
