package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/target"
	"github.com/roach88/kernattr/internal/testutil"
)

func TestNewRecord(t *testing.T) {
	gen := testutil.NewFixedRunIDGenerator("run-1")
	rec := runRecord(t, gen.Generate(), propagationModule(t), target.MustProvider())

	assert.Equal(t, "run-1", rec.Run.ID)
	assert.Equal(t, "propagation", rec.Run.Module)
	assert.Len(t, rec.Run.Fingerprint, 64)
	assert.Len(t, rec.Run.ResultHash, 64)
	assert.True(t, rec.Run.Changed)
	assert.Equal(t, ir.EngineVersion, rec.Run.EngineVersion)
	assert.Equal(t, ir.ResultVersion, rec.Run.ResultVersion)
	assert.Contains(t, rec.Run.Target, `"default_cpu":"gfx900"`)

	require.Len(t, rec.Functions, 2, "intrinsics have no results")
	assert.Equal(t, "callee", rec.Functions[0].Name)
	assert.Equal(t, int64(0), rec.Functions[0].Seq)
	assert.Equal(t, "kernel", rec.Functions[1].Name)
	assert.Equal(t, "amdgpu_kernel", rec.Functions[1].CC)
	assert.NotEmpty(t, rec.Trace)
}

func TestNewRecord_NilReport(t *testing.T) {
	_, err := NewRecord("run-1", "fp", target.MustProvider().Config(), nil)
	assert.ErrorContains(t, err, "nil report")
}

func TestWriteRun_Basic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := runRecord(t, "run-1", propagationModule(t), target.MustProvider())

	inserted, err := s.WriteRun(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	var fns, events int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM function_results WHERE run_id = ?`, "run-1").Scan(&fns))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM trace_events WHERE run_id = ?`, "run-1").Scan(&events))
	assert.Equal(t, len(rec.Functions), fns)
	assert.Equal(t, len(rec.Trace), events)

	var result string
	require.NoError(t, s.db.QueryRow(`SELECT result FROM function_results WHERE run_id = ? AND name = ?`, "run-1", "callee").Scan(&result))
	assert.Contains(t, result, `"name":"callee"`)
	assert.NotContains(t, result, `": "`, "stored results are canonical JSON")
}

func TestWriteRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := runRecord(t, "run-1", propagationModule(t), target.MustProvider())

	inserted, err := s.WriteRun(ctx, rec)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = s.WriteRun(ctx, rec)
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate run ID is ignored")

	var runs, events int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&runs))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM trace_events`).Scan(&events))
	assert.Equal(t, 1, runs)
	assert.Equal(t, len(rec.Trace), events)
}

func TestWriteRun_RejectsUnencodableResult(t *testing.T) {
	s := createTestStore(t)
	rec := runRecord(t, "run-1", propagationModule(t), target.MustProvider())
	rec.Functions[0].Result["bad"] = 1.5

	_, err := s.WriteRun(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")

	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs, "failed write rolls back")
}

func TestDeleteRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.WriteRun(ctx, runRecord(t, "run-1", propagationModule(t), target.MustProvider()))
	require.NoError(t, err)

	require.NoError(t, s.DeleteRun(ctx, "run-1"))

	trace, err := s.ReadTrace(ctx, "run-1", "")
	require.NoError(t, err)
	assert.Empty(t, trace)

	err = s.DeleteRun(ctx, "run-1")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
