package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/target"
)

func TestReadRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := runRecord(t, "run-1", propagationModule(t), target.MustProvider())
	_, err := s.WriteRun(ctx, rec)
	require.NoError(t, err)

	run, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)

	want := rec.Run
	want.Seq = 1
	assert.Equal(t, want, run)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.Contains(t, err.Error(), "missing")
}

func TestListRuns_InsertionOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.NotNil(t, runs, "empty store returns an empty slice")
	assert.Empty(t, runs)

	// IDs deliberately sort opposite to insertion order.
	for _, id := range []string{"run-c", "run-b", "run-a"} {
		_, err := s.WriteRun(ctx, runRecord(t, id, propagationModule(t), target.MustProvider()))
		require.NoError(t, err)
	}

	runs, err = s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-c", runs[0].ID)
	assert.Equal(t, "run-b", runs[1].ID)
	assert.Equal(t, "run-a", runs[2].ID)

	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, runs[2].Seq, last)
}

func TestRunsForFingerprint(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	m := propagationModule(t)
	fp := ir.MustFingerprint(m)
	_, err := s.WriteRun(ctx, runRecord(t, "run-1", m, target.MustProvider()))
	require.NoError(t, err)
	// m now carries manifested attributes, so its fingerprint differs.
	_, err = s.WriteRun(ctx, runRecord(t, "run-2", m, target.MustProvider()))
	require.NoError(t, err)

	runs, err := s.RunsForFingerprint(ctx, fp)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}

func TestReadFunctionResults_Decoded(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := runRecord(t, "run-1", propagationModule(t), target.MustProvider())
	_, err := s.WriteRun(ctx, rec)
	require.NoError(t, err)

	results, err := s.ReadFunctionResults(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, results, len(rec.Functions))

	for i, fr := range results {
		assert.Equal(t, rec.Functions[i].Name, fr.Name)
		assert.Equal(t, rec.Functions[i].Seq, fr.Seq)

		want, err := ir.MarshalCanonical(rec.Functions[i].Result)
		require.NoError(t, err)
		got, err := ir.MarshalCanonical(fr.Result)
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), "decoded result re-encodes identically")
	}

	callee := results[0].Result
	assert.Equal(t, "false", callee["uniform"], "the kernel does not declare a uniform work-group size")
	assert.NotContains(t, callee["absent"], "workitem-id-y")
	assert.Contains(t, callee["absent"], "workitem-id-x")
}

func TestReadTrace_OrderAndFilter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := runRecord(t, "run-1", propagationModule(t), target.MustProvider())
	_, err := s.WriteRun(ctx, rec)
	require.NoError(t, err)

	all, err := s.ReadTrace(ctx, "run-1", "")
	require.NoError(t, err)
	assert.Equal(t, rec.Trace, all)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Seq, all[i].Seq)
	}

	kernel, err := s.ReadTrace(ctx, "run-1", "kernel")
	require.NoError(t, err)
	require.NotEmpty(t, kernel)
	for _, ev := range kernel {
		assert.Equal(t, "kernel", ev.Function)
	}

	none, err := s.ReadTrace(ctx, "run-1", "nope")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestReadRecord(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := runRecord(t, "run-1", propagationModule(t), target.MustProvider())
	_, err := s.WriteRun(ctx, rec)
	require.NoError(t, err)

	got, err := s.ReadRecord(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Run.ResultHash, got.Run.ResultHash)
	assert.Len(t, got.Functions, len(rec.Functions))
	assert.Equal(t, rec.Trace, got.Trace)

	_, err = s.ReadRecord(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestUnmarshalObject_RejectsFloats(t *testing.T) {
	_, err := unmarshalObject("result", `{"a":1.5}`)
	assert.ErrorContains(t, err, "non-integer number")

	obj, err := unmarshalObject("result", `{}`)
	require.NoError(t, err)
	assert.Empty(t, obj)
}
