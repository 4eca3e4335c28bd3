package store

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/kernattr/internal/amdgpu"
	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/target"
	"github.com/roach88/kernattr/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// insertRunRow inserts a bare run row for constraint tests.
func insertRunRow(t *testing.T, s *Store, id string) {
	t.Helper()
	_, err := s.db.Exec(`
		INSERT INTO runs
		(id, module, fingerprint, target, result_hash, changed, rounds, updates, attributes, exhausted, engine_version, result_version)
		VALUES (?, 'm', 'fp', '{}', 'hash', 0, 0, 0, 0, 0, '0.1.0', '1')
	`, id)
	if err != nil {
		t.Fatalf("insert run %s: %v", id, err)
	}
}

// propagationModule builds a kernel whose callee reads workitem.id.y.
func propagationModule(t *testing.T) *ir.Module {
	t.Helper()
	b := testutil.NewModule(t, "propagation")
	callee := b.Func("callee", testutil.CallIntrinsic(b, ir.WorkitemIDY))
	b.Kernel("kernel", testutil.Call(callee))
	return b.Build()
}

// runRecord runs the pass over m and returns its record. The fingerprint is
// taken before the run.
func runRecord(t *testing.T, id string, m *ir.Module, p *target.Provider) *Record {
	t.Helper()
	fp, err := ir.Fingerprint(m)
	require.NoError(t, err)

	report, err := amdgpu.Run(m, p, amdgpu.WithTrace(true), amdgpu.WithLogger(discardLogger()))
	require.NoError(t, err)

	rec, err := NewRecord(id, fp, p.Config(), report)
	require.NoError(t, err)
	return rec
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// verifyPragma checks that a pragma reads back as expected.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
