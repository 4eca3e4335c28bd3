package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/kernattr/internal/amdgpu"
	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/target"
)

// ErrFingerprintMismatch is returned when a replay is given a module other
// than the one the stored run analysed.
var ErrFingerprintMismatch = errors.New("module fingerprint does not match run")

// ReplayResult compares a stored run with a fresh run over the same input.
type ReplayResult struct {
	RunID      string
	Match      bool
	StoredHash string
	ReplayHash string
	// Diffs lists the functions whose results differ, in module order.
	Diffs []FunctionDiff
	// Report is the fresh run.
	Report *amdgpu.Report
}

// FunctionDiff is one differing function. A side that has no result for the
// function is "".
type FunctionDiff struct {
	Name     string
	Stored   string
	Replayed string
}

// Replay re-runs the pass over m with the stored run's target and compares
// the results. m must be the unmodified input module; it is modified by the
// fresh run.
//
// A deterministic engine always replays to Match=true.
func (s *Store) Replay(ctx context.Context, runID string, m *ir.Module, opts ...amdgpu.Option) (*ReplayResult, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	fp, err := ir.Fingerprint(m)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if fp != run.Fingerprint {
		return nil, fmt.Errorf("replay %s: %w (module %s)", runID, ErrFingerprintMismatch, m.Name)
	}

	cfg, err := target.ParseConfig([]byte(run.Target))
	if err != nil {
		return nil, fmt.Errorf("replay %s: stored target: %w", runID, err)
	}
	provider, err := target.NewProviderFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("replay %s: stored target: %w", runID, err)
	}

	report, err := amdgpu.Run(m, provider, opts...)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", runID, err)
	}
	fresh, err := NewRecord(runID, fp, cfg, report)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", runID, err)
	}

	stored, err := s.ReadFunctionResults(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", runID, err)
	}

	diffs, err := diffResults(stored, fresh.Functions)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", runID, err)
	}
	return &ReplayResult{
		RunID:      runID,
		Match:      fresh.Run.ResultHash == run.ResultHash && len(diffs) == 0,
		StoredHash: run.ResultHash,
		ReplayHash: fresh.Run.ResultHash,
		Diffs:      diffs,
		Report:     report,
	}, nil
}

// diffResults pairs results by function name. Order follows the replayed
// results, then stored-only functions in stored order.
func diffResults(stored, replayed []FunctionResult) ([]FunctionDiff, error) {
	storedText := make(map[string]string, len(stored))
	for _, fr := range stored {
		text, err := marshalCanonical("function result", fr.Result)
		if err != nil {
			return nil, err
		}
		storedText[fr.Name] = text
	}

	var diffs []FunctionDiff
	seen := make(map[string]bool, len(replayed))
	for _, fr := range replayed {
		seen[fr.Name] = true
		text, err := marshalCanonical("function result", fr.Result)
		if err != nil {
			return nil, err
		}
		if old, ok := storedText[fr.Name]; !ok || old != text {
			diffs = append(diffs, FunctionDiff{Name: fr.Name, Stored: old, Replayed: text})
		}
	}
	for _, fr := range stored {
		if !seen[fr.Name] {
			diffs = append(diffs, FunctionDiff{Name: fr.Name, Stored: storedText[fr.Name]})
		}
	}
	return diffs, nil
}

// LastSeq returns the seq of the most recent run, or 0 if the store is empty.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM runs`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
