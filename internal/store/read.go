package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/kernattr/internal/engine"
	"github.com/roach88/kernattr/internal/queryir"
)

const runColumns = `seq, id, module, fingerprint, target, result_hash, changed, rounds, updates, attributes, exhausted, engine_version, result_version`

// ReadRun retrieves a single run by ID.
// Returns an error wrapping ErrRunNotFound if no run has the ID.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns all runs in insertion order.
//
// Returns an empty slice (not nil) if the store holds no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	return s.FindRuns(ctx, nil)
}

// RunsForFingerprint returns the runs of a module, oldest first.
func (s *Store) RunsForFingerprint(ctx context.Context, fingerprint string) ([]Run, error) {
	return s.FindRuns(ctx, queryir.Equals{Field: "fingerprint", Value: fingerprint})
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadFunctionResults returns the function results of a run in module order.
//
// Returns an empty slice (not nil) if the run has no results.
func (s *Store) ReadFunctionResults(ctx context.Context, runID string) ([]FunctionResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, name, cc, result
		FROM function_results
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query function results: %w", err)
	}
	defer rows.Close()

	return scanFunctionResults(rows)
}

// ReadTrace returns the trace of a run in logical order. A non-empty
// function restricts the trace to that function's updates.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadTrace(ctx context.Context, runID, function string) ([]engine.TraceEvent, error) {
	query := `
		SELECT seq, round, kind, function, position, before, after, changed
		FROM trace_events
		WHERE run_id = ?`
	args := []any{runID}
	if function != "" {
		query += ` AND function = ?`
		args = append(args, function)
	}
	query += `
		ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}
	defer rows.Close()

	events := []engine.TraceEvent{}
	for rows.Next() {
		var (
			ev      engine.TraceEvent
			kind    string
			changed int
		)
		if err := rows.Scan(&ev.Seq, &ev.Round, &kind, &ev.Function, &ev.Position, &ev.Before, &ev.After, &changed); err != nil {
			return nil, fmt.Errorf("scan trace event: %w", err)
		}
		ev.Kind = engine.Kind(kind)
		ev.Changed = changed != 0
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace: %w", err)
	}
	return events, nil
}

// ReadRecord reads a run with its results and full trace.
func (s *Store) ReadRecord(ctx context.Context, runID string) (*Record, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	fns, err := s.ReadFunctionResults(ctx, runID)
	if err != nil {
		return nil, err
	}
	trace, err := s.ReadTrace(ctx, runID, "")
	if err != nil {
		return nil, err
	}
	return &Record{Run: run, Functions: fns, Trace: trace}, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFunctionResults(rows *sql.Rows) ([]FunctionResult, error) {
	results := []FunctionResult{}
	for rows.Next() {
		var (
			fr         FunctionResult
			resultJSON string
		)
		if err := rows.Scan(&fr.RunID, &fr.Seq, &fr.Name, &fr.CC, &resultJSON); err != nil {
			return nil, fmt.Errorf("scan function result: %w", err)
		}
		result, err := unmarshalObject("function result", resultJSON)
		if err != nil {
			return nil, err
		}
		fr.Result = result
		results = append(results, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate function results: %w", err)
	}
	return results, nil
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run       Run
		changed   int
		exhausted int
	)
	err := row.Scan(
		&run.Seq,
		&run.ID,
		&run.Module,
		&run.Fingerprint,
		&run.Target,
		&run.ResultHash,
		&changed,
		&run.Rounds,
		&run.Updates,
		&run.Attributes,
		&exhausted,
		&run.EngineVersion,
		&run.ResultVersion,
	)
	if err != nil {
		return Run{}, err
	}
	run.Changed = changed != 0
	run.Exhausted = exhausted != 0
	return run, nil
}
