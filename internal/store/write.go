package store

import (
	"context"
	"fmt"
)

// WriteRun inserts a run with its function results and trace in one
// transaction. Uses ON CONFLICT(id) DO NOTHING for idempotency: writing a run
// ID that already exists changes nothing and returns inserted=false.
func (s *Store) WriteRun(ctx context.Context, rec *Record) (inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	run := rec.Run
	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, module, fingerprint, target, result_hash, changed, rounds, updates, attributes, exhausted, engine_version, result_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Module,
		run.Fingerprint,
		run.Target,
		run.ResultHash,
		boolToInt(run.Changed),
		run.Rounds,
		run.Updates,
		run.Attributes,
		boolToInt(run.Exhausted),
		run.EngineVersion,
		run.ResultVersion,
	)
	if err != nil {
		return false, fmt.Errorf("write run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write run: rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	for _, fr := range rec.Functions {
		resultJSON, err := marshalCanonical("function result", fr.Result)
		if err != nil {
			return false, fmt.Errorf("write run: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO function_results (run_id, seq, name, cc, result)
			VALUES (?, ?, ?, ?, ?)
		`, run.ID, fr.Seq, fr.Name, fr.CC, resultJSON); err != nil {
			return false, fmt.Errorf("write function result %s: %w", fr.Name, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trace_events (run_id, seq, round, kind, function, position, before, after, changed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return false, fmt.Errorf("write run: prepare trace: %w", err)
	}
	defer stmt.Close()
	for _, ev := range rec.Trace {
		if _, err := stmt.ExecContext(ctx,
			run.ID, ev.Seq, ev.Round, string(ev.Kind), ev.Function, ev.Position,
			ev.Before, ev.After, boolToInt(ev.Changed),
		); err != nil {
			return false, fmt.Errorf("write trace event %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write run: commit: %w", err)
	}
	return true, nil
}

// DeleteRun removes a run and, through cascading foreign keys, its results
// and trace. Deleting an unknown run returns ErrRunNotFound.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete run %s: %w", id, ErrRunNotFound)
	}
	return nil
}
