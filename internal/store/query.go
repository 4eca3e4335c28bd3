package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/kernattr/internal/queryir"
	"github.com/roach88/kernattr/internal/querysql"
)

var (
	runColumnList            = strings.Split(runColumns, ", ")
	functionResultColumnList = []string{"run_id", "seq", "name", "cc", "result"}
)

// FindRuns returns the runs matching filter, oldest first. A nil filter
// matches every run.
func (s *Store) FindRuns(ctx context.Context, filter queryir.Predicate) ([]Run, error) {
	query, args, err := querysql.NewSQLCompiler().Compile(queryir.Select{
		From:    "runs",
		Filter:  filter,
		Columns: runColumnList,
	})
	if err != nil {
		return nil, fmt.Errorf("find runs: %w", err)
	}
	return s.queryRuns(ctx, query, args...)
}

// FindFunctionResults returns the function results matching fnFilter whose
// run matches runFilter. Results are grouped by run, oldest run first, and
// in module order within a run. Either filter may be nil.
func (s *Store) FindFunctionResults(ctx context.Context, runFilter, fnFilter queryir.Predicate) ([]FunctionResult, error) {
	query, args, err := querysql.NewSQLCompiler().Compile(queryir.Join{
		Left: queryir.Select{From: "runs", Filter: runFilter},
		Right: queryir.Select{
			From:    "function_results",
			Filter:  fnFilter,
			Columns: functionResultColumnList,
		},
		On: queryir.ColumnEquals{Left: "runs.id", Right: "function_results.run_id"},
	})
	if err != nil {
		return nil, fmt.Errorf("find function results: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query function results: %w", err)
	}
	defer rows.Close()

	return scanFunctionResults(rows)
}
