// Package querysql compiles queryir queries to parameterized SQLite.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/kernattr/internal/queryir"
)

// SQLCompiler compiles queryir queries to parameterized SQL for SQLite.
//
// Every query ends in an ORDER BY on the tables' seq columns, so results
// are deterministic. Values are always bound as parameters, never
// interpolated.
type SQLCompiler struct {
	// Params holds the values of ParamEquals predicates.
	Params map[string]any
}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{
		Params: make(map[string]any),
	}
}

// Compile converts a query to SQL and its parameters. Invalid queries are
// rejected with every problem queryir.Validate found.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if res := queryir.Validate(q); !res.Valid {
		return "", nil, fmt.Errorf("invalid query: %s", strings.Join(res.Errors, "; "))
	}

	if sel, ok := queryir.AsSelect(q); ok {
		return c.compileSelect(sel)
	}
	switch query := q.(type) {
	case queryir.Join:
		return c.compileJoin(query)
	case *queryir.Join:
		return c.compileJoin(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(q.Columns, ", "), q.From)

	var params []any
	if q.Filter != nil {
		where, filterParams, err := c.compilePredicate(q.Filter, "")
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE " + where)
		params = filterParams
	}

	b.WriteString(" ORDER BY " + stableOrderKey(q.From, ""))
	return b.String(), params, nil
}

// compileJoin compiles an inner join; columns and filter fields are
// qualified with their table.
func (c *SQLCompiler) compileJoin(j queryir.Join) (string, []any, error) {
	left, _ := queryir.AsSelect(j.Left)
	right, _ := queryir.AsSelect(j.Right)

	var columns []string
	for _, col := range left.Columns {
		columns = append(columns, left.From+"."+col)
	}
	for _, col := range right.Columns {
		columns = append(columns, right.From+"."+col)
	}

	on, params, err := c.compilePredicate(j.On, "")
	if err != nil {
		return "", nil, fmt.Errorf("compile join condition: %w", err)
	}

	var where []string
	for _, side := range []queryir.Select{left, right} {
		if side.Filter == nil {
			continue
		}
		sql, sideParams, err := c.compilePredicate(side.Filter, side.From)
		if err != nil {
			return "", nil, fmt.Errorf("compile %s filter: %w", side.From, err)
		}
		where = append(where, sql)
		params = append(params, sideParams...)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s INNER JOIN %s ON %s",
		strings.Join(columns, ", "), left.From, right.From, on)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY " + stableOrderKey(left.From, left.From) + ", " + stableOrderKey(right.From, right.From))
	return b.String(), params, nil
}

// stableOrderKey returns the ORDER BY terms of a table. runs.seq is unique;
// the other tables number rows per run, so run_id breaks ties first.
// COLLATE BINARY keeps text ordering independent of the SQLite build.
func stableOrderKey(table, qualifier string) string {
	q := ""
	if qualifier != "" {
		q = qualifier + "."
	}
	if table == "runs" {
		return q + "seq ASC"
	}
	return q + "run_id ASC COLLATE BINARY, " + q + "seq ASC"
}

// compilePredicate compiles p to a WHERE fragment. A non-empty table
// qualifies bare field names.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate, table string) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		return qualify(table, pred.Field) + " = ?", []any{param(pred.Value)}, nil
	case *queryir.Equals:
		return qualify(table, pred.Field) + " = ?", []any{param(pred.Value)}, nil
	case queryir.ColumnEquals:
		return pred.Left + " = " + pred.Right, nil, nil
	case *queryir.ColumnEquals:
		return pred.Left + " = " + pred.Right, nil, nil
	case queryir.ParamEquals:
		return c.compileParamEquals(pred, table)
	case *queryir.ParamEquals:
		return c.compileParamEquals(*pred, table)
	case queryir.And:
		return c.compileAnd(pred, table)
	case *queryir.And:
		return c.compileAnd(*pred, table)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compileParamEquals(eq queryir.ParamEquals, table string) (string, []any, error) {
	val, ok := c.Params[eq.Param]
	if !ok {
		return "", nil, fmt.Errorf("no value for parameter %q", eq.Param)
	}
	return qualify(table, eq.Field) + " = ?", []any{param(val)}, nil
}

func (c *SQLCompiler) compileAnd(and queryir.And, table string) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		sql, predParams, err := c.compilePredicate(pred, table)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, predParams...)
	}
	return strings.Join(parts, " AND "), params, nil
}

func qualify(table, field string) string {
	if table == "" || strings.Contains(field, ".") {
		return field
	}
	return table + "." + field
}

// param converts a literal to its SQLite binding. Booleans are stored as
// 0/1 integers.
func param(v any) any {
	switch val := v.(type) {
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	case int:
		return int64(val)
	default:
		return v
	}
}
