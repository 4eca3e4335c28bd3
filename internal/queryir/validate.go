package queryir

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationResult lists the problems found in a query.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Validate checks a query against Schema and the fragment rules:
//  1. Every table and column exists
//  2. Selects name their columns explicitly (a join needs at least one)
//  3. Literals are strings, integers, or booleans
//  4. Join conditions are present and compare qualified columns of the
//     joined tables
//  5. Parameters are named
//
// All problems are reported, not just the first.
func Validate(query Query) ValidationResult {
	v := &validator{errors: []string{}}
	v.validateQuery(query, true)

	return ValidationResult{
		Valid:  len(v.errors) == 0,
		Errors: v.errors,
	}
}

type validator struct {
	errors []string
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

// validateQuery checks q. top is false for the sides of a join, whose
// columns may be empty.
func (v *validator) validateQuery(q Query, top bool) {
	switch query := q.(type) {
	case nil:
		v.addError("nil query")
	case Select:
		v.validateSelect(query, top)
	case *Select:
		v.validateSelect(*query, top)
	case Join:
		v.validateJoin(query)
	case *Join:
		v.validateJoin(*query)
	default:
		v.addError("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select, top bool) {
	columns, ok := Schema[sel.From]
	if !ok {
		v.addError("unknown table %q", sel.From)
		return
	}
	if top && len(sel.Columns) == 0 {
		v.addError("select from %s names no columns", sel.From)
	}
	for _, c := range sel.Columns {
		if !slices.Contains(columns, c) {
			v.addError("unknown column %s.%s", sel.From, c)
		}
	}
	v.validatePredicate(sel.Filter, []string{sel.From})
}

func (v *validator) validateJoin(join Join) {
	v.validateQuery(join.Left, false)
	v.validateQuery(join.Right, false)

	left, lok := AsSelect(join.Left)
	right, rok := AsSelect(join.Right)
	if !lok || !rok {
		v.addError("join sides must be selects")
		return
	}
	if len(left.Columns)+len(right.Columns) == 0 {
		v.addError("join of %s and %s names no columns", left.From, right.From)
	}
	if join.On == nil {
		v.addError("join of %s and %s has no condition", left.From, right.From)
		return
	}
	v.validatePredicate(join.On, []string{left.From, right.From})
}

// validatePredicate checks p; tables are the tables in scope, the first
// being the default for unqualified fields.
func (v *validator) validatePredicate(p Predicate, tables []string) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.validateEquals(pred, tables)
	case *Equals:
		v.validateEquals(*pred, tables)
	case ColumnEquals:
		v.validateColumnEquals(pred, tables)
	case *ColumnEquals:
		v.validateColumnEquals(*pred, tables)
	case ParamEquals:
		v.validateParamEquals(pred, tables)
	case *ParamEquals:
		v.validateParamEquals(*pred, tables)
	case And:
		v.validateAnd(pred, tables)
	case *And:
		v.validateAnd(*pred, tables)
	default:
		v.addError("unknown predicate type %T", p)
	}
}

func (v *validator) validateEquals(eq Equals, tables []string) {
	v.validateField(eq.Field, tables)
	switch eq.Value.(type) {
	case string, int, int64, bool:
	default:
		v.addError("field %s compared to unsupported value %T", eq.Field, eq.Value)
	}
}

func (v *validator) validateColumnEquals(eq ColumnEquals, tables []string) {
	for _, f := range []string{eq.Left, eq.Right} {
		if !strings.Contains(f, ".") {
			v.addError("column comparison %s = %s must use table.column", eq.Left, eq.Right)
			return
		}
	}
	v.validateField(eq.Left, tables)
	v.validateField(eq.Right, tables)
}

func (v *validator) validateParamEquals(eq ParamEquals, tables []string) {
	v.validateField(eq.Field, tables)
	if eq.Param == "" {
		v.addError("field %s compared to an unnamed parameter", eq.Field)
	}
}

func (v *validator) validateAnd(and And, tables []string) {
	for _, sub := range and.Predicates {
		v.validatePredicate(sub, tables)
	}
}

// validateField resolves a field, qualified or not, against the tables in
// scope.
func (v *validator) validateField(field string, tables []string) {
	table, column, qualified := strings.Cut(field, ".")
	if !qualified {
		table, column = tables[0], field
	}
	if !slices.Contains(tables, table) {
		v.addError("field %s refers to table %s outside the query", field, table)
		return
	}
	if !slices.Contains(Schema[table], column) {
		v.addError("unknown column %s.%s", table, column)
	}
}

// AsSelect returns q as a Select when it is one.
func AsSelect(q Query) (Select, bool) {
	switch query := q.(type) {
	case Select:
		return query, true
	case *Select:
		return *query, true
	default:
		return Select{}, false
	}
}
