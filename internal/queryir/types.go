package queryir

// Query is a read over the result store.
//
// Query types:
//   - Select: one table with a filter and explicit columns
//   - Join: an inner join of two selects
type Query interface {
	queryNode()
}

// Predicate is a row filter.
//
// Predicate types:
//   - Equals: column = literal
//   - ColumnEquals: column = column (join conditions)
//   - ParamEquals: column = named parameter supplied at compile time
//   - And: conjunction
type Predicate interface {
	predicateNode()
}

// Select reads columns of one table.
//
//	Select{
//	  From:    "runs",
//	  Filter:  And{Predicates: []Predicate{
//	    Equals{Field: "module", Value: "propagation"},
//	    Equals{Field: "changed", Value: true},
//	  }},
//	  Columns: []string{"id", "result_hash"},
//	}
//
// compiles to
//
//	SELECT id, result_hash FROM runs WHERE module = ? AND changed = ? ORDER BY seq ASC
//
// Columns are returned in the order given. Inside a Join, Filter fields are
// resolved against From.
type Select struct {
	From    string
	Filter  Predicate // nil = no filter
	Columns []string
}

func (Select) queryNode() {}

// Join is an inner join of two selects. The result has Left's columns
// followed by Right's, and the filters of both sides apply.
//
//	Join{
//	  Left:  Select{From: "runs", Filter: Equals{Field: "module", Value: "m"}},
//	  Right: Select{From: "function_results", Columns: []string{"name", "result"}},
//	  On:    ColumnEquals{Left: "runs.id", Right: "function_results.run_id"},
//	}
//
// Rows are ordered by Left's stable key, then Right's.
type Join struct {
	Left  Query
	Right Query
	On    Predicate // required; fields must be qualified as table.column
}

func (Join) queryNode() {}

// Equals compares a column with a literal. Value is a string, an int, an
// int64, or a bool; booleans match the store's 0/1 integer columns.
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// ColumnEquals compares two qualified columns.
type ColumnEquals struct {
	Left  string // e.g. "runs.id"
	Right string // e.g. "function_results.run_id"
}

func (ColumnEquals) predicateNode() {}

// ParamEquals compares a column with a named parameter whose value is
// supplied when the query is compiled. It lets one query shape serve many
// lookups.
type ParamEquals struct {
	Field string
	Param string
}

func (ParamEquals) predicateNode() {}

// And is a conjunction. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Schema lists the columns of every table a query may read, in table
// order.
var Schema = map[string][]string{
	"runs": {
		"seq", "id", "module", "fingerprint", "target", "result_hash",
		"changed", "rounds", "updates", "attributes", "exhausted",
		"engine_version", "result_version",
	},
	"function_results": {"run_id", "seq", "name", "cc", "result"},
	"trace_events": {
		"run_id", "seq", "round", "kind", "function", "position",
		"before", "after", "changed",
	},
}
