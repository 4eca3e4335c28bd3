// Package queryir is a small query representation for reading the result
// store.
//
// Callers describe which runs and function results they want; the querysql
// package compiles the description to parameterized SQLite after Validate
// has checked it against Schema.
//
//	[caller filter] → [queryir] → [querysql] → SQLite
//
// The fragment:
//   - Select(from, filter, columns): one table, explicit columns
//   - Join(left, right, on): inner joins of two selects
//   - Predicates: Equals, ColumnEquals, ParamEquals, And
//
// There are no NULLs, outer joins, aggregations, OR predicates, or SELECT *.
// Literal values are strings, integers, or booleans.
//
// Query and Predicate are sealed with marker methods so backends can switch
// exhaustively over the node types.
package queryir
