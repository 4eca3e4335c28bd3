// Package store provides SQLite-backed durable storage for attributor runs.
//
// The store is an append-only log of:
//   - Runs: one row per pass execution (module fingerprint, target, verdict)
//   - Function results: the final inferred state of each function
//   - Trace events: every recorded update, in logical order
//
// # Critical Patterns
//
// Logical ordering:
//   - All ordering uses seq INTEGER columns, NEVER timestamps
//   - Run IDs are UUIDv7 and only identify; they are never sorted on
//
// Deterministic query results:
//   - All queries include ORDER BY seq ASC
//   - Filtered lookups (FindRuns, FindFunctionResults) are queryir queries
//     compiled by querysql, which always emits a stable ORDER BY
//
// Canonical results:
//   - Function results and target descriptions are RFC 8785 canonical JSON
//   - The result hash of a run is ir.ResultHash over its report
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
