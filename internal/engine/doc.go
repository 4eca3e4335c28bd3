// Package engine implements the kernattr fixpoint driver (the attributor).
//
// The driver owns an arena of abstract attributes keyed by (kind, position).
// Attribute kinds are registered with a factory; only registered kinds may be
// created, which is the allow-list of the run.
//
// ARCHITECTURE:
//
// Work-list iteration:
//  1. Seeding creates the initial attributes (Initialize only, never Update)
//  2. Run processes the work-list in rounds, FIFO within a round
//  3. Every query through GetAAFor records a dependency edge
//  4. When an attribute changes, it and everything that queried it are
//     scheduled for the next round
//  5. Attributes created lazily during a round are scheduled for the next
//
// Termination: every lattice has finite height and every transfer function is
// monotone. The iteration budget (WithMaxIterations) is a backstop; when it is
// exhausted, every pending attribute and, transitively, everything depending
// on it is moved to its pessimistic fixpoint.
//
// After convergence every attribute not yet at a fixpoint takes its optimistic
// fixpoint, and the manifest phase writes results back onto the functions.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every update is stamped with a monotonic seq from Clock.Next(). The trace is
// ordered by seq, never by wall-clock time.
//
// Deterministic Scheduling:
// Attributes are processed in creation order within a round. Dependents are
// scheduled in the order their dependency was first recorded. No map
// iteration order leaks into scheduling.
package engine
