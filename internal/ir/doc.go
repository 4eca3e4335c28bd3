// Package ir provides the program model analysed by kernattr.
//
// This package contains type definitions and model helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// program model the foundational layer with no circular dependencies.
//
// The model is deliberately small: a Module holds Functions and Globals, a
// Function holds a flat instruction list (control flow is irrelevant to the
// attribute inference), and operands are Values. Constants are Values with
// identity: two operands referring to the same *Global or *ConstExpr share the
// same pointer, which is what the scanner's per-constant cache keys on.
//
// Key design constraints:
//   - Instruction, Value and Constant are sealed interfaces
//   - Module.Link must be called after construction; it resolves names and
//     builds use lists and the direct call-site index
//   - Canonical JSON (canonical.go) is the only serialisation used for
//     fingerprints and stored results
package ir
