package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxIterations bounds the number of work-list rounds per run.
const DefaultMaxIterations = 32

// IterationBudget tracks work-list rounds and enforces a maximum.
//
// The budget is a termination backstop. Monotone transfer functions over
// finite lattices always converge; the budget only bounds how long the driver
// waits before settling the remaining attributes pessimistically.
type IterationBudget struct {
	maxRounds int
	current   int
}

// NewIterationBudget creates a budget allowing maxRounds rounds.
func NewIterationBudget(maxRounds int) *IterationBudget {
	return &IterationBudget{maxRounds: maxRounds}
}

// Check increments the round counter and validates against the limit.
// Returns BudgetExhaustedError when the next round would exceed it.
func (b *IterationBudget) Check() error {
	if b.current >= b.maxRounds {
		return &BudgetExhaustedError{Rounds: b.current, Limit: b.maxRounds}
	}
	b.current++
	return nil
}

// Current returns the number of rounds started.
func (b *IterationBudget) Current() int {
	return b.current
}

// MaxRounds returns the round limit.
func (b *IterationBudget) MaxRounds() int {
	return b.maxRounds
}

// BudgetExhaustedError reports that the work-list was still non-empty when
// the round limit was reached.
type BudgetExhaustedError struct {
	Rounds  int
	Limit   int
	Pending int
}

// Error implements the error interface.
func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("iteration budget exhausted: %d rounds >= %d limit, %d attributes pending",
		e.Rounds, e.Limit, e.Pending)
}

// IsBudgetExhausted returns true if err is a BudgetExhaustedError.
// Uses errors.As to handle wrapped errors.
func IsBudgetExhausted(err error) bool {
	var be *BudgetExhaustedError
	return errors.As(err, &be)
}
