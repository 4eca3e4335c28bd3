package testutil

import "sync"

// FixedRunIDGenerator returns predetermined run IDs for testing.
//
// This enables deterministic test execution and golden output comparison.
//
//	gen := testutil.NewFixedRunIDGenerator("run-1", "run-2")
//	gen.Generate() // "run-1"
//	gen.Generate() // "run-2"
//	gen.Generate() // panic: all run IDs exhausted
//
// Thread-safety: FixedRunIDGenerator is safe for concurrent use via internal mutex.
type FixedRunIDGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedRunIDGenerator creates a generator that returns ids in order.
// With no ids it returns "test-run-default" every time.
func NewFixedRunIDGenerator(ids ...string) *FixedRunIDGenerator {
	return &FixedRunIDGenerator{ids: ids}
}

// Generate returns the next predetermined run ID.
//
// Panics if all IDs have been consumed. This is a fail-fast approach
// to catch test misconfiguration.
func (g *FixedRunIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.ids) == 0 {
		return "test-run-default"
	}
	if g.idx >= len(g.ids) {
		panic("FixedRunIDGenerator: all run IDs exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
