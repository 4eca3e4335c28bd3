// Package analysis provides the supporting attribute kinds the AMDGPU kinds
// query: call edges, potential callee values and pointer access info.
//
// Register adds all three to an attributor's allow-list. The ...For helpers
// query through Attributor.GetAAFor, so callers are re-run when the facts
// they read change.
package analysis

import "github.com/roach88/kernattr/internal/engine"

// Attribute kinds provided by this package.
const (
	KindCallEdges       engine.Kind = "call-edges"
	KindPotentialValues engine.Kind = "potential-values"
	KindPointerInfo     engine.Kind = "pointer-info"
)

// Register adds the supporting kinds to a.
func Register(a *engine.Attributor) {
	a.Register(KindCallEdges, newCallEdges)
	a.Register(KindPotentialValues, newPotentialValues)
	a.Register(KindPointerInfo, newPointerInfo)
}

// fixState is a fixpoint flag shared by the supporting kinds, whose lattices
// grow from an optimistic empty fact towards "unknown".
type fixState struct {
	fixed bool
}

func (s *fixState) IsValid() bool      { return true }
func (s *fixState) IsAtFixpoint() bool { return s.fixed }
