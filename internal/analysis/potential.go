package analysis

import (
	"fmt"
	"strings"

	"github.com/roach88/kernattr/internal/engine"
	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/lattice"
)

// PotentialValues is the set of functions a value may hold at run time.
//
// The set starts empty and grows. Function constants (possibly behind
// bitcasts) contribute themselves; selects and phis contribute the union of
// their operands; an argument of a function whose call sites are all known
// contributes the values passed at every call site. Anything else makes the
// set invalid, meaning "any function".
type PotentialValues struct {
	fixState
	pos engine.Position

	valid bool
	funcs []*ir.Function
	seen  map[*ir.Function]bool
}

var _ lattice.State = (*PotentialValues)(nil)

func newPotentialValues(pos engine.Position) engine.AbstractAttribute {
	if pos.Kind != engine.PosValue {
		engine.BadPosition(KindPotentialValues, pos)
	}
	return &PotentialValues{pos: pos, valid: true, seen: map[*ir.Function]bool{}}
}

// PotentialValuesFor returns the potential values of v inside fn, recording
// a dependency.
func PotentialValuesFor(a *engine.Attributor, fn *ir.Function, v ir.Value) *PotentialValues {
	return a.GetAAFor(KindPotentialValues, engine.ValuePosition(fn, v)).(*PotentialValues)
}

func (p *PotentialValues) Kind() engine.Kind         { return KindPotentialValues }
func (p *PotentialValues) Position() engine.Position { return p.pos }
func (p *PotentialValues) State() lattice.State      { return p }

// IsValidSet reports whether the set is an exact over-approximation.
func (p *PotentialValues) IsValidSet() bool { return p.valid }

// Functions returns the functions in the set, in discovery order.
func (p *PotentialValues) Functions() []*ir.Function { return p.funcs }

func (p *PotentialValues) IndicateOptimisticFixpoint() { p.fixed = true }

func (p *PotentialValues) IndicatePessimisticFixpoint() {
	p.valid = false
	p.fixed = true
}

func (p *PotentialValues) Initialize(*engine.Attributor) {
	if fn, ok := stripCasts(p.pos.Value); ok {
		p.add(fn)
		p.IndicateOptimisticFixpoint()
		return
	}
	switch v := p.pos.Value.(type) {
	case *ir.Select, *ir.Phi:
	case *ir.Argument:
		if !v.Parent.AllCallSitesKnown() {
			p.IndicatePessimisticFixpoint()
		}
	default:
		p.IndicatePessimisticFixpoint()
	}
}

func (p *PotentialValues) Update(a *engine.Attributor) engine.ChangeStatus {
	before := len(p.funcs)
	allFixed := true

	merge := func(fn *ir.Function, v ir.Value) bool {
		other := PotentialValuesFor(a, fn, v)
		if !other.IsValidSet() {
			p.IndicatePessimisticFixpoint()
			return false
		}
		for _, f := range other.Functions() {
			p.add(f)
		}
		if !other.IsAtFixpoint() {
			allFixed = false
		}
		return true
	}

	switch v := p.pos.Value.(type) {
	case *ir.Select:
		for _, op := range []ir.Value{v.True, v.False} {
			if !merge(p.pos.Function, op) {
				return engine.Changed
			}
		}
	case *ir.Phi:
		for _, op := range v.Incoming {
			if !merge(p.pos.Function, op) {
				return engine.Changed
			}
		}
	case *ir.Argument:
		ok := a.CheckForAllCallSites(v.Parent, func(call *ir.Call) bool {
			if v.Index >= len(call.Args) {
				return false
			}
			return merge(call.Parent(), call.Args[v.Index])
		})
		if !ok {
			if !p.IsAtFixpoint() {
				p.IndicatePessimisticFixpoint()
			}
			return engine.Changed
		}
	}

	if allFixed {
		p.IndicateOptimisticFixpoint()
	}
	return engine.ChangeStatus(len(p.funcs) != before)
}

func (p *PotentialValues) add(f *ir.Function) {
	if p.seen[f] {
		return
	}
	p.seen[f] = true
	p.funcs = append(p.funcs, f)
}

func (p *PotentialValues) Manifest(*engine.Attributor) engine.ChangeStatus {
	return engine.Unchanged
}

func (p *PotentialValues) String() string {
	if !p.valid {
		return "PotentialValues[unknown]"
	}
	names := make([]string, len(p.funcs))
	for i, f := range p.funcs {
		names[i] = f.Name
	}
	return fmt.Sprintf("PotentialValues[%s]", strings.Join(names, ","))
}

// stripCasts returns the function behind v, looking through constant
// bitcasts.
func stripCasts(v ir.Value) (*ir.Function, bool) {
	for {
		switch c := v.(type) {
		case *ir.Function:
			return c, true
		case *ir.ConstExpr:
			if c.Op != ir.OpBitCast || len(c.Operands) != 1 {
				return nil, false
			}
			v = c.Operands[0]
		default:
			return nil, false
		}
	}
}
