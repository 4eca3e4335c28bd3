package analysis

import (
	"fmt"
	"strings"

	"github.com/roach88/kernattr/internal/engine"
	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/lattice"
)

// CallEdges is the set of functions a function may call.
//
// Direct callees are known statically. Indirect callees come from the
// potential values of the callee operand; when those are unknown the edge set
// has a non-asm unknown callee. Inline-asm calls add an unknown callee that is
// asm. Declarations have no visible body and so an unknown edge set.
type CallEdges struct {
	fixState
	pos engine.Position

	edges           []*ir.Function
	edgeSet         map[*ir.Function]bool
	unknownCallee   bool
	nonAsmUnknown   bool
	pendingIndirect bool
}

var _ lattice.State = (*CallEdges)(nil)

func newCallEdges(pos engine.Position) engine.AbstractAttribute {
	if pos.Kind != engine.PosFunction {
		engine.BadPosition(KindCallEdges, pos)
	}
	return &CallEdges{pos: pos, edgeSet: map[*ir.Function]bool{}}
}

// CallEdgesFor returns the call edges of fn, recording a dependency.
func CallEdgesFor(a *engine.Attributor, fn *ir.Function) *CallEdges {
	return a.GetAAFor(KindCallEdges, engine.FunctionPosition(fn)).(*CallEdges)
}

func (c *CallEdges) Kind() engine.Kind         { return KindCallEdges }
func (c *CallEdges) Position() engine.Position { return c.pos }
func (c *CallEdges) State() lattice.State      { return c }

// OptimisticEdges returns the callees discovered so far, in discovery order.
func (c *CallEdges) OptimisticEdges() []*ir.Function {
	return c.edges
}

// HasUnknownCallee reports whether some call may reach an unknown target.
func (c *CallEdges) HasUnknownCallee() bool { return c.unknownCallee }

// HasNonAsmUnknownCallee reports whether some non-asm call may reach an
// unknown target.
func (c *CallEdges) HasNonAsmUnknownCallee() bool { return c.nonAsmUnknown }

func (c *CallEdges) IndicateOptimisticFixpoint() { c.fixed = true }

func (c *CallEdges) IndicatePessimisticFixpoint() {
	c.unknownCallee = true
	c.nonAsmUnknown = true
	c.fixed = true
}

func (c *CallEdges) Initialize(*engine.Attributor) {
	if c.pos.Function.IsDeclaration() {
		c.IndicatePessimisticFixpoint()
	}
}

func (c *CallEdges) Update(a *engine.Attributor) engine.ChangeStatus {
	before := c.snapshot()
	c.pendingIndirect = false

	for _, inst := range c.pos.Function.Body {
		call, ok := inst.(*ir.Call)
		if !ok {
			continue
		}
		if call.InlineAsm {
			c.unknownCallee = true
			continue
		}
		if callee := call.CalledFunction(); callee != nil {
			c.addEdge(callee)
			continue
		}

		pv := PotentialValuesFor(a, c.pos.Function, call.Callee)
		if !pv.IsValidSet() {
			c.unknownCallee = true
			c.nonAsmUnknown = true
			continue
		}
		for _, f := range pv.Functions() {
			c.addEdge(f)
		}
		if !pv.IsAtFixpoint() {
			c.pendingIndirect = true
		}
	}

	// Without unresolved indirect calls nothing can change any more.
	if !c.pendingIndirect {
		c.IndicateOptimisticFixpoint()
	}
	return engine.ChangeStatus(before != c.snapshot())
}

func (c *CallEdges) addEdge(f *ir.Function) {
	if c.edgeSet[f] {
		return
	}
	c.edgeSet[f] = true
	c.edges = append(c.edges, f)
}

func (c *CallEdges) snapshot() string {
	return fmt.Sprintf("%d/%t/%t", len(c.edges), c.unknownCallee, c.nonAsmUnknown)
}

func (c *CallEdges) Manifest(*engine.Attributor) engine.ChangeStatus {
	return engine.Unchanged
}

func (c *CallEdges) String() string {
	names := make([]string, len(c.edges))
	for i, f := range c.edges {
		names[i] = f.Name
	}
	return fmt.Sprintf("CallEdges[%s unknown=%t non_asm_unknown=%t]",
		strings.Join(names, ","), c.unknownCallee, c.nonAsmUnknown)
}
