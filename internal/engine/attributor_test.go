package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/lattice"
)

const kindPure Kind = "pure"

// pureAA is a toy kind: a function is pure when every callee is pure.
// Declarations and indirect calls are impure.
type pureAA struct {
	lattice.BoolState
	pos Position
}

func newPure(pos Position) AbstractAttribute {
	if pos.Kind != PosFunction {
		BadPosition(kindPure, pos)
	}
	return &pureAA{BoolState: lattice.NewBoolState(), pos: pos}
}

func (p *pureAA) Kind() Kind             { return kindPure }
func (p *pureAA) Position() Position     { return p.pos }
func (p *pureAA) State() lattice.State   { return &p.BoolState }
func (p *pureAA) String() string         { return p.BoolState.String() }
func (p *pureAA) Initialize(*Attributor) {
	if p.pos.Function.IsDeclaration() {
		p.IndicatePessimisticFixpoint()
	}
}

func (p *pureAA) Update(a *Attributor) ChangeStatus {
	before := p.Assumed()
	for _, inst := range p.pos.Function.Body {
		call, ok := inst.(*ir.Call)
		if !ok {
			continue
		}
		callee := call.CalledFunction()
		if callee == nil {
			p.IndicatePessimisticFixpoint()
			return Changed
		}
		other := a.GetAAFor(kindPure, FunctionPosition(callee)).(*pureAA)
		p.MeetAssumed(other.Assumed())
	}
	return ChangeStatus(before != p.Assumed())
}

func (p *pureAA) Manifest(*Attributor) ChangeStatus {
	if !p.Assumed() {
		return Unchanged
	}
	return ChangeStatus(p.pos.Function.Attrs.SetFlag("pure"))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildModule creates functions named in edges; edges[f] lists f's callees.
// Names in decls become declarations.
func buildModule(t *testing.T, order []string, edges map[string][]string, decls ...string) *ir.Module {
	t.Helper()
	m := ir.NewModule("test")
	isDecl := map[string]bool{}
	for _, d := range decls {
		isDecl[d] = true
	}
	for _, name := range order {
		require.NoError(t, m.AddFunction(&ir.Function{
			Name: name, CC: ir.CCC, Linkage: ir.LinkageInternal,
			Attrs: ir.NewAttributes(), Declaration: isDecl[name],
		}))
	}
	for _, name := range order {
		if isDecl[name] {
			continue
		}
		f := m.Function(name)
		for _, callee := range edges[name] {
			f.Body = append(f.Body, &ir.Call{Callee: m.Function(callee)})
		}
		f.Body = append(f.Body, &ir.Ret{})
	}
	require.NoError(t, m.Link())
	return m
}

func seed(a *Attributor, m *ir.Module) {
	for _, f := range m.Functions {
		if !f.IsDeclaration() {
			a.GetOrCreate(kindPure, FunctionPosition(f))
		}
	}
}

func pureOf(t *testing.T, a *Attributor, m *ir.Module, name string) bool {
	t.Helper()
	aa, ok := a.Lookup(kindPure, FunctionPosition(m.Function(name)))
	require.True(t, ok, "no attribute for %s", name)
	return aa.(*pureAA).Assumed()
}

func TestAttributorPropagatesThroughChain(t *testing.T) {
	m := buildModule(t, []string{"k", "a", "b", "ext"},
		map[string][]string{"k": {"a"}, "a": {"b"}, "b": {"ext"}}, "ext")

	a := New(m, WithLogger(quietLogger()), WithTrace(true))
	a.Register(kindPure, newPure)
	seed(a, m)
	res := a.Run()

	assert.False(t, pureOf(t, a, m, "k"))
	assert.False(t, pureOf(t, a, m, "a"))
	assert.False(t, pureOf(t, a, m, "b"))
	assert.False(t, res.Exhausted)
	assert.Equal(t, 3, res.Rounds)
	assert.Equal(t, 4, res.Attributes, "ext was created lazily")
	assert.False(t, res.Changed, "nothing is pure")
}

func TestAttributorMutualRecursionIsOptimistic(t *testing.T) {
	m := buildModule(t, []string{"f", "g"}, map[string][]string{"f": {"g"}, "g": {"f"}})

	a := New(m, WithLogger(quietLogger()))
	a.Register(kindPure, newPure)
	seed(a, m)
	res := a.Run()

	assert.True(t, pureOf(t, a, m, "f"))
	assert.True(t, pureOf(t, a, m, "g"))
	assert.True(t, res.Changed)
	assert.True(t, m.Function("f").Attrs.HasFlag("pure"))
	assert.Equal(t, 1, res.Rounds)
}

func TestAttributorBudgetExhaustionIsPessimistic(t *testing.T) {
	m := buildModule(t, []string{"f", "g"}, map[string][]string{"f": {"g"}, "g": {"f"}})

	a := New(m, WithLogger(quietLogger()), WithMaxIterations(0))
	a.Register(kindPure, newPure)
	seed(a, m)
	res := a.Run()

	assert.True(t, res.Exhausted)
	assert.Equal(t, 0, res.Updates)
	assert.False(t, pureOf(t, a, m, "f"))
	assert.False(t, pureOf(t, a, m, "g"))
	assert.False(t, res.Changed)
}

func TestAttributorBudgetSettlesDependents(t *testing.T) {
	// After one round only "a" is pending; "k" depends on it and is settled
	// without ever being updated again.
	m := buildModule(t, []string{"k", "a", "b", "ext"},
		map[string][]string{"k": {"a"}, "a": {"b"}, "b": {"ext"}}, "ext")

	a := New(m, WithLogger(quietLogger()), WithMaxIterations(1), WithTrace(true))
	a.Register(kindPure, newPure)
	seed(a, m)
	res := a.Run()

	assert.True(t, res.Exhausted)
	assert.Equal(t, 1, res.Rounds)
	assert.Len(t, res.Trace, 3, "only the first round ran")
	for _, name := range []string{"k", "a", "b"} {
		aa, _ := a.Lookup(kindPure, FunctionPosition(m.Function(name)))
		assert.True(t, aa.State().IsAtFixpoint(), name)
		assert.False(t, aa.(*pureAA).Assumed(), name)
	}
}

func TestAttributorTraceIsOrdered(t *testing.T) {
	m := buildModule(t, []string{"k", "a", "ext"},
		map[string][]string{"k": {"a"}, "a": {"ext"}}, "ext")

	a := New(m, WithLogger(quietLogger()), WithTrace(true), WithClock(NewClockAt(100)))
	a.Register(kindPure, newPure)
	seed(a, m)
	res := a.Run()

	require.NotEmpty(t, res.Trace)
	assert.Equal(t, int64(101), res.Trace[0].Seq)
	for i := 1; i < len(res.Trace); i++ {
		assert.Greater(t, res.Trace[i].Seq, res.Trace[i-1].Seq)
		assert.GreaterOrEqual(t, res.Trace[i].Round, res.Trace[i-1].Round)
	}
	assert.Equal(t, "k", res.Trace[0].Function)
	assert.Equal(t, kindPure, res.Trace[0].Kind)

	var changedFor []string
	for _, ev := range res.Trace {
		if ev.Changed {
			changedFor = append(changedFor, ev.Function)
		}
	}
	assert.Equal(t, []string{"a", "k"}, changedFor)
}

func TestAttributorUnknownKindPanics(t *testing.T) {
	m := buildModule(t, []string{"f"}, nil)
	a := New(m, WithLogger(quietLogger()))

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = RecoverInvariant(r)
			}
		}()
		a.GetOrCreate("missing", FunctionPosition(m.Function("f")))
	}()
	require.Error(t, err)
	assert.True(t, IsInvariantError(err))
	assert.Contains(t, err.Error(), "UNKNOWN_KIND")
	assert.False(t, a.Allowed("missing"))
}

func TestAttributorBadPositionPanics(t *testing.T) {
	m := buildModule(t, []string{"f"}, nil)
	a := New(m, WithLogger(quietLogger()))
	a.Register(kindPure, newPure)

	assert.PanicsWithError(t, "BAD_POSITION: kind is not valid at value position (kind=pure, function=f)", func() {
		a.GetOrCreate(kindPure, ValuePosition(m.Function("f"), &ir.ConstInt{Value: 1}))
	})
}

func TestRecoverInvariantRepanicsOthers(t *testing.T) {
	assert.PanicsWithValue(t, "boom", func() {
		_ = RecoverInvariant("boom")
	})
}

func TestCheckForAllCallSites(t *testing.T) {
	m := buildModule(t, []string{"k", "a", "b"}, map[string][]string{"k": {"a", "a"}, "b": {"a"}})
	a := New(m, WithLogger(quietLogger()))

	var callers []string
	ok := a.CheckForAllCallSites(m.Function("a"), func(call *ir.Call) bool {
		callers = append(callers, call.Parent().Name)
		return true
	})
	assert.True(t, ok)
	assert.Equal(t, []string{"k", "k", "b"}, callers)

	m.Function("a").Linkage = ir.LinkageExternal
	assert.False(t, a.CheckForAllCallSites(m.Function("a"), func(*ir.Call) bool { return true }))
}

func TestWorklistDeduplicatesFIFO(t *testing.T) {
	w := newWorklist()
	e1, e2 := &entry{}, &entry{}
	assert.True(t, w.Push(e1))
	assert.True(t, w.Push(e2))
	assert.False(t, w.Push(e1))
	assert.Equal(t, 2, w.Len())
	assert.Equal(t, []*entry{e1, e2}, w.Drain())
	assert.Equal(t, 0, w.Len())
	assert.True(t, w.Push(e1), "drained entries can be queued again")
}

func TestIterationBudget(t *testing.T) {
	b := NewIterationBudget(2)
	require.NoError(t, b.Check())
	require.NoError(t, b.Check())
	err := b.Check()
	require.Error(t, err)
	assert.True(t, IsBudgetExhausted(err))
	assert.Equal(t, 2, b.Current())
	assert.Equal(t, 2, b.MaxRounds())
}

func TestPositionString(t *testing.T) {
	m := buildModule(t, []string{"f"}, nil)
	f := m.Function("f")
	assert.Equal(t, "fn:f", FunctionPosition(f).String())
	call := &ir.Call{Name: "p", Callee: m.Intrinsic(ir.ImplicitArgPtr)}
	f.Body = append([]ir.Instruction{call}, f.Body...)
	require.NoError(t, m.Link())
	assert.Equal(t, "callsite_returned:f:%p", CallSiteReturnedPosition(call).String())
}

func TestChangeStatus(t *testing.T) {
	assert.Equal(t, Changed, Unchanged.Or(Changed))
	assert.Equal(t, Unchanged, Unchanged.Or(Unchanged))
	assert.Equal(t, "changed", Changed.String())
}
