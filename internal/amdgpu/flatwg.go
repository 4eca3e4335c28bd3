package amdgpu

import (
	"github.com/roach88/kernattr/internal/engine"
	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/lattice"
	"github.com/roach88/kernattr/internal/target"
)

// FlatWorkGroupSize is the range of flat work-group sizes a function can run
// with: its platform bound, narrowed by every caller's range.
type FlatWorkGroupSize struct {
	lattice.IntervalState
	pos engine.Position
	c   *cache
}

func (c *cache) newFlatWorkGroupSize(pos engine.Position) engine.AbstractAttribute {
	if pos.Kind != engine.PosFunction {
		engine.BadPosition(KindFlatWorkGroupSize, pos)
	}
	return &FlatWorkGroupSize{pos: pos, c: c}
}

func (f *FlatWorkGroupSize) Kind() engine.Kind         { return KindFlatWorkGroupSize }
func (f *FlatWorkGroupSize) Position() engine.Position { return f.pos }
func (f *FlatWorkGroupSize) State() lattice.State      { return &f.IntervalState }

func (f *FlatWorkGroupSize) Initialize(*engine.Attributor) {
	fn := f.pos.Function
	lo, hi := f.c.info.FlatWorkGroupSizes(fn)
	f.IntervalState = lattice.NewIntervalState(lattice.NewInterval(lo, hi))
	if fn.CC.IsEntry() {
		f.IndicatePessimisticFixpoint()
	}
}

func (f *FlatWorkGroupSize) Update(a *engine.Attributor) engine.ChangeStatus {
	before := f.Assumed()
	ok := a.CheckForAllCallSites(f.pos.Function, func(call *ir.Call) bool {
		caller := a.GetAAFor(KindFlatWorkGroupSize, engine.FunctionPosition(call.Parent())).(*FlatWorkGroupSize)
		f.IntersectAssumed(caller.Assumed())
		return true
	})
	if !ok {
		f.IndicatePessimisticFixpoint()
	}
	return engine.ChangeStatus(!before.Equal(f.Assumed()))
}

// Manifest writes "min,max" on non-entry functions unless the range is the
// platform-wide default or empty. Entry points keep whatever range they
// declare; a shader stage's implied default is not written out.
func (f *FlatWorkGroupSize) Manifest(*engine.Attributor) engine.ChangeStatus {
	if f.pos.Function.CC.IsEntry() || f.IsEmpty() {
		return engine.Unchanged
	}
	lo, hi := f.c.info.MaximumFlatWorkGroupRange(f.pos.Function)
	got := f.Assumed()
	if got.Equal(lattice.NewInterval(lo, hi)) {
		return engine.Unchanged
	}
	v := target.FormatFlatWorkGroupSize(got.Lo, got.Hi)
	return engine.ChangeStatus(f.pos.Function.Attrs.SetString(target.AttrFlatWorkGroupSize, v))
}

func (f *FlatWorkGroupSize) String() string {
	return f.IntervalState.String()
}
