package amdgpu

import (
	"strconv"

	"github.com/roach88/kernattr/internal/engine"
	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/lattice"
)

// AttrUniformWorkGroupSize is the string attribute holding "true" or "false".
const AttrUniformWorkGroupSize = "uniform-work-group-size"

// UniformWorkGroupSize tracks whether every launch reaching a function uses
// a uniform work-group size. Entry points declare it; other functions inherit
// the conjunction of their callers.
type UniformWorkGroupSize struct {
	lattice.BoolState
	pos engine.Position
}

func (c *cache) newUniformWorkGroupSize(pos engine.Position) engine.AbstractAttribute {
	if pos.Kind != engine.PosFunction {
		engine.BadPosition(KindUniformWorkGroupSize, pos)
	}
	return &UniformWorkGroupSize{BoolState: lattice.NewBoolState(), pos: pos}
}

func (u *UniformWorkGroupSize) Kind() engine.Kind         { return KindUniformWorkGroupSize }
func (u *UniformWorkGroupSize) Position() engine.Position { return u.pos }
func (u *UniformWorkGroupSize) State() lattice.State      { return &u.BoolState }

func (u *UniformWorkGroupSize) Initialize(*engine.Attributor) {
	fn := u.pos.Function
	if !fn.CC.IsEntry() {
		return
	}
	if v, ok := fn.Attrs.String(AttrUniformWorkGroupSize); ok && v == "true" {
		u.IndicateOptimisticFixpoint()
		return
	}
	u.IndicatePessimisticFixpoint()
}

func (u *UniformWorkGroupSize) Update(a *engine.Attributor) engine.ChangeStatus {
	before := u.Assumed()
	ok := a.CheckForAllCallSites(u.pos.Function, func(call *ir.Call) bool {
		caller := a.GetAAFor(KindUniformWorkGroupSize, engine.FunctionPosition(call.Parent())).(*UniformWorkGroupSize)
		u.MeetAssumed(caller.Assumed())
		return true
	})
	if !ok {
		u.IndicatePessimisticFixpoint()
	}
	return engine.ChangeStatus(before != u.Assumed())
}

// Manifest always writes the final value, replacing any declared one.
func (u *UniformWorkGroupSize) Manifest(*engine.Attributor) engine.ChangeStatus {
	return engine.ChangeStatus(u.pos.Function.Attrs.SetString(AttrUniformWorkGroupSize, strconv.FormatBool(u.Assumed())))
}

func (u *UniformWorkGroupSize) String() string {
	return u.BoolState.String()
}
