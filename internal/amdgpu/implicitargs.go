package amdgpu

import (
	"fmt"

	"github.com/roach88/kernattr/internal/analysis"
	"github.com/roach88/kernattr/internal/engine"
	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/lattice"
)

// sanitizerFlags are the flag attributes that request a sanitizer runtime.
var sanitizerFlags = []string{
	"sanitize_address",
	"sanitize_thread",
	"sanitize_memory",
	"sanitize_hwaddress",
	"sanitize_memtag",
}

// HasSanitizer reports whether fn requests a sanitizer runtime.
func HasSanitizer(fn *ir.Function) bool {
	for _, f := range sanitizerFlags {
		if fn.Attrs.HasFlag(f) {
			return true
		}
	}
	return false
}

// ImplicitArgs is the set of hidden arguments a function is assumed not to
// need. Bits only leave the assumed set.
type ImplicitArgs struct {
	lattice.BitState
	pos engine.Position
	c   *cache
}

func (c *cache) newImplicitArgs(pos engine.Position) engine.AbstractAttribute {
	if pos.Kind != engine.PosFunction {
		engine.BadPosition(KindImplicitArgs, pos)
	}
	return &ImplicitArgs{BitState: lattice.NewBitState(uint32(AllHiddenArgs)), pos: pos, c: c}
}

func (ia *ImplicitArgs) Kind() engine.Kind         { return KindImplicitArgs }
func (ia *ImplicitArgs) Position() engine.Position { return ia.pos }
func (ia *ImplicitArgs) State() lattice.State      { return &ia.BitState }

// Absent returns the hidden arguments currently assumed unused.
func (ia *ImplicitArgs) Absent() HiddenArg { return HiddenArg(ia.Assumed()) }

func (ia *ImplicitArgs) isAssumed(h HiddenArg) bool { return ia.IsAssumed(uint32(h)) }
func (ia *ImplicitArgs) need(h HiddenArg)           { ia.RemoveAssumedBits(uint32(h)) }

func (ia *ImplicitArgs) Initialize(*engine.Attributor) {
	fn := ia.pos.Function

	// Sanitizer runtimes read the implicit-argument block and the hostcall
	// buffer whatever the function declares.
	sanitized := HasSanitizer(fn)
	if sanitized {
		ia.need(ImplicitArgPtr | HostcallPtr)
	}
	for _, h := range HiddenArgs() {
		if sanitized && (h == ImplicitArgPtr || h == HostcallPtr) {
			continue
		}
		if fn.Attrs.HasFlag(h.Attr()) {
			ia.AddKnownBits(uint32(h))
		}
	}

	if fn.IsDeclaration() {
		return
	}
	// Graphics functions take their inputs from fixed registers.
	if fn.CC.IsGraphics() {
		ia.IndicatePessimisticFixpoint()
	}
}

func (ia *ImplicitArgs) Update(a *engine.Attributor) engine.ChangeStatus {
	fn := ia.pos.Function
	before := ia.Assumed()
	changed := func() engine.ChangeStatus { return engine.ChangeStatus(before != ia.Assumed()) }

	edges := analysis.CallEdgesFor(a, fn)
	if edges.HasNonAsmUnknownCallee() {
		ia.IndicatePessimisticFixpoint()
		return changed()
	}

	info := ia.c.info
	cov := info.CodeObjectVersion()
	nonEntry := !fn.CC.IsEntry()
	needsImplicit := false

	for _, callee := range edges.OptimisticEdges() {
		if callee.IsIntrinsic() {
			mask, nonKernelOnly, ni := intrinsicMask(callee.IntrinsicID(),
				info.HasApertureRegs(fn), info.SupportsDoorbellID(fn), cov)
			if mask != 0 && (nonEntry || !nonKernelOnly) {
				ia.need(mask)
			}
			needsImplicit = needsImplicit || ni
			continue
		}
		other := a.GetAAFor(KindImplicitArgs, engine.FunctionPosition(callee)).(*ImplicitArgs)
		ia.MeetAND(&other.BitState)
	}
	if needsImplicit {
		ia.need(ImplicitArgPtr)
	}

	if ia.isAssumed(QueuePtr) && ia.c.scan.RequiresQueuePtr(fn) {
		if cov >= 5 {
			ia.need(ImplicitArgPtr)
		} else {
			ia.need(QueuePtr)
		}
	}

	for _, h := range []HiddenArg{MultigridSyncArg, HostcallPtr, HeapPtr, QueuePtr} {
		if !ia.isAssumed(h) {
			continue
		}
		r, ok := slot(h, cov)
		if !ok || !ia.retrievesImplicitArg(a, r) {
			continue
		}
		if ia.isAssumed(ImplicitArgPtr) {
			engine.Violation(KindImplicitArgs, fn.Name, "%s is read without implicitarg-ptr", h)
		}
		ia.need(h)
	}

	if ia.isAssumed(LDSKernelID) && ia.retrievesLDSKernelID() {
		ia.need(LDSKernelID)
	}
	return changed()
}

// retrievesImplicitArg reports whether some implicit-argument pointer in the
// function may be used to read r.
func (ia *ImplicitArgs) retrievesImplicitArg(a *engine.Attributor, r analysis.ByteRange) bool {
	return !ia.c.scan.ForEachCallLike(ia.pos.Function, func(call *ir.Call) bool {
		if call.Intrinsic() != ir.ImplicitArgPtr {
			return true
		}
		pi := analysis.PointerInfoFor(a, call)
		return pi.ForAllInterferingAccesses(r, analysis.Access.IsDroppable)
	})
}

func (ia *ImplicitArgs) retrievesLDSKernelID() bool {
	return !ia.c.scan.ForEachCallLike(ia.pos.Function, func(call *ir.Call) bool {
		return call.Intrinsic() != ir.LDSKernelID
	})
}

// Manifest replaces the function's absent attributes with the final set.
func (ia *ImplicitArgs) Manifest(*engine.Attributor) engine.ChangeStatus {
	attrs := &ia.pos.Function.Attrs
	changed := false
	for _, h := range HiddenArgs() {
		if ia.IsKnown(uint32(h)) {
			changed = attrs.SetFlag(h.Attr()) || changed
		} else {
			changed = attrs.Remove(h.Attr()) || changed
		}
	}
	return engine.ChangeStatus(changed)
}

func (ia *ImplicitArgs) String() string {
	return fmt.Sprintf("absent{known=%s assumed=%s}",
		formatMask(HiddenArg(ia.Known())), formatMask(HiddenArg(ia.Assumed())))
}
