// Package scan inspects function bodies for evidence that a hidden argument is
// needed: address-space casts, call-like instructions, and constants reachable
// from instruction operands.
//
// A Scanner memoizes per-constant results and must not outlive one pass run.
package scan

import (
	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/target"
)

// constantAccess is a bitmap of what a constant (transitively) contains.
type constantAccess uint8

const (
	accessDSGlobal      constantAccess = 1 << 0
	accessAddrSpaceCast constantAccess = 1 << 1
)

// Scanner answers evidence questions about functions.
type Scanner struct {
	info   target.Info
	status map[ir.Constant]constantAccess
}

// New creates a scanner consulting info for platform capabilities.
func New(info target.Info) *Scanner {
	return &Scanner{info: info, status: make(map[ir.Constant]constantAccess)}
}

// CastRequiresQueuePtr reports whether a cast from as needs the aperture base,
// which without aperture registers lives behind the queue pointer.
func CastRequiresQueuePtr(as ir.AddrSpace) bool {
	return as == ir.AddrSpaceLocal || as == ir.AddrSpacePrivate
}

// IsDSAddress reports whether c is a global in local or region memory.
func IsDSAddress(c ir.Constant) bool {
	g, ok := c.(*ir.Global)
	if !ok {
		return false
	}
	return g.AddrSpace == ir.AddrSpaceLocal || g.AddrSpace == ir.AddrSpaceRegion
}

// ForEachAddrSpaceCast calls pred for every address-space cast instruction in
// fn. It stops and returns false as soon as pred returns false.
func (s *Scanner) ForEachAddrSpaceCast(fn *ir.Function, pred func(*ir.AddrSpaceCast) bool) bool {
	for _, inst := range fn.Body {
		if c, ok := inst.(*ir.AddrSpaceCast); ok && !pred(c) {
			return false
		}
	}
	return true
}

// ForEachCallLike calls pred for every call instruction in fn, including
// indirect and inline-asm calls. It stops and returns false as soon as pred
// returns false.
func (s *Scanner) ForEachCallLike(fn *ir.Function, pred func(*ir.Call) bool) bool {
	for _, inst := range fn.Body {
		if c, ok := inst.(*ir.Call); ok && !pred(c) {
			return false
		}
	}
	return true
}

// ForEachOperandConstant calls pred for every constant operand of every
// instruction in fn, in instruction order. Nested constants are not visited.
func (s *Scanner) ForEachOperandConstant(fn *ir.Function, pred func(ir.Constant) bool) bool {
	for _, inst := range fn.Body {
		for _, op := range inst.Operands() {
			if c, ok := op.(ir.Constant); ok && !pred(c) {
				return false
			}
		}
	}
	return true
}

// ConstantRequiresQueuePtr reports whether fn needs the queue pointer because
// it references c.
//
// A DS global anywhere inside c traps in a non-entry function. Without
// aperture registers, a constant address-space cast from local or private
// memory needs the aperture base.
func (s *Scanner) ConstantRequiresQueuePtr(c ir.Constant, fn *ir.Function) bool {
	isNonEntry := !fn.CC.IsEntry()
	hasAperture := s.info.HasApertureRegs(fn)

	if !isNonEntry && hasAperture {
		return false
	}

	access := s.constantAccess(c)
	if isNonEntry && access&accessDSGlobal != 0 {
		return true
	}
	return !hasAperture && access&accessAddrSpaceCast != 0
}

// constantAccess computes and memoizes the access bitmap of c.
func (s *Scanner) constantAccess(c ir.Constant) constantAccess {
	if a, ok := s.status[c]; ok {
		return a
	}

	var a constantAccess
	if IsDSAddress(c) {
		a = accessDSGlobal
	}
	if ce, ok := c.(*ir.ConstExpr); ok && ce.Op == ir.OpAddrSpaceCast && CastRequiresQueuePtr(ce.From) {
		a |= accessAddrSpaceCast
	}
	for _, sub := range ir.SubConstants(c) {
		a |= s.constantAccess(sub)
	}

	s.status[c] = a
	return a
}

// RequiresQueuePtr reports whether fn's body shows queue-pointer evidence:
// an address-space cast from local or private memory without aperture
// registers, or a constant operand for which ConstantRequiresQueuePtr holds.
func (s *Scanner) RequiresQueuePtr(fn *ir.Function) bool {
	hasAperture := s.info.HasApertureRegs(fn)

	if !hasAperture {
		found := !s.ForEachAddrSpaceCast(fn, func(c *ir.AddrSpaceCast) bool {
			return !CastRequiresQueuePtr(c.From)
		})
		if found {
			return true
		}
	}

	if fn.CC.IsEntry() && hasAperture {
		return false
	}

	return !s.ForEachOperandConstant(fn, func(c ir.Constant) bool {
		return !s.ConstantRequiresQueuePtr(c, fn)
	})
}

// CachedConstants returns the number of memoized constants.
func (s *Scanner) CachedConstants() int {
	return len(s.status)
}
