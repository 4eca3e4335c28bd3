package analysis

import (
	"fmt"
	"strings"

	"github.com/roach88/kernattr/internal/engine"
	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/lattice"
)

// AccessKind distinguishes reads from writes.
type AccessKind int

const (
	AccessRead AccessKind = iota
	AccessWrite
)

func (k AccessKind) String() string {
	if k == AccessWrite {
		return "write"
	}
	return "read"
}

// ByteRange is a half-open range [Offset, Offset+Size).
type ByteRange struct {
	Offset int64
	Size   int64
}

// Overlaps reports whether r and o share at least one byte.
func (r ByteRange) Overlaps(o ByteRange) bool {
	return r.Offset < o.Offset+o.Size && o.Offset < r.Offset+r.Size
}

func (r ByteRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Offset, r.Offset+r.Size)
}

// Access is one memory access through a tracked pointer.
type Access struct {
	Kind AccessKind
	// Range is meaningless when UnknownOffset is set.
	Range         ByteRange
	UnknownOffset bool
	Inst          ir.Instruction
}

// Interferes reports whether the access may touch r.
func (acc Access) Interferes(r ByteRange) bool {
	if acc.UnknownOffset || acc.Range.Size <= 0 {
		return true
	}
	return acc.Range.Overlaps(r)
}

// IsDroppable reports whether the accessing instruction could be removed
// without changing behaviour. Loads and stores never can, whatever uses
// their result.
func (acc Access) IsDroppable() bool {
	return ir.IsDroppable(acc.Inst)
}

func (acc Access) String() string {
	where := acc.Range.String()
	if acc.UnknownOffset {
		where = "[?]"
	}
	return fmt.Sprintf("%s%s", acc.Kind, where)
}

// PointerInfo collects the accesses made through the pointer returned by a
// call. Accesses are followed through constant and dynamic GEPs and address
// space casts. A pointer that escapes (stored, passed to a call, merged
// through a select or phi, or returned) makes the info invalid.
type PointerInfo struct {
	fixState
	pos engine.Position

	valid    bool
	accesses []Access
}

var _ lattice.State = (*PointerInfo)(nil)

func newPointerInfo(pos engine.Position) engine.AbstractAttribute {
	if pos.Kind != engine.PosCallSiteReturned {
		engine.BadPosition(KindPointerInfo, pos)
	}
	return &PointerInfo{pos: pos, valid: true}
}

// PointerInfoFor returns the access info of call's result, recording a
// dependency.
func PointerInfoFor(a *engine.Attributor, call *ir.Call) *PointerInfo {
	return a.GetAAFor(KindPointerInfo, engine.CallSiteReturnedPosition(call)).(*PointerInfo)
}

func (p *PointerInfo) Kind() engine.Kind         { return KindPointerInfo }
func (p *PointerInfo) Position() engine.Position { return p.pos }
func (p *PointerInfo) State() lattice.State      { return p }

// IsValid reports whether every use of the pointer was understood.
func (p *PointerInfo) IsValid() bool { return p.valid }

// Accesses returns the collected accesses in use order.
func (p *PointerInfo) Accesses() []Access { return p.accesses }

func (p *PointerInfo) IndicateOptimisticFixpoint() { p.fixed = true }

func (p *PointerInfo) IndicatePessimisticFixpoint() {
	p.valid = false
	p.accesses = nil
	p.fixed = true
}

// The use graph of a call result never changes, so the info is complete
// after Initialize.
func (p *PointerInfo) Initialize(*engine.Attributor) {
	call := p.pos.Value.(*ir.Call)
	if !p.walk(call, 0, false) {
		p.IndicatePessimisticFixpoint()
		return
	}
	p.IndicateOptimisticFixpoint()
}

func (p *PointerInfo) walk(v ir.Value, off int64, unknown bool) bool {
	users := v.(interface{ Users() []ir.Instruction }).Users()
	for _, u := range users {
		switch inst := u.(type) {
		case *ir.GEP:
			if inst.Base != v {
				return false
			}
			c, ok := inst.ConstantOffset()
			if !p.walk(inst, off+c, unknown || !ok) {
				return false
			}
		case *ir.AddrSpaceCast:
			if !p.walk(inst, off, unknown) {
				return false
			}
		case *ir.Load:
			p.accesses = append(p.accesses, Access{
				Kind:          AccessRead,
				Range:         ByteRange{Offset: off, Size: inst.Size},
				UnknownOffset: unknown,
				Inst:          inst,
			})
		case *ir.Store:
			if inst.Val == v {
				return false
			}
			p.accesses = append(p.accesses, Access{
				Kind:          AccessWrite,
				Range:         ByteRange{Offset: off, Size: inst.Size},
				UnknownOffset: unknown,
				Inst:          inst,
			})
		case *ir.Assume:
		default:
			return false
		}
	}
	return true
}

func (p *PointerInfo) Update(*engine.Attributor) engine.ChangeStatus {
	return engine.Unchanged
}

// ForAllInterferingAccesses calls pred with every access that may touch r
// and reports whether pred accepted all of them. It returns false when the
// info is invalid.
func (p *PointerInfo) ForAllInterferingAccesses(r ByteRange, pred func(Access) bool) bool {
	if !p.valid {
		return false
	}
	for _, acc := range p.accesses {
		if acc.Interferes(r) && !pred(acc) {
			return false
		}
	}
	return true
}

func (p *PointerInfo) Manifest(*engine.Attributor) engine.ChangeStatus {
	return engine.Unchanged
}

func (p *PointerInfo) String() string {
	if !p.valid {
		return "PointerInfo[invalid]"
	}
	parts := make([]string, len(p.accesses))
	for i, acc := range p.accesses {
		parts[i] = acc.String()
	}
	return fmt.Sprintf("PointerInfo[%s]", strings.Join(parts, " "))
}
