package amdgpu

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/roach88/kernattr/internal/analysis"
	"github.com/roach88/kernattr/internal/ir"
)

// HiddenArg is one implicit kernel argument, as a bit of the absent set.
type HiddenArg uint32

const (
	DispatchPtr HiddenArg = 1 << iota
	QueuePtr
	DispatchID
	ImplicitArgPtr
	MultigridSyncArg
	HostcallPtr
	HeapPtr
	WorkgroupIDX
	WorkgroupIDY
	WorkgroupIDZ
	WorkitemIDX
	WorkitemIDY
	WorkitemIDZ
	LDSKernelID
)

// AllHiddenArgs is the mask of every hidden argument.
const AllHiddenArgs HiddenArg = 1<<14 - 1

// hiddenArgs lists the arguments in bit order with their attribute names.
var hiddenArgs = []struct {
	arg  HiddenArg
	name string
}{
	{DispatchPtr, "dispatch-ptr"},
	{QueuePtr, "queue-ptr"},
	{DispatchID, "dispatch-id"},
	{ImplicitArgPtr, "implicitarg-ptr"},
	{MultigridSyncArg, "multigrid-sync-arg"},
	{HostcallPtr, "hostcall-ptr"},
	{HeapPtr, "heap-ptr"},
	{WorkgroupIDX, "workgroup-id-x"},
	{WorkgroupIDY, "workgroup-id-y"},
	{WorkgroupIDZ, "workgroup-id-z"},
	{WorkitemIDX, "workitem-id-x"},
	{WorkitemIDY, "workitem-id-y"},
	{WorkitemIDZ, "workitem-id-z"},
	{LDSKernelID, "lds-kernel-id"},
}

// AbsentAttrPrefix prefixes the attribute declaring a hidden argument unused.
const AbsentAttrPrefix = "amdgpu-no-"

// HiddenArgs returns every hidden argument in bit order.
func HiddenArgs() []HiddenArg {
	out := make([]HiddenArg, len(hiddenArgs))
	for i, h := range hiddenArgs {
		out[i] = h.arg
	}
	return out
}

// Name returns the argument name, e.g. "queue-ptr". Only single bits have
// names.
func (h HiddenArg) Name() string {
	if bits.OnesCount32(uint32(h)) == 1 {
		return hiddenArgs[bits.TrailingZeros32(uint32(h))].name
	}
	return fmt.Sprintf("hidden(%#x)", uint32(h))
}

// Attr returns the absent attribute of a single argument, e.g.
// "amdgpu-no-queue-ptr".
func (h HiddenArg) Attr() string {
	return AbsentAttrPrefix + h.Name()
}

func (h HiddenArg) String() string {
	return h.Name()
}

// Names returns the names of the bits in h, in bit order.
func (h HiddenArg) Names() []string {
	var out []string
	for _, e := range hiddenArgs {
		if h&e.arg != 0 {
			out = append(out, e.name)
		}
	}
	return out
}

// ParseHiddenArg maps a name such as "queue-ptr" to its bit.
func ParseHiddenArg(name string) (HiddenArg, error) {
	for _, e := range hiddenArgs {
		if e.name == name {
			return e.arg, nil
		}
	}
	return 0, fmt.Errorf("unknown hidden argument %q", name)
}

func formatMask(m HiddenArg) string {
	switch m {
	case 0:
		return "none"
	case AllHiddenArgs:
		return "all"
	}
	return strings.Join(m.Names(), ",")
}

// implicitArgSlotSize is the width of every reserved implicit-argument slot.
const implicitArgSlotSize = 8

// slot returns the reserved byte range of a hidden argument that is read
// through the implicit-argument pointer, and whether it has one under cov.
func slot(h HiddenArg, cov int) (analysis.ByteRange, bool) {
	v5 := cov >= 5
	var off int64
	switch {
	case h == HostcallPtr && v5:
		off = 80
	case h == HostcallPtr:
		off = 24
	case h == MultigridSyncArg && v5:
		off = 88
	case h == MultigridSyncArg:
		off = 48
	case h == HeapPtr && v5:
		off = 96
	case h == QueuePtr && v5:
		off = 200
	default:
		return analysis.ByteRange{}, false
	}
	return analysis.ByteRange{Offset: off, Size: implicitArgSlotSize}, true
}

// intrinsicMask maps an intrinsic to the hidden arguments it reads.
// nonKernelOnly is set for X-axis ids, which the hardware always initializes
// for entry points. needsImplicit is set when the intrinsic also reads
// through the implicit-argument pointer.
func intrinsicMask(id ir.IntrinsicID, hasApertureRegs, supportsDoorbellID bool, cov int) (mask HiddenArg, nonKernelOnly, needsImplicit bool) {
	switch id {
	case ir.WorkitemIDX:
		return WorkitemIDX, true, false
	case ir.WorkgroupIDX:
		return WorkgroupIDX, true, false
	case ir.WorkitemIDY, ir.R600TidigY:
		return WorkitemIDY, false, false
	case ir.WorkitemIDZ, ir.R600TidigZ:
		return WorkitemIDZ, false, false
	case ir.WorkgroupIDY, ir.R600TgidY:
		return WorkgroupIDY, false, false
	case ir.WorkgroupIDZ, ir.R600TgidZ:
		return WorkgroupIDZ, false, false
	case ir.DispatchPtr:
		return DispatchPtr, false, false
	case ir.DispatchID:
		return DispatchID, false, false
	case ir.ImplicitArgPtr:
		return ImplicitArgPtr, false, false
	case ir.LDSKernelID:
		return LDSKernelID, false, false
	case ir.QueuePtr:
		return QueuePtr, false, cov >= 5
	case ir.IsShared, ir.IsPrivate:
		// The aperture bases live behind the implicit-argument pointer on v5
		// and behind the queue pointer before it.
		if hasApertureRegs {
			return 0, false, false
		}
		if cov >= 5 {
			return ImplicitArgPtr, false, false
		}
		return QueuePtr, false, false
	case ir.Trap:
		// Doorbell-ID queries are available from v4.
		if supportsDoorbellID {
			if cov >= 4 {
				return 0, false, false
			}
			return QueuePtr, false, false
		}
		return QueuePtr, false, cov >= 5
	}
	return 0, false, false
}
