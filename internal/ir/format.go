package ir

import (
	"fmt"
	"strings"
)

// FormatInstruction renders inst in a compact textual form, for example
// `%p = call @llvm.amdgcn.implicitarg.ptr()`.
func FormatInstruction(inst Instruction) string {
	switch in := inst.(type) {
	case *Call:
		callee := "asm"
		if in.Callee != nil {
			callee = in.Callee.ValueName()
		}
		return fmt.Sprintf("%s = call %s(%s)", in.ValueName(), callee, joinValues(in.Args))
	case *AddrSpaceCast:
		return fmt.Sprintf("%s = addrspacecast %s from %d to %d", in.ValueName(), in.Src.ValueName(), in.From, in.To)
	case *GEP:
		return fmt.Sprintf("%s = gep %s, %s", in.ValueName(), in.Base.ValueName(), in.Offset.ValueName())
	case *Load:
		vol := ""
		if in.Volatile {
			vol = " volatile"
		}
		return fmt.Sprintf("%s = load%s %d, %s", in.ValueName(), vol, in.Size, in.Ptr.ValueName())
	case *Store:
		vol := ""
		if in.Volatile {
			vol = " volatile"
		}
		return fmt.Sprintf("store%s %d, %s, %s", vol, in.Size, in.Val.ValueName(), in.Ptr.ValueName())
	case *Select:
		return fmt.Sprintf("%s = select %s, %s, %s", in.ValueName(), in.Cond.ValueName(), in.True.ValueName(), in.False.ValueName())
	case *Phi:
		return fmt.Sprintf("%s = phi %s", in.ValueName(), joinValues(in.Incoming))
	case *Assume:
		return fmt.Sprintf("assume %s", in.Cond.ValueName())
	case *Ret:
		if in.Val == nil {
			return "ret"
		}
		return "ret " + in.Val.ValueName()
	}
	return fmt.Sprintf("<%T>", inst)
}

func joinValues(vals []Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.ValueName()
	}
	return strings.Join(parts, ", ")
}
