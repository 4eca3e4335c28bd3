package engine

import (
	"fmt"

	"github.com/roach88/kernattr/internal/ir"
)

// PositionKind distinguishes what an attribute is attached to.
type PositionKind int

const (
	// PosFunction is a whole function.
	PosFunction PositionKind = iota + 1
	// PosCallSiteReturned is the value returned by a call instruction.
	PosCallSiteReturned
	// PosValue is an arbitrary value in the context of a function.
	PosValue
)

func (k PositionKind) String() string {
	switch k {
	case PosFunction:
		return "function"
	case PosCallSiteReturned:
		return "callsite_returned"
	case PosValue:
		return "value"
	}
	return fmt.Sprintf("position(%d)", int(k))
}

// Position identifies where an attribute lives. Positions are comparable and
// used as arena keys.
type Position struct {
	Kind     PositionKind
	Function *ir.Function
	Value    ir.Value
}

// FunctionPosition is the position of fn itself.
func FunctionPosition(fn *ir.Function) Position {
	return Position{Kind: PosFunction, Function: fn}
}

// CallSiteReturnedPosition is the position of call's result.
func CallSiteReturnedPosition(call *ir.Call) Position {
	return Position{Kind: PosCallSiteReturned, Function: call.Parent(), Value: call}
}

// ValuePosition is the position of v inside fn.
func ValuePosition(fn *ir.Function, v ir.Value) Position {
	return Position{Kind: PosValue, Function: fn, Value: v}
}

// FunctionName returns the name of the anchoring function, or "".
func (p Position) FunctionName() string {
	if p.Function == nil {
		return ""
	}
	return p.Function.Name
}

func (p Position) String() string {
	if p.Kind == PosFunction {
		return fmt.Sprintf("fn:%s", p.FunctionName())
	}
	return fmt.Sprintf("%s:%s:%s", p.Kind, p.FunctionName(), p.Value.ValueName())
}
