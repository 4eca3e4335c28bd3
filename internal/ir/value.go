package ir

import "fmt"

// AddrSpace is a numbered memory address space.
type AddrSpace int

const (
	AddrSpaceFlat     AddrSpace = 0
	AddrSpaceGlobal   AddrSpace = 1
	AddrSpaceRegion   AddrSpace = 2
	AddrSpaceLocal    AddrSpace = 3
	AddrSpaceConstant AddrSpace = 4
	AddrSpacePrivate  AddrSpace = 5
)

// String returns the conventional name of the address space.
func (as AddrSpace) String() string {
	switch as {
	case AddrSpaceFlat:
		return "flat"
	case AddrSpaceGlobal:
		return "global"
	case AddrSpaceRegion:
		return "region"
	case AddrSpaceLocal:
		return "local"
	case AddrSpaceConstant:
		return "constant"
	case AddrSpacePrivate:
		return "private"
	}
	return fmt.Sprintf("addrspace(%d)", int(as))
}

// Value is anything that can appear as an operand.
// Sealed: only types in this package implement it.
type Value interface {
	value()
	ValueName() string
}

// Constant is a Value with module-level identity.
// Implemented by *Function, *Global, *ConstInt, *ConstExpr and *ConstAggregate.
type Constant interface {
	Value
	constant()
}

// Instruction is an operation inside a function body. Every instruction is
// also a Value naming its result, even when the result is never used.
type Instruction interface {
	Value
	Operands() []Value
	Parent() *Function
	Users() []Instruction
	instr() *instrCommon
}

type instrCommon struct {
	parent *Function
	users  []Instruction
}

func (c *instrCommon) instr() *instrCommon { return c }

// Parent returns the function containing the instruction. Valid after Module.Link.
func (c *instrCommon) Parent() *Function { return c.parent }

// Users returns instructions using this result. Valid after Module.Link.
func (c *instrCommon) Users() []Instruction { return c.users }

func (*instrCommon) value() {}

func localName(name string) string {
	if name == "" {
		return "%<anon>"
	}
	return "%" + name
}

// Call invokes Callee with Args. Inline-asm calls carry no callee.
type Call struct {
	instrCommon
	Name      string
	Callee    Value
	Args      []Value
	InlineAsm bool
}

func (c *Call) ValueName() string { return localName(c.Name) }

func (c *Call) Operands() []Value {
	ops := make([]Value, 0, len(c.Args)+1)
	if c.Callee != nil {
		ops = append(ops, c.Callee)
	}
	return append(ops, c.Args...)
}

// CalledFunction returns the direct callee, or nil for indirect and asm calls.
func (c *Call) CalledFunction() *Function {
	f, _ := c.Callee.(*Function)
	return f
}

// IsIndirect reports whether the callee is a computed value.
func (c *Call) IsIndirect() bool {
	return !c.InlineAsm && c.CalledFunction() == nil
}

// Intrinsic returns the intrinsic invoked by c, or NotIntrinsic.
func (c *Call) Intrinsic() IntrinsicID {
	if f := c.CalledFunction(); f != nil {
		return f.IntrinsicID()
	}
	return NotIntrinsic
}

// AddrSpaceCast converts a pointer between address spaces.
type AddrSpaceCast struct {
	instrCommon
	Name string
	Src  Value
	From AddrSpace
	To   AddrSpace
}

func (c *AddrSpaceCast) ValueName() string { return localName(c.Name) }
func (c *AddrSpaceCast) Operands() []Value { return []Value{c.Src} }

// GEP offsets Base by Offset bytes. A non-constant offset is dynamic.
type GEP struct {
	instrCommon
	Name   string
	Base   Value
	Offset Value
}

func (g *GEP) ValueName() string { return localName(g.Name) }
func (g *GEP) Operands() []Value { return []Value{g.Base, g.Offset} }

// ConstantOffset returns the byte offset when it is a constant.
func (g *GEP) ConstantOffset() (int64, bool) {
	if ci, ok := g.Offset.(*ConstInt); ok {
		return ci.Value, true
	}
	return 0, false
}

// Load reads Size bytes through Ptr.
type Load struct {
	instrCommon
	Name     string
	Ptr      Value
	Size     int64
	Volatile bool
}

func (l *Load) ValueName() string { return localName(l.Name) }
func (l *Load) Operands() []Value { return []Value{l.Ptr} }

// Store writes Val (Size bytes) through Ptr.
type Store struct {
	instrCommon
	Ptr      Value
	Val      Value
	Size     int64
	Volatile bool
}

func (s *Store) ValueName() string { return "%<store>" }
func (s *Store) Operands() []Value { return []Value{s.Ptr, s.Val} }

// Select chooses between two values.
type Select struct {
	instrCommon
	Name  string
	Cond  Value
	True  Value
	False Value
}

func (s *Select) ValueName() string { return localName(s.Name) }
func (s *Select) Operands() []Value { return []Value{s.Cond, s.True, s.False} }

// Phi merges values from predecessor paths.
type Phi struct {
	instrCommon
	Name     string
	Incoming []Value
}

func (p *Phi) ValueName() string { return localName(p.Name) }
func (p *Phi) Operands() []Value { return append([]Value(nil), p.Incoming...) }

// Assume is a droppable hint; its operand use never affects semantics.
type Assume struct {
	instrCommon
	Cond Value
}

func (a *Assume) ValueName() string { return "%<assume>" }
func (a *Assume) Operands() []Value { return []Value{a.Cond} }

// Ret returns from the function, optionally with a value.
type Ret struct {
	instrCommon
	Val Value
}

func (r *Ret) ValueName() string { return "%<ret>" }

func (r *Ret) Operands() []Value {
	if r.Val == nil {
		return nil
	}
	return []Value{r.Val}
}

// IsDroppable reports whether uses by inst can be discarded without changing
// program behaviour.
func IsDroppable(inst Instruction) bool {
	_, ok := inst.(*Assume)
	return ok
}

// ConstInt is an integer constant.
type ConstInt struct {
	Value int64
}

func (*ConstInt) value()    {}
func (*ConstInt) constant() {}

func (c *ConstInt) ValueName() string { return fmt.Sprintf("%d", c.Value) }

// ConstExprOp enumerates constant-expression operators.
type ConstExprOp string

const (
	OpAddrSpaceCast ConstExprOp = "addrspacecast"
	OpGEP           ConstExprOp = "gep"
	OpBitCast       ConstExprOp = "bitcast"
)

// ConstExpr is a constant expression over other constants. From and To are
// meaningful for addrspacecast only.
type ConstExpr struct {
	Op       ConstExprOp
	Operands []Constant
	From     AddrSpace
	To       AddrSpace
}

func (*ConstExpr) value()    {}
func (*ConstExpr) constant() {}

func (c *ConstExpr) ValueName() string {
	if len(c.Operands) == 0 {
		return string(c.Op) + "()"
	}
	return fmt.Sprintf("%s(%s)", c.Op, c.Operands[0].ValueName())
}

// ConstAggregate is a constant array or struct.
type ConstAggregate struct {
	Elems []Constant
}

func (*ConstAggregate) value()    {}
func (*ConstAggregate) constant() {}

func (c *ConstAggregate) ValueName() string {
	return fmt.Sprintf("{%d elems}", len(c.Elems))
}

// SubConstants returns the constants directly referenced by c.
func SubConstants(c Constant) []Constant {
	switch c := c.(type) {
	case *ConstExpr:
		return c.Operands
	case *ConstAggregate:
		return c.Elems
	}
	return nil
}
