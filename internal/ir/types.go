package ir

import (
	"fmt"
	"slices"
	"strings"
)

// CallingConv identifies how a function is invoked.
type CallingConv string

const (
	CCC          CallingConv = "c"
	CCKernel     CallingConv = "amdgpu_kernel"
	CCSPIRKernel CallingConv = "spir_kernel"
	CCVertex     CallingConv = "amdgpu_vs"
	CCGeometry   CallingConv = "amdgpu_gs"
	CCPixel      CallingConv = "amdgpu_ps"
	CCCompute    CallingConv = "amdgpu_cs"
	CCExport     CallingConv = "amdgpu_es"
	CCHull       CallingConv = "amdgpu_hs"
	CCLocal      CallingConv = "amdgpu_ls"
	CCGfx        CallingConv = "amdgpu_gfx"
)

// ValidCallingConvs lists every accepted calling convention.
var ValidCallingConvs = map[CallingConv]bool{
	CCC: true, CCKernel: true, CCSPIRKernel: true,
	CCVertex: true, CCGeometry: true, CCPixel: true, CCCompute: true,
	CCExport: true, CCHull: true, CCLocal: true, CCGfx: true,
}

// IsShader reports whether cc is a graphics shader stage.
func (cc CallingConv) IsShader() bool {
	switch cc {
	case CCVertex, CCGeometry, CCPixel, CCCompute, CCExport, CCHull, CCLocal:
		return true
	}
	return false
}

// IsEntry reports whether functions with this convention are launched
// directly by the platform.
func (cc CallingConv) IsEntry() bool {
	return cc == CCKernel || cc == CCSPIRKernel || cc.IsShader()
}

// IsGraphics reports whether cc is a shader stage or the callable graphics
// convention. Graphics functions cannot take kernel arguments.
func (cc CallingConv) IsGraphics() bool {
	return cc.IsShader() || cc == CCGfx
}

// IsKernel reports whether cc is the compute kernel convention.
func (cc CallingConv) IsKernel() bool {
	return cc == CCKernel
}

// Linkage controls visibility of a function outside the module.
type Linkage string

const (
	LinkageExternal Linkage = "external"
	LinkageInternal Linkage = "internal"
)

// Attributes holds the declared attributes of a function.
//
// Flag attributes ("amdgpu-no-queue-ptr", "sanitize_address") carry no value;
// string attributes ("uniform-work-group-size"="true") do. A key is either a
// flag or a string attribute, never both.
type Attributes struct {
	flags   map[string]bool
	strings map[string]string
}

// NewAttributes creates an empty attribute set.
func NewAttributes() Attributes {
	return Attributes{flags: map[string]bool{}, strings: map[string]string{}}
}

func (a *Attributes) init() {
	if a.flags == nil {
		a.flags = map[string]bool{}
	}
	if a.strings == nil {
		a.strings = map[string]string{}
	}
}

// Has reports whether the set carries key as a flag or a string attribute.
func (a Attributes) Has(key string) bool {
	if a.flags[key] {
		return true
	}
	_, ok := a.strings[key]
	return ok
}

// HasFlag reports whether key is present as a flag attribute.
func (a Attributes) HasFlag(key string) bool {
	return a.flags[key]
}

// String returns the value of a string attribute.
func (a Attributes) String(key string) (string, bool) {
	v, ok := a.strings[key]
	return v, ok
}

// SetFlag adds a flag attribute and reports whether the set changed.
func (a *Attributes) SetFlag(key string) bool {
	a.init()
	if a.flags[key] {
		return false
	}
	delete(a.strings, key)
	a.flags[key] = true
	return true
}

// SetString adds or replaces a string attribute and reports whether the set
// changed.
func (a *Attributes) SetString(key, value string) bool {
	a.init()
	if old, ok := a.strings[key]; ok && old == value {
		return false
	}
	delete(a.flags, key)
	a.strings[key] = value
	return true
}

// Remove deletes key and reports whether it was present.
func (a *Attributes) Remove(key string) bool {
	if !a.Has(key) {
		return false
	}
	delete(a.flags, key)
	delete(a.strings, key)
	return true
}

// Flags returns the flag attributes in sorted order.
func (a Attributes) Flags() []string {
	out := make([]string, 0, len(a.flags))
	for k := range a.flags {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Strings returns a copy of the string attributes.
func (a Attributes) Strings() map[string]string {
	out := make(map[string]string, len(a.strings))
	for k, v := range a.strings {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy of the attribute set.
func (a Attributes) Clone() Attributes {
	c := NewAttributes()
	for k := range a.flags {
		c.flags[k] = true
	}
	for k, v := range a.strings {
		c.strings[k] = v
	}
	return c
}

// Equal reports whether two attribute sets hold the same keys and values.
func (a Attributes) Equal(b Attributes) bool {
	if len(a.flags) != len(b.flags) || len(a.strings) != len(b.strings) {
		return false
	}
	for k := range a.flags {
		if !b.flags[k] {
			return false
		}
	}
	for k, v := range a.strings {
		if bv, ok := b.strings[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// Render formats the set as `flag "key"="value"` in sorted order.
func (a Attributes) Render() string {
	var parts []string
	parts = append(parts, a.Flags()...)
	keys := make([]string, 0, len(a.strings))
	for k := range a.strings {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%q=%q", k, a.strings[k]))
	}
	return strings.Join(parts, " ")
}

// Module is a whole program: the unit the attributor runs over.
type Module struct {
	Name      string
	Functions []*Function
	Globals   []*Global

	funcs   map[string]*Function
	globals map[string]*Global
	linked  bool
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{
		Name:    name,
		funcs:   map[string]*Function{},
		globals: map[string]*Global{},
	}
}

// AddFunction appends f to the module. Names must be unique.
func (m *Module) AddFunction(f *Function) error {
	if m.funcs == nil {
		m.funcs = map[string]*Function{}
	}
	if _, dup := m.funcs[f.Name]; dup {
		return fmt.Errorf("duplicate function %q", f.Name)
	}
	if _, dup := m.globals[f.Name]; dup {
		return fmt.Errorf("function %q collides with a global", f.Name)
	}
	f.module = m
	m.funcs[f.Name] = f
	m.Functions = append(m.Functions, f)
	m.linked = false
	return nil
}

// AddGlobal appends g to the module. Names must be unique.
func (m *Module) AddGlobal(g *Global) error {
	if m.globals == nil {
		m.globals = map[string]*Global{}
	}
	if _, dup := m.globals[g.Name]; dup {
		return fmt.Errorf("duplicate global %q", g.Name)
	}
	if _, dup := m.funcs[g.Name]; dup {
		return fmt.Errorf("global %q collides with a function", g.Name)
	}
	m.globals[g.Name] = g
	m.Globals = append(m.Globals, g)
	m.linked = false
	return nil
}

// Function looks up a function by name.
func (m *Module) Function(name string) *Function {
	return m.funcs[name]
}

// Global looks up a global by name.
func (m *Module) Global(name string) *Global {
	return m.globals[name]
}

// Intrinsic returns the declaration of an intrinsic, creating it on first use.
func (m *Module) Intrinsic(id IntrinsicID) *Function {
	name := id.Name()
	if f := m.Function(name); f != nil {
		return f
	}
	f := &Function{
		Name:        name,
		CC:          CCC,
		Linkage:     LinkageExternal,
		Declaration: true,
		Attrs:       NewAttributes(),
	}
	_ = m.AddFunction(f)
	return f
}

// Function is a unit of code: a kernel, a shader, an ordinary callee, or an
// external (possibly intrinsic) declaration.
type Function struct {
	Name        string
	CC          CallingConv
	Linkage     Linkage
	Attrs       Attributes
	Args        []*Argument
	Body        []Instruction
	Declaration bool

	module *Module
	// callSites are calls whose callee operand is this function.
	callSites []*Call
	// addressTaken is set when the function is used other than as a callee.
	addressTaken bool
}

func (*Function) value()    {}
func (*Function) constant() {}

// ValueName implements Value.
func (f *Function) ValueName() string { return "@" + f.Name }

// Module returns the module that owns f.
func (f *Function) Module() *Module { return f.module }

// IsDeclaration reports whether f has no body.
func (f *Function) IsDeclaration() bool { return f.Declaration }

// IsIntrinsic reports whether f is a platform built-in.
func (f *Function) IsIntrinsic() bool {
	return strings.HasPrefix(f.Name, "llvm.")
}

// IntrinsicID returns the recognised intrinsic for f, or NotIntrinsic.
func (f *Function) IntrinsicID() IntrinsicID {
	if !f.IsIntrinsic() {
		return NotIntrinsic
	}
	return LookupIntrinsic(f.Name)
}

// HasLocalLinkage reports whether f is invisible outside the module.
func (f *Function) HasLocalLinkage() bool {
	return f.Linkage == LinkageInternal
}

// CallSites returns the direct calls to f. Valid after Module.Link.
func (f *Function) CallSites() []*Call {
	return f.callSites
}

// AddressTaken reports whether f is used other than as a direct callee.
// Valid after Module.Link.
func (f *Function) AddressTaken() bool {
	return f.addressTaken
}

// Global is a module-level variable in an address space.
type Global struct {
	Name      string
	AddrSpace AddrSpace
}

func (*Global) value()    {}
func (*Global) constant() {}

// ValueName implements Value.
func (g *Global) ValueName() string { return "@" + g.Name }

// Argument is a formal parameter of a function.
type Argument struct {
	Name   string
	Index  int
	Parent *Function

	users []Instruction
}

func (*Argument) value() {}

// ValueName implements Value.
func (a *Argument) ValueName() string { return "%" + a.Name }

// Users returns the instructions using a. Valid after Module.Link.
func (a *Argument) Users() []Instruction { return a.users }
