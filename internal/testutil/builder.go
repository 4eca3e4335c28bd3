package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/kernattr/internal/ir"
)

// ModuleBuilder assembles an ir.Module in tests.
//
// Functions are added in the order their constructors run, which is the
// order they appear in the module:
//
//	b := testutil.NewModule(t, "m")
//	callee := b.Func("callee", testutil.CallIntrinsic(b, ir.WorkitemIDY))
//	b.Kernel("k", testutil.Call(callee))
//	m := b.Build()
type ModuleBuilder struct {
	t testing.TB
	m *ir.Module
}

// NewModule starts an empty module.
func NewModule(t testing.TB, name string) *ModuleBuilder {
	return &ModuleBuilder{t: t, m: ir.NewModule(name)}
}

// Add adds fn, filling in empty attributes.
func (b *ModuleBuilder) Add(fn *ir.Function) *ir.Function {
	b.t.Helper()
	if fn.CC == "" {
		fn.CC = ir.CCC
	}
	if fn.Linkage == "" {
		fn.Linkage = ir.LinkageInternal
	}
	require.NoError(b.t, b.m.AddFunction(fn))
	return fn
}

// Kernel adds an externally visible amdgpu_kernel.
func (b *ModuleBuilder) Kernel(name string, body ...ir.Instruction) *ir.Function {
	b.t.Helper()
	return b.Add(&ir.Function{Name: name, CC: ir.CCKernel, Linkage: ir.LinkageExternal, Body: body})
}

// Func adds an internal function with the C calling convention.
func (b *ModuleBuilder) Func(name string, body ...ir.Instruction) *ir.Function {
	b.t.Helper()
	return b.Add(&ir.Function{Name: name, Body: body})
}

// ExternalFunc adds an externally visible function with the C calling
// convention.
func (b *ModuleBuilder) ExternalFunc(name string, body ...ir.Instruction) *ir.Function {
	b.t.Helper()
	return b.Add(&ir.Function{Name: name, Linkage: ir.LinkageExternal, Body: body})
}

// Declare adds an external declaration.
func (b *ModuleBuilder) Declare(name string) *ir.Function {
	b.t.Helper()
	return b.Add(&ir.Function{Name: name, Linkage: ir.LinkageExternal, Declaration: true})
}

// Global adds a global variable.
func (b *ModuleBuilder) Global(name string, as ir.AddrSpace) *ir.Global {
	b.t.Helper()
	g := &ir.Global{Name: name, AddrSpace: as}
	require.NoError(b.t, b.m.AddGlobal(g))
	return g
}

// Module returns the module under construction.
func (b *ModuleBuilder) Module() *ir.Module {
	return b.m
}

// Build links and returns the module.
func (b *ModuleBuilder) Build() *ir.Module {
	b.t.Helper()
	require.NoError(b.t, b.m.Link())
	return b.m
}

// Call returns an unnamed call to callee.
func Call(callee ir.Value, args ...ir.Value) *ir.Call {
	return &ir.Call{Callee: callee, Args: args}
}

// CallIntrinsic returns an unnamed call to the intrinsic id, declaring it in
// the module.
func CallIntrinsic(b *ModuleBuilder, id ir.IntrinsicID) *ir.Call {
	return &ir.Call{Callee: b.m.Intrinsic(id)}
}

// Int returns an integer constant.
func Int(v int64) *ir.ConstInt {
	return &ir.ConstInt{Value: v}
}
