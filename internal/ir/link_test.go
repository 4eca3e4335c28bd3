package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkBuildsUseLists(t *testing.T) {
	m := NewModule("m")
	f := &Function{Name: "f", CC: CCC, Linkage: LinkageInternal}
	arg := &Argument{Name: "p"}
	f.Args = []*Argument{arg}
	ptr := &Call{Name: "ptr", Callee: m.Intrinsic(ImplicitArgPtr)}
	gep := &GEP{Name: "q", Base: ptr, Offset: &ConstInt{Value: 24}}
	load := &Load{Name: "v", Ptr: gep, Size: 8}
	f.Body = []Instruction{ptr, gep, load, &Store{Ptr: arg, Val: load, Size: 8}, &Ret{}}
	require.NoError(t, m.AddFunction(f))
	require.NoError(t, m.Link())

	assert.True(t, m.Linked())
	assert.Equal(t, []Instruction{gep}, ptr.Users())
	assert.Equal(t, []Instruction{load}, gep.Users())
	assert.Len(t, load.Users(), 1)
	assert.Len(t, arg.Users(), 1)
	assert.Same(t, f, load.Parent())
	assert.Equal(t, 0, arg.Index)
}

func TestLinkCallSitesAndAddressTaken(t *testing.T) {
	m := NewModule("m")
	direct := &Function{Name: "direct", CC: CCC, Linkage: LinkageInternal, Body: []Instruction{&Ret{}}}
	escaped := &Function{Name: "escaped", CC: CCC, Linkage: LinkageInternal, Body: []Instruction{&Ret{}}}
	exported := &Function{Name: "exported", CC: CCC, Linkage: LinkageExternal, Body: []Instruction{&Ret{}}}
	caller := &Function{Name: "caller", CC: CCKernel, Linkage: LinkageExternal}
	caller.Body = []Instruction{
		&Call{Callee: direct},
		&Call{Callee: direct},
		&Call{Callee: exported},
		&Call{Callee: direct, Args: []Value{escaped}},
		&Ret{},
	}
	for _, f := range []*Function{caller, direct, escaped, exported} {
		require.NoError(t, m.AddFunction(f))
	}
	require.NoError(t, m.Link())

	assert.Len(t, direct.CallSites(), 3)
	assert.Equal(t, []*Function{caller}, direct.Callers())
	assert.True(t, direct.AllCallSitesKnown())

	assert.True(t, escaped.AddressTaken())
	assert.False(t, escaped.AllCallSitesKnown())

	assert.False(t, exported.AddressTaken())
	assert.False(t, exported.AllCallSitesKnown(), "external linkage hides callers")
}

func TestLinkAddressTakenThroughConstExpr(t *testing.T) {
	m := NewModule("m")
	target := &Function{Name: "t", CC: CCC, Linkage: LinkageInternal, Body: []Instruction{&Ret{}}}
	caller := &Function{Name: "c", CC: CCC, Linkage: LinkageInternal}
	cast := &ConstExpr{Op: OpBitCast, Operands: []Constant{target}}
	caller.Body = []Instruction{&Call{Callee: cast}, &Ret{}}
	require.NoError(t, m.AddFunction(caller))
	require.NoError(t, m.AddFunction(target))
	require.NoError(t, m.Link())

	assert.True(t, target.AddressTaken())
	assert.Empty(t, target.CallSites())
	assert.True(t, caller.Body[0].(*Call).IsIndirect())
}

func TestLinkRejectsCrossFunctionValues(t *testing.T) {
	m := NewModule("m")
	a := &Function{Name: "a", CC: CCC, Linkage: LinkageInternal}
	b := &Function{Name: "b", CC: CCC, Linkage: LinkageInternal}
	v := &Call{Name: "v", Callee: m.Intrinsic(WorkitemIDX)}
	a.Body = []Instruction{v, &Ret{}}
	b.Body = []Instruction{&Ret{Val: v}}
	require.NoError(t, m.AddFunction(a))
	require.NoError(t, m.AddFunction(b))

	err := m.Link()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defined in another function")
}

func TestLinkRejectsMalformedCalls(t *testing.T) {
	m := NewModule("m")
	f := &Function{Name: "f", Body: []Instruction{&Call{}}}
	require.NoError(t, m.AddFunction(f))
	err := m.Link()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no callee")
}

func TestFormatInstruction(t *testing.T) {
	m := NewModule("m")
	g := &Global{Name: "lds", AddrSpace: AddrSpaceLocal}
	tests := []struct {
		inst Instruction
		want string
	}{
		{&Call{Name: "p", Callee: m.Intrinsic(ImplicitArgPtr)}, "%p = call @llvm.amdgcn.implicitarg.ptr()"},
		{&Call{InlineAsm: true}, "%<anon> = call asm()"},
		{&AddrSpaceCast{Name: "c", Src: g, From: AddrSpaceLocal, To: AddrSpaceFlat}, "%c = addrspacecast @lds from 3 to 0"},
		{&Load{Name: "v", Ptr: g, Size: 4, Volatile: true}, "%v = load volatile 4, @lds"},
		{&Assume{Cond: &ConstInt{Value: 1}}, "assume 1"},
		{&Ret{}, "ret"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatInstruction(tt.inst))
	}
}
