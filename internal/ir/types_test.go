package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallingConvClassification(t *testing.T) {
	tests := []struct {
		cc       CallingConv
		entry    bool
		graphics bool
		kernel   bool
	}{
		{CCC, false, false, false},
		{CCKernel, true, false, true},
		{CCSPIRKernel, true, false, false},
		{CCVertex, true, true, false},
		{CCPixel, true, true, false},
		{CCCompute, true, true, false},
		{CCGfx, false, true, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.cc), func(t *testing.T) {
			assert.Equal(t, tt.entry, tt.cc.IsEntry(), "IsEntry")
			assert.Equal(t, tt.graphics, tt.cc.IsGraphics(), "IsGraphics")
			assert.Equal(t, tt.kernel, tt.cc.IsKernel(), "IsKernel")
		})
	}
}

func TestAttributesFlagAndString(t *testing.T) {
	a := NewAttributes()
	assert.True(t, a.SetFlag("amdgpu-no-queue-ptr"))
	assert.False(t, a.SetFlag("amdgpu-no-queue-ptr"), "second set is a no-op")
	assert.True(t, a.SetString("uniform-work-group-size", "true"))
	assert.False(t, a.SetString("uniform-work-group-size", "true"))
	assert.True(t, a.SetString("uniform-work-group-size", "false"))

	assert.True(t, a.HasFlag("amdgpu-no-queue-ptr"))
	v, ok := a.String("uniform-work-group-size")
	require.True(t, ok)
	assert.Equal(t, "false", v)

	assert.Equal(t, `amdgpu-no-queue-ptr "uniform-work-group-size"="false"`, a.Render())

	assert.True(t, a.Remove("amdgpu-no-queue-ptr"))
	assert.False(t, a.Remove("amdgpu-no-queue-ptr"))
	assert.False(t, a.Has("amdgpu-no-queue-ptr"))
}

func TestAttributesFlagReplacesString(t *testing.T) {
	a := NewAttributes()
	a.SetString("k", "v")
	a.SetFlag("k")
	_, ok := a.String("k")
	assert.False(t, ok)
	assert.True(t, a.HasFlag("k"))
}

func TestAttributesZeroValueUsable(t *testing.T) {
	var a Attributes
	assert.False(t, a.Has("x"))
	assert.True(t, a.SetFlag("x"))
	assert.Equal(t, []string{"x"}, a.Flags())
}

func TestAttributesCloneAndEqual(t *testing.T) {
	a := NewAttributes()
	a.SetFlag("f")
	a.SetString("s", "1")
	b := a.Clone()
	assert.True(t, a.Equal(b))

	b.SetString("s", "2")
	assert.False(t, a.Equal(b))
	v, _ := a.String("s")
	assert.Equal(t, "1", v, "clone must not alias")
}

func TestModuleRejectsDuplicates(t *testing.T) {
	m := NewModule("m")
	require.NoError(t, m.AddFunction(&Function{Name: "f"}))
	assert.Error(t, m.AddFunction(&Function{Name: "f"}))
	assert.Error(t, m.AddGlobal(&Global{Name: "f"}))
	require.NoError(t, m.AddGlobal(&Global{Name: "g", AddrSpace: AddrSpaceLocal}))
	assert.Error(t, m.AddGlobal(&Global{Name: "g"}))
}

func TestModuleIntrinsicCreatesDeclarationOnce(t *testing.T) {
	m := NewModule("m")
	f1 := m.Intrinsic(ImplicitArgPtr)
	f2 := m.Intrinsic(ImplicitArgPtr)
	assert.Same(t, f1, f2)
	assert.True(t, f1.IsDeclaration())
	assert.True(t, f1.IsIntrinsic())
	assert.Equal(t, ImplicitArgPtr, f1.IntrinsicID())
}

func TestLookupIntrinsic(t *testing.T) {
	assert.Equal(t, WorkitemIDY, LookupIntrinsic("llvm.amdgcn.workitem.id.y"))
	assert.Equal(t, R600TgidZ, LookupIntrinsic("llvm.r600.read.tgid.z"))
	assert.Equal(t, Trap, LookupIntrinsic("llvm.trap"))
	assert.Equal(t, OtherIntrinsic, LookupIntrinsic("llvm.memcpy"))

	f := &Function{Name: "not_an_intrinsic"}
	assert.Equal(t, NotIntrinsic, f.IntrinsicID())
}

func TestAddrSpaceString(t *testing.T) {
	assert.Equal(t, "local", AddrSpaceLocal.String())
	assert.Equal(t, "private", AddrSpacePrivate.String())
	assert.Equal(t, "addrspace(7)", AddrSpace(7).String())
}
