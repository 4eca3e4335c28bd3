package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kernattr/internal/ir"
)

// =============================================================================
// Function Header Validation Tests
// =============================================================================

func newFunction(name string) *ir.Function {
	return &ir.Function{
		Name:    name,
		CC:      ir.CCC,
		Linkage: ir.LinkageInternal,
		Attrs:   ir.NewAttributes(),
	}
}

func TestValidateFunctionValid(t *testing.T) {
	fn := newFunction("f")
	fn.Attrs.SetString("amdgpu-flat-work-group-size", "1,256")
	fn.Attrs.SetString("uniform-work-group-size", "true")
	fn.Attrs.SetFlag("amdgpu-no-queue-ptr")
	fn.Args = []*ir.Argument{{Name: "a"}, {Name: "b"}}

	errs := Validate(fn)
	assert.Empty(t, errs, "valid function should have no errors")
}

func TestValidateFunctionUnknownCallingConv(t *testing.T) {
	fn := newFunction("f")
	fn.CC = "fastcc"

	errs := Validate(fn)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownCallingConv, errs[0].Code)
	assert.Equal(t, "functions.f.cc", errs[0].Field)
	assert.Contains(t, errs[0].Message, "fastcc")
}

func TestValidateFunctionUnknownLinkage(t *testing.T) {
	fn := newFunction("f")
	fn.Linkage = "weak"

	errs := Validate(fn)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownLinkage, errs[0].Code)
}

func TestValidateFunctionDeclarationWithBody(t *testing.T) {
	fn := newFunction("f")
	fn.Declaration = true
	fn.Body = []ir.Instruction{&ir.Ret{}}

	errs := Validate(fn)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDeclarationHasBody, errs[0].Code)
}

func TestValidateFunctionIntrinsicWithBody(t *testing.T) {
	fn := newFunction("llvm.amdgcn.workitem.id.x")
	fn.Body = []ir.Instruction{&ir.Ret{}}

	errs := Validate(fn)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrIntrinsicHasBody, errs[0].Code)
}

func TestValidateFunctionFlatWorkGroupSize(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"1,1024", true},
		{"64,64", true},
		{"0,64", false},
		{"128,64", false},
		{"1,2048", false},
		{"64", false},
		{"a,b", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			fn := newFunction("f")
			fn.Attrs.SetString("amdgpu-flat-work-group-size", tt.value)

			errs := Validate(fn)
			if tt.ok {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Equal(t, ErrBadFlatWorkGroupSize, errs[0].Code)
			assert.Equal(t, "functions.f.attrs", errs[0].Field)
		})
	}
}

func TestValidateFunctionBadUniformValue(t *testing.T) {
	fn := newFunction("f")
	fn.Attrs.SetString("uniform-work-group-size", "yes")

	errs := Validate(fn)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrBadUniformValue, errs[0].Code)
	assert.Contains(t, errs[0].Message, `"yes"`)
}

func TestValidateFunctionUnknownHiddenArg(t *testing.T) {
	fn := newFunction("f")
	fn.Attrs.SetFlag("amdgpu-no-frobnicator")
	fn.Attrs.SetFlag("amdgpu-no-workitem-id-z")

	errs := Validate(fn)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownHiddenArg, errs[0].Code)
	assert.Contains(t, errs[0].Message, "frobnicator")
}

func TestValidateFunctionDuplicateArgument(t *testing.T) {
	fn := newFunction("f")
	fn.Args = []*ir.Argument{{Name: "a"}, {Name: "b"}, {Name: "a"}}

	errs := Validate(fn)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateName, errs[0].Code)
	assert.Equal(t, "functions.f.args[2]", errs[0].Field)
}

func TestValidateFunctionMultipleErrors(t *testing.T) {
	fn := newFunction("f")
	fn.CC = "fastcc"
	fn.Linkage = "weak"
	fn.Attrs.SetString("uniform-work-group-size", "maybe")

	errs := Validate(fn)
	require.Len(t, errs, 3, "validation does not stop at the first error")
	assert.Equal(t, ErrUnknownCallingConv, errs[0].Code)
	assert.Equal(t, ErrUnknownLinkage, errs[1].Code)
	assert.Equal(t, ErrBadUniformValue, errs[2].Code)
}

// =============================================================================
// Body Validation Tests
// =============================================================================

func TestValidateBodyBadAddrSpace(t *testing.T) {
	m := ir.NewModule("m")
	fn := newFunction("f")
	fn.Args = []*ir.Argument{{Name: "p"}}
	fn.Body = []ir.Instruction{&ir.AddrSpaceCast{Src: fn.Args[0], From: 0, To: 9}}
	require.NoError(t, m.AddFunction(fn))

	errs := Validate(m)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrBadAddrSpace, errs[0].Code)
	assert.Equal(t, "functions.f.body[0]", errs[0].Field)
}

func TestValidateBodyImplicitArgPtrDenied(t *testing.T) {
	m := ir.NewModule("m")
	fn := newFunction("f")
	fn.Attrs.SetFlag("amdgpu-no-implicitarg-ptr")
	fn.Body = []ir.Instruction{&ir.Call{Callee: m.Intrinsic(ir.ImplicitArgPtr)}}
	require.NoError(t, m.AddFunction(fn))

	errs := Validate(m)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrImplicitArgPtrDenied, errs[0].Code)
	assert.Equal(t, "functions.f.flags", errs[0].Field)
}

func TestValidateBodyImplicitArgPtrSanitized(t *testing.T) {
	m := ir.NewModule("m")
	fn := newFunction("f")
	fn.Attrs.SetFlag("amdgpu-no-implicitarg-ptr")
	fn.Attrs.SetFlag("sanitize_address")
	fn.Body = []ir.Instruction{&ir.Call{Callee: m.Intrinsic(ir.ImplicitArgPtr)}}
	require.NoError(t, m.AddFunction(fn))

	assert.Empty(t, Validate(m), "sanitized functions drop the declaration")
}

// =============================================================================
// Module Validation Tests
// =============================================================================

func TestValidateModuleGlobalAddrSpace(t *testing.T) {
	m := ir.NewModule("m")
	require.NoError(t, m.AddGlobal(&ir.Global{Name: "g", AddrSpace: 7}))

	errs := Validate(m)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrBadAddrSpace, errs[0].Code)
	assert.Equal(t, "globals.g", errs[0].Field)
}

func TestValidateModuleLinkFailed(t *testing.T) {
	m := ir.NewModule("m")
	fn := newFunction("f")
	fn.Body = []ir.Instruction{&ir.Call{}}
	require.NoError(t, m.AddFunction(fn))

	errs := Validate(m)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrLinkFailed, errs[0].Code)
	assert.Contains(t, errs[0].Message, "call has no callee")
}

func TestValidateUnsupportedType(t *testing.T) {
	errs := Validate("not ir")
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnsupportedIRType, errs[0].Code)
	assert.Contains(t, errs[0].Message, "string")
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "functions.f.cc", Message: "bad", Code: ErrUnknownCallingConv}
	assert.Equal(t, "[E101] functions.f.cc: bad", err.Error())

	err.Line = 12
	assert.Equal(t, "[E101] line 12: functions.f.cc: bad", err.Error())
}
