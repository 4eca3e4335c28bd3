package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/kernattr/internal/amdgpu"
	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/target"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Function header errors (E101-E109)
	ErrUnknownCallingConv   = "E101" // calling convention not recognized
	ErrUnknownLinkage       = "E102" // linkage must be internal or external
	ErrDeclarationHasBody   = "E103" // declaration with instructions
	ErrBadFlatWorkGroupSize = "E104" // malformed amdgpu-flat-work-group-size
	ErrDuplicateName        = "E105" // duplicate argument name
	ErrBadUniformValue      = "E106" // uniform-work-group-size not true/false
	ErrUnknownHiddenArg     = "E107" // amdgpu-no-* names no hidden argument
	ErrIntrinsicHasBody     = "E108" // llvm.* function with a body

	// Body errors (E110-E119)
	ErrLinkFailed           = "E110" // def-use structure does not link
	ErrBadAddrSpace         = "E111" // address space outside 0-5
	ErrImplicitArgPtrDenied = "E112" // declares no implicitarg-ptr but reads it
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled module or function.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch x := v.(type) {
	case *ir.Module:
		return validateModule(x)
	case *ir.Function:
		return validateFunction(x, "functions."+x.Name)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateModule(m *ir.Module) []ValidationError {
	var errs []ValidationError

	for _, g := range m.Globals {
		if !validAddrSpace(g.AddrSpace) {
			errs = append(errs, ValidationError{
				Field:   "globals." + g.Name,
				Message: fmt.Sprintf("unknown address space %d", int(g.AddrSpace)),
				Code:    ErrBadAddrSpace,
			})
		}
	}

	for _, fn := range m.Functions {
		errs = append(errs, validateFunction(fn, "functions."+fn.Name)...)
	}

	// E110: operands must resolve within the module
	if err := m.Link(); err != nil {
		errs = append(errs, ValidationError{
			Field:   "module",
			Message: err.Error(),
			Code:    ErrLinkFailed,
		})
	}
	return errs
}

func validateFunction(fn *ir.Function, field string) []ValidationError {
	var errs []ValidationError

	// E101: calling convention
	if !ir.ValidCallingConvs[fn.CC] {
		errs = append(errs, ValidationError{
			Field:   field + ".cc",
			Message: fmt.Sprintf("unknown calling convention %q", fn.CC),
			Code:    ErrUnknownCallingConv,
		})
	}

	// E102: linkage
	if fn.Linkage != ir.LinkageInternal && fn.Linkage != ir.LinkageExternal {
		errs = append(errs, ValidationError{
			Field:   field + ".linkage",
			Message: fmt.Sprintf("linkage %q must be \"internal\" or \"external\"", fn.Linkage),
			Code:    ErrUnknownLinkage,
		})
	}

	// E103 / E108: bodies
	if fn.Declaration && len(fn.Body) > 0 {
		errs = append(errs, ValidationError{
			Field:   field + ".body",
			Message: "declaration must not have a body",
			Code:    ErrDeclarationHasBody,
		})
	}
	if fn.IsIntrinsic() && !fn.Declaration {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: "llvm.* functions must be declarations",
			Code:    ErrIntrinsicHasBody,
		})
	}

	// E104: flat work-group size
	if v, ok := fn.Attrs.String(target.AttrFlatWorkGroupSize); ok {
		lo, hi, err := target.ParseFlatWorkGroupSize(v)
		switch {
		case err != nil:
			errs = append(errs, ValidationError{Field: field + ".attrs", Message: err.Error(), Code: ErrBadFlatWorkGroupSize})
		case lo > hi || lo < target.MinFlatWorkGroupSize || hi > target.MaxFlatWorkGroupSize:
			errs = append(errs, ValidationError{
				Field: field + ".attrs",
				Message: fmt.Sprintf("flat work-group size %q must satisfy %d <= min <= max <= %d",
					v, target.MinFlatWorkGroupSize, target.MaxFlatWorkGroupSize),
				Code: ErrBadFlatWorkGroupSize,
			})
		}
	}

	// E106: uniform work-group size
	if v, ok := fn.Attrs.String(amdgpu.AttrUniformWorkGroupSize); ok && v != "true" && v != "false" {
		errs = append(errs, ValidationError{
			Field:   field + ".attrs",
			Message: fmt.Sprintf("%s must be \"true\" or \"false\", got %q", amdgpu.AttrUniformWorkGroupSize, v),
			Code:    ErrBadUniformValue,
		})
	}

	// E107: absent flags
	for _, flag := range fn.Attrs.Flags() {
		name, ok := strings.CutPrefix(flag, amdgpu.AbsentAttrPrefix)
		if !ok {
			continue
		}
		if _, err := amdgpu.ParseHiddenArg(name); err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".flags",
				Message: fmt.Sprintf("%s: %v", flag, err),
				Code:    ErrUnknownHiddenArg,
			})
		}
	}

	// E105: argument names
	seen := make(map[string]bool)
	for i, a := range fn.Args {
		if seen[a.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.args[%d]", field, i),
				Message: fmt.Sprintf("duplicate argument name: %q", a.Name),
				Code:    ErrDuplicateName,
			})
		}
		seen[a.Name] = true
	}

	errs = append(errs, validateBody(fn, field)...)
	return errs
}

func validateBody(fn *ir.Function, field string) []ValidationError {
	var errs []ValidationError
	readsImplicitArgs := false

	for i, inst := range fn.Body {
		at := fmt.Sprintf("%s.body[%d]", field, i)
		switch in := inst.(type) {
		case *ir.AddrSpaceCast:
			if !validAddrSpace(in.From) || !validAddrSpace(in.To) {
				errs = append(errs, ValidationError{
					Field:   at,
					Message: fmt.Sprintf("unknown address space in cast from %d to %d", int(in.From), int(in.To)),
					Code:    ErrBadAddrSpace,
				})
			}
		case *ir.Call:
			if in.Intrinsic() == ir.ImplicitArgPtr {
				readsImplicitArgs = true
			}
		}
	}

	// E112: the declaration would contradict the body. Sanitized functions
	// drop the declaration instead.
	denied := fn.Attrs.HasFlag(amdgpu.ImplicitArgPtr.Attr())
	if readsImplicitArgs && denied && !amdgpu.HasSanitizer(fn) {
		errs = append(errs, ValidationError{
			Field:   field + ".flags",
			Message: fmt.Sprintf("declares %s but calls %s", amdgpu.ImplicitArgPtr.Attr(), ir.ImplicitArgPtr.Name()),
			Code:    ErrImplicitArgPtrDenied,
		})
	}
	return errs
}

func validAddrSpace(as ir.AddrSpace) bool {
	return as >= ir.AddrSpaceFlat && as <= ir.AddrSpacePrivate
}
