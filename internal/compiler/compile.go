// Package compiler turns CUE program descriptions into linked ir.Modules and
// checks them before they reach the attributor.
//
// A description is a top-level module struct:
//
//	module: {
//		name: "simple"
//		globals: lds: addrspace: 3
//		functions: {
//			callee: {
//				linkage: "internal"
//				body: [{op: "call", callee: "@llvm.amdgcn.workitem.id.y"}]
//			}
//			k: {
//				cc: "amdgpu_kernel"
//				body: [{op: "call", callee: "@callee"}]
//			}
//		}
//	}
//
// Functions keep their declaration order. Operands are "%local" or "%arg"
// names, "@function" or "@global" references, integers, or constant
// expression structs such as {op: "addrspacecast", from: 3, operand: "@lds"}.
// Functions named "@llvm.*" are declared on first reference.
package compiler

import (
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/kernattr/internal/ir"
)

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

// CompileFile compiles the module description in a single CUE file.
func CompileFile(path string) (*ir.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return CompileSource(data, path)
}

// CompileSource compiles CUE source text; filename is used in positions.
func CompileSource(src []byte, filename string) (*ir.Module, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	mv := v.LookupPath(cue.ParsePath("module"))
	if !mv.Exists() {
		return nil, &CompileError{Field: "module", Message: "module is required", Pos: v.Pos()}
	}
	return CompileModule(mv)
}

// CompileModule parses a CUE module struct into a linked ir.Module.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(src)
//	m, err := CompileModule(v.LookupPath(cue.ParsePath("module")))
func CompileModule(v cue.Value) (*ir.Module, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	name, err := requiredString(v, "name", "name")
	if err != nil {
		return nil, err
	}
	c := &moduleCompiler{m: ir.NewModule(name)}

	if err := c.globals(v); err != nil {
		return nil, err
	}

	fv := v.LookupPath(cue.ParsePath("functions"))
	if !fv.Exists() {
		return nil, &CompileError{Field: "functions", Message: "functions is required", Pos: v.Pos()}
	}
	iter, err := fv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	// Headers first, so bodies can reference any function.
	var bodies []pendingBody
	for iter.Next() {
		field := "functions." + iter.Label()
		fn, err := c.header(iter.Label(), iter.Value(), field)
		if err != nil {
			return nil, err
		}
		if err := c.m.AddFunction(fn); err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: iter.Value().Pos()}
		}
		bodies = append(bodies, pendingBody{fn: fn, v: iter.Value(), field: field})
	}

	for _, b := range bodies {
		if err := c.body(b); err != nil {
			return nil, err
		}
	}

	if err := c.m.Link(); err != nil {
		return nil, &CompileError{Field: "module", Message: err.Error(), Pos: v.Pos()}
	}
	return c.m, nil
}

type moduleCompiler struct {
	m *ir.Module
}

type pendingBody struct {
	fn    *ir.Function
	v     cue.Value
	field string
}

func (c *moduleCompiler) globals(v cue.Value) error {
	gv := v.LookupPath(cue.ParsePath("globals"))
	if !gv.Exists() {
		return nil
	}
	iter, err := gv.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		field := "globals." + iter.Label()
		as, err := optionalInt(iter.Value(), "addrspace", field+".addrspace", 0)
		if err != nil {
			return err
		}
		g := &ir.Global{Name: iter.Label(), AddrSpace: ir.AddrSpace(as)}
		if err := c.m.AddGlobal(g); err != nil {
			return &CompileError{Field: field, Message: err.Error(), Pos: iter.Value().Pos()}
		}
	}
	return nil
}

func (c *moduleCompiler) header(name string, v cue.Value, field string) (*ir.Function, error) {
	cc, err := optionalString(v, "cc", field+".cc", string(ir.CCC))
	if err != nil {
		return nil, err
	}
	linkage, err := optionalString(v, "linkage", field+".linkage", string(ir.LinkageExternal))
	if err != nil {
		return nil, err
	}
	declare, err := optionalBool(v, "declare", field+".declare")
	if err != nil {
		return nil, err
	}

	fn := &ir.Function{
		Name:        name,
		CC:          ir.CallingConv(cc),
		Linkage:     ir.Linkage(linkage),
		Attrs:       ir.NewAttributes(),
		Declaration: declare,
	}

	flags, err := stringList(v, "flags", field+".flags")
	if err != nil {
		return nil, err
	}
	for _, f := range flags {
		fn.Attrs.SetFlag(f)
	}

	if av := v.LookupPath(cue.ParsePath("attrs")); av.Exists() {
		iter, err := av.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return nil, &CompileError{Field: field + ".attrs." + iter.Label(), Message: "attribute values must be strings", Pos: iter.Value().Pos()}
			}
			fn.Attrs.SetString(iter.Label(), s)
		}
	}

	args, err := stringList(v, "args", field+".args")
	if err != nil {
		return nil, err
	}
	for _, a := range args {
		fn.Args = append(fn.Args, &ir.Argument{Name: strings.TrimPrefix(a, "%")})
	}
	return fn, nil
}

// body compiles a function body in two passes: instructions are created
// first so operands may refer to later values (phis in loops).
func (c *moduleCompiler) body(b pendingBody) error {
	bv := b.v.LookupPath(cue.ParsePath("body"))
	if !bv.Exists() {
		return nil
	}
	iter, err := bv.List()
	if err != nil {
		return formatCUEError(err)
	}

	fc := &functionCompiler{mc: c, fn: b.fn, locals: map[string]ir.Value{}}
	for _, a := range b.fn.Args {
		fc.locals[a.Name] = a
	}

	var elems []cue.Value
	for i := 0; iter.Next(); i++ {
		field := fmt.Sprintf("%s.body[%d]", b.field, i)
		inst, err := fc.create(iter.Value(), field)
		if err != nil {
			return err
		}
		b.fn.Body = append(b.fn.Body, inst)
		elems = append(elems, iter.Value())
	}

	for i, inst := range b.fn.Body {
		field := fmt.Sprintf("%s.body[%d]", b.field, i)
		if err := fc.fill(inst, elems[i], field); err != nil {
			return err
		}
	}
	return nil
}

type functionCompiler struct {
	mc     *moduleCompiler
	fn     *ir.Function
	locals map[string]ir.Value
}

// create allocates the instruction and registers its name.
func (fc *functionCompiler) create(v cue.Value, field string) (ir.Instruction, error) {
	op, err := requiredString(v, "op", field+".op")
	if err != nil {
		return nil, err
	}
	name, err := optionalString(v, "name", field+".name", "")
	if err != nil {
		return nil, err
	}
	name = strings.TrimPrefix(name, "%")

	var inst ir.Instruction
	switch op {
	case "call":
		inst = &ir.Call{Name: name}
	case "addrspacecast":
		inst = &ir.AddrSpaceCast{Name: name}
	case "gep":
		inst = &ir.GEP{Name: name}
	case "load":
		inst = &ir.Load{Name: name}
	case "store":
		inst = &ir.Store{}
	case "select":
		inst = &ir.Select{Name: name}
	case "phi":
		inst = &ir.Phi{Name: name}
	case "assume":
		inst = &ir.Assume{}
	case "ret":
		inst = &ir.Ret{}
	default:
		return nil, &CompileError{Field: field + ".op", Message: fmt.Sprintf("unknown instruction %q", op), Pos: v.Pos()}
	}

	if name != "" {
		if _, dup := fc.locals[name]; dup {
			return nil, &CompileError{Field: field + ".name", Message: fmt.Sprintf("%%%s is already defined", name), Pos: v.Pos()}
		}
		fc.locals[name] = inst
	}
	return inst, nil
}

// fill resolves the operands of inst.
func (fc *functionCompiler) fill(inst ir.Instruction, v cue.Value, field string) error {
	var err error
	switch in := inst.(type) {
	case *ir.Call:
		if in.InlineAsm, err = optionalBool(v, "asm", field+".asm"); err != nil {
			return err
		}
		if cv := v.LookupPath(cue.ParsePath("callee")); cv.Exists() {
			if in.Callee, err = fc.operand(cv, field+".callee"); err != nil {
				return err
			}
		}
		in.Args, err = fc.operandList(v, "args", field+".args")
	case *ir.AddrSpaceCast:
		if in.Src, err = fc.required(v, "src", field); err != nil {
			return err
		}
		if in.From, in.To, err = addrSpaces(v, field); err != nil {
			return err
		}
	case *ir.GEP:
		if in.Base, err = fc.required(v, "base", field); err != nil {
			return err
		}
		in.Offset, err = fc.required(v, "offset", field)
	case *ir.Load:
		if in.Ptr, err = fc.required(v, "ptr", field); err != nil {
			return err
		}
		if in.Size, err = optionalInt(v, "size", field+".size", 4); err != nil {
			return err
		}
		in.Volatile, err = optionalBool(v, "volatile", field+".volatile")
	case *ir.Store:
		if in.Ptr, err = fc.required(v, "ptr", field); err != nil {
			return err
		}
		if in.Val, err = fc.required(v, "val", field); err != nil {
			return err
		}
		if in.Size, err = optionalInt(v, "size", field+".size", 4); err != nil {
			return err
		}
		in.Volatile, err = optionalBool(v, "volatile", field+".volatile")
	case *ir.Select:
		if in.Cond, err = fc.required(v, "cond", field); err != nil {
			return err
		}
		if in.True, err = fc.required(v, "if_true", field); err != nil {
			return err
		}
		in.False, err = fc.required(v, "if_false", field)
	case *ir.Phi:
		in.Incoming, err = fc.operandList(v, "incoming", field+".incoming")
	case *ir.Assume:
		in.Cond, err = fc.required(v, "cond", field)
	case *ir.Ret:
		if rv := v.LookupPath(cue.ParsePath("val")); rv.Exists() {
			in.Val, err = fc.operand(rv, field+".val")
		}
	}
	return err
}

func (fc *functionCompiler) required(v cue.Value, key, field string) (ir.Value, error) {
	ov := v.LookupPath(cue.ParsePath(key))
	if !ov.Exists() {
		return nil, &CompileError{Field: field + "." + key, Message: key + " is required", Pos: v.Pos()}
	}
	return fc.operand(ov, field+"."+key)
}

func (fc *functionCompiler) operandList(v cue.Value, key, field string) ([]ir.Value, error) {
	lv := v.LookupPath(cue.ParsePath(key))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []ir.Value
	for i := 0; iter.Next(); i++ {
		op, err := fc.operand(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

func (fc *functionCompiler) operand(v cue.Value, field string) (ir.Value, error) {
	if v.Kind() == cue.StringKind {
		s, _ := v.String()
		if local, ok := strings.CutPrefix(s, "%"); ok {
			val, found := fc.locals[local]
			if !found {
				return nil, &CompileError{Field: field, Message: fmt.Sprintf("undefined value %s in %s", s, fc.fn.Name), Pos: v.Pos()}
			}
			return val, nil
		}
	}
	return fc.mc.constant(v, field)
}

func (c *moduleCompiler) constant(v cue.Value, field string) (ir.Constant, error) {
	switch v.Kind() {
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return &ir.ConstInt{Value: n}, nil
	case cue.StringKind:
		s, _ := v.String()
		return c.global(s, v, field)
	case cue.StructKind:
		return c.constantStruct(v, field)
	}
	return nil, &CompileError{Field: field, Message: fmt.Sprintf("unsupported operand of kind %s", v.Kind()), Pos: v.Pos()}
}

func (c *moduleCompiler) global(ref string, v cue.Value, field string) (ir.Constant, error) {
	name, ok := strings.CutPrefix(ref, "@")
	if !ok {
		return nil, &CompileError{Field: field, Message: fmt.Sprintf("operand %q must start with %% or @", ref), Pos: v.Pos()}
	}
	if fn := c.m.Function(name); fn != nil {
		return fn, nil
	}
	if g := c.m.Global(name); g != nil {
		return g, nil
	}
	if strings.HasPrefix(name, "llvm.") {
		fn := &ir.Function{
			Name:        name,
			CC:          ir.CCC,
			Linkage:     ir.LinkageExternal,
			Attrs:       ir.NewAttributes(),
			Declaration: true,
		}
		if err := c.m.AddFunction(fn); err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
		}
		return fn, nil
	}
	return nil, &CompileError{Field: field, Message: fmt.Sprintf("undefined reference %s", ref), Pos: v.Pos()}
}

var constExprOps = map[string]ir.ConstExprOp{
	"addrspacecast": ir.OpAddrSpaceCast,
	"gep":           ir.OpGEP,
	"bitcast":       ir.OpBitCast,
}

func (c *moduleCompiler) constantStruct(v cue.Value, field string) (ir.Constant, error) {
	if av := v.LookupPath(cue.ParsePath("aggregate")); av.Exists() {
		elems, err := c.constantList(av, field+".aggregate")
		if err != nil {
			return nil, err
		}
		return &ir.ConstAggregate{Elems: elems}, nil
	}

	opName, err := requiredString(v, "op", field+".op")
	if err != nil {
		return nil, err
	}
	op, ok := constExprOps[opName]
	if !ok {
		return nil, &CompileError{Field: field + ".op", Message: fmt.Sprintf("unknown constant expression %q", opName), Pos: v.Pos()}
	}
	ce := &ir.ConstExpr{Op: op}

	if ov := v.LookupPath(cue.ParsePath("operand")); ov.Exists() {
		sub, err := c.constant(ov, field+".operand")
		if err != nil {
			return nil, err
		}
		ce.Operands = append(ce.Operands, sub)
	}
	if ov := v.LookupPath(cue.ParsePath("operands")); ov.Exists() {
		subs, err := c.constantList(ov, field+".operands")
		if err != nil {
			return nil, err
		}
		ce.Operands = append(ce.Operands, subs...)
	}
	if len(ce.Operands) == 0 {
		return nil, &CompileError{Field: field, Message: "constant expression needs an operand", Pos: v.Pos()}
	}

	if op == ir.OpAddrSpaceCast {
		if ce.From, ce.To, err = addrSpaces(v, field); err != nil {
			return nil, err
		}
	}
	return ce, nil
}

func (c *moduleCompiler) constantList(v cue.Value, field string) ([]ir.Constant, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []ir.Constant
	for i := 0; iter.Next(); i++ {
		sub, err := c.constant(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

func addrSpaces(v cue.Value, field string) (ir.AddrSpace, ir.AddrSpace, error) {
	from, err := optionalInt(v, "from", field+".from", 0)
	if err != nil {
		return 0, 0, err
	}
	to, err := optionalInt(v, "to", field+".to", 0)
	if err != nil {
		return 0, 0, err
	}
	return ir.AddrSpace(from), ir.AddrSpace(to), nil
}

func requiredString(v cue.Value, key, field string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(key))
	if !sv.Exists() {
		return "", &CompileError{Field: field, Message: key + " is required", Pos: v.Pos()}
	}
	s, err := sv.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: key + " must be a string", Pos: sv.Pos()}
	}
	return s, nil
}

func optionalString(v cue.Value, key, field, def string) (string, error) {
	if !v.LookupPath(cue.ParsePath(key)).Exists() {
		return def, nil
	}
	return requiredString(v, key, field)
}

func optionalInt(v cue.Value, key, field string, def int64) (int64, error) {
	iv := v.LookupPath(cue.ParsePath(key))
	if !iv.Exists() {
		return def, nil
	}
	n, err := iv.Int64()
	if err != nil {
		return 0, &CompileError{Field: field, Message: key + " must be an integer", Pos: iv.Pos()}
	}
	return n, nil
}

func optionalBool(v cue.Value, key, field string) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(key))
	if !bv.Exists() {
		return false, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, &CompileError{Field: field, Message: key + " must be a bool", Pos: bv.Pos()}
	}
	return b, nil
}

func stringList(v cue.Value, key, field string) ([]string, error) {
	lv := v.LookupPath(cue.ParsePath(key))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: key + " must be a list of strings", Pos: lv.Pos()}
	}
	var out []string
	for i := 0; iter.Next(); i++ {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: fmt.Sprintf("%s[%d]", field, i), Message: "must be a string", Pos: iter.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}
