package ir

import "fmt"

// Link resolves the def-use structure of the module: instruction parents,
// result and argument use lists, direct call sites and address-taken flags.
// It must be called after every function and global has been added, and again
// after any body is edited. Link is idempotent.
func (m *Module) Link() error {
	for _, f := range m.Functions {
		f.callSites = nil
		f.addressTaken = false
		for i, a := range f.Args {
			a.Parent = f
			a.Index = i
			a.users = nil
		}
		for _, inst := range f.Body {
			c := inst.instr()
			c.parent = f
			c.users = nil
		}
	}

	for _, f := range m.Functions {
		if f.Declaration && len(f.Body) > 0 {
			return fmt.Errorf("function %q: declaration has a body", f.Name)
		}
		for idx, inst := range f.Body {
			if err := m.linkInstruction(f, idx, inst); err != nil {
				return err
			}
		}
	}
	m.linked = true
	return nil
}

func (m *Module) linkInstruction(f *Function, idx int, inst Instruction) error {
	if call, ok := inst.(*Call); ok {
		if call.InlineAsm && call.Callee != nil {
			return fmt.Errorf("function %q: instruction %d: inline asm call has a callee", f.Name, idx)
		}
		if !call.InlineAsm && call.Callee == nil {
			return fmt.Errorf("function %q: instruction %d: call has no callee", f.Name, idx)
		}
		if callee := call.CalledFunction(); callee != nil {
			if m.Function(callee.Name) != callee {
				return fmt.Errorf("function %q: instruction %d: callee %q is not in the module", f.Name, idx, callee.Name)
			}
			callee.callSites = append(callee.callSites, call)
		}
	}

	for opIdx, op := range inst.Operands() {
		if op == nil {
			return fmt.Errorf("function %q: instruction %d: operand %d is nil", f.Name, idx, opIdx)
		}
		// The callee slot of a direct call is the only non-escaping use of a
		// function constant.
		if call, ok := inst.(*Call); ok && opIdx == 0 && call.Callee == op {
			if _, direct := op.(*Function); direct {
				continue
			}
		}
		if err := m.recordUse(f, inst, op); err != nil {
			return fmt.Errorf("function %q: instruction %d: %w", f.Name, idx, err)
		}
	}
	return nil
}

func (m *Module) recordUse(f *Function, user Instruction, op Value) error {
	switch v := op.(type) {
	case *Argument:
		if v.Parent != f {
			return fmt.Errorf("argument %s belongs to another function", v.ValueName())
		}
		v.users = append(v.users, user)
	case Instruction:
		def := v.instr()
		if def.parent != f {
			return fmt.Errorf("value %s is defined in another function", v.ValueName())
		}
		def.users = append(def.users, user)
	case Constant:
		m.markConstantUses(v)
	}
	return nil
}

// markConstantUses flags every function reachable from c as address taken.
func (m *Module) markConstantUses(c Constant) {
	if fn, ok := c.(*Function); ok {
		fn.addressTaken = true
		return
	}
	for _, sub := range SubConstants(c) {
		m.markConstantUses(sub)
	}
}

// Linked reports whether Link has run since the last structural change.
func (m *Module) Linked() bool {
	return m.linked
}

// Callers returns the distinct functions containing direct calls to f, in
// call-site order.
func (f *Function) Callers() []*Function {
	var out []*Function
	seen := map[*Function]bool{}
	for _, cs := range f.callSites {
		caller := cs.Parent()
		if !seen[caller] {
			seen[caller] = true
			out = append(out, caller)
		}
	}
	return out
}

// AllCallSitesKnown reports whether every caller of f is visible: f has
// internal linkage and is only ever used as the callee of direct calls.
func (f *Function) AllCallSitesKnown() bool {
	return f.HasLocalLinkage() && !f.addressTaken
}
