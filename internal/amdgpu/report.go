package amdgpu

import (
	"strconv"

	"github.com/roach88/kernattr/internal/engine"
	"github.com/roach88/kernattr/internal/ir"
)

// Report is the outcome of one Run.
type Report struct {
	Module     string
	Changed    bool
	Rounds     int
	Updates    int
	Attributes int
	Exhausted  bool
	Functions  []FunctionReport
	Trace      []engine.TraceEvent
}

// FunctionReport holds the final states for one function.
type FunctionReport struct {
	Name string
	CC   ir.CallingConv
	// Absent lists the hidden arguments proven unused, in bit order.
	Absent []string
	// Uniform is "true" or "false".
	Uniform string
	// FlatWorkGroupSize is the final range, or "" for entry points.
	FlatWorkGroupSize string
	// Attrs is the function's attribute set after manifest.
	Attrs ir.Attributes
}

// Function returns the report of the named function.
func (r *Report) Function(name string) (FunctionReport, bool) {
	for _, f := range r.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return FunctionReport{}, false
}

// TraceFor returns the trace events of the named function.
func (r *Report) TraceFor(name string) []engine.TraceEvent {
	var out []engine.TraceEvent
	for _, ev := range r.Trace {
		if ev.Function == name {
			out = append(out, ev)
		}
	}
	return out
}

func newReport(m *ir.Module, a *engine.Attributor, res engine.Result) *Report {
	r := &Report{
		Module:     m.Name,
		Changed:    res.Changed,
		Rounds:     res.Rounds,
		Updates:    res.Updates,
		Attributes: res.Attributes,
		Exhausted:  res.Exhausted,
		Trace:      res.Trace,
	}
	for _, fn := range m.Functions {
		if fn.IsIntrinsic() {
			continue
		}
		fr := FunctionReport{Name: fn.Name, CC: fn.CC, Attrs: fn.Attrs.Clone()}
		pos := engine.FunctionPosition(fn)
		if aa, ok := a.Lookup(KindImplicitArgs, pos); ok {
			fr.Absent = HiddenArg(aa.(*ImplicitArgs).Known()).Names()
		}
		if aa, ok := a.Lookup(KindUniformWorkGroupSize, pos); ok {
			fr.Uniform = strconv.FormatBool(aa.(*UniformWorkGroupSize).Assumed())
		}
		if aa, ok := a.Lookup(KindFlatWorkGroupSize, pos); ok && !fn.CC.IsEntry() {
			fr.FlatWorkGroupSize = aa.(*FlatWorkGroupSize).Assumed().String()
		}
		r.Functions = append(r.Functions, fr)
	}
	return r
}

// Canonical returns the report's results as a value for canonical JSON
// encoding. The trace and run statistics are excluded, so equal inferences
// hash equal.
func (r *Report) Canonical() map[string]any {
	fns := make([]any, len(r.Functions))
	for i, f := range r.Functions {
		absent := make([]any, len(f.Absent))
		for j, n := range f.Absent {
			absent[j] = n
		}
		fns[i] = map[string]any{
			"name":                 f.Name,
			"cc":                   string(f.CC),
			"absent":               absent,
			"uniform":              f.Uniform,
			"flat_work_group_size": f.FlatWorkGroupSize,
			"attrs":                f.Attrs.Render(),
		}
	}
	return map[string]any{
		"module":    r.Module,
		"changed":   r.Changed,
		"functions": fns,
	}
}
