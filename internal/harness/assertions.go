package harness

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/kernattr/internal/amdgpu"
	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Report   *amdgpu.Report // Final attributes for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Report != nil {
		fmt.Fprintf(&buf, "\nFinal attributes:\n")
		for i, fn := range e.Report.Functions {
			fmt.Fprintf(&buf, "  [%d] %s (%s) %s\n", i+1, fn.Name, fn.CC, fn.Attrs.Render())
		}
	}

	return buf.String()
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx   context.Context
	Store *store.Store
	// Harness recompiles the module for replay_matches.
	Harness *Harness
	// Module is the module after the run, used by idempotent.
	Module *ir.Module
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides store and module access for the assertions
// that rerun the pass.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertAbsent:
			err = assertAbsent(result.Report, assertion, true)
		case AssertPresent:
			err = assertAbsent(result.Report, assertion, false)
		case AssertAbsentExact:
			err = assertAbsentExact(result.Report, assertion)
		case AssertUniform:
			err = assertFunctionValue(result.Report, assertion, func(fn amdgpu.FunctionReport) string {
				return fn.Uniform
			})
		case AssertFlatWorkGroupSize:
			err = assertFunctionValue(result.Report, assertion, func(fn amdgpu.FunctionReport) string {
				return fn.FlatWorkGroupSize
			})
		case AssertHasAttr:
			err = assertAttr(result.Report, assertion, true)
		case AssertLacksAttr:
			err = assertAttr(result.Report, assertion, false)
		case AssertChanged:
			err = assertBool(result.Report, assertion, result.Report.Changed)
		case AssertExhausted:
			err = assertBool(result.Report, assertion, result.Report.Exhausted)
		case AssertTraceCount:
			err = assertTraceCount(result, assertion, actx)
		case AssertIdempotent:
			if actx == nil || actx.Module == nil || actx.Harness == nil {
				err = fmt.Errorf("assertion[%d]: idempotent requires the analysed module", i)
			} else {
				err = assertIdempotent(result.Report, actx)
			}
		case AssertReplayMatches:
			if actx == nil || actx.Store == nil || actx.Harness == nil {
				err = fmt.Errorf("assertion[%d]: replay_matches requires database context", i)
			} else {
				err = assertReplayMatches(result, actx)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func lookupFunction(report *amdgpu.Report, assertion Assertion) (amdgpu.FunctionReport, error) {
	fn, ok := report.Function(assertion.Function)
	if !ok {
		return amdgpu.FunctionReport{}, &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("function %s in report", assertion.Function),
			Actual:   "not found",
			Report:   report,
		}
	}
	return fn, nil
}

// assertAbsent checks that every named hidden argument is (or, with
// want=false, is not) proven unused.
func assertAbsent(report *amdgpu.Report, assertion Assertion, want bool) error {
	fn, err := lookupFunction(report, assertion)
	if err != nil {
		return err
	}
	for _, name := range assertion.Names {
		if slices.Contains(fn.Absent, name) != want {
			verb := "absent"
			if !want {
				verb = "present"
			}
			return &AssertionError{
				Type:     assertion.Type,
				Expected: fmt.Sprintf("%s %s on %s", name, verb, assertion.Function),
				Actual:   fmt.Sprintf("absent set %v", fn.Absent),
				Report:   report,
			}
		}
	}
	return nil
}

// assertAbsentExact compares the whole absent set in bit order.
func assertAbsentExact(report *amdgpu.Report, assertion Assertion) error {
	fn, err := lookupFunction(report, assertion)
	if err != nil {
		return err
	}
	if !slices.Equal(orderedNames(assertion.Names), fn.Absent) {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("absent set %v on %s", orderedNames(assertion.Names), assertion.Function),
			Actual:   fmt.Sprintf("absent set %v", fn.Absent),
			Report:   report,
		}
	}
	return nil
}

// orderedNames puts names into bit order. Unknown names were rejected when
// the scenario loaded.
func orderedNames(names []string) []string {
	var mask amdgpu.HiddenArg
	for _, name := range names {
		h, err := amdgpu.ParseHiddenArg(name)
		if err == nil {
			mask |= h
		}
	}
	if out := mask.Names(); out != nil {
		return out
	}
	return []string{}
}

func assertFunctionValue(report *amdgpu.Report, assertion Assertion, get func(amdgpu.FunctionReport) string) error {
	fn, err := lookupFunction(report, assertion)
	if err != nil {
		return err
	}
	if got := get(fn); got != assertion.Value {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("%s on %s", assertion.Value, assertion.Function),
			Actual:   strconv.Quote(got),
			Report:   report,
		}
	}
	return nil
}

// assertAttr checks the manifested attribute set. With a Value, has_attr
// also requires the string attribute to hold it.
func assertAttr(report *amdgpu.Report, assertion Assertion, want bool) error {
	fn, err := lookupFunction(report, assertion)
	if err != nil {
		return err
	}
	has := fn.Attrs.Has(assertion.Attr)
	if has != want {
		expected := fmt.Sprintf("%s on %s", assertion.Attr, assertion.Function)
		if !want {
			expected = "no " + expected
		}
		return &AssertionError{
			Type:     assertion.Type,
			Expected: expected,
			Actual:   fn.Attrs.Render(),
			Report:   report,
		}
	}
	if want && assertion.Value != "" {
		got, _ := fn.Attrs.String(assertion.Attr)
		if got != assertion.Value {
			return &AssertionError{
				Type:     assertion.Type,
				Expected: fmt.Sprintf("%q=%q on %s", assertion.Attr, assertion.Value, assertion.Function),
				Actual:   fmt.Sprintf("%q=%q", assertion.Attr, got),
				Report:   report,
			}
		}
	}
	return nil
}

func assertBool(report *amdgpu.Report, assertion Assertion, got bool) error {
	if strconv.FormatBool(got) != assertion.Value {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: assertion.Value,
			Actual:   strconv.FormatBool(got),
			Report:   report,
		}
	}
	return nil
}

// assertTraceCount counts the stored trace events of one function, falling
// back to the in-memory trace without a store.
func assertTraceCount(result *Result, assertion Assertion, actx *AssertionContext) error {
	var count int
	if actx != nil && actx.Store != nil {
		events, err := actx.Store.ReadTrace(actx.Ctx, result.RunID, assertion.Function)
		if err != nil {
			return fmt.Errorf("trace_count: %w", err)
		}
		count = len(events)
	} else {
		count = len(result.Report.TraceFor(assertion.Function))
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d trace events for %s", assertion.Count, assertion.Function),
			Actual:   fmt.Sprintf("%d trace events", count),
			Report:   result.Report,
		}
	}
	return nil
}

// assertIdempotent reruns the pass over the manifested module; nothing may
// change.
func assertIdempotent(report *amdgpu.Report, actx *AssertionContext) error {
	h := actx.Harness
	second, err := amdgpu.Run(actx.Module, h.provider, amdgpu.WithLogger(h.logger))
	if err != nil {
		return fmt.Errorf("idempotent: %w", err)
	}
	if second.Changed {
		var changed []string
		for _, fn := range second.Functions {
			first, ok := report.Function(fn.Name)
			if !ok || !first.Attrs.Equal(fn.Attrs) {
				changed = append(changed, fn.Name)
			}
		}
		return &AssertionError{
			Type:     AssertIdempotent,
			Expected: "second run reports no change",
			Actual:   fmt.Sprintf("changed functions %v", changed),
			Report:   second,
		}
	}
	return nil
}

// assertReplayMatches replays the stored run over a freshly compiled module.
func assertReplayMatches(result *Result, actx *AssertionContext) error {
	m, err := actx.Harness.compile()
	if err != nil {
		return fmt.Errorf("replay_matches: %w", err)
	}
	rr, err := actx.Store.Replay(actx.Ctx, result.RunID, m, amdgpu.WithLogger(actx.Harness.logger))
	if err != nil {
		return fmt.Errorf("replay_matches: %w", err)
	}
	if !rr.Match {
		diffs := make([]string, len(rr.Diffs))
		for i, d := range rr.Diffs {
			diffs[i] = d.Name
		}
		return &AssertionError{
			Type:     AssertReplayMatches,
			Expected: fmt.Sprintf("result hash %s", rr.StoredHash),
			Actual:   fmt.Sprintf("result hash %s, differing functions %v", rr.ReplayHash, diffs),
			Report:   rr.Report,
		}
	}
	return nil
}
