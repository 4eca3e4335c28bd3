package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kernattr/internal/amdgpu"
	"github.com/roach88/kernattr/internal/engine"
)

// ExplainResult is the derivation of one function's attributes.
type ExplainResult struct {
	Function string                 `json:"function"`
	Rounds   int                    `json:"rounds"`
	Events   []TraceEventView       `json:"events"`
	Final    map[string]any         `json:"final"`
	report   *amdgpu.FunctionReport
}

// TraceEventView is the printable form of an engine trace event.
type TraceEventView struct {
	Seq      int64  `json:"seq"`
	Round    int    `json:"round"`
	Kind     string `json:"kind"`
	Position string `json:"position"`
	Before   string `json:"before"`
	After    string `json:"after"`
	Changed  bool   `json:"changed"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	var targets TargetFlags

	cmd := &cobra.Command{
		Use:   "explain <module> <function>",
		Short: "Show how a function's attributes were derived",
		Long: `Run the attributor with tracing and print every state update recorded
for one function, followed by its final attributes.

Example:
  kernattr explain ./testdata/modules/propagation.cue helper`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(rootOpts, &targets, args[0], args[1], cmd)
		},
	}

	addTargetFlags(cmd, &targets)

	return cmd
}

func runExplain(opts *RootOptions, targets *TargetFlags, path, function string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	m, provider, err := prepare(formatter, path, targets)
	if err != nil {
		return err
	}
	if m.Function(function) == nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound,
			fmt.Sprintf("function %s not found in module %s", function, m.Name), nil)
	}

	report, err := amdgpu.Run(m, provider, amdgpu.WithTrace(true), amdgpu.WithLogger(formatter.Logger()))
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeAnalysis, "attributor failed", err)
	}
	fn, ok := report.Function(function)
	if !ok {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound,
			fmt.Sprintf("function %s has no inferred attributes", function), nil)
	}

	result := ExplainResult{
		Function: function,
		Rounds:   report.Rounds,
		Events:   traceViews(report.TraceFor(function)),
		report:   &fn,
	}
	for _, f := range report.Canonical()["functions"].([]any) {
		if entry := f.(map[string]any); entry["name"] == function {
			result.Final = entry
		}
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	return outputExplain(formatter, result)
}

func traceViews(events []engine.TraceEvent) []TraceEventView {
	views := make([]TraceEventView, len(events))
	for i, ev := range events {
		views[i] = TraceEventView{
			Seq:      ev.Seq,
			Round:    ev.Round,
			Kind:     string(ev.Kind),
			Position: ev.Position,
			Before:   ev.Before,
			After:    ev.After,
			Changed:  ev.Changed,
		}
	}
	return views
}

func outputExplain(formatter *OutputFormatter, result ExplainResult) error {
	w := formatter.Writer
	fmt.Fprintf(w, "%s: %d update(s) over %d round(s)\n\n", result.Function, len(result.Events), result.Rounds)
	writeTraceEvents(formatter, result.Events)

	fn := result.report
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Final:")
	fmt.Fprintf(w, "  uniform-work-group-size: %s\n", fn.Uniform)
	if fn.FlatWorkGroupSize != "" {
		fmt.Fprintf(w, "  flat-work-group-size:    %s\n", fn.FlatWorkGroupSize)
	}
	fmt.Fprintf(w, "  absent:                  %v\n", fn.Absent)
	fmt.Fprintf(w, "  attrs: %s\n", fn.Attrs.Render())
	return nil
}

// writeTraceEvents prints events one per line, marking the ones that
// changed state.
func writeTraceEvents(formatter *OutputFormatter, events []TraceEventView) {
	for _, ev := range events {
		mark := " "
		if ev.Changed {
			mark = "*"
		}
		fmt.Fprintf(formatter.Writer, "%s [%d] round %d %s@%s: %s → %s\n",
			mark, ev.Seq, ev.Round, ev.Kind, ev.Position, ev.Before, ev.After)
	}
}
