package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kernattr/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Function string // optional - filter to one function
}

// TraceResult holds the trace output.
type TraceResult struct {
	RunID    string           `json:"run_id"`
	Module   string           `json:"module"`
	Target   string           `json:"target"`
	Events   []TraceEventView `json:"events"`
	Stats    TraceStats       `json:"stats"`
	Function string           `json:"function,omitempty"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int  `json:"total_events"`
	Changes     int  `json:"changes"`
	Rounds      int  `json:"rounds"`
	Changed     bool `json:"changed"`
	Exhausted   bool `json:"exhausted"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <run-id>",
		Short: "Show the stored trace of a run",
		Long: `Show the state updates recorded for a stored run, in logical order.

Each event names the attribute kind and position that was updated, the
state before and after, and whether it changed. Changed events are marked
with "*".

Examples:
  kernattr trace --db ./runs.db <run-id>
  kernattr trace --db ./runs.db --function helper <run-id>
  kernattr trace --db ./runs.db --format json <run-id>`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Function, "function", "", "only show updates of this function")

	return cmd
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "opening database", err)
	}
	defer st.Close()

	run, err := st.ReadRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run %s not found", runID), nil)
		}
		return formatter.Fail(ExitCommandError, ErrCodeStore, "reading run", err)
	}

	events, err := st.ReadTrace(ctx, runID, opts.Function)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "reading trace", err)
	}

	result := TraceResult{
		RunID:    run.ID,
		Module:   run.Module,
		Target:   run.Target,
		Events:   traceViews(events),
		Function: opts.Function,
		Stats: TraceStats{
			TotalEvents: len(events),
			Rounds:      run.Rounds,
			Changed:     run.Changed,
			Exhausted:   run.Exhausted,
		},
	}
	for _, ev := range events {
		if ev.Changed {
			result.Stats.Changes++
		}
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	return outputTraceText(formatter, result)
}

func outputTraceText(formatter *OutputFormatter, result TraceResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "=== Trace for run %s ===\n", result.RunID)
	fmt.Fprintf(w, "Module: %s\n", result.Module)
	fmt.Fprintf(w, "Target: %s\n", result.Target)
	if result.Function != "" {
		fmt.Fprintf(w, "Function: %s\n", result.Function)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Events ===")
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	writeTraceEvents(formatter, result.Events)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Changes:      %d\n", result.Stats.Changes)
	fmt.Fprintf(w, "  Rounds:       %d\n", result.Stats.Rounds)
	fmt.Fprintf(w, "  Changed:      %t\n", result.Stats.Changed)
	if result.Stats.Exhausted {
		fmt.Fprintln(w, "  ⚠ Iteration budget exhausted")
	}
	return nil
}
