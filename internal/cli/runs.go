package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/kernattr/internal/queryir"
	"github.com/roach88/kernattr/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database    string
	Module      string
	Fingerprint string
	Changed     string // "", "true" or "false"
	Function    string
	CC          string
}

// RunsResult lists stored runs, or their function results when a function
// filter was given.
type RunsResult struct {
	Runs      []RunView            `json:"runs,omitempty"`
	Functions []FunctionResultView `json:"functions,omitempty"`
}

// RunView is the listed summary of one stored run.
type RunView struct {
	ID          string `json:"id"`
	Module      string `json:"module"`
	Fingerprint string `json:"fingerprint"`
	ResultHash  string `json:"result_hash"`
	Changed     bool   `json:"changed"`
	Rounds      int    `json:"rounds"`
	Updates     int    `json:"updates"`
	Exhausted   bool   `json:"exhausted"`
}

// FunctionResultView is one stored function result.
type FunctionResultView struct {
	RunID  string         `json:"run_id"`
	Name   string         `json:"name"`
	CC     string         `json:"cc"`
	Result map[string]any `json:"result"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Long: `List the runs stored in a database, oldest first.

Run filters narrow the list by module name, fingerprint, or whether the
run changed the module. With --function or --cc, the stored results of
the matching functions are listed instead, grouped by run.

Examples:
  kernattr runs --db ./runs.db
  kernattr runs --db ./runs.db --module propagation --changed true
  kernattr runs --db ./runs.db --function kernel
  kernattr runs --db ./runs.db --cc amdgpu_kernel --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Module, "module", "", "only runs of this module name")
	cmd.Flags().StringVar(&opts.Fingerprint, "fingerprint", "", "only runs of this module fingerprint")
	cmd.Flags().StringVar(&opts.Changed, "changed", "", "only runs that did (true) or did not (false) change the module")
	cmd.Flags().StringVar(&opts.Function, "function", "", "list results of this function")
	cmd.Flags().StringVar(&opts.CC, "cc", "", "list results of functions with this calling convention")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	runFilter, err := opts.runFilter()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid filter", err)
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "opening database", err)
	}
	defer st.Close()

	var result RunsResult
	if fnFilter := opts.functionFilter(); fnFilter != nil {
		results, err := st.FindFunctionResults(ctx, runFilter, fnFilter)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "querying function results", err)
		}
		result.Functions = functionResultViews(results)
	} else {
		runs, err := st.FindRuns(ctx, runFilter)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "querying runs", err)
		}
		result.Runs = runViews(runs)
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	if opts.functionFilter() != nil {
		return outputFunctionResultsText(formatter, result.Functions)
	}
	return outputRunsText(formatter, result.Runs)
}

// runFilter combines the run flags; nil when none is set.
func (o *RunsOptions) runFilter() (queryir.Predicate, error) {
	var preds []queryir.Predicate
	if o.Module != "" {
		preds = append(preds, queryir.Equals{Field: "module", Value: o.Module})
	}
	if o.Fingerprint != "" {
		preds = append(preds, queryir.Equals{Field: "fingerprint", Value: o.Fingerprint})
	}
	if o.Changed != "" {
		changed, err := strconv.ParseBool(o.Changed)
		if err != nil {
			return nil, fmt.Errorf("--changed must be true or false, got %q", o.Changed)
		}
		preds = append(preds, queryir.Equals{Field: "changed", Value: changed})
	}
	return conjunction(preds), nil
}

func (o *RunsOptions) functionFilter() queryir.Predicate {
	var preds []queryir.Predicate
	if o.Function != "" {
		preds = append(preds, queryir.Equals{Field: "name", Value: o.Function})
	}
	if o.CC != "" {
		preds = append(preds, queryir.Equals{Field: "cc", Value: o.CC})
	}
	return conjunction(preds)
}

func conjunction(preds []queryir.Predicate) queryir.Predicate {
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	default:
		return queryir.And{Predicates: preds}
	}
}

func runViews(runs []store.Run) []RunView {
	views := make([]RunView, len(runs))
	for i, r := range runs {
		views[i] = RunView{
			ID:          r.ID,
			Module:      r.Module,
			Fingerprint: r.Fingerprint,
			ResultHash:  r.ResultHash,
			Changed:     r.Changed,
			Rounds:      r.Rounds,
			Updates:     r.Updates,
			Exhausted:   r.Exhausted,
		}
	}
	return views
}

func functionResultViews(results []store.FunctionResult) []FunctionResultView {
	views := make([]FunctionResultView, len(results))
	for i, fr := range results {
		views[i] = FunctionResultView{
			RunID:  fr.RunID,
			Name:   fr.Name,
			CC:     fr.CC,
			Result: fr.Result,
		}
	}
	return views
}

func outputRunsText(formatter *OutputFormatter, runs []RunView) error {
	w := formatter.Writer

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found")
		return nil
	}
	fmt.Fprintf(w, "Runs (%d):\n", len(runs))
	for _, r := range runs {
		state := "unchanged"
		if r.Changed {
			state = "changed"
		}
		fmt.Fprintf(w, "  %s  %s  %s, %d round(s), %d update(s)", r.ID, r.Module, state, r.Rounds, r.Updates)
		if r.Exhausted {
			fmt.Fprint(w, ", exhausted")
		}
		fmt.Fprintln(w)
		if formatter.Verbose {
			fmt.Fprintf(w, "    fingerprint: %s\n", r.Fingerprint)
			fmt.Fprintf(w, "    result hash: %s\n", r.ResultHash)
		}
	}
	return nil
}

func outputFunctionResultsText(formatter *OutputFormatter, results []FunctionResultView) error {
	w := formatter.Writer

	if len(results) == 0 {
		fmt.Fprintln(w, "No function results found")
		return nil
	}
	fmt.Fprintf(w, "Function results (%d):\n", len(results))
	for _, fr := range results {
		fmt.Fprintf(w, "  %s  %s (%s)\n", fr.RunID, fr.Name, fr.CC)
		fmt.Fprintf(w, "    uniform-work-group-size: %v\n", fr.Result["uniform"])
		fmt.Fprintf(w, "    flat-work-group-size:    %v\n", fr.Result["flat_work_group_size"])
		fmt.Fprintf(w, "    absent:                  %s\n", orNone(absentNames(fr.Result["absent"])))
	}
	return nil
}

// absentNames renders a decoded absent list.
func absentNames(v any) string {
	items, _ := v.([]any)
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = fmt.Sprint(item)
	}
	return strings.Join(names, ", ")
}
