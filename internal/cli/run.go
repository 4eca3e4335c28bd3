package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/kernattr/internal/amdgpu"
	"github.com/roach88/kernattr/internal/compiler"
	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/store"
	"github.com/roach88/kernattr/internal/target"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Targets       TargetFlags
	Database      string
	Output        string
	MaxIterations int

	// RunIDGenerator allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator store.RunIDGenerator
}

// RunSummary is the data printed by the run command.
type RunSummary struct {
	RunID       string                  `json:"run_id,omitempty"`
	Module      string                  `json:"module"`
	Fingerprint string                  `json:"fingerprint"`
	Changed     bool                    `json:"changed"`
	Rounds      int                     `json:"rounds"`
	Updates     int                     `json:"updates"`
	Exhausted   bool                    `json:"exhausted"`
	Functions   []amdgpu.FunctionReport `json:"-"`
	Result      map[string]any          `json:"result"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <module>",
		Short: "Run attribute inference over a module",
		Long: `Run the AMDGPU attributor over a CUE program description.

The pass infers, per function, which hidden kernel arguments are provably
unused, whether the work-group size is uniform, and the flat work-group size
range, then writes them back as function attributes.

With --db the run, its per-function results and its trace are stored and can
later be inspected with "trace" or checked with "replay".

Example:
  kernattr run ./testdata/modules/propagation.cue
  kernattr run --cpu gfx803 --cov 4 --db ./runs.db ./kernel.cue
  kernattr run --target ./targets/mi200.yaml -o report.json ./kernel.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(opts, args[0], cmd)
		},
	}

	addTargetFlags(cmd, &opts.Targets)
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database for storing the run")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the canonical report to this file")
	cmd.Flags().IntVar(&opts.MaxIterations, "max-iterations", 0, "fixpoint round budget (0 uses the default)")

	return cmd
}

// addTargetFlags registers the target selection flags.
func addTargetFlags(cmd *cobra.Command, t *TargetFlags) {
	cmd.Flags().StringVar(&t.TargetFile, "target", "", "target description YAML")
	cmd.Flags().StringVar(&t.CPU, "cpu", "", "default processor (e.g. gfx900)")
	cmd.Flags().IntVar(&t.COV, "cov", 0, "code object version (2-5)")
}

func runPass(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := formatter.Logger()

	m, provider, err := prepare(formatter, path, &opts.Targets)
	if err != nil {
		return err
	}

	fingerprint, err := ir.Fingerprint(m)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "fingerprinting module", err)
	}

	runOpts := []amdgpu.Option{
		amdgpu.WithLogger(logger),
		amdgpu.WithTrace(opts.Database != ""),
	}
	if opts.MaxIterations > 0 {
		runOpts = append(runOpts, amdgpu.WithMaxIterations(opts.MaxIterations))
	}
	logger.Info("running attributor", "module", m.Name, "cpu", provider.DefaultCPU(),
		"cov", provider.CodeObjectVersion())
	report, err := amdgpu.Run(m, provider, runOpts...)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeAnalysis, "attributor failed", err)
	}

	summary := &RunSummary{
		Module:      report.Module,
		Fingerprint: fingerprint,
		Changed:     report.Changed,
		Rounds:      report.Rounds,
		Updates:     report.Updates,
		Exhausted:   report.Exhausted,
		Functions:   report.Functions,
		Result:      report.Canonical(),
	}

	if opts.Database != "" {
		runID, err := storeRun(cmd.Context(), opts, fingerprint, provider, report)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "storing run", err)
		}
		summary.RunID = runID
		logger.Info("run stored", "db", opts.Database, "run_id", runID)
	}

	if opts.Output != "" {
		data, err := ir.MarshalCanonical(summary.Result)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "marshaling report", err)
		}
		if err := os.WriteFile(opts.Output, data, 0644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "writing output file", err)
		}
	}

	return outputRunSummary(formatter, summary, opts.Output)
}

// prepare loads, validates and target-checks a module. Failures are reported
// through the formatter.
func prepare(formatter *OutputFormatter, path string, targets *TargetFlags) (*ir.Module, *target.Provider, error) {
	provider, err := targets.Provider()
	if err != nil {
		return nil, nil, formatter.Fail(ExitCommandError, ErrCodeTarget, "loading target", err)
	}

	loaded, err := LoadModule(path)
	if err != nil {
		code, message := loadErrorCode(err)
		return nil, nil, formatter.Fail(ExitCommandError, code, message, nil)
	}
	m := loaded.Module

	if errs := compiler.Validate(m); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, nil, formatter.Fail(ExitFailure, ErrCodeInvalid,
			fmt.Sprintf("module is invalid:\n  %s", strings.Join(msgs, "\n  ")), nil)
	}
	if err := provider.CheckModule(m); err != nil {
		return nil, nil, formatter.Fail(ExitCommandError, ErrCodeTarget, "checking module against target", err)
	}
	return m, provider, nil
}

func storeRun(ctx context.Context, opts *RunOptions, fingerprint string, provider *target.Provider, report *amdgpu.Report) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return "", err
	}
	defer st.Close()

	gen := opts.RunIDGenerator
	if gen == nil {
		gen = store.UUIDv7Generator{}
	}
	runID := gen.Generate()

	rec, err := store.NewRecord(runID, fingerprint, provider.Config(), report)
	if err != nil {
		return "", err
	}
	if _, err := st.WriteRun(ctx, rec); err != nil {
		return "", err
	}
	return runID, nil
}

func outputRunSummary(formatter *OutputFormatter, summary *RunSummary, outputFile string) error {
	if formatter.IsJSON() {
		return formatter.Success(summary)
	}

	w := formatter.Writer
	verdict := "unchanged"
	if summary.Changed {
		verdict = "changed"
	}
	fmt.Fprintf(w, "Module %s %s after %d round(s), %d update(s)\n",
		summary.Module, verdict, summary.Rounds, summary.Updates)
	if summary.Exhausted {
		fmt.Fprintln(w, "⚠ Iteration budget exhausted; unresolved attributes were made pessimistic")
	}
	fmt.Fprintln(w)

	for _, fn := range summary.Functions {
		fmt.Fprintf(w, "%s (%s)\n", fn.Name, fn.CC)
		fmt.Fprintf(w, "  uniform-work-group-size: %s\n", fn.Uniform)
		if fn.FlatWorkGroupSize != "" {
			fmt.Fprintf(w, "  flat-work-group-size:    %s\n", fn.FlatWorkGroupSize)
		}
		if len(fn.Absent) > 0 {
			fmt.Fprintf(w, "  absent:                  %s\n", strings.Join(fn.Absent, ", "))
		}
		if attrs := fn.Attrs.Render(); attrs != "" {
			fmt.Fprintf(w, "  attrs: %s\n", attrs)
		}
	}

	if summary.RunID != "" {
		fmt.Fprintf(w, "\nRun ID: %s\n", summary.RunID)
	}
	if outputFile != "" {
		fmt.Fprintf(w, "Wrote report to %s\n", outputFile)
	}
	return nil
}
