package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/kernattr/internal/amdgpu"
	"github.com/roach88/kernattr/internal/compiler"
	"github.com/roach88/kernattr/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayOutput holds the replay result.
type ReplayOutput struct {
	RunID      string               `json:"run_id"`
	Match      bool                 `json:"match"`
	StoredHash string               `json:"stored_hash"`
	ReplayHash string               `json:"replay_hash"`
	Diffs      []ReplayFunctionDiff `json:"diffs"`
}

// ReplayFunctionDiff is one function whose replayed result differs.
type ReplayFunctionDiff struct {
	Name     string `json:"name"`
	Stored   string `json:"stored"`
	Replayed string `json:"replayed"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <run-id> <module>",
		Short: "Re-run a stored run and verify determinism",
		Long: `Re-run the attributor over a module with the target of a stored run and
compare the results function by function.

The module must be the one the run analysed; its fingerprint is checked
against the stored run.

Exit codes:
  0 - Replay matches the stored run
  1 - Results differ
  2 - Command error (database not found, unknown run, fingerprint mismatch, etc.)

Examples:
  kernattr replay --db ./runs.db 01890a5d-ac96-774b-bcce-b302099a8057 ./kernel.cue
  kernattr replay --db ./runs.db --format json <run-id> ./kernel.cue`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, runID, path string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "opening database", err)
	}
	defer st.Close()

	loaded, err := LoadModule(path)
	if err != nil {
		code, message := loadErrorCode(err)
		return formatter.Fail(ExitCommandError, code, message, nil)
	}
	if errs := compiler.Validate(loaded.Module); len(errs) > 0 {
		return formatter.Fail(ExitFailure, ErrCodeInvalid, errs[0].Error(), nil)
	}

	rr, err := st.Replay(ctx, runID, loaded.Module, amdgpu.WithLogger(formatter.Logger()))
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) || errors.Is(err, store.ErrFingerprintMismatch) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, "replay", err)
		}
		return formatter.Fail(ExitCommandError, ErrCodeStore, "replay", err)
	}

	out := ReplayOutput{
		RunID:      rr.RunID,
		Match:      rr.Match,
		StoredHash: rr.StoredHash,
		ReplayHash: rr.ReplayHash,
		Diffs:      make([]ReplayFunctionDiff, len(rr.Diffs)),
	}
	for i, d := range rr.Diffs {
		out.Diffs[i] = ReplayFunctionDiff(d)
	}

	if err := outputReplay(formatter, out); err != nil {
		return err
	}
	if !out.Match {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: replay of %s differs in %d function(s)",
			ErrCodeReplay, runID, len(out.Diffs)))
	}
	return nil
}

func outputReplay(formatter *OutputFormatter, out ReplayOutput) error {
	if formatter.IsJSON() {
		resp := CLIResponse{Status: "ok", Data: out}
		if !out.Match {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeReplay, Message: "replay does not match stored run"}
		}
		return formatter.encode(resp)
	}

	w := formatter.Writer
	if out.Match {
		fmt.Fprintf(w, "✓ Replay of %s matches (result hash %s)\n", out.RunID, out.StoredHash)
		return nil
	}
	fmt.Fprintf(w, "✗ Replay of %s differs\n", out.RunID)
	fmt.Fprintf(w, "  stored:   %s\n", out.StoredHash)
	fmt.Fprintf(w, "  replayed: %s\n", out.ReplayHash)
	for _, d := range out.Diffs {
		fmt.Fprintf(w, "\n  %s\n", d.Name)
		fmt.Fprintf(w, "    - %s\n", orNone(d.Stored))
		fmt.Fprintf(w, "    + %s\n", orNone(d.Replayed))
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// openExistingStore opens a database that must already exist; store.Open
// alone would create an empty one.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database %s: %w", path, err)
	}
	return store.Open(path)
}

// commandContext returns the command's context, or Background outside
// Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
