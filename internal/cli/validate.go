package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kernattr/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                        `json:"valid"`
	Errors   []compiler.ValidationError  `json:"errors,omitempty"`
	Warnings []compiler.RecursionWarning `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var targets TargetFlags

	cmd := &cobra.Command{
		Use:   "validate <module>",
		Short: "Validate a program description without running the pass",
		Long: `Validate a CUE program description without running the pass.

Reports every structural problem (all errors, not just the first), checks
target-cpu attributes against the target, and warns about recursion.

Exit codes:
  0 - Module is valid (warnings allowed)
  1 - Validation errors found
  2 - Command error (file not found, CUE syntax error, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, &targets, args[0], cmd)
		},
	}

	addTargetFlags(cmd, &targets)

	return cmd
}

func runValidate(opts *RootOptions, targets *TargetFlags, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	provider, err := targets.Provider()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeTarget, "loading target", err)
	}

	loaded, err := LoadModule(path)
	if err != nil {
		code, message := loadErrorCode(err)
		return formatter.Fail(ExitCommandError, code, message, nil)
	}
	m := loaded.Module
	formatter.VerboseLog("Validating module %s (%d function(s))", m.Name, len(m.Functions))

	result := ValidationResult{
		Errors:   compiler.Validate(m),
		Warnings: compiler.AnalyzeRecursion(m),
	}
	if err := provider.CheckModule(m); err != nil {
		result.Errors = append(result.Errors, compiler.ValidationError{
			Field:   "functions",
			Message: err.Error(),
			Code:    ErrCodeTarget,
		})
	}
	result.Valid = len(result.Errors) == 0

	return outputValidation(formatter, result)
}

func outputValidation(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.IsJSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    result.Errors[0].Code,
				Message: result.Errors[0].Message,
			}
		}
		if err := formatter.encode(resp); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		if result.Valid {
			fmt.Fprintln(w, "✓ Module is valid")
		} else {
			fmt.Fprintln(w, "✗ Validation failed")
			fmt.Fprintln(w)
			for _, e := range result.Errors {
				fmt.Fprintf(w, "  %s\n", e.Error())
			}
		}
		if len(result.Warnings) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Warnings:")
			for _, warn := range result.Warnings {
				fmt.Fprintf(w, "  [%s] %s\n", warn.Level, warn.Message)
			}
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}
	return nil
}
