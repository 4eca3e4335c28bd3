package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/kernattr/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult describes a compiled module.
type CompilationResult struct {
	Module      string            `json:"module"`
	Fingerprint string            `json:"fingerprint"`
	Functions   []FunctionSummary `json:"functions"`
	Globals     int               `json:"globals"`
}

// FunctionSummary is one function of a compiled module.
type FunctionSummary struct {
	Name         string `json:"name"`
	CC           string `json:"cc"`
	Linkage      string `json:"linkage"`
	Declaration  bool   `json:"declaration"`
	Intrinsic    bool   `json:"intrinsic"`
	Instructions int    `json:"instructions"`
	Callers      int    `json:"callers"`
	Attrs        string `json:"attrs,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <module>",
		Short: "Compile a CUE program description",
		Long: `Compile a CUE program description into the analysis IR.

The module may be a single .cue file or a directory holding one CUE package.
With --output the canonical module description is written as JSON; its
fingerprint identifies the module in stored runs.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loaded, err := LoadModule(path)
	if err != nil {
		code, message := loadErrorCode(err)
		return formatter.Fail(ExitCommandError, code, message, nil)
	}
	formatter.VerboseLog("Read %d CUE file(s) from %s", loaded.FileCount, path)

	m := loaded.Module
	fingerprint, err := ir.Fingerprint(m)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "fingerprinting module", err)
	}
	result := summarize(m, fingerprint)

	if opts.Output != "" {
		if err := writeModuleToFile(m, opts.Output); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "writing output file", err)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// summarize builds the compile report of a linked module.
func summarize(m *ir.Module, fingerprint string) *CompilationResult {
	result := &CompilationResult{
		Module:      m.Name,
		Fingerprint: fingerprint,
		Functions:   make([]FunctionSummary, 0, len(m.Functions)),
		Globals:     len(m.Globals),
	}
	for _, fn := range m.Functions {
		result.Functions = append(result.Functions, FunctionSummary{
			Name:         fn.Name,
			CC:           string(fn.CC),
			Linkage:      string(fn.Linkage),
			Declaration:  fn.IsDeclaration(),
			Intrinsic:    fn.IsIntrinsic(),
			Instructions: len(fn.Body),
			Callers:      len(fn.Callers()),
			Attrs:        fn.Attrs.Render(),
		})
	}
	return result
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled module %s: %d function(s), %d global(s)\n\n",
		result.Module, len(result.Functions), result.Globals)

	fmt.Fprintln(w, "Functions:")
	for _, fn := range result.Functions {
		kind := fmt.Sprintf("%d instruction(s)", fn.Instructions)
		switch {
		case fn.Intrinsic:
			kind = "intrinsic"
		case fn.Declaration:
			kind = "declaration"
		}
		fmt.Fprintf(w, "  %s (%s, %s): %s, %d caller(s)\n", fn.Name, fn.CC, fn.Linkage, kind, fn.Callers)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Fingerprint: %s\n", result.Fingerprint)

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote canonical module to %s\n", outputFile)
	}

	return nil
}

// writeModuleToFile writes the module description to a file in canonical JSON format.
func writeModuleToFile(m *ir.Module, filename string) error {
	data, err := ir.MarshalCanonical(ir.DescribeModule(m))
	if err != nil {
		return fmt.Errorf("marshaling module: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
