package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kernattr/internal/compiler"
)

// CallGraphResult is the data printed by the callgraph command.
type CallGraphResult struct {
	Module    string                      `json:"module"`
	Functions []CallGraphNode             `json:"functions"`
	Warnings  []compiler.RecursionWarning `json:"warnings,omitempty"`
}

// CallGraphNode is one function and its direct callees.
type CallGraphNode struct {
	Name      string   `json:"name"`
	Callees   []string `json:"callees"`
	Indirect  bool     `json:"indirect,omitempty"`
	InlineAsm bool     `json:"inline_asm,omitempty"`
}

// NewCallGraphCommand creates the callgraph command.
func NewCallGraphCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "callgraph <module>",
		Short: "Print the direct call graph of a module",
		Long: `Print the static direct call graph of a CUE program description.

Functions making indirect or inline-asm calls are marked; the attributor
treats their callees as unknown unless potential values resolve them.
Recursive call chains are reported as warnings.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCallGraph(rootOpts, args[0], cmd)
		},
	}
}

func runCallGraph(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loaded, err := LoadModule(path)
	if err != nil {
		code, message := loadErrorCode(err)
		return formatter.Fail(ExitCommandError, code, message, nil)
	}
	m := loaded.Module

	g := compiler.BuildCallGraph(m)
	result := CallGraphResult{
		Module:    m.Name,
		Functions: make([]CallGraphNode, 0, len(g.Nodes)),
		Warnings:  compiler.AnalyzeRecursion(m),
	}
	for _, name := range g.Nodes {
		callees := g.Edges[name]
		if callees == nil {
			callees = []string{}
		}
		result.Functions = append(result.Functions, CallGraphNode{
			Name:      name,
			Callees:   callees,
			Indirect:  g.Indirect[name],
			InlineAsm: g.InlineAsm[name],
		})
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Call graph of %s:\n", result.Module)
	for _, node := range result.Functions {
		marks := ""
		if node.Indirect {
			marks += " [indirect]"
		}
		if node.InlineAsm {
			marks += " [asm]"
		}
		fmt.Fprintf(w, "  %s%s\n", node.Name, marks)
		for _, callee := range node.Callees {
			fmt.Fprintf(w, "    → %s\n", callee)
		}
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Warnings:")
		for _, warn := range result.Warnings {
			fmt.Fprintf(w, "  [%s] %s\n", warn.Level, warn.Message)
		}
	}
	return nil
}
