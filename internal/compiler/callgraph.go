package compiler

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/kernattr/internal/ir"
)

// CallGraph is the static direct-call graph of a module.
type CallGraph struct {
	// Nodes are the function names in module order.
	Nodes []string
	// Edges maps a caller to its distinct direct callees, in call order.
	Edges map[string][]string
	// Indirect marks functions with at least one indirect call.
	Indirect map[string]bool
	// InlineAsm marks functions with at least one inline-asm call.
	InlineAsm map[string]bool
}

// BuildCallGraph collects the direct call edges of m.
func BuildCallGraph(m *ir.Module) *CallGraph {
	g := &CallGraph{
		Edges:     make(map[string][]string),
		Indirect:  make(map[string]bool),
		InlineAsm: make(map[string]bool),
	}
	for _, fn := range m.Functions {
		g.Nodes = append(g.Nodes, fn.Name)
		seen := make(map[string]bool)
		// Initialize with empty slice (ensures node exists in graph)
		g.Edges[fn.Name] = []string{}
		for _, inst := range fn.Body {
			call, ok := inst.(*ir.Call)
			if !ok {
				continue
			}
			switch {
			case call.InlineAsm:
				g.InlineAsm[fn.Name] = true
			case call.CalledFunction() == nil:
				g.Indirect[fn.Name] = true
			default:
				callee := call.CalledFunction().Name
				if !seen[callee] {
					seen[callee] = true
					g.Edges[fn.Name] = append(g.Edges[fn.Name], callee)
				}
			}
		}
	}
	return g
}

// RecursionWarning reports a set of functions that call each other.
//
// Recursion is legal; the attributor converges on it. It is reported
// because recursive kernels need a dynamic stack.
type RecursionWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["even", "odd", "even"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeRecursion finds recursive call chains over direct calls.
//
// The algorithm:
//  1. Build the direct call graph
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops
//
// Indirect calls are not followed. An acyclic graph returns an empty list.
func AnalyzeRecursion(m *ir.Module) []RecursionWarning {
	g := BuildCallGraph(m)
	sccs := tarjanSCC(g)

	warnings := []RecursionWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], g)) {
			warnings = append(warnings, sccToWarning(scc, g))
		}
	}
	return warnings
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, g *CallGraph) bool {
	for _, callee := range g.Edges[node] {
		if callee == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in module order, so the result is deterministic. Each
// SCC lists its members in module order.
func tarjanSCC(g *CallGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	order := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		order[n] = i
	}

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.Edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sortByOrder(scc, order)
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.Nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func sortByOrder(names []string, order map[string]int) {
	slices.SortFunc(names, func(a, b string) int {
		return cmp.Compare(order[a], order[b])
	})
}

func sccToWarning(scc []string, g *CallGraph) RecursionWarning {
	if len(scc) == 1 {
		fn := scc[0]
		return RecursionWarning{
			Path:    []string{fn, fn},
			Message: fmt.Sprintf("Self-recursive function: %s → %s", fn, fn),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, g)
	return RecursionWarning{
		Path:    path,
		Message: fmt.Sprintf("Recursive call chain: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC: start at the first
// member and follow edges to unvisited members until returning to the start.
func reconstructCyclePath(scc []string, g *CallGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	inSCC := make(map[string]bool)
	for _, node := range scc {
		inSCC[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, callee := range g.Edges[current] {
			if inSCC[callee] && (!visited[callee] || callee == start) {
				next = callee
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
