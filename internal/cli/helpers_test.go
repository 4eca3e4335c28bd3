package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// propagationModule is a kernel whose callee reads workitem-id-y.
const propagationModule = `module: {
	name: "propagation"
	functions: {
		callee: {
			linkage: "internal"
			body: [{op: "call", callee: "@llvm.amdgcn.workitem.id.y"}, {op: "ret"}]
		}
		kernel: {
			cc: "amdgpu_kernel"
			body: [{op: "call", callee: "@callee"}, {op: "ret"}]
		}
	}
}
`

// recursiveModule has a mutually recursive pair under a kernel.
const recursiveModule = `module: {
	name: "recursive"
	functions: {
		even: {
			linkage: "internal"
			body: [{op: "call", callee: "@odd"}, {op: "ret"}]
		}
		odd: {
			linkage: "internal"
			body: [{op: "call", callee: "@even"}, {op: "ret"}]
		}
		kernel: {
			cc: "amdgpu_kernel"
			body: [{op: "call", callee: "@even"}, {op: "ret"}]
		}
	}
}
`

// invalidModule compiles but fails validation twice: an unknown linkage and
// a non-boolean uniform-work-group-size.
const invalidModule = `module: {
	name: "invalid"
	functions: {
		kernel: {
			cc: "amdgpu_kernel"
			linkage: "weak"
			attrs: {"uniform-work-group-size": "maybe"}
			body: [{op: "ret"}]
		}
	}
}
`

// writeFile writes content to name under a fresh temp dir.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs cmd with args and returns its stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// fixedRunID always returns the same run ID.
type fixedRunID string

func (f fixedRunID) Generate() string { return string(f) }
