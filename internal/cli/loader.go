package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/kernattr/internal/compiler"
	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/target"
)

// LoadResult contains a compiled program description.
type LoadResult struct {
	Module    *ir.Module
	Path      string
	FileCount int // Number of CUE files read
}

// LoadError represents an error that occurred while loading a module.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadModule compiles the program description at path. A file is compiled
// on its own; a directory is loaded as one CUE package, so a module may be
// split across files.
func LoadModule(path string) (*LoadResult, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("module not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing module: %v", err)}
	}

	if !info.IsDir() {
		m, err := compiler.CompileFile(path)
		if err != nil {
			return nil, convertCompileError(err)
		}
		return &LoadResult{Module: m, Path: path, FileCount: 1}, nil
	}

	cueFiles, err := FindCUEFiles(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	mv := value.LookupPath(cue.ParsePath("module"))
	if !mv.Exists() {
		return nil, &LoadError{Code: ErrCodeCompileFailed, Message: "module is required", Pos: value.Pos()}
	}
	m, err := compiler.CompileModule(mv)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return &LoadResult{Module: m, Path: path, FileCount: len(cueFiles)}, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeCompileFailed,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// loadErrorCode returns the code of a LoadError, or the generic code.
func loadErrorCode(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Error()
	}
	return ErrCodeGeneric, err.Error()
}

// TargetFlags are the target selection flags shared by run and explain.
type TargetFlags struct {
	TargetFile string
	CPU        string
	COV        int
}

// Provider builds the target provider: built-in presets, then the target
// file, then the --cpu and --cov overrides.
func (t *TargetFlags) Provider() (*target.Provider, error) {
	var cfg *target.Config
	if t.TargetFile != "" {
		var err error
		if cfg, err = target.LoadConfig(t.TargetFile); err != nil {
			return nil, err
		}
	}
	var extra []target.Option
	if t.CPU != "" {
		extra = append(extra, target.WithDefaultCPU(t.CPU))
	}
	if t.COV != 0 {
		extra = append(extra, target.WithCodeObjectVersion(t.COV))
	}
	return target.NewProviderFromConfig(cfg, extra...)
}

// Error code constants - unified across all CLI commands.
// Module validation errors use the compiler's E1xx codes.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeScanError     = "E002" // Directory scan error
	ErrCodeNoFiles       = "E003" // No CUE files found
	ErrCodeLoadFailed    = "E004" // CUE load failed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeBuildFailed   = "E006" // CUE build failed
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeCompileFailed = "E008" // Module description does not compile
	ErrCodeTarget        = "E009" // Target description rejected
	ErrCodeStore         = "E010" // Database error
	ErrCodeAnalysis      = "E011" // Pass failed with an invariant violation
	ErrCodeInvalid       = "E012" // Module failed validation
	ErrCodeReplay        = "E013" // Replay mismatch
	ErrCodeTestFailed    = "E014" // Scenario failures
)
