package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// ScenarioNotFoundError is returned when a requested scenario path doesn't exist.
type ScenarioNotFoundError struct {
	Path         string
	ResolvedPath string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario path %q does not exist (resolved to: %s)", e.Path, e.ResolvedPath)
}

// DiscoverScenarios expands a scenario path. A file is returned as is; a
// directory yields its *.yaml and *.yml files in lexical order, without
// descending into subdirectories.
func DiscoverScenarios(path string) ([]string, error) {
	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve scenario path: %w", err)
	}
	info, err := os.Stat(resolved)
	if os.IsNotExist(err) {
		return nil, &ScenarioNotFoundError{Path: path, ResolvedPath: resolved}
	}
	if err != nil {
		return nil, fmt.Errorf("stat scenario path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario directory: %w", err)
	}
	paths := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(path, e.Name()))
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// SuiteResult summarises a batch of scenario runs.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents one scenario that failed to load, run or pass.
type ScenarioFailure struct {
	ScenarioPath string `json:"scenario_path"`
	Name         string `json:"name,omitempty"`
	Error        string `json:"error"`
}

// RunSuite loads and runs every scenario under paths.
//
// For each path:
// 1. Discover scenario files
// 2. Load scenarios
// 3. Run scenarios via harness.Run
// 4. Collect and report results
//
// A path that does not exist is an error; a scenario that fails in any way
// is counted and reported.
func RunSuite(ctx context.Context, paths []string, opts ...Option) (*SuiteResult, error) {
	result := &SuiteResult{}

	var files []string
	for _, p := range paths {
		found, err := DiscoverScenarios(p)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}

	for _, scenarioPath := range files {
		result.TotalScenarios++

		scenario, err := LoadScenario(scenarioPath)
		if err != nil {
			result.fail(scenarioPath, "", fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		runResult, err := RunContext(ctx, scenario, opts...)
		if err != nil {
			result.fail(scenarioPath, scenario.Name, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}

		if !runResult.Pass {
			result.fail(scenarioPath, scenario.Name, fmt.Sprintf("scenario assertions failed: %v", runResult.Errors))
			continue
		}

		result.Passed++
	}

	return result, nil
}

func (r *SuiteResult) fail(path, name, msg string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{ScenarioPath: path, Name: name, Error: msg})
}
