package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/kernattr/internal/amdgpu"
	"github.com/roach88/kernattr/internal/target"
)

// Scenario defines a conformance test scenario.
// A scenario names a program description, the target to analyse it for, and
// assertions over the inferred attributes.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Module is the path of a CUE program description.
	// Relative paths are resolved against the scenario's base path.
	Module string `yaml:"module,omitempty"`

	// Source is an inline CUE program description, used when Module is empty.
	Source string `yaml:"source,omitempty"`

	// Target overrides the built-in target settings. Same fields as a
	// target YAML file.
	Target *target.Config `yaml:"target,omitempty"`

	// TargetFile is a target YAML file applied before Target.
	// Relative paths are resolved against the scenario's base path.
	TargetFile string `yaml:"target_file,omitempty"`

	// MaxIterations overrides the fixpoint round budget.
	MaxIterations int `yaml:"max_iterations,omitempty"`

	// Assertions validate the run.
	Assertions []Assertion `yaml:"assertions"`

	// RunID is an optional fixed run ID for deterministic tests.
	// If empty, defaults to "test-run-default" for deterministic golden file comparison.
	RunID string `yaml:"run_id,omitempty"`
}

// Assertion validates the outcome of a run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "absent": Named hidden arguments are proven unused by Function
	// - "present": Named hidden arguments may be used by Function
	// - "absent_exact": Function's proven-unused set is exactly Names
	// - "uniform": Function's uniform-work-group-size is Value
	// - "flat_work_group_size": Function's inferred range is Value, e.g. "[1, 256]"
	// - "has_attr": Function carries Attr (with Value, when given)
	// - "lacks_attr": Function does not carry Attr
	// - "changed": The run's changed verdict is Value
	// - "exhausted": Whether the iteration budget ran out is Value
	// - "idempotent": A second run over the result changes nothing
	// - "replay_matches": Replaying the stored run reproduces it
	// - "trace_count": Function has exactly Count trace events
	Type string `yaml:"type"`

	// Function is the function under test.
	Function string `yaml:"function,omitempty"`

	// Names are hidden-argument names, e.g. "queue-ptr".
	Names []string `yaml:"names,omitempty"`

	// Attr is an attribute key (flag or string).
	Attr string `yaml:"attr,omitempty"`

	// Value is the expected value.
	Value string `yaml:"value,omitempty"`

	// Count is the expected number of events (used by trace_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertAbsent            = "absent"
	AssertPresent           = "present"
	AssertAbsentExact       = "absent_exact"
	AssertUniform           = "uniform"
	AssertFlatWorkGroupSize = "flat_work_group_size"
	AssertHasAttr           = "has_attr"
	AssertLacksAttr         = "lacks_attr"
	AssertChanged           = "changed"
	AssertExhausted         = "exhausted"
	AssertIdempotent        = "idempotent"
	AssertReplayMatches     = "replay_matches"
	AssertTraceCount        = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file, resolving module and
// target paths relative to the scenario file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving module and target paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve paths relative to base path BEFORE validation
	scenario.Module = resolve(basePath, scenario.Module)
	scenario.TargetFile = resolve(basePath, scenario.TargetFile)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(base, path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Module == "" && s.Source == "":
		return fmt.Errorf("one of module or source is required")
	case s.Module != "" && s.Source != "":
		return fmt.Errorf("module and source are mutually exclusive")
	}

	if s.Module != "" {
		if _, err := os.Stat(s.Module); os.IsNotExist(err) {
			return fmt.Errorf("module file not found: %s", s.Module)
		}
	}
	if s.TargetFile != "" {
		if _, err := os.Stat(s.TargetFile); os.IsNotExist(err) {
			return fmt.Errorf("target file not found: %s", s.TargetFile)
		}
	}

	if s.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must be non-negative")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	needFunction := func() error {
		if a.Function == "" {
			return fmt.Errorf("assertions[%d]: function is required for %s", index, a.Type)
		}
		return nil
	}
	needBool := func() error {
		if a.Value != "true" && a.Value != "false" {
			return fmt.Errorf("assertions[%d]: value must be \"true\" or \"false\" for %s", index, a.Type)
		}
		return nil
	}

	switch a.Type {
	case AssertAbsent, AssertPresent:
		if err := needFunction(); err != nil {
			return err
		}
		if len(a.Names) == 0 {
			return fmt.Errorf("assertions[%d]: names list is required for %s", index, a.Type)
		}
		return validateNames(index, a.Names)
	case AssertAbsentExact:
		if err := needFunction(); err != nil {
			return err
		}
		return validateNames(index, a.Names)
	case AssertUniform:
		if err := needFunction(); err != nil {
			return err
		}
		return needBool()
	case AssertFlatWorkGroupSize:
		if err := needFunction(); err != nil {
			return err
		}
		if a.Value == "" {
			return fmt.Errorf("assertions[%d]: value is required for %s", index, a.Type)
		}
	case AssertHasAttr, AssertLacksAttr:
		if err := needFunction(); err != nil {
			return err
		}
		if a.Attr == "" {
			return fmt.Errorf("assertions[%d]: attr is required for %s", index, a.Type)
		}
	case AssertChanged, AssertExhausted:
		return needBool()
	case AssertIdempotent, AssertReplayMatches:
	case AssertTraceCount:
		if err := needFunction(); err != nil {
			return err
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func validateNames(index int, names []string) error {
	for _, name := range names {
		if _, err := amdgpu.ParseHiddenArg(name); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	}
	return nil
}
