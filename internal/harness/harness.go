package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/kernattr/internal/amdgpu"
	"github.com/roach88/kernattr/internal/compiler"
	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/store"
	"github.com/roach88/kernattr/internal/target"
	"github.com/roach88/kernattr/internal/testutil"
)

// Harness is the test execution engine.
// It runs one scenario against a fresh in-memory store.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	provider *target.Provider
	runIDGen *testutil.FixedRunIDGenerator
	logger   *slog.Logger
}

// Option configures Run.
type Option func(*Harness)

// WithLogger sets the logger the harness reports progress on. Pass runs are
// silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// A fixed run ID keeps the stored run reproducible.
//
// Execution flow:
// 1. Compile and validate the module
// 2. Build the target provider
// 3. Run the attributor and store the run
// 4. Evaluate assertions against the report and the store
//
// A scenario that cannot be set up returns an error; failed assertions are
// reported in the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	return RunContext(context.Background(), scenario, opts...)
}

// RunContext is Run with a caller-supplied context for store access.
func RunContext(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		scenario: scenario,
		store:    st,
		runIDGen: testutil.NewFixedRunIDGenerator(runIDs(scenario)...),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.provider, err = h.buildProvider()
	if err != nil {
		return nil, err
	}

	m, err := h.compile()
	if err != nil {
		return nil, err
	}
	fingerprint, err := ir.Fingerprint(m)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	report, err := amdgpu.Run(m, h.provider, h.runOptions()...)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	runID := h.runIDGen.Generate()
	rec, err := store.NewRecord(runID, fingerprint, h.provider.Config(), report)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	if _, err := st.WriteRun(ctx, rec); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	result := NewResult()
	result.RunID = runID
	result.Fingerprint = fingerprint
	result.Report = report

	h.logger.Info("scenario run stored",
		"scenario", scenario.Name,
		"run_id", runID,
		"module", report.Module,
		"rounds", report.Rounds,
		"changed", report.Changed,
	)

	actx := &AssertionContext{
		Ctx:     ctx,
		Store:   st,
		Harness: h,
		Module:  m,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	h.logger.Info("scenario evaluated",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"errors", len(result.Errors),
	)
	return result, nil
}

func runIDs(s *Scenario) []string {
	if s.RunID == "" {
		return nil
	}
	return []string{s.RunID}
}

// compile builds a fresh, unmodified copy of the scenario's module.
func (h *Harness) compile() (*ir.Module, error) {
	s := h.scenario
	var (
		m   *ir.Module
		err error
	)
	if s.Module != "" {
		m, err = compiler.CompileFile(s.Module)
	} else {
		m, err = compiler.CompileSource([]byte(s.Source), s.Name+".cue")
	}
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	if errs := compiler.Validate(m); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("scenario %s: invalid module:\n  %s", s.Name, strings.Join(msgs, "\n  "))
	}
	if err := h.provider.CheckModule(m); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return m, nil
}

// buildProvider applies the target file, then the inline target.
func (h *Harness) buildProvider() (*target.Provider, error) {
	s := h.scenario
	var opts []target.Option
	if s.TargetFile != "" {
		cfg, err := target.LoadConfig(s.TargetFile)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		opts = append(opts, cfg.Options()...)
	}
	if s.Target != nil {
		opts = append(opts, s.Target.Options()...)
	}
	p, err := target.NewProvider(opts...)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return p, nil
}

func (h *Harness) runOptions() []amdgpu.Option {
	opts := []amdgpu.Option{
		amdgpu.WithTrace(true),
		amdgpu.WithLogger(h.logger),
	}
	if h.scenario.MaxIterations > 0 {
		opts = append(opts, amdgpu.WithMaxIterations(h.scenario.MaxIterations))
	}
	return opts
}
