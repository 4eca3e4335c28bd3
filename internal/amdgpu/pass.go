// Package amdgpu infers AMDGPU function attributes: the hidden kernel
// arguments a function provably does not need, whether its work-group size
// is uniform, and the range of its flat work-group size.
//
// Run seeds the attribute kinds over a module, iterates them to a joint
// fixpoint and writes the results back as function attributes:
//
//	report, err := amdgpu.Run(m, provider, amdgpu.WithTrace(true))
package amdgpu

import (
	"fmt"
	"log/slog"

	"github.com/roach88/kernattr/internal/analysis"
	"github.com/roach88/kernattr/internal/engine"
	"github.com/roach88/kernattr/internal/ir"
	"github.com/roach88/kernattr/internal/scan"
	"github.com/roach88/kernattr/internal/target"
)

// Attribute kinds provided by this package.
const (
	KindImplicitArgs         engine.Kind = "implicit-args"
	KindUniformWorkGroupSize engine.Kind = "uniform-work-group-size"
	KindFlatWorkGroupSize    engine.Kind = "flat-work-group-size"
)

// cache is the per-run platform information shared by the kinds.
type cache struct {
	info target.Info
	scan *scan.Scanner
}

// Register adds the AMDGPU kinds and the supporting analysis kinds to a.
func Register(a *engine.Attributor, info target.Info) {
	c := &cache{info: info, scan: scan.New(info)}
	analysis.Register(a)
	a.Register(KindImplicitArgs, c.newImplicitArgs)
	a.Register(KindUniformWorkGroupSize, c.newUniformWorkGroupSize)
	a.Register(KindFlatWorkGroupSize, c.newFlatWorkGroupSize)
}

// Seed creates the attributes the pass starts from: implicit arguments and
// uniformity for every non-intrinsic function, and the flat work-group range
// for every non-intrinsic function that is not an entry point.
func Seed(a *engine.Attributor) {
	for _, fn := range a.Module().Functions {
		if fn.IsIntrinsic() {
			continue
		}
		pos := engine.FunctionPosition(fn)
		a.GetOrCreate(KindImplicitArgs, pos)
		a.GetOrCreate(KindUniformWorkGroupSize, pos)
		if !fn.CC.IsEntry() {
			a.GetOrCreate(KindFlatWorkGroupSize, pos)
		}
	}
}

type config struct {
	engineOpts []engine.Option
	logger     *slog.Logger
}

// Option configures Run.
type Option func(*config)

// WithTrace records every update in the report.
func WithTrace(enabled bool) Option {
	return func(c *config) {
		c.engineOpts = append(c.engineOpts, engine.WithTrace(enabled))
	}
}

// WithMaxIterations sets the fixpoint round budget.
func WithMaxIterations(n int) Option {
	return func(c *config) {
		c.engineOpts = append(c.engineOpts, engine.WithMaxIterations(n))
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
		c.engineOpts = append(c.engineOpts, engine.WithLogger(l))
	}
}

// WithClock sets the logical clock stamping trace events.
func WithClock(clk *engine.Clock) Option {
	return func(c *config) {
		c.engineOpts = append(c.engineOpts, engine.WithClock(clk))
	}
}

// Run infers attributes for every function of m and manifests them. The
// module is relinked first.
//
// An internal invariant violation is returned as an *engine.InvariantError.
func Run(m *ir.Module, info target.Info, opts ...Option) (report *Report, err error) {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	if err := m.Link(); err != nil {
		return nil, fmt.Errorf("link module %s: %w", m.Name, err)
	}

	defer func() {
		if r := recover(); r != nil {
			report = nil
			err = engine.RecoverInvariant(r)
		}
	}()

	a := engine.New(m, cfg.engineOpts...)
	Register(a, info)
	Seed(a)
	res := a.Run()

	report = newReport(m, a, res)
	cfg.logger.Info("amdgpu attributor finished",
		"module", m.Name,
		"functions", len(report.Functions),
		"changed", report.Changed,
	)
	return report, nil
}
