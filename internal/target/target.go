// Package target answers platform questions about a function: which hardware
// features its processor has, which code-object ABI version is active, and
// which flat work-group sizes are legal. All queries are pure.
package target

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/kernattr/internal/ir"
)

// Code-object ABI versions.
const (
	MinCodeObjectVersion     = 2
	MaxCodeObjectVersion     = 5
	DefaultCodeObjectVersion = 4
)

// Flat work-group size limits shared by every processor.
const (
	MinFlatWorkGroupSize uint32 = 1
	MaxFlatWorkGroupSize uint32 = 1024
)

// Attribute keys consulted by the provider.
const (
	AttrTargetCPU          = "target-cpu"
	AttrFlatWorkGroupSize  = "amdgpu-flat-work-group-size"
	defaultKernelGroupSize = 256
)

// Info is the capability interface consumed by the attributor.
type Info interface {
	// HasApertureRegs reports whether the function's processor exposes the
	// shared/private aperture bases in registers.
	HasApertureRegs(fn *ir.Function) bool
	// SupportsDoorbellID reports whether the processor can query the queue
	// doorbell ID without the queue pointer.
	SupportsDoorbellID(fn *ir.Function) bool
	// FlatWorkGroupSizes returns the statically known [min,max] flat
	// work-group size of the function.
	FlatWorkGroupSizes(fn *ir.Function) (uint32, uint32)
	// MaximumFlatWorkGroupRange returns the widest legal [min,max] range.
	MaximumFlatWorkGroupRange(fn *ir.Function) (uint32, uint32)
	// CodeObjectVersion returns the active ABI version.
	CodeObjectVersion() int
}

// Processor describes a GPU generation.
type Processor struct {
	Name               string `yaml:"-"`
	HasApertureRegs    bool   `yaml:"has_aperture_regs"`
	SupportsDoorbellID bool   `yaml:"supports_doorbell_id"`
	WavefrontSize      uint32 `yaml:"wavefront_size"`
}

// Provider implements Info from a processor table.
type Provider struct {
	cov        int
	defaultCPU string
	processors map[string]Processor
}

// Option configures a Provider.
type Option func(*Provider)

// WithCodeObjectVersion sets the active ABI version.
func WithCodeObjectVersion(v int) Option {
	return func(p *Provider) { p.cov = v }
}

// WithDefaultCPU selects the processor for functions without a target-cpu
// attribute.
func WithDefaultCPU(name string) Option {
	return func(p *Provider) { p.defaultCPU = name }
}

// WithProcessor adds or replaces a processor.
func WithProcessor(proc Processor) Option {
	return func(p *Provider) { p.processors[proc.Name] = proc }
}

// NewProvider creates a provider over the built-in presets, modified by opts.
func NewProvider(opts ...Option) (*Provider, error) {
	p := &Provider{
		cov:        DefaultCodeObjectVersion,
		defaultCPU: DefaultCPU,
		processors: Presets(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cov < MinCodeObjectVersion || p.cov > MaxCodeObjectVersion {
		return nil, fmt.Errorf("unsupported code object version %d (want %d-%d)",
			p.cov, MinCodeObjectVersion, MaxCodeObjectVersion)
	}
	if _, ok := p.processors[p.defaultCPU]; !ok {
		return nil, fmt.Errorf("unknown default cpu %q", p.defaultCPU)
	}
	for name, proc := range p.processors {
		if proc.WavefrontSize != 32 && proc.WavefrontSize != 64 {
			return nil, fmt.Errorf("processor %q: wavefront size must be 32 or 64, got %d", name, proc.WavefrontSize)
		}
	}
	return p, nil
}

// MustProvider is like NewProvider but panics on error.
// Use only in tests.
func MustProvider(opts ...Option) *Provider {
	p, err := NewProvider(opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultCPU returns the processor used for functions without target-cpu.
func (p *Provider) DefaultCPU() string {
	return p.defaultCPU
}

// Processors returns the known processor names in sorted order.
func (p *Provider) Processors() []string {
	names := make([]string, 0, len(p.processors))
	for name := range p.processors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Processor returns the processor selected for fn.
func (p *Provider) Processor(fn *ir.Function) Processor {
	if cpu, ok := fn.Attrs.String(AttrTargetCPU); ok {
		if proc, ok := p.processors[cpu]; ok {
			return proc
		}
	}
	return p.processors[p.defaultCPU]
}

// CheckModule reports functions naming an unknown target-cpu.
func (p *Provider) CheckModule(m *ir.Module) error {
	var bad []string
	for _, fn := range m.Functions {
		if cpu, ok := fn.Attrs.String(AttrTargetCPU); ok {
			if _, known := p.processors[cpu]; !known {
				bad = append(bad, fmt.Sprintf("%s (%s)", fn.Name, cpu))
			}
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("unknown target-cpu on: %s", strings.Join(bad, ", "))
	}
	return nil
}

func (p *Provider) CodeObjectVersion() int {
	return p.cov
}

func (p *Provider) HasApertureRegs(fn *ir.Function) bool {
	return p.Processor(fn).HasApertureRegs
}

func (p *Provider) SupportsDoorbellID(fn *ir.Function) bool {
	return p.Processor(fn).SupportsDoorbellID
}

func (p *Provider) MaximumFlatWorkGroupRange(*ir.Function) (uint32, uint32) {
	return MinFlatWorkGroupSize, MaxFlatWorkGroupSize
}

// FlatWorkGroupSizes returns the calling-convention default, overridden by a
// well-formed amdgpu-flat-work-group-size attribute within the legal range.
func (p *Provider) FlatWorkGroupSizes(fn *ir.Function) (uint32, uint32) {
	lo, hi := p.defaultFlatWorkGroupSize(fn)
	v, ok := fn.Attrs.String(AttrFlatWorkGroupSize)
	if !ok {
		return lo, hi
	}
	rlo, rhi, err := ParseFlatWorkGroupSize(v)
	if err != nil || rlo > rhi || rlo < MinFlatWorkGroupSize || rhi > MaxFlatWorkGroupSize {
		return lo, hi
	}
	return rlo, rhi
}

func (p *Provider) defaultFlatWorkGroupSize(fn *ir.Function) (uint32, uint32) {
	wave := p.Processor(fn).WavefrontSize
	switch fn.CC {
	case ir.CCVertex, ir.CCLocal, ir.CCHull, ir.CCExport, ir.CCGeometry, ir.CCPixel:
		return MinFlatWorkGroupSize, wave
	case ir.CCKernel, ir.CCSPIRKernel, ir.CCCompute:
		return MinFlatWorkGroupSize, max(wave*4, defaultKernelGroupSize)
	}
	return MinFlatWorkGroupSize, MaxFlatWorkGroupSize
}

// ParseFlatWorkGroupSize parses a "min,max" attribute value.
func ParseFlatWorkGroupSize(v string) (uint32, uint32, error) {
	loStr, hiStr, ok := strings.Cut(v, ",")
	if !ok {
		return 0, 0, fmt.Errorf("flat work-group size %q: want \"min,max\"", v)
	}
	lo, err := strconv.ParseUint(strings.TrimSpace(loStr), 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("flat work-group size %q: %w", v, err)
	}
	hi, err := strconv.ParseUint(strings.TrimSpace(hiStr), 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("flat work-group size %q: %w", v, err)
	}
	return uint32(lo), uint32(hi), nil
}

// FormatFlatWorkGroupSize renders a "min,max" attribute value.
func FormatFlatWorkGroupSize(lo, hi uint32) string {
	return fmt.Sprintf("%d,%d", lo, hi)
}

// Config returns the full description of p, presets included. Loading it
// with NewProviderFromConfig yields an equivalent provider.
func (p *Provider) Config() *Config {
	cfg := &Config{
		CodeObjectVersion: p.cov,
		DefaultCPU:        p.defaultCPU,
		Processors:        make(map[string]Processor, len(p.processors)),
	}
	for name, proc := range p.processors {
		cfg.Processors[name] = proc
	}
	return cfg
}
