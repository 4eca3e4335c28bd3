package target

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML target description.
//
//	code_object_version: 5
//	default_cpu: gfx803
//	processors:
//	  custom:
//	    has_aperture_regs: false
//	    supports_doorbell_id: true
//	    wavefront_size: 64
type Config struct {
	CodeObjectVersion int                  `yaml:"code_object_version,omitempty"`
	DefaultCPU        string               `yaml:"default_cpu,omitempty"`
	Processors        map[string]Processor `yaml:"processors,omitempty"`
}

// LoadConfig reads and parses a target YAML file.
// Unknown fields are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read target file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a target description.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// Options converts the config into provider options. Zero fields keep the
// provider defaults.
func (c *Config) Options() []Option {
	var opts []Option
	if c.CodeObjectVersion != 0 {
		opts = append(opts, WithCodeObjectVersion(c.CodeObjectVersion))
	}
	if c.DefaultCPU != "" {
		opts = append(opts, WithDefaultCPU(c.DefaultCPU))
	}
	for name, proc := range c.Processors {
		proc.Name = name
		opts = append(opts, WithProcessor(proc))
	}
	return opts
}

// NewProviderFromConfig builds a provider from cfg followed by extra options,
// which take precedence.
func NewProviderFromConfig(cfg *Config, extra ...Option) (*Provider, error) {
	var opts []Option
	if cfg != nil {
		opts = cfg.Options()
	}
	return NewProvider(append(opts, extra...)...)
}

// Describe returns the config as a value for canonical JSON encoding. The
// encoding is also valid YAML, so ParseConfig reads it back.
func (c *Config) Describe() map[string]any {
	procs := make(map[string]any, len(c.Processors))
	for name, proc := range c.Processors {
		procs[name] = map[string]any{
			"has_aperture_regs":    proc.HasApertureRegs,
			"supports_doorbell_id": proc.SupportsDoorbellID,
			"wavefront_size":       proc.WavefrontSize,
		}
	}
	return map[string]any{
		"code_object_version": c.CodeObjectVersion,
		"default_cpu":         c.DefaultCPU,
		"processors":          procs,
	}
}
