package target

// DefaultCPU is the processor assumed when none is configured.
const DefaultCPU = "gfx900"

// Presets returns the built-in processor table. GFX9 and later expose aperture
// registers and the doorbell-ID query; GFX10 and later run wave32 by default.
func Presets() map[string]Processor {
	return map[string]Processor{
		"gfx803":  {Name: "gfx803", HasApertureRegs: false, SupportsDoorbellID: false, WavefrontSize: 64},
		"gfx900":  {Name: "gfx900", HasApertureRegs: true, SupportsDoorbellID: true, WavefrontSize: 64},
		"gfx90a":  {Name: "gfx90a", HasApertureRegs: true, SupportsDoorbellID: true, WavefrontSize: 64},
		"gfx1030": {Name: "gfx1030", HasApertureRegs: true, SupportsDoorbellID: true, WavefrontSize: 32},
	}
}
