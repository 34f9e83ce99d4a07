package compressor

import "strings"

// Preset is a named bias between output size and visual fidelity.
type Preset int

const (
	PresetCustom Preset = iota
	PresetCompressionFirst
	PresetClarityFirst
)

// String returns the configuration name of the preset.
func (p Preset) String() string {
	switch p {
	case PresetCompressionFirst:
		return "CompressionFirst"
	case PresetClarityFirst:
		return "ClarityFirst"
	default:
		return "Custom"
	}
}

// ParsePreset maps a configured preset name to a Preset. Names are matched
// case-insensitively, with '_', '-' and spaces ignored. The Chinese names
// written by earlier versions of the tool are accepted too. Anything
// unrecognized is Custom.
func ParsePreset(raw string) Preset {
	key := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(raw)))
	switch key {
	case "compressionfirst", "压缩优先":
		return PresetCompressionFirst
	case "clarityfirst", "清晰优先":
		return PresetClarityFirst
	default:
		return PresetCustom
	}
}

// jpegQuality applies the preset bounds for JPEG output.
func jpegQuality(quality int, p Preset) int {
	return presetQuality(quality, p, 75, 92)
}

// webpQuality applies the preset bounds for WEBP output.
func webpQuality(quality int, p Preset) int {
	return presetQuality(quality, p, 70, 90)
}

func presetQuality(quality int, p Preset, ceiling, floor int) int {
	switch p {
	case PresetCompressionFirst:
		return min(quality, ceiling)
	case PresetClarityFirst:
		return max(quality, floor)
	default:
		return quality
	}
}
