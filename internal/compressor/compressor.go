package compressor

import (
	"github.com/spf13/cast"
)

// Setting keys read from the configuration provider.
const (
	KeyPhotoQuality    = "photo_quality"
	KeyMaxPhotoWidth   = "max_photo_width"
	KeyMaxPhotoHeight  = "max_photo_height"
	KeyImagePreset     = "image_preset"
	KeyPNGPaletteCheck = "png_palette_check"
)

// Defaults used when the provider has no value for a key.
const (
	DefaultPhotoQuality   = 85
	DefaultMaxPhotoWidth  = 2000
	DefaultMaxPhotoHeight = 2000
)

// Settings is the key-value accessor the engine reads its options from.
// Implementations must not be mutated by the engine.
type Settings interface {
	Get(key string, def any) any
}

// Compressor re-encodes a single image file.
type Compressor interface {
	// Compress writes a re-encoded copy of source to target. When the image
	// cannot be re-encoded the source is copied verbatim and the result
	// reports Compressed=false. An error is returned only when that copy fails.
	Compress(source, target string) (Result, error)
}

// Result describes the outcome of compressing a single file.
type Result struct {
	Source       string
	Target       string
	Compressed   bool
	Format       string
	Preset       Preset
	Quality      int
	Width        int
	Height       int
	OriginalSize int64
	OutputSize   int64
	Quantization *QuantizationDecision
	Cause        error
}

// PercentageSaved returns how much smaller the output is than the source.
func (r Result) PercentageSaved() float64 {
	if r.OriginalSize <= 0 || r.OutputSize <= 0 {
		return 0
	}
	return float64(r.OriginalSize-r.OutputSize) * 100 / float64(r.OriginalSize)
}

// Options is the per-call snapshot of the compression settings.
type Options struct {
	Quality      int
	MaxWidth     int
	MaxHeight    int
	Preset       Preset
	PaletteCheck bool
}

// ReadOptions snapshots the engine options from settings, applying clamps
// and the silent preset fallback.
func ReadOptions(s Settings) Options {
	return Options{
		Quality:      clampInt(s.Get(KeyPhotoQuality, DefaultPhotoQuality), 0, 100),
		MaxWidth:     toIntDefault(s.Get(KeyMaxPhotoWidth, DefaultMaxPhotoWidth), DefaultMaxPhotoWidth),
		MaxHeight:    toIntDefault(s.Get(KeyMaxPhotoHeight, DefaultMaxPhotoHeight), DefaultMaxPhotoHeight),
		Preset:       ParsePreset(cast.ToString(s.Get(KeyImagePreset, PresetCustom.String()))),
		PaletteCheck: cast.ToBool(s.Get(KeyPNGPaletteCheck, true)),
	}
}

// clampInt coerces v to an int within [lo, hi]. Values that cannot be
// coerced become lo.
func clampInt(v any, lo, hi int) int {
	n, err := cast.ToIntE(v)
	if err != nil {
		n = lo
	}
	return max(lo, min(hi, n))
}

func toIntDefault(v any, def int) int {
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}
