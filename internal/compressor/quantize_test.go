package compressor

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestPaletteColors(t *testing.T) {
	tests := []struct {
		quality int
		want    int
	}{
		{0, 16},
		{35, 136},
		{69, 253},
		{70, 256},
		{100, 256},
	}

	for _, tt := range tests {
		if got := paletteColors(tt.quality); got != tt.want {
			t.Errorf("paletteColors(%d) = %d, want %d", tt.quality, got, tt.want)
		}
	}
}

func TestQuantizeIndexedIsIdentity(t *testing.T) {
	pal := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White})
	img := NewImage(pal)
	log, hook := test.NewNullLogger()

	out := quantizeImage(img, 16, DitherNone, log)
	if out.Pixels != img.Pixels || out.Mode != ModeIndexed {
		t.Error("indexed image should be returned unchanged")
	}
	if len(hook.AllEntries()) != 0 {
		t.Error("indexed input should not be logged as quantized")
	}
}

func TestQuantizeAdaptiveRGB(t *testing.T) {
	img := Image{Pixels: gradientImage(64, 64), Mode: ModeRGB}
	log, hook := test.NewNullLogger()

	out := quantizeImage(img, 32, DitherNone, log)
	p, ok := out.Pixels.(*image.Paletted)
	if !ok {
		t.Fatalf("quantized pixels are %T, want *image.Paletted", out.Pixels)
	}
	if len(p.Palette) > 32 {
		t.Errorf("palette has %d colors, want at most 32", len(p.Palette))
	}
	if out.Width() != 64 || out.Height() != 64 {
		t.Errorf("size = %dx%d, want 64x64", out.Width(), out.Height())
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Data["method"] != methodAdaptive {
		t.Errorf("expected the adaptive method to be logged, got %v", entry)
	}
}

func TestQuantizeRGBAFallsBackToMedianCut(t *testing.T) {
	src := gradientImage(32, 32)
	for i := 3; i < len(src.Pix); i += 8 {
		src.Pix[i] = 0
	}
	img := NewImage(src)
	log, hook := test.NewNullLogger()

	out := quantizeImage(img, 64, DitherNone, log)
	if out.Mode != ModeIndexed {
		t.Fatalf("mode = %v, want P", out.Mode)
	}
	if len(out.Pixels.(*image.Paletted).Palette) > 64 {
		t.Error("palette exceeds the requested size")
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Data["method"] != methodMedianCutAlpha {
		t.Errorf("expected the median cut alpha method to be logged, got %v", entry)
	}
}

func TestQuantizeFlatColorsIsExact(t *testing.T) {
	src := flatColorsImage(64, 16, 8)
	img := Image{Pixels: src, Mode: ModeRGB}
	log, _ := test.NewNullLogger()

	out := quantizeImage(img, 16, DitherNone, log)
	a, b := prepareCompareImages(img, out)
	stats := ComputeDiffStats(a, b)
	if stats.MeanAbsoluteError != 0 || stats.HighDiffPercent != 0 {
		t.Errorf("diff = %+v, want zero for an image with fewer colors than the palette", stats)
	}
}

func TestComputeDiffStatsIdentical(t *testing.T) {
	a := gradientImage(40, 30)
	stats := ComputeDiffStats(a, a)
	if stats != (DiffStats{}) {
		t.Errorf("self diff = %+v, want zero", stats)
	}
}

func TestComputeDiffStatsKnownDifference(t *testing.T) {
	a := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	b := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	a.SetNRGBA(0, 0, color.NRGBA{R: 100, A: 255})
	b.SetNRGBA(0, 0, color.NRGBA{R: 140, A: 255})
	a.SetNRGBA(1, 0, color.NRGBA{G: 10, A: 255})
	b.SetNRGBA(1, 0, color.NRGBA{G: 18, A: 255})

	stats := ComputeDiffStats(a, b)
	// 40 + 8 over 2 pixels x 4 channels.
	if stats.MeanAbsoluteError != 6 {
		t.Errorf("MAE = %v, want 6", stats.MeanAbsoluteError)
	}
	if stats.HighDiffPercent != 50 {
		t.Errorf("HighDiffPercent = %v, want 50", stats.HighDiffPercent)
	}
}

func TestEvaluateQuantizationDownsamples(t *testing.T) {
	src := gradientImage(600, 400)
	img := Image{Pixels: src, Mode: ModeRGB}
	log, _ := test.NewNullLogger()

	d := EvaluateQuantization(img, img, log)
	if !d.Accept || d.MAE != 0 || d.HighDiffPercent != 0 {
		t.Errorf("decision = %+v, want an exact accept", d)
	}
}

func TestEvaluateQuantizationFailureRejects(t *testing.T) {
	log, _ := test.NewNullLogger()
	d := EvaluateQuantization(Image{Mode: ModeRGB}, Image{Mode: ModeRGB}, log)
	if d != rejectedDecision {
		t.Errorf("decision = %+v, want %+v", d, rejectedDecision)
	}
}

func encodePNGForTest(t *testing.T, img Image, opts Options) (image.Image, encodeResult, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	var buf bytes.Buffer
	res, err := encodePNG(&buf, img, img, opts, log)
	if err != nil {
		t.Fatalf("encodePNG: %v", err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return decoded, res, hook
}

func TestEncodePNGRejectsLossyPalette(t *testing.T) {
	img := Image{Pixels: noiseImage(64, 64, 7), Mode: ModeRGB}
	opts := Options{Quality: 0, Preset: PresetCustom, PaletteCheck: true}

	decoded, res, hook := encodePNGForTest(t, img, opts)
	if _, ok := decoded.(*image.Paletted); ok {
		t.Error("noisy image should not be written as a palette image")
	}
	if res.Decision == nil || res.Decision.Accept {
		t.Fatalf("decision = %+v, want a rejection", res.Decision)
	}
	rejected := false
	for _, e := range hook.AllEntries() {
		if e.Message == "PNG-8 rejected, writing lossless" {
			rejected = true
		}
	}
	if !rejected {
		t.Error("rejection was not logged")
	}
}

func TestEncodePNGWithoutCheckKeepsPalette(t *testing.T) {
	img := Image{Pixels: noiseImage(64, 64, 7), Mode: ModeRGB}
	opts := Options{Quality: 0, Preset: PresetCustom, PaletteCheck: false}

	decoded, res, _ := encodePNGForTest(t, img, opts)
	p, ok := decoded.(*image.Paletted)
	if !ok {
		t.Fatalf("decoded %T, want *image.Paletted", decoded)
	}
	if len(p.Palette) > 16 {
		t.Errorf("palette has %d colors, want at most 16", len(p.Palette))
	}
	if res.Decision != nil {
		t.Error("no decision should be recorded when the check is off")
	}
}

func TestEncodePNGAcceptsFlatColors(t *testing.T) {
	img := Image{Pixels: flatColorsImage(64, 16, 8), Mode: ModeRGB}
	opts := Options{Quality: 30, Preset: PresetCustom, PaletteCheck: true}

	decoded, res, _ := encodePNGForTest(t, img, opts)
	if _, ok := decoded.(*image.Paletted); !ok {
		t.Errorf("decoded %T, want *image.Paletted", decoded)
	}
	if res.Decision == nil || !res.Decision.Accept {
		t.Errorf("decision = %+v, want acceptance", res.Decision)
	}
}

func TestEncodePNGCompressionFirstDropsAlpha(t *testing.T) {
	src := gradientImage(16, 16)
	for i := 3; i < len(src.Pix); i += 12 {
		src.Pix[i] = 0x40
	}
	img := NewImage(src)
	opts := Options{Quality: 85, Preset: PresetCompressionFirst, PaletteCheck: true}

	decoded, _, _ := encodePNGForTest(t, img, opts)
	if !decoded.(interface{ Opaque() bool }).Opaque() {
		t.Error("compression first output should be fully opaque")
	}
}

func TestEncodePNGClarityFirstIsLossless(t *testing.T) {
	src := noiseImage(32, 32, 3)
	img := Image{Pixels: src, Mode: ModeRGB}
	opts := Options{Quality: 10, Preset: PresetClarityFirst, PaletteCheck: true}

	decoded, _, _ := encodePNGForTest(t, img, opts)
	stats := ComputeDiffStats(src, toNRGBA(decoded))
	if stats.MeanAbsoluteError != 0 {
		t.Errorf("clarity first output differs from the source: %+v", stats)
	}
}
