package compressor

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/ericpauley/go-quantize/quantize"
	"github.com/gen2brain/jpegli"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	"github.com/sirupsen/logrus"
)

const (
	pngLevelFast = 6
	pngLevelMax  = 9

	webpMethodBest = 6
)

// encodeResult describes what was actually written.
type encodeResult struct {
	Format   string
	Quality  int
	Width    int
	Height   int
	Decision *QuantizationDecision
}

// encodeFor writes img to w in the container selected by the target
// extension. source is the decoded image before any resize; PNG palette
// output is judged against it.
func encodeFor(w io.Writer, img, source Image, ext string, opts Options, log logrus.FieldLogger) (encodeResult, error) {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return encodeJPEG(w, img, opts)
	case ".png":
		return encodePNG(w, img, source, opts, log)
	case ".webp":
		return encodeWEBP(w, img, opts)
	default:
		return encodeGeneric(w, img, ext)
	}
}

func encodeJPEG(w io.Writer, img Image, opts Options) (encodeResult, error) {
	quality := jpegQuality(opts.Quality, opts.Preset)
	save := convertForJPEG(img)
	err := jpegli.Encode(w, save.Pixels, &jpegli.EncodingOptions{
		Quality:           quality,
		ChromaSubsampling: image.YCbCrSubsampleRatio420,
		ProgressiveLevel:  2,
		OptimizeCoding:    true,
	})
	if err != nil {
		return encodeResult{}, fmt.Errorf("jpeg encode: %w", err)
	}
	return encodeResult{Format: "jpeg", Quality: quality, Width: save.Width(), Height: save.Height()}, nil
}

func encodeWEBP(w io.Writer, img Image, opts Options) (encodeResult, error) {
	quality := webpQuality(opts.Quality, opts.Preset)
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
	if err != nil {
		return encodeResult{}, fmt.Errorf("webp options: %w", err)
	}
	options.Method = webpMethodBest

	if err := webp.Encode(w, toNRGBA(img.Pixels), options); err != nil {
		return encodeResult{}, fmt.Errorf("webp encode: %w", err)
	}
	return encodeResult{Format: "webp", Quality: quality, Width: img.Width(), Height: img.Height()}, nil
}

// encodePNG picks the compress level and color depth from the preset and
// quality. Low quality Custom output is quantized to a palette, which is
// kept only if it passes the acceptance check against source (when enabled).
func encodePNG(w io.Writer, img, source Image, opts Options, log logrus.FieldLogger) (encodeResult, error) {
	level := pngLevelFast
	save := img
	var decision *QuantizationDecision

	switch opts.Preset {
	case PresetClarityFirst:
	case PresetCompressionFirst:
		level = pngLevelMax
		save = convertForPNG24(img, log)
		log.WithFields(logrus.Fields{
			"size":     sizeField(img),
			"src_mode": img.Mode.String(),
			"dst_mode": save.Mode.String(),
		}).Info("PNG-24 compression first")
	default:
		switch {
		case opts.Quality >= 90:
		case opts.Quality >= 70:
			level = pngLevelMax
		default:
			level = pngLevelMax
			save = quantizeImage(img, paletteColors(opts.Quality), DitherNone, log)
			if opts.PaletteCheck && save.Mode == ModeIndexed && img.Mode != ModeIndexed {
				d := EvaluateQuantization(source, save, log)
				decision = &d
				if !d.Accept {
					log.WithFields(logrus.Fields{"mae": d.MAE, "high_pct": d.HighDiffPercent}).
						Info("PNG-8 rejected, writing lossless")
					save = img
				}
			}
		}
	}

	// image/png has no gray+alpha encoding, so LA is written as RGBA.
	px := save.Pixels
	if save.Mode == ModeGray {
		px = asGray(px)
	}
	if err := imaging.Encode(w, px, imaging.PNG, imaging.PNGCompressionLevel(pngCompressionLevel(level))); err != nil {
		return encodeResult{}, fmt.Errorf("png encode: %w", err)
	}
	return encodeResult{Format: "png", Quality: opts.Quality, Width: save.Width(), Height: save.Height(), Decision: decision}, nil
}

// encodeGeneric saves losslessly in the format implied by the extension.
func encodeGeneric(w io.Writer, img Image, ext string) (encodeResult, error) {
	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return encodeResult{}, fmt.Errorf("format for %q: %w", ext, err)
	}
	err = imaging.Encode(w, img.Pixels, format,
		imaging.PNGCompressionLevel(png.BestCompression),
		imaging.GIFQuantizer(quantize.MedianCutQuantizer{AddTransparent: RequiresAlphaHandling(img)}),
	)
	if err != nil {
		return encodeResult{}, fmt.Errorf("%s encode: %w", strings.ToLower(format.String()), err)
	}
	return encodeResult{Format: strings.ToLower(format.String()), Width: img.Width(), Height: img.Height()}, nil
}

// convertForPNG24 flattens any transparency so the image can be written as
// 24-bit RGB.
func convertForPNG24(img Image, log logrus.FieldLogger) Image {
	if img.Mode == ModeRGB {
		return img
	}
	fields := logrus.Fields{"size": sizeField(img), "src_mode": img.Mode.String(), "dst_mode": ModeRGB.String()}

	if RequiresAlphaHandling(img) {
		rgba := convertRGBA(img)
		lo, hi := alphaExtrema(rgba.Pixels.(*image.NRGBA))
		if lo == 0xff && hi == 0xff {
			fields["alpha"] = "opaque"
			log.WithFields(fields).Info("PNG-24 conversion")
			return convertRGB(rgba)
		}
		fields["alpha"] = "composite_white"
		log.WithFields(fields).Info("PNG-24 conversion")
		return flattenOnWhite(rgba)
	}

	log.WithFields(fields).Info("PNG-24 conversion")
	return convertRGB(img)
}

func pngCompressionLevel(level int) png.CompressionLevel {
	if level >= pngLevelMax {
		return png.BestCompression
	}
	return png.DefaultCompression
}

func sizeField(img Image) string {
	return fmt.Sprintf("%dx%d", img.Width(), img.Height())
}
