package compressor

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// Acceptance thresholds for a quantized PNG.
const (
	maxAcceptedMAE         = 6.0
	maxAcceptedHighDiffPct = 2.0
	highDiffLevel          = 24
	maxCompareSide         = 256
)

// DiffStats summarizes the difference between two same-sized RGBA images.
type DiffStats struct {
	MeanAbsoluteError float64
	HighDiffPercent   float64
}

// QuantizationDecision is the verdict on a quantized image and its evidence.
type QuantizationDecision struct {
	Accept          bool
	MAE             float64
	HighDiffPercent float64
}

// rejectedDecision is reported when the comparison itself fails.
var rejectedDecision = QuantizationDecision{Accept: false, MAE: 999.0, HighDiffPercent: 100.0}

// EvaluateQuantization compares a quantized image against the image it was
// produced from and decides whether the loss is acceptable.
func EvaluateQuantization(original, quantized Image, log logrus.FieldLogger) (d QuantizationDecision) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("error", fmt.Sprint(r)).Debug("PNG-8 evaluation failed, keeping lossless image")
			d = rejectedDecision
		}
	}()

	a, b := prepareCompareImages(original, quantized)
	stats := ComputeDiffStats(a, b)
	d = QuantizationDecision{
		Accept:          stats.MeanAbsoluteError <= maxAcceptedMAE && stats.HighDiffPercent <= maxAcceptedHighDiffPct,
		MAE:             stats.MeanAbsoluteError,
		HighDiffPercent: stats.HighDiffPercent,
	}
	log.WithFields(logrus.Fields{
		"reference": sizeField(original),
		"accept":    d.Accept,
		"mae":       d.MAE,
		"high_pct":  d.HighDiffPercent,
	}).Info("PNG-8 evaluation")
	return d
}

// prepareCompareImages brings both images to RGBA at a common size no larger
// than maxCompareSide on either side.
func prepareCompareImages(original, quantized Image) (*image.NRGBA, *image.NRGBA) {
	a := toNRGBA(original.Pixels)
	b := toNRGBA(quantized.Pixels)

	if a.Rect.Size() != b.Rect.Size() {
		b = imaging.Resize(b, a.Rect.Dx(), a.Rect.Dy(), imaging.NearestNeighbor)
	}

	w, h := a.Rect.Dx(), a.Rect.Dy()
	if w > maxCompareSide || h > maxCompareSide {
		ratio := min(float64(maxCompareSide)/float64(w), float64(maxCompareSide)/float64(h))
		nw := max(1, int(float64(w)*ratio))
		nh := max(1, int(float64(h)*ratio))
		a = imaging.Resize(a, nw, nh, imaging.Linear)
		b = imaging.Resize(b, nw, nh, imaging.Linear)
	}
	return a, b
}

// ComputeDiffStats compares two RGBA images pixel by pixel. Only the pixels
// both images share are counted.
func ComputeDiffStats(a, b *image.NRGBA) DiffStats {
	w := min(a.Rect.Dx(), b.Rect.Dx())
	h := min(a.Rect.Dy(), b.Rect.Dy())
	total := w * h
	if total <= 0 {
		return DiffStats{}
	}

	var sumAbs, highCount int64
	for y := 0; y < h; y++ {
		ra := a.Pix[y*a.Stride : y*a.Stride+w*4]
		rb := b.Pix[y*b.Stride : y*b.Stride+w*4]
		for i := 0; i < len(ra); i += 4 {
			high := false
			for c := 0; c < 4; c++ {
				d := absDiff(ra[i+c], rb[i+c])
				sumAbs += int64(d)
				if d > highDiffLevel {
					high = true
				}
			}
			if high {
				highCount++
			}
		}
	}

	return DiffStats{
		MeanAbsoluteError: float64(sumAbs) / float64(total*4),
		HighDiffPercent:   float64(highCount) * 100 / float64(total),
	}
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
