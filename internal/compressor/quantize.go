package compressor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"sort"

	"github.com/ericpauley/go-quantize/quantize"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

// Dither selects how pixels are mapped onto a reduced palette.
type Dither int

const (
	DitherNone Dither = iota
	DitherFloydSteinberg
)

func (d Dither) String() string {
	if d == DitherFloydSteinberg {
		return "FLOYDSTEINBERG"
	}
	return "NONE"
}

const (
	// maxClusterPixels bounds the number of pixels fed into clustering.
	maxClusterPixels = 100000
	maxKMeansIters   = 5
	kmeansSeed       = 1
)

const (
	methodAdaptive       = "ADAPTIVE"
	methodMedianCut      = "MEDIANCUT"
	methodMedianCutAlpha = "MEDIANCUT_ALPHA"
)

var errAdaptiveUnsupported = errors.New("adaptive palette needs an opaque RGB image")

// paletteColors returns the palette size used for low quality PNG output.
func paletteColors(quality int) int {
	n := int(math.Round(16 + (float64(quality)/70.0)*(256-16)))
	return max(16, min(256, n))
}

// quantizeImage reduces img to an indexed image of at most colors entries.
// Indexed input is returned unchanged, and so is the input on any failure.
func quantizeImage(img Image, colors int, dither Dither, log logrus.FieldLogger) (out Image) {
	if img.Mode == ModeIndexed {
		return img
	}
	src := img
	if src.Mode != ModeRGB && src.Mode != ModeRGBA {
		src = convertRGBA(src)
	}

	defer func() {
		if r := recover(); r != nil {
			log.WithField("error", fmt.Sprint(r)).Debug("PNG-8 quantization failed, keeping lossless image")
			out = img
		}
	}()

	palette, method, err := buildPalette(src, colors)
	if err != nil {
		log.WithError(err).Debug("PNG-8 quantization failed, keeping lossless image")
		return img
	}

	dst := mapToPalette(src.Pixels, palette, dither)
	out = Image{Pixels: dst, Mode: ModeIndexed, Transparent: paletteHasAlpha(palette)}
	log.WithFields(logrus.Fields{
		"colors":   colors,
		"palette":  len(palette),
		"dither":   dither.String(),
		"method":   method,
		"dst_mode": out.Mode.String(),
	}).Info("PNG-8 quantization")
	return out
}

// buildPalette tries the adaptive palette first and falls back to median cut
// when the adaptive method cannot handle the image.
func buildPalette(src Image, colors int) (color.Palette, string, error) {
	p, err := adaptivePalette(src, colors)
	if err == nil {
		return p, methodAdaptive, nil
	}

	method, withAlpha := methodMedianCut, false
	if src.Mode != ModeRGB {
		method, withAlpha = methodMedianCutAlpha, true
	}
	q := quantize.MedianCutQuantizer{AddTransparent: withAlpha}
	p = q.Quantize(make(color.Palette, 0, colors), src.Pixels)
	if len(p) == 0 {
		return nil, method, fmt.Errorf("%s produced an empty palette", method)
	}
	return p, method, nil
}

func mapToPalette(px image.Image, p color.Palette, dither Dither) *image.Paletted {
	b := px.Bounds()
	dst := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), p)
	if dither == DitherFloydSteinberg {
		draw.FloydSteinberg.Draw(dst, dst.Bounds(), px, b.Min)
	} else {
		draw.Draw(dst, dst.Bounds(), px, b.Min, draw.Src)
	}
	return dst
}

// adaptivePalette clusters the image colors with k-means++ and returns the
// cluster centers as an opaque palette.
func adaptivePalette(src Image, n int) (color.Palette, error) {
	if src.Mode != ModeRGB {
		return nil, errAdaptiveUnsupported
	}
	px := toNRGBA(src.Pixels)
	if len(px.Pix) == 0 {
		return nil, errors.New("empty image")
	}

	rng := rand.New(rand.NewSource(kmeansSeed))
	clusters := newColorClusters(samplePixels(px, rng), n, rng)
	loss := clusters.Iterate()
	for i := 0; i < maxKMeansIters; i++ {
		newLoss := clusters.Iterate()
		if newLoss >= loss {
			break
		}
		loss = newLoss
	}

	palette := make(color.Palette, len(clusters.Centers))
	for i, c := range clusters.Centers {
		palette[i] = c.Color()
	}
	return palette, nil
}

func samplePixels(px *image.NRGBA, rng *rand.Rand) []colorVector {
	w, h := px.Rect.Dx(), px.Rect.Dy()
	at := func(i int) colorVector {
		x, y := i%w, i/w
		o := y*px.Stride + x*4
		return colorVector{float32(px.Pix[o]), float32(px.Pix[o+1]), float32(px.Pix[o+2])}
	}

	total := w * h
	if total <= maxClusterPixels {
		colors := make([]colorVector, total)
		for i := range colors {
			colors[i] = at(i)
		}
		return colors
	}
	colors := make([]colorVector, maxClusterPixels)
	for i := range colors {
		colors[i] = at(rng.Intn(total))
	}
	return colors
}

type colorVector [3]float32

func (c colorVector) DistSquared(o colorVector) float32 {
	var sum float32
	for i, x := range c {
		d := x - o[i]
		sum += d * d
	}
	return sum
}

func (c colorVector) Add(o colorVector) colorVector {
	return colorVector{c[0] + o[0], c[1] + o[1], c[2] + o[2]}
}

func (c colorVector) Scale(s float32) colorVector {
	return colorVector{c[0] * s, c[1] * s, c[2] * s}
}

func (c colorVector) Color() color.NRGBA {
	ch := func(v float32) uint8 {
		return uint8(math.Max(0, math.Min(255, math.Round(float64(v)))))
	}
	return color.NRGBA{R: ch(c[0]), G: ch(c[1]), B: ch(c[2]), A: 0xff}
}

type colorClusters struct {
	Centers   []colorVector
	AllColors []colorVector
}

func newColorClusters(allColors []colorVector, numCenters int, rng *rand.Rand) *colorClusters {
	// Enough centers to cover every distinct color exactly.
	unique := map[colorVector]bool{}
	for _, c := range allColors {
		unique[c] = true
		if len(unique) > numCenters {
			break
		}
	}
	if len(unique) <= numCenters {
		centers := make([]colorVector, 0, len(unique))
		for c := range unique {
			centers = append(centers, c)
		}
		sort.Slice(centers, func(i, j int) bool {
			a, b := centers[i], centers[j]
			if a[0] != b[0] {
				return a[0] < b[0]
			}
			if a[1] != b[1] {
				return a[1] < b[1]
			}
			return a[2] < b[2]
		})
		return &colorClusters{Centers: centers, AllColors: allColors}
	}

	return &colorClusters{
		Centers:   kmeansPlusPlusInit(allColors, numCenters, rng),
		AllColors: allColors,
	}
}

// Iterate performs one k-means step and returns the mean squared error
// before the centers moved.
func (c *colorClusters) Iterate() float64 {
	centerSum := make([]colorVector, len(c.Centers))
	centerCount := make([]int, len(c.Centers))
	totalError := 0.0

	for _, co := range c.AllColors {
		closestIdx, closestDist := 0, float32(0)
		for i, center := range c.Centers {
			d := co.DistSquared(center)
			if i == 0 || d < closestDist {
				closestIdx, closestDist = i, d
			}
		}
		centerSum[closestIdx] = centerSum[closestIdx].Add(co)
		centerCount[closestIdx]++
		totalError += float64(closestDist)
	}

	for i, sum := range centerSum {
		if count := centerCount[i]; count > 0 {
			c.Centers[i] = sum.Scale(1 / float32(count))
		}
	}
	return totalError / float64(len(c.AllColors))
}

func kmeansPlusPlusInit(allColors []colorVector, numCenters int, rng *rand.Rand) []colorVector {
	centers := make([]colorVector, numCenters)
	centers[0] = allColors[rng.Intn(len(allColors))]

	dists := make([]float64, len(allColors))
	sum := 0.0
	for i, c := range allColors {
		dists[i] = float64(c.DistSquared(centers[0]))
		sum += dists[i]
	}

	for i := 1; i < numCenters; i++ {
		idx := len(allColors) - 1
		sample := rng.Float64() * sum
		for j, d := range dists {
			sample -= d
			if sample < 0 {
				idx = j
				break
			}
		}
		centers[i] = allColors[idx]

		sum = 0
		for j, c := range allColors {
			if d := float64(c.DistSquared(centers[i])); d < dists[j] {
				dists[j] = d
			}
			sum += dists[j]
		}
	}
	return centers
}
