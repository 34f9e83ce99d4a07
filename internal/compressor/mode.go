package compressor

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// Mode is the pixel layout of a decoded image.
type Mode int

const (
	ModeGray Mode = iota
	ModeGrayAlpha
	ModeRGB
	ModeRGBA
	ModeIndexed
)

// String returns the short mode name used in log records.
func (m Mode) String() string {
	switch m {
	case ModeGray:
		return "L"
	case ModeGrayAlpha:
		return "LA"
	case ModeRGB:
		return "RGB"
	case ModeRGBA:
		return "RGBA"
	case ModeIndexed:
		return "P"
	default:
		return "unknown"
	}
}

// Image is a decoded raster together with its pixel mode. Transforms return
// a new Image and leave the receiver untouched.
type Image struct {
	Pixels image.Image
	Mode   Mode
	// Transparent is set for indexed images whose palette has a
	// non-opaque entry.
	Transparent bool
}

// Width returns the pixel width.
func (img Image) Width() int { return img.Pixels.Bounds().Dx() }

// Height returns the pixel height.
func (img Image) Height() int { return img.Pixels.Bounds().Dy() }

// Size returns the pixel dimensions.
func (img Image) Size() image.Point { return img.Pixels.Bounds().Size() }

// RequiresAlphaHandling reports whether the image carries transparency that
// has to be resolved before encoding into an alpha-less format.
func RequiresAlphaHandling(img Image) bool {
	switch img.Mode {
	case ModeRGBA, ModeGrayAlpha:
		return true
	case ModeIndexed:
		return img.Transparent
	default:
		return false
	}
}

// NewImage classifies decoded pixels into one of the engine modes.
func NewImage(px image.Image) Image {
	switch p := px.(type) {
	case *image.Gray, *image.Gray16:
		return Image{Pixels: px, Mode: ModeGray}
	case *image.Paletted:
		return Image{Pixels: px, Mode: ModeIndexed, Transparent: paletteHasAlpha(p.Palette)}
	case *image.YCbCr, *image.CMYK:
		return Image{Pixels: px, Mode: ModeRGB}
	case *image.RGBA:
		if p.Opaque() {
			return Image{Pixels: px, Mode: ModeRGB}
		}
		return Image{Pixels: px, Mode: ModeRGBA}
	case *image.RGBA64:
		if p.Opaque() {
			return Image{Pixels: px, Mode: ModeRGB}
		}
		return Image{Pixels: px, Mode: ModeRGBA}
	default:
		switch px.ColorModel() {
		case color.GrayModel, color.Gray16Model:
			return Image{Pixels: px, Mode: ModeGray}
		}
		return Image{Pixels: px, Mode: ModeRGBA}
	}
}

func paletteHasAlpha(p color.Palette) bool {
	for _, c := range p {
		if _, _, _, a := c.RGBA(); a != 0xffff {
			return true
		}
	}
	return false
}

// toNRGBA returns the pixels as non-premultiplied RGBA, copying unless the
// image already is one.
func toNRGBA(px image.Image) *image.NRGBA {
	if n, ok := px.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(px)
}

// convertRGBA returns the image in RGBA mode.
func convertRGBA(img Image) Image {
	return Image{Pixels: toNRGBA(img.Pixels), Mode: ModeRGBA}
}

// convertRGB drops the alpha channel, keeping the stored color values.
func convertRGB(img Image) Image {
	dst := imaging.Clone(img.Pixels)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return Image{Pixels: dst, Mode: ModeRGB}
}

// alphaExtrema returns the minimum and maximum alpha value.
func alphaExtrema(px *image.NRGBA) (lo, hi uint8) {
	lo, hi = 0xff, 0x00
	w, h := px.Rect.Dx(), px.Rect.Dy()
	for y := 0; y < h; y++ {
		row := px.Pix[y*px.Stride : y*px.Stride+w*4]
		for i := 3; i < len(row); i += 4 {
			lo = min(lo, row[i])
			hi = max(hi, row[i])
		}
	}
	return lo, hi
}

// flattenOnWhite composites the image over an opaque white background using
// "over" blending and returns the RGB result.
func flattenOnWhite(img Image) Image {
	src := toNRGBA(img.Pixels)
	bg := imaging.New(src.Rect.Dx(), src.Rect.Dy(), color.White)
	out := imaging.Overlay(bg, src, image.Pt(0, 0), 1.0)
	return Image{Pixels: out, Mode: ModeRGB}
}

// convertForJPEG prepares an image for an encoder without alpha support.
func convertForJPEG(img Image) Image {
	if img.Mode == ModeRGB {
		return img
	}
	if RequiresAlphaHandling(img) {
		return flattenOnWhite(img)
	}
	return convertRGB(img)
}

// asGray materializes a gray image for encoders that keep single-channel
// output. Resized gray images come back as NRGBA.
func asGray(px image.Image) image.Image {
	switch px.(type) {
	case *image.Gray, *image.Gray16:
		return px
	}
	b := px.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), px, b.Min, draw.Src)
	return dst
}
