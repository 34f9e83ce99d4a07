package compressor

import (
	"fmt"

	"github.com/disintegration/imaging"
)

// fitDimensions returns the size an image of w x h is scaled to so that it
// fits inside maxW x maxH, preserving the aspect ratio. ok is false when the
// image already fits.
func fitDimensions(w, h, maxW, maxH int) (newW, newH int, ok bool) {
	if w <= maxW && h <= maxH {
		return w, h, false
	}
	ratio := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	return int(float64(w) * ratio), int(float64(h) * ratio), true
}

// resizeIfNeeded downscales img with Lanczos resampling when it exceeds the
// maximum dimensions. An image that already fits is returned as is and
// resized is false.
func resizeIfNeeded(img Image, maxW, maxH int) (out Image, resized bool, err error) {
	newW, newH, ok := fitDimensions(img.Width(), img.Height(), maxW, maxH)
	if !ok {
		return img, false, nil
	}
	if newW <= 0 || newH <= 0 {
		return img, false, fmt.Errorf("resize %dx%d to fit %dx%d: empty result", img.Width(), img.Height(), maxW, maxH)
	}

	out = Image{Pixels: imaging.Resize(img.Pixels, newW, newH, imaging.Lanczos), Mode: img.Mode}
	if img.Mode == ModeIndexed {
		out.Mode = ModeRGB
		if img.Transparent {
			out.Mode = ModeRGBA
		}
	}
	return out, true, nil
}
