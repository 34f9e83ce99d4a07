package compressor

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"file-compressor-go/internal/logger"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp" // register the WEBP decoder
)

// maxImagePixels is the pixel count above which an image is treated as a
// possible decompression bomb. Images over twice this count are refused.
const maxImagePixels = 89478485

// Engine is the default Compressor. It holds no mutable state, so a single
// Engine can serve any number of calls.
type Engine struct {
	settings Settings
	log      *logrus.Logger
}

var _ Compressor = (*Engine)(nil)

// NewEngine returns an Engine reading its options from settings.
func NewEngine(settings Settings, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{settings: settings, log: log}
}

// Compress re-encodes source into target. Any failure to validate, decode,
// transform or encode is logged and answered with a verbatim copy of the
// source; only a failed copy is returned as an error.
func (e *Engine) Compress(source, target string) (Result, error) {
	log := logger.WithFileOperation(e.log, source, "compress")
	opts := ReadOptions(e.settings)

	res := Result{Source: source, Target: target, Preset: opts.Preset}
	if info, err := os.Stat(source); err == nil {
		res.OriginalSize = info.Size()
	}

	out, enc, err := e.compress(source, target, opts, log)
	if err == nil {
		res.Target = out
		res.Compressed = true
		res.Format = enc.Format
		res.Quality = enc.Quality
		res.Width, res.Height = enc.Width, enc.Height
		res.Quantization = enc.Decision
		if info, err := os.Stat(out); err == nil {
			res.OutputSize = info.Size()
		}
		log.WithFields(logrus.Fields{
			"target":        out,
			"format":        res.Format,
			"quality":       res.Quality,
			"preset":        res.Preset.String(),
			"original_size": res.OriginalSize,
			"output_size":   res.OutputSize,
		}).Info("image compressed")
		return res, nil
	}

	res.Cause = err
	log.WithFields(logrus.Fields{
		"category": Category(err),
		"target":   target,
	}).WithError(err).Error("image compression failed, copying original")

	if cerr := CopyFile(source, target); cerr != nil {
		log.WithError(cerr).Error("copying original failed")
		return res, newError(ErrCopyFailure, source, errors.Join(cerr, err))
	}
	if info, err := os.Stat(target); err == nil {
		res.OutputSize = info.Size()
	}
	return res, nil
}

// compress is the single failure boundary: every error it returns is a
// *CompressError, and panics from decoders or encoders are turned into one.
func (e *Engine) compress(source, target string, opts Options, log *logrus.Entry) (out string, enc encodeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(ErrEncodeFailure, source, fmt.Errorf("panic: %v", r))
		}
	}()

	src, err := resolveSource(source)
	if err != nil {
		return "", enc, err
	}
	dir, err := resolveTargetDir(target)
	if err != nil {
		return "", enc, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", enc, newError(ErrInvalidInput, target, fmt.Errorf("create target dir: %w", err))
	}
	out = filepath.Join(dir, filepath.Base(target))

	img, err := DecodeFile(src)
	if err != nil {
		return "", enc, err
	}

	resized, ok, err := resizeIfNeeded(img, opts.MaxWidth, opts.MaxHeight)
	if err != nil {
		return "", enc, newError(ErrEncodeFailure, source, err)
	}
	if ok {
		log.WithFields(logrus.Fields{
			"from": sizeField(img),
			"to":   sizeField(resized),
			"max":  fmt.Sprintf("%dx%d", opts.MaxWidth, opts.MaxHeight),
		}).Info("image resized")
	}

	err = writeAtomic(out, func(w io.Writer) error {
		var encErr error
		enc, encErr = encodeFor(w, resized, img, filepath.Ext(target), opts, log)
		return encErr
	})
	if err != nil {
		return "", enc, newError(ErrEncodeFailure, target, err)
	}
	return out, enc, nil
}

// resolveSource returns the canonical path of an existing regular file.
func resolveSource(path string) (string, error) {
	if path == "" {
		return "", newError(ErrInvalidInput, path, errors.New("empty source path"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", newError(ErrInvalidInput, path, err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", newError(ErrSourceMissing, path, err)
		}
		return "", newError(ErrInvalidInput, path, err)
	}
	if err := checkCanonical(canon); err != nil {
		return "", newError(ErrInvalidInput, path, err)
	}
	info, err := os.Stat(canon)
	if err != nil {
		return "", newError(ErrSourceMissing, path, err)
	}
	if !info.Mode().IsRegular() {
		return "", newError(ErrInvalidInput, path, errors.New("not a regular file"))
	}
	return canon, nil
}

// resolveTargetDir returns the canonical form of the target's parent
// directory. The directory does not have to exist yet.
func resolveTargetDir(target string) (string, error) {
	if target == "" {
		return "", newError(ErrInvalidInput, target, errors.New("empty target path"))
	}
	dir, err := filepath.Abs(filepath.Dir(target))
	if err != nil {
		return "", newError(ErrInvalidInput, target, err)
	}
	if canon, err := filepath.EvalSymlinks(dir); err == nil {
		dir = canon
	}
	if err := checkCanonical(dir); err != nil {
		return "", newError(ErrInvalidInput, target, err)
	}
	return dir, nil
}

// checkCanonical rejects paths that still carry parent references or a UNC
// prefix after resolution.
func checkCanonical(path string) error {
	if strings.HasPrefix(path, `\\`) {
		return fmt.Errorf("UNC path not allowed: %s", path)
	}
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return fmt.Errorf("parent reference not allowed: %s", path)
		}
	}
	return nil
}

// DecodeFile decodes the image at path, refusing oversized images before
// their pixels are allocated.
func DecodeFile(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Image{}, newError(ErrSourceMissing, path, err)
		}
		return Image{}, newError(ErrInvalidInput, path, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Image{}, newError(ErrSourceCorrupt, path, fmt.Errorf("identify image: %w", err))
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > 2*maxImagePixels {
		return Image{}, newError(ErrSourceCorrupt, path,
			fmt.Errorf("%s image of %d pixels exceeds limit of %d (decompression bomb)", format, pixels, 2*maxImagePixels))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Image{}, newError(ErrSourceCorrupt, path, err)
	}
	grayAlpha := false
	if format == "png" {
		ct, err := pngColorType(f)
		grayAlpha = err == nil && ct == pngColorGrayAlpha
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return Image{}, newError(ErrSourceCorrupt, path, err)
		}
	}

	px, err := imaging.Decode(f)
	if err != nil {
		return Image{}, newError(ErrSourceCorrupt, path, fmt.Errorf("decode %s: %w", format, err))
	}
	img := NewImage(px)
	if grayAlpha {
		// image/png decodes gray+alpha into NRGBA.
		img.Mode = ModeGrayAlpha
	}
	return img, nil
}

const pngColorGrayAlpha = 4

// pngColorType returns the IHDR color type of a PNG stream read from its
// first byte.
func pngColorType(r io.Reader) (byte, error) {
	var hdr [26]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}
	if string(hdr[:8]) != "\x89PNG\r\n\x1a\n" || string(hdr[12:16]) != "IHDR" {
		return 0, errors.New("missing PNG header")
	}
	return hdr[25], nil
}

// writeAtomic streams write into a temporary file next to path and renames
// it into place. The temporary file never outlives a failed or panicking
// write.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create tmp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = f.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write tmp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close tmp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	committed = true
	return nil
}
