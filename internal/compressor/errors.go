package compressor

import (
	"errors"
	"fmt"
)

// Error categories. Every category except ErrCopyFailure is handled inside
// Compress by copying the source verbatim.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrSourceMissing = errors.New("source missing")
	ErrSourceCorrupt = errors.New("source corrupt")
	ErrEncodeFailure = errors.New("encode failure")
	ErrCopyFailure   = errors.New("copy failure")
)

// CompressError is a categorized failure for a single path.
type CompressError struct {
	Kind error
	Path string
	Err  error
}

func (e *CompressError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Path, e.Err)
}

// Unwrap exposes both the category and the underlying cause to errors.Is/As.
func (e *CompressError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, path string, err error) *CompressError {
	return &CompressError{Kind: kind, Path: path, Err: err}
}

// Category returns a short name for the error category, used as a log field.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCopyFailure):
		return "copy_failure"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrSourceMissing):
		return "source_missing"
	case errors.Is(err, ErrSourceCorrupt):
		return "source_corrupt"
	case errors.Is(err, ErrEncodeFailure):
		return "encode_failure"
	default:
		return "unknown"
	}
}
