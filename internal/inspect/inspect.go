package inspect

import (
	"fmt"
	"image"
	"os"
	"time"

	"file-compressor-go/internal/compressor"
	"file-compressor-go/internal/logger"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// Report describes an image file as the compressor sees it.
type Report struct {
	Path        string
	Format      string
	Width       int
	Height      int
	Mode        compressor.Mode
	Transparent bool
	Size        int64
	ModTime     time.Time
	EXIF        *EXIFInfo
}

// EXIFInfo holds the EXIF fields shown by inspect. Missing fields are empty.
type EXIFInfo struct {
	DateTime   *time.Time
	DateSource DateSource
	Make       string
	Model      string
	Software   string
}

// DateSource represents the EXIF tag the date was read from.
type DateSource int

const (
	DateSourceUnknown DateSource = iota
	DateSourceEXIFDateTime
	DateSourceEXIFDateTimeOriginal
	DateSourceEXIFDateTimeDigitized
)

// String returns a human-readable description of the date source.
func (ds DateSource) String() string {
	switch ds {
	case DateSourceEXIFDateTime:
		return "EXIF DateTime"
	case DateSourceEXIFDateTimeOriginal:
		return "EXIF DateTimeOriginal"
	case DateSourceEXIFDateTimeDigitized:
		return "EXIF DateTimeDigitized"
	default:
		return "Unknown"
	}
}

// Inspector reads image properties and EXIF metadata.
type Inspector struct {
	logger *logrus.Logger
}

// NewInspector returns a new Inspector.
func NewInspector(logger *logrus.Logger) *Inspector {
	return &Inspector{logger: logger}
}

// Inspect returns the report for the image at path. A file without EXIF
// data is not an error; the report's EXIF field is nil then.
func (i *Inspector) Inspect(path string) (Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Report{}, fmt.Errorf("failed to stat file: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("failed to open file: %w", err)
	}
	cfg, format, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		return Report{}, fmt.Errorf("failed to identify image: %w", err)
	}

	img, err := compressor.DecodeFile(path)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Path:        path,
		Format:      format,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Mode:        img.Mode,
		Transparent: compressor.RequiresAlphaHandling(img),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
	}

	exifInfo, err := i.readEXIF(path)
	if err != nil {
		logger.WithFile(i.logger, path).Debugf("No EXIF data: %v", err)
	}
	report.EXIF = exifInfo
	return report, nil
}

// readEXIF extracts the inspected EXIF fields using rwcarlsen/goexif.
func (i *Inspector) readEXIF(path string) (*EXIFInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	x, err := exif.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF: %w", err)
	}

	info := &EXIFInfo{
		Make:     stringTag(x, exif.Make),
		Model:    stringTag(x, exif.Model),
		Software: stringTag(x, exif.Software),
	}
	info.DateTime, info.DateSource = i.extractDate(x)
	return info, nil
}

func (i *Inspector) extractDate(x *exif.Exif) (*time.Time, DateSource) {
	if _, err := x.Get(exif.DateTimeOriginal); err == nil {
		if tm, err := x.DateTime(); err == nil {
			return &tm, DateSourceEXIFDateTimeOriginal
		}
	}
	if tm, err := x.DateTime(); err == nil {
		return &tm, DateSourceEXIFDateTime
	}
	if date := i.parseEXIFDateTime(stringTag(x, exif.DateTimeDigitized)); date != nil {
		return date, DateSourceEXIFDateTimeDigitized
	}
	return nil, DateSourceUnknown
}

// parseEXIFDateTime parses an EXIF date time string. Returns nil if parsing
// fails.
func (i *Inspector) parseEXIFDateTime(dateStr string) *time.Time {
	if dateStr == "" {
		return nil
	}

	formats := []string{
		"2006:01:02 15:04:05",
		"2006-01-02 15:04:05",
		"2006:01:02",
		"2006-01-02",
		time.RFC3339,
	}
	for _, format := range formats {
		if date, err := time.ParseInLocation(format, dateStr, time.Local); err == nil {
			return &date
		}
	}

	i.logger.Debugf("Failed to parse date string: %s", dateStr)
	return nil
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return s
}
