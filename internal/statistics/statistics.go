package statistics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"file-compressor-go/internal/compressor"

	"github.com/dustin/go-humanize"
)

// Statistics contains the counters of a compression or mirror run.
type Statistics struct {
	TotalFilesFound     int64
	TotalFilesProcessed int64
	ImagesCompressed    int64
	ImagesCopied        int64 // originals copied after a failed re-encode
	OtherFilesCopied    int64
	FilesSkipped        int64
	FilesWithErrors     int64

	DuplicatesFound    int64
	DuplicatesRenamed  int64
	DuplicatesSkipped  int64
	DuplicatesReplaced int64

	BytesIn  int64
	BytesOut int64

	DirectoriesCreated int64
	DirectoriesScanned int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64

	Errors []StatError

	FormatStats   map[string]int64
	FallbackStats map[string]int64

	mutex sync.RWMutex
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:     time.Now(),
		FormatStats:   make(map[string]int64),
		FallbackStats: make(map[string]int64),
		Errors:        make([]StatError, 0),
	}
}

// IncrementFilesFound increases the count of found files by 1.
func (s *Statistics) IncrementFilesFound() {
	atomic.AddInt64(&s.TotalFilesFound, 1)
}

// IncrementFilesProcessed increases the count of processed files by 1.
func (s *Statistics) IncrementFilesProcessed() {
	atomic.AddInt64(&s.TotalFilesProcessed, 1)
}

// IncrementOtherFilesCopied increases the count of copied non-image files by 1.
func (s *Statistics) IncrementOtherFilesCopied() {
	atomic.AddInt64(&s.OtherFilesCopied, 1)
}

// IncrementFilesSkipped increases the count of skipped files by 1.
func (s *Statistics) IncrementFilesSkipped() {
	atomic.AddInt64(&s.FilesSkipped, 1)
}

// IncrementFilesWithErrors increases the count of files with errors by 1.
func (s *Statistics) IncrementFilesWithErrors() {
	atomic.AddInt64(&s.FilesWithErrors, 1)
}

// IncrementDuplicatesFound increases the count of found duplicates by 1.
func (s *Statistics) IncrementDuplicatesFound() {
	atomic.AddInt64(&s.DuplicatesFound, 1)
}

// IncrementDuplicatesRenamed increases the count of renamed duplicates by 1.
func (s *Statistics) IncrementDuplicatesRenamed() {
	atomic.AddInt64(&s.DuplicatesRenamed, 1)
}

// IncrementDuplicatesSkipped increases the count of skipped duplicates by 1.
func (s *Statistics) IncrementDuplicatesSkipped() {
	atomic.AddInt64(&s.DuplicatesSkipped, 1)
}

// IncrementDuplicatesReplaced increases the count of replaced duplicates by 1.
func (s *Statistics) IncrementDuplicatesReplaced() {
	atomic.AddInt64(&s.DuplicatesReplaced, 1)
}

// IncrementDirectoriesCreated increases the count of created directories by 1.
func (s *Statistics) IncrementDirectoriesCreated() {
	atomic.AddInt64(&s.DirectoriesCreated, 1)
}

// IncrementDirectoriesScanned increases the count of scanned directories by 1.
func (s *Statistics) IncrementDirectoriesScanned() {
	atomic.AddInt64(&s.DirectoriesScanned, 1)
}

// AddBytes adds to the input and output byte totals.
func (s *Statistics) AddBytes(in, out int64) {
	atomic.AddInt64(&s.BytesIn, in)
	atomic.AddInt64(&s.BytesOut, out)
}

// RecordResult folds the outcome of one Compress call into the counters.
// err is the error Compress returned, if any.
func (s *Statistics) RecordResult(res compressor.Result, err error) {
	if err != nil {
		s.IncrementFilesWithErrors()
		s.AddError(res.Source, "compress", err.Error())
		return
	}

	s.AddBytes(res.OriginalSize, res.OutputSize)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if res.Compressed {
		s.ImagesCompressed++
		s.FormatStats[res.Format]++
		return
	}
	s.ImagesCopied++
	s.FallbackStats[compressor.Category(res.Cause)]++
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Finalize calculates duration and throughput.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(atomic.LoadInt64(&s.TotalFilesProcessed)) / s.Duration.Seconds()
	}
}

// SavedPercent returns how much smaller the output is than the input.
func (s *Statistics) SavedPercent() float64 {
	return savedPercent(atomic.LoadInt64(&s.BytesIn), atomic.LoadInt64(&s.BytesOut))
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	in := atomic.LoadInt64(&s.BytesIn)
	out := atomic.LoadInt64(&s.BytesOut)

	return fmt.Sprintf(`File Compressor Statistics Summary:

Files:
		Total Found: %s
		Total Processed: %s
		Images Compressed: %s
		Originals Copied: %s
		Other Files Copied: %s
		Skipped: %s
		Errors: %s

Duplicates:
		Found: %d
		Renamed: %d
		Skipped: %d
		Replaced: %d

Size:
		Input: %s
		Output: %s
		Saved: %.1f%%

Performance:
		Duration: %v
		Files/Second: %.2f

Directories:
		Created: %d
		Scanned: %d`,
		humanize.Comma(atomic.LoadInt64(&s.TotalFilesFound)),
		humanize.Comma(atomic.LoadInt64(&s.TotalFilesProcessed)),
		humanize.Comma(s.ImagesCompressed),
		humanize.Comma(s.ImagesCopied),
		humanize.Comma(atomic.LoadInt64(&s.OtherFilesCopied)),
		humanize.Comma(atomic.LoadInt64(&s.FilesSkipped)),
		humanize.Comma(atomic.LoadInt64(&s.FilesWithErrors)),
		atomic.LoadInt64(&s.DuplicatesFound),
		atomic.LoadInt64(&s.DuplicatesRenamed),
		atomic.LoadInt64(&s.DuplicatesSkipped),
		atomic.LoadInt64(&s.DuplicatesReplaced),
		humanize.Bytes(uint64(max(in, 0))),
		humanize.Bytes(uint64(max(out, 0))),
		savedPercent(in, out),
		s.Duration.Round(time.Millisecond),
		s.FilesPerSecond,
		atomic.LoadInt64(&s.DirectoriesCreated),
		atomic.LoadInt64(&s.DirectoriesScanned))
}

func savedPercent(in, out int64) float64 {
	if in <= 0 {
		return 0
	}
	return float64(in-out) * 100 / float64(in)
}

// GetFormatBreakdown returns the number of compressed images per output
// format and of copied originals per failure category.
func (s *Statistics) GetFormatBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FormatStats) == 0 && len(s.FallbackStats) == 0 {
		return "No format statistics available"
	}

	var b strings.Builder
	b.WriteString("Format Breakdown:\n")
	for _, k := range sortedKeys(s.FormatStats) {
		fmt.Fprintf(&b, "  %s: %d\n", k, s.FormatStats[k])
	}
	if len(s.FallbackStats) > 0 {
		b.WriteString("Copied Originals:\n")
		for _, k := range sortedKeys(s.FallbackStats) {
			fmt.Fprintf(&b, "  %s: %d\n", k, s.FallbackStats[k])
		}
	}
	return b.String()
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
