package mirror

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"file-compressor-go/internal/compressor"
	"file-compressor-go/internal/config"
	"file-compressor-go/internal/statistics"

	"github.com/sirupsen/logrus/hooks/test"
)

// fakeCompressor writes a marker instead of re-encoding.
type fakeCompressor struct {
	calls []string
}

func (f *fakeCompressor) Compress(source, target string) (compressor.Result, error) {
	f.calls = append(f.calls, source)
	if err := os.WriteFile(target, []byte("compressed"), 0644); err != nil {
		return compressor.Result{Source: source}, err
	}
	return compressor.Result{Source: source, Target: target, Compressed: true, Format: "jpeg", OriginalSize: 100, OutputSize: 10}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func setup(t *testing.T, configure func(*config.Config)) (src, dst string, m *Mirror, fc *fakeCompressor, stats *statistics.Statistics) {
	t.Helper()
	root := t.TempDir()
	src = filepath.Join(root, "src")
	dst = filepath.Join(root, "dst")

	writeFile(t, filepath.Join(src, "a.jpg"), "jpeg-bytes")
	writeFile(t, filepath.Join(src, "nested", "b.PNG"), "png-bytes")
	writeFile(t, filepath.Join(src, "nested", "notes.txt"), "hello")

	cfg := config.DefaultConfig()
	cfg.Mirror.SourceDirectory = src
	cfg.Mirror.TargetDirectory = dst
	if configure != nil {
		configure(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	log, _ := test.NewNullLogger()
	fc = &fakeCompressor{}
	stats = statistics.NewStatistics()
	return src, dst, NewMirror(cfg, log, stats, fc), fc, stats
}

func TestRunMirrorsTree(t *testing.T) {
	_, dst, m, fc, stats := setup(t, nil)

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fc.calls) != 2 {
		t.Errorf("compressor called %d times, want 2", len(fc.calls))
	}
	if got := readFile(t, filepath.Join(dst, "a.jpg")); got != "compressed" {
		t.Errorf("a.jpg = %q, want compressed output", got)
	}
	if got := readFile(t, filepath.Join(dst, "nested", "b.PNG")); got != "compressed" {
		t.Errorf("b.PNG = %q, want compressed output", got)
	}
	if got := readFile(t, filepath.Join(dst, "nested", "notes.txt")); got != "hello" {
		t.Errorf("notes.txt = %q, want a verbatim copy", got)
	}
	if stats.TotalFilesFound != 3 || stats.ImagesCompressed != 2 || stats.OtherFilesCopied != 1 {
		t.Errorf("found=%d compressed=%d copied=%d", stats.TotalFilesFound, stats.ImagesCompressed, stats.OtherFilesCopied)
	}
}

func TestRunWithoutCopyOthers(t *testing.T) {
	_, dst, m, _, stats := setup(t, func(c *config.Config) { c.Mirror.CopyOthers = false })

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fileExists(filepath.Join(dst, "nested", "notes.txt")) {
		t.Error("non-image file copied with copy_others disabled")
	}
	if stats.FilesSkipped != 1 {
		t.Errorf("FilesSkipped = %d, want 1", stats.FilesSkipped)
	}
}

func TestRunDuplicateStrategies(t *testing.T) {
	tests := []struct {
		strategy string
		check    func(t *testing.T, dst string, stats *statistics.Statistics)
	}{
		{"skip", func(t *testing.T, dst string, stats *statistics.Statistics) {
			if got := readFile(t, filepath.Join(dst, "a.jpg")); got != "existing" {
				t.Errorf("a.jpg = %q, want the existing file kept", got)
			}
			if stats.DuplicatesSkipped != 1 {
				t.Errorf("DuplicatesSkipped = %d, want 1", stats.DuplicatesSkipped)
			}
		}},
		{"overwrite", func(t *testing.T, dst string, stats *statistics.Statistics) {
			if got := readFile(t, filepath.Join(dst, "a.jpg")); got != "compressed" {
				t.Errorf("a.jpg = %q, want it overwritten", got)
			}
			if stats.DuplicatesReplaced != 1 {
				t.Errorf("DuplicatesReplaced = %d, want 1", stats.DuplicatesReplaced)
			}
		}},
		{"rename", func(t *testing.T, dst string, stats *statistics.Statistics) {
			if got := readFile(t, filepath.Join(dst, "a.jpg")); got != "existing" {
				t.Errorf("a.jpg = %q, want the existing file kept", got)
			}
			if got := readFile(t, filepath.Join(dst, "a_1.jpg")); got != "compressed" {
				t.Errorf("a_1.jpg = %q, want the new output", got)
			}
			if stats.DuplicatesRenamed != 1 {
				t.Errorf("DuplicatesRenamed = %d, want 1", stats.DuplicatesRenamed)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			_, dst, m, _, stats := setup(t, func(c *config.Config) { c.Mirror.DuplicateHandling = tt.strategy })
			writeFile(t, filepath.Join(dst, "a.jpg"), "existing")

			if err := m.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if stats.DuplicatesFound != 1 {
				t.Errorf("DuplicatesFound = %d, want 1", stats.DuplicatesFound)
			}
			tt.check(t, dst, stats)
		})
	}
}

func TestGenerateUniqueFilename(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "photo.jpg"), "x")
	writeFile(t, filepath.Join(dir, "photo_1.jpg"), "x")

	if got, want := generateUniqueFilename(filepath.Join(dir, "photo.jpg")), filepath.Join(dir, "photo_2.jpg"); got != want {
		t.Errorf("generateUniqueFilename = %s, want %s", got, want)
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	_, dst, m, fc, _ := setup(t, func(c *config.Config) { c.Mirror.DryRun = true })

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fc.calls) != 0 {
		t.Errorf("compressor called %d times in dry-run", len(fc.calls))
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("dry-run created the target directory")
	}
}

func TestRunSkipsNestedTarget(t *testing.T) {
	src, _, m, fc, _ := setup(t, nil)
	m.config.Mirror.TargetDirectory = filepath.Join(src, "out")
	writeFile(t, filepath.Join(src, "out", "old.jpg"), "previous run")

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, call := range fc.calls {
		if filepath.Base(call) == "old.jpg" {
			t.Error("files inside the target directory were mirrored")
		}
	}
}

func TestRunRejectsSameDirectory(t *testing.T) {
	src, _, m, _, _ := setup(t, nil)
	m.config.Mirror.TargetDirectory = src

	if err := m.Run(context.Background()); err == nil {
		t.Error("expected an error when source and target are the same")
	}
}

func TestRunCancelled(t *testing.T) {
	_, _, m, fc, _ := setup(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Run(ctx); err == nil {
		t.Error("expected a cancellation error")
	}
	if len(fc.calls) != 0 {
		t.Error("files processed after cancellation")
	}
}
