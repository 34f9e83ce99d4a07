package config

import (
	"os"
	"path/filepath"
	"testing"

	"file-compressor-go/internal/compressor"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
compression:
  photo_quality: 60
  max_photo_width: 1600
  max_photo_height: 1200
  image_preset: "clarity_first"
  png_palette_check: false

mirror:
  source_directory: "/data/in"
  target_directory: "/data/out"
  image_extensions: ["JPG", "png"]
  duplicate_handling: "rename"
  copy_others: false

ffmpeg:
  path: "/opt/ffmpeg/bin/ffmpeg"

logging:
  level: "debug"
  file_path: ""
`)

	cfg, err := LoadConfigWith(viper.New(), path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	want := CompressionConfig{
		PhotoQuality:    60,
		MaxPhotoWidth:   1600,
		MaxPhotoHeight:  1200,
		ImagePreset:     "ClarityFirst",
		PNGPaletteCheck: false,
	}
	if cfg.Compression != want {
		t.Errorf("Compression = %+v, want %+v", cfg.Compression, want)
	}
	if cfg.Mirror.SourceDirectory != "/data/in" || cfg.Mirror.TargetDirectory != "/data/out" {
		t.Errorf("unexpected mirror directories: %+v", cfg.Mirror)
	}
	if cfg.Mirror.DuplicateHandling != "rename" || cfg.Mirror.CopyOthers {
		t.Errorf("unexpected mirror options: %+v", cfg.Mirror)
	}
	if !cfg.IsImageExtension(".jpg") || !cfg.IsImageExtension(".PNG") || cfg.IsImageExtension(".webp") {
		t.Errorf("extensions not normalized: %v", cfg.Mirror.ImageExtensions)
	}
	if cfg.FFmpeg.Path != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("Expected ffmpeg path '/opt/ffmpeg/bin/ffmpeg', got '%s'", cfg.FFmpeg.Path)
	}
	if cfg.FFmpeg.BinDir != "bin" {
		t.Errorf("Expected default bin_dir 'bin', got '%s'", cfg.FFmpeg.BinDir)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level 'debug', got '%s'", cfg.Logging.Level)
	}

	opts := compressor.ReadOptions(cfg.Settings())
	if opts.Quality != 60 || opts.Preset != compressor.PresetClarityFirst || opts.PaletteCheck {
		t.Errorf("engine options = %+v", opts)
	}
}

func TestLoadConfigLenientCompressionValues(t *testing.T) {
	path := writeConfig(t, `
compression:
  photo_quality: "very high"
  image_preset: "nonsense"
`)

	cfg, err := LoadConfigWith(viper.New(), path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Compression.PhotoQuality != 0 {
		t.Errorf("Expected unparseable quality to clamp to 0, got %d", cfg.Compression.PhotoQuality)
	}
	if cfg.Compression.ImagePreset != "Custom" {
		t.Errorf("Expected unknown preset to fall back to Custom, got %s", cfg.Compression.ImagePreset)
	}
	if cfg.Compression.MaxPhotoWidth != compressor.DefaultMaxPhotoWidth {
		t.Errorf("Expected default max width, got %d", cfg.Compression.MaxPhotoWidth)
	}
}

func TestLoadConfigQualityClamp(t *testing.T) {
	path := writeConfig(t, "compression:\n  photo_quality: 150\n")

	cfg, err := LoadConfigWith(viper.New(), path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Compression.PhotoQuality != 100 {
		t.Errorf("Expected quality clamped to 100, got %d", cfg.Compression.PhotoQuality)
	}
	if raw := cfg.Settings().Get(compressor.KeyPhotoQuality, nil); raw != 150 {
		t.Errorf("Settings should expose the raw value, got %v", raw)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, "compression:\n  photo_quality: 90\n")
	t.Setenv("FILE_COMPRESSOR_COMPRESSION_PHOTO_QUALITY", "40")
	t.Setenv("FFMPEG_DOWNLOAD_URL", "https://mirror.example.com/ffmpeg.zip")

	cfg, err := LoadConfigWith(viper.New(), path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Compression.PhotoQuality != 40 {
		t.Errorf("Expected env quality 40, got %d", cfg.Compression.PhotoQuality)
	}
	if cfg.FFmpeg.DownloadURL != "https://mirror.example.com/ffmpeg.zip" {
		t.Errorf("Expected env download url, got %s", cfg.FFmpeg.DownloadURL)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfigWith(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Error("Expected error for an explicit config path that does not exist")
	}
}

func TestLoadConfigInvalidDuplicateHandling(t *testing.T) {
	path := writeConfig(t, "mirror:\n  duplicate_handling: \"merge\"\n")

	if _, err := LoadConfigWith(viper.New(), path); err == nil {
		t.Error("Expected validation error for duplicate_handling 'merge'")
	}
}

func TestLoadConfigInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: \"chatty\"\n")

	if _, err := LoadConfigWith(viper.New(), path); err == nil {
		t.Error("Expected validation error for log level 'chatty'")
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}
	if err := WriteDefault(path); err == nil {
		t.Error("Expected WriteDefault to refuse overwriting an existing file")
	}

	cfg, err := LoadConfigWith(viper.New(), path)
	if err != nil {
		t.Fatalf("LoadConfig of written defaults failed: %v", err)
	}
	def := DefaultConfig()
	if cfg.Compression != def.Compression {
		t.Errorf("Compression = %+v, want %+v", cfg.Compression, def.Compression)
	}
	if cfg.Mirror.DuplicateHandling != def.Mirror.DuplicateHandling {
		t.Errorf("DuplicateHandling = %s, want %s", cfg.Mirror.DuplicateHandling, def.Mirror.DuplicateHandling)
	}
	if cfg.FFmpeg.DownloadURL != def.FFmpeg.DownloadURL {
		t.Errorf("DownloadURL = %s, want %s", cfg.FFmpeg.DownloadURL, def.FFmpeg.DownloadURL)
	}
}

func TestSettingsWithoutViper(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compression.PhotoQuality = 33

	opts := compressor.ReadOptions(cfg.Settings())
	if opts.Quality != 33 {
		t.Errorf("Expected quality 33, got %d", opts.Quality)
	}
	if opts.MaxWidth != compressor.DefaultMaxPhotoWidth {
		t.Errorf("Expected default max width, got %d", opts.MaxWidth)
	}
}

func TestSectionFallsBackToDefault(t *testing.T) {
	s := Section{v: viper.New(), name: "compression"}
	if got := s.Get("missing_key", "fallback"); got != "fallback" {
		t.Errorf("Expected fallback, got %v", got)
	}
}
