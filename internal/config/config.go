package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"file-compressor-go/internal/compressor"
	"file-compressor-go/internal/logger"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure
type Config struct {
	Compression CompressionConfig `mapstructure:"compression" yaml:"compression"`
	Mirror      MirrorConfig      `mapstructure:"mirror" yaml:"mirror"`
	FFmpeg      FFmpegConfig      `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`

	v *viper.Viper
}

// CompressionConfig holds the effective image compression options. The
// engine reads the raw values through Settings, so out-of-range numbers and
// unknown presets are clamped the same way here and there.
type CompressionConfig struct {
	PhotoQuality    int    `mapstructure:"photo_quality" yaml:"photo_quality"`
	MaxPhotoWidth   int    `mapstructure:"max_photo_width" yaml:"max_photo_width"`
	MaxPhotoHeight  int    `mapstructure:"max_photo_height" yaml:"max_photo_height"`
	ImagePreset     string `mapstructure:"image_preset" yaml:"image_preset"`
	PNGPaletteCheck bool   `mapstructure:"png_palette_check" yaml:"png_palette_check"`
}

// MirrorConfig contains directory mirroring settings
type MirrorConfig struct {
	SourceDirectory   string   `mapstructure:"source_directory" yaml:"source_directory"`
	TargetDirectory   string   `mapstructure:"target_directory" yaml:"target_directory"`
	ImageExtensions   []string `mapstructure:"image_extensions" yaml:"image_extensions"`
	DuplicateHandling string   `mapstructure:"duplicate_handling" yaml:"duplicate_handling"`
	CopyOthers        bool     `mapstructure:"copy_others" yaml:"copy_others"`
	DryRun            bool     `mapstructure:"dry_run" yaml:"dry_run"`
}

// FFmpegConfig contains ffmpeg discovery and download settings
type FFmpegConfig struct {
	Path           string `mapstructure:"path" yaml:"path"`
	BinDir         string `mapstructure:"bin_dir" yaml:"bin_dir"`
	DownloadURL    string `mapstructure:"download_url" yaml:"download_url"`
	AltDownloadURL string `mapstructure:"alt_download_url" yaml:"alt_download_url"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	FilePath   string `mapstructure:"file_path" yaml:"file_path"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	lc := logger.DefaultConfig()
	return &Config{
		Compression: CompressionConfig{
			PhotoQuality:    compressor.DefaultPhotoQuality,
			MaxPhotoWidth:   compressor.DefaultMaxPhotoWidth,
			MaxPhotoHeight:  compressor.DefaultMaxPhotoHeight,
			ImagePreset:     compressor.PresetCustom.String(),
			PNGPaletteCheck: true,
		},
		Mirror: MirrorConfig{
			ImageExtensions:   []string{".jpg", ".jpeg", ".png", ".webp", ".gif", ".bmp", ".tif", ".tiff"},
			DuplicateHandling: "overwrite", // rename, skip, overwrite
			CopyOthers:        true,
		},
		FFmpeg: FFmpegConfig{
			BinDir:         "bin",
			DownloadURL:    "https://www.gyan.dev/ffmpeg/builds/ffmpeg-release-essentials.zip",
			AltDownloadURL: "https://github.com/BtbN/FFmpeg-Builds/releases/download/latest/ffmpeg-master-latest-win64-gpl.zip",
		},
		Logging: LoggingConfig{
			Level:      lc.Level,
			FilePath:   lc.FilePath,
			MaxSize:    lc.MaxSize,
			MaxBackups: lc.MaxBackups,
			MaxAge:     lc.MaxAge,
			Compress:   lc.Compress,
		},
	}
}

// LoadConfig loads configuration from file and environment variables into
// the global viper instance.
func LoadConfig(configPath string) (*Config, error) {
	return LoadConfigWith(viper.GetViper(), configPath)
}

// LoadConfigWith is LoadConfig on an explicit viper instance.
func LoadConfigWith(v *viper.Viper, configPath string) (*Config, error) {
	config := DefaultConfig()
	setDefaults(v, config)

	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.file-compressor")
		v.AddConfigPath("/etc/file-compressor")
	}

	v.SetEnvPrefix("FILE_COMPRESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("ffmpeg.download_url", "FILE_COMPRESSOR_FFMPEG_DOWNLOAD_URL", "FFMPEG_DOWNLOAD_URL"); err != nil {
		return nil, fmt.Errorf("error binding env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	// The compression section is read leniently through Settings, so it is
	// left out of the strict unmarshal.
	var sections struct {
		Mirror  MirrorConfig  `mapstructure:"mirror"`
		FFmpeg  FFmpegConfig  `mapstructure:"ffmpeg"`
		Logging LoggingConfig `mapstructure:"logging"`
	}
	if err := v.Unmarshal(&sections); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.Mirror = sections.Mirror
	config.FFmpeg = sections.FFmpeg
	config.Logging = sections.Logging
	config.v = v
	config.Compression = effectiveCompression(config.Settings())

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("compression."+compressor.KeyPhotoQuality, c.Compression.PhotoQuality)
	v.SetDefault("compression."+compressor.KeyMaxPhotoWidth, c.Compression.MaxPhotoWidth)
	v.SetDefault("compression."+compressor.KeyMaxPhotoHeight, c.Compression.MaxPhotoHeight)
	v.SetDefault("compression."+compressor.KeyImagePreset, c.Compression.ImagePreset)
	v.SetDefault("compression."+compressor.KeyPNGPaletteCheck, c.Compression.PNGPaletteCheck)

	v.SetDefault("mirror.source_directory", c.Mirror.SourceDirectory)
	v.SetDefault("mirror.target_directory", c.Mirror.TargetDirectory)
	v.SetDefault("mirror.image_extensions", c.Mirror.ImageExtensions)
	v.SetDefault("mirror.duplicate_handling", c.Mirror.DuplicateHandling)
	v.SetDefault("mirror.copy_others", c.Mirror.CopyOthers)
	v.SetDefault("mirror.dry_run", c.Mirror.DryRun)

	v.SetDefault("ffmpeg.path", c.FFmpeg.Path)
	v.SetDefault("ffmpeg.bin_dir", c.FFmpeg.BinDir)
	v.SetDefault("ffmpeg.download_url", c.FFmpeg.DownloadURL)
	v.SetDefault("ffmpeg.alt_download_url", c.FFmpeg.AltDownloadURL)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.file_path", c.Logging.FilePath)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.compress", c.Logging.Compress)
}

func effectiveCompression(s compressor.Settings) CompressionConfig {
	opts := compressor.ReadOptions(s)
	return CompressionConfig{
		PhotoQuality:    opts.Quality,
		MaxPhotoWidth:   opts.MaxWidth,
		MaxPhotoHeight:  opts.MaxHeight,
		ImagePreset:     opts.Preset.String(),
		PNGPaletteCheck: opts.PaletteCheck,
	}
}

// Settings returns the compression section as the key-value provider the
// engine reads from. Values changed on the underlying viper instance (for
// example bound command line flags) are visible on the next read.
func (c *Config) Settings() compressor.Settings {
	if c.v == nil {
		return StaticSettings{
			compressor.KeyPhotoQuality:    c.Compression.PhotoQuality,
			compressor.KeyMaxPhotoWidth:   c.Compression.MaxPhotoWidth,
			compressor.KeyMaxPhotoHeight:  c.Compression.MaxPhotoHeight,
			compressor.KeyImagePreset:     c.Compression.ImagePreset,
			compressor.KeyPNGPaletteCheck: c.Compression.PNGPaletteCheck,
		}
	}
	return Section{v: c.v, name: "compression"}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validStrategies := map[string]bool{
		"rename":    true,
		"skip":      true,
		"overwrite": true,
	}
	if !validStrategies[c.Mirror.DuplicateHandling] {
		return fmt.Errorf("invalid duplicate_handling strategy: %s (valid: rename, skip, overwrite)",
			c.Mirror.DuplicateHandling)
	}

	c.Mirror.ImageExtensions = normalizeExtensions(c.Mirror.ImageExtensions)

	if c.FFmpeg.BinDir == "" {
		c.FFmpeg.BinDir = "bin"
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// IsImageExtension checks if the extension is handled by the compressor
func (c *Config) IsImageExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, supportedExt := range c.Mirror.ImageExtensions {
		if ext == supportedExt {
			return true
		}
	}
	return false
}

// WriteDefault writes the default configuration as YAML to path. An existing
// file is never overwritten.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, len(extensions))
	for i, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[i] = ext
	}
	return normalized
}
