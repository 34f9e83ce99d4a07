package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"file-compressor-go/internal/compressor"
	"file-compressor-go/internal/config"
	"file-compressor-go/internal/ffmpeg"
	"file-compressor-go/internal/inspect"
	"file-compressor-go/internal/logger"
	"file-compressor-go/internal/mirror"
	"file-compressor-go/internal/statistics"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	sourceDir   string
	targetDir   string
	dryRun      bool
	verbose     bool
	quiet       bool
	downloadURL string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "file-compressor",
	Short: "Recompress images to save space",
	Long: `file-compressor re-encodes JPEG, PNG and WEBP images with size and
quality limits, copying the original whenever an image cannot be re-encoded.

Features:
- Lanczos downscaling to a maximum width and height
- Progressive optimized JPEG and method 6 WEBP output
- PNG palette reduction with a visual difference check
- Presets biased toward compression or clarity
- Mirroring of whole directory trees
- ffmpeg discovery and installation`,
	SilenceUsage: true,
}

// compressCmd recompresses a single image.
var compressCmd = &cobra.Command{
	Use:   "compress <source> <target>",
	Short: "Recompress a single image",
	Long: `Re-encodes source into target. The output format follows the target
extension. If the image cannot be re-encoded the source is copied unchanged.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(args[0], args[1])
	},
}

// mirrorCmd recompresses a directory tree into another directory.
var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Recompress every image of a directory tree into a target directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMirror(cmd.Context())
	},
}

// inspectCmd shows what the compressor sees in a file.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show image format, pixel mode and EXIF metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0])
	},
}

var ffmpegCmd = &cobra.Command{
	Use:   "ffmpeg",
	Short: "Locate or install ffmpeg",
}

var ffmpegCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report the ffmpeg binary that would be used",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFFmpegCheck(cmd.Context())
	},
}

var ffmpegDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download ffmpeg into the bin directory (Windows only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFFmpegDownload(cmd.Context())
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration (default ./config.yaml)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) > 0 {
			path = args[0]
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		if !quiet {
			fmt.Printf("Wrote default configuration to %s\n", path)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	compressCmd.Flags().Int("quality", compressor.DefaultPhotoQuality, "output quality 0-100")
	compressCmd.Flags().String("preset", compressor.PresetCustom.String(), "Custom, CompressionFirst or ClarityFirst")
	compressCmd.Flags().Int("max-width", compressor.DefaultMaxPhotoWidth, "maximum output width")
	compressCmd.Flags().Int("max-height", compressor.DefaultMaxPhotoHeight, "maximum output height")
	compressCmd.Flags().Bool("palette-check", true, "reject PNG palettes that visibly change the image")
	bindFlags(compressCmd, map[string]string{
		"quality":       "compression." + compressor.KeyPhotoQuality,
		"preset":        "compression." + compressor.KeyImagePreset,
		"max-width":     "compression." + compressor.KeyMaxPhotoWidth,
		"max-height":    "compression." + compressor.KeyMaxPhotoHeight,
		"palette-check": "compression." + compressor.KeyPNGPaletteCheck,
	})

	mirrorCmd.Flags().StringVar(&sourceDir, "source", "", "source directory")
	mirrorCmd.Flags().StringVar(&targetDir, "target", "", "target directory")
	mirrorCmd.Flags().BoolVar(&dryRun, "dry-run", false, "log what would be done without writing files")

	ffmpegDownloadCmd.Flags().StringVar(&downloadURL, "url", "", "download url (overrides configuration)")

	ffmpegCmd.AddCommand(ffmpegCheckCmd, ffmpegDownloadCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(compressCmd, mirrorCmd, inspectCmd, ffmpegCmd, configCmd)
}

// bindFlags makes command line flags override the matching config keys when
// they are set explicitly.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

// runCompress recompresses one image and reports the outcome.
func runCompress(source, target string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	engine := compressor.NewEngine(cfg.Settings(), log)

	res, err := engine.Compress(source, target)
	if err != nil {
		return err
	}
	if quiet {
		return nil
	}

	if res.Compressed {
		fmt.Printf("Compressed %s -> %s (%s q%d, %dx%d): %s -> %s, %.1f%% saved\n",
			res.Source, res.Target, res.Format, res.Quality, res.Width, res.Height,
			humanize.Bytes(uint64(res.OriginalSize)), humanize.Bytes(uint64(res.OutputSize)),
			res.PercentageSaved())
		if q := res.Quantization; q != nil {
			fmt.Printf("PNG-8 check: accept=%v mae=%.2f high=%.2f%%\n", q.Accept, q.MAE, q.HighDiffPercent)
		}
		return nil
	}
	fmt.Printf("Copied original %s -> %s (%s: %v)\n", res.Source, res.Target, compressor.Category(res.Cause), res.Cause)
	return nil
}

// runMirror mirrors the configured source tree into the target directory.
func runMirror(ctx context.Context) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if sourceDir != "" {
		cfg.Mirror.SourceDirectory = sourceDir
	}
	if targetDir != "" {
		cfg.Mirror.TargetDirectory = targetDir
	}
	if dryRun {
		cfg.Mirror.DryRun = true
	}

	log := setupLogger(cfg)
	stats := statistics.NewStatistics()
	m := mirror.NewMirror(cfg, log, stats, compressor.NewEngine(cfg.Settings(), log))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := m.Run(ctx); err != nil {
		return fmt.Errorf("mirror failed: %w", err)
	}

	if !quiet {
		fmt.Println("\n" + stats.GetSummary())
		fmt.Println("\n" + stats.GetFormatBreakdown())
		fmt.Println(stats.GetErrorSummary())
	}
	return nil
}

// runInspect prints the inspection report for a file.
func runInspect(path string) error {
	log := logger.Discard()
	if verbose {
		log = logrus.New()
		log.SetLevel(logrus.DebugLevel)
	}

	report, err := inspect.NewInspector(log).Inspect(path)
	if err != nil {
		return err
	}

	fmt.Printf("File:        %s\n", report.Path)
	fmt.Printf("Format:      %s\n", report.Format)
	fmt.Printf("Dimensions:  %dx%d\n", report.Width, report.Height)
	fmt.Printf("Mode:        %s\n", report.Mode)
	fmt.Printf("Transparent: %v\n", report.Transparent)
	fmt.Printf("Size:        %s\n", humanize.Bytes(uint64(report.Size)))
	fmt.Printf("Modified:    %s\n", report.ModTime.Format("2006-01-02 15:04:05"))

	if report.EXIF == nil {
		fmt.Println("EXIF:        none")
		return nil
	}
	if report.EXIF.DateTime != nil {
		fmt.Printf("Date:        %s (%s)\n", report.EXIF.DateTime.Format("2006-01-02 15:04:05"), report.EXIF.DateSource)
	}
	printIfSet("Make:        %s\n", report.EXIF.Make)
	printIfSet("Model:       %s\n", report.EXIF.Model)
	printIfSet("Software:    %s\n", report.EXIF.Software)
	return nil
}

func printIfSet(format, value string) {
	if value != "" {
		fmt.Printf(format, value)
	}
}

func runFFmpegCheck(ctx context.Context) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	path, err := ffmpeg.NewManager(cfg.FFmpeg, setupLogger(cfg)).Check(ctx)
	if errors.Is(err, ffmpeg.ErrNotFound) {
		return fmt.Errorf("%w: install it or run 'file-compressor ffmpeg download'", err)
	}
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runFFmpegDownload(ctx context.Context) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress ffmpeg.ProgressFunc
	if !quiet {
		progress = func(downloaded, total int64) {
			if total > 0 {
				fmt.Fprintf(os.Stderr, "\r%s / %s", humanize.Bytes(uint64(downloaded)), humanize.Bytes(uint64(total)))
			} else {
				fmt.Fprintf(os.Stderr, "\r%s", humanize.Bytes(uint64(downloaded)))
			}
		}
	}

	path, err := ffmpeg.NewManager(cfg.FFmpeg, setupLogger(cfg)).Download(ctx, downloadURL, progress)
	if progress != nil {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
		log.WithError(err).Warn("Falling back to the default logger")
	}

	return log
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
