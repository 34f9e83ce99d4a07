package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"file-compressor-go/internal/compressor"
	"file-compressor-go/internal/config"
	"file-compressor-go/internal/logger"
	"file-compressor-go/internal/statistics"

	"github.com/sirupsen/logrus"
)

// Mirror recreates a source tree under a target directory, recompressing
// images and copying everything else.
type Mirror struct {
	config     *config.Config
	logger     *logrus.Logger
	stats      *statistics.Statistics
	compressor compressor.Compressor
}

// FileInfo contains information about a file to be mirrored.
type FileInfo struct {
	Path      string
	RelPath   string
	Size      int64
	ModTime   time.Time
	IsImage   bool
	Extension string
}

// NewMirror returns a new Mirror.
func NewMirror(
	cfg *config.Config,
	logger *logrus.Logger,
	stats *statistics.Statistics,
	comp compressor.Compressor,
) *Mirror {
	return &Mirror{
		config:     cfg,
		logger:     logger,
		stats:      stats,
		compressor: comp,
	}
}

// Run mirrors every file of the source directory. Files are handled one at a
// time; ctx is checked between files.
func (m *Mirror) Run(ctx context.Context) error {
	source, target, err := m.directories()
	if err != nil {
		return err
	}

	m.logger.WithFields(logrus.Fields{"source": source, "target": target}).Info("Starting mirror")
	m.stats.StartTime = time.Now()
	defer m.stats.Finalize()

	files, err := m.discoverFiles(source, target)
	if err != nil {
		return fmt.Errorf("failed to discover files: %w", err)
	}
	if len(files) == 0 {
		m.logger.Info("No files found to mirror")
		return nil
	}
	m.logger.Infof("Found %d files to process", len(files))

	if m.config.Mirror.DryRun {
		m.logger.Info("Running in dry-run mode - no files will be written")
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.processFile(file, target)
	}

	m.logger.Info("Mirror completed")
	return nil
}

// directories returns the absolute source and target directories after
// checking that they can be mirrored.
func (m *Mirror) directories() (string, string, error) {
	if m.config.Mirror.SourceDirectory == "" || m.config.Mirror.TargetDirectory == "" {
		return "", "", errors.New("source and target directories are required")
	}
	source, err := filepath.Abs(m.config.Mirror.SourceDirectory)
	if err != nil {
		return "", "", err
	}
	target, err := filepath.Abs(m.config.Mirror.TargetDirectory)
	if err != nil {
		return "", "", err
	}

	info, err := os.Stat(source)
	if err != nil {
		return "", "", fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return "", "", fmt.Errorf("source is not a directory: %s", source)
	}
	if source == target {
		return "", "", fmt.Errorf("source and target are the same directory: %s", source)
	}
	return source, target, nil
}

// discoverFiles lists the regular files below source. A target directory
// nested inside the source is not descended into.
func (m *Mirror) discoverFiles(source, target string) ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			m.logger.Warnf("Error accessing path %s: %v", path, err)
			return nil
		}

		if d.IsDir() {
			if path == target {
				m.logger.Debugf("Skipping target directory: %s", path)
				return filepath.SkipDir
			}
			m.stats.IncrementDirectoriesScanned()
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			m.logger.Warnf("Error reading file info %s: %v", path, err)
			return nil
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}

		ext := strings.ToLower(filepath.Ext(path))
		files = append(files, FileInfo{
			Path:      path,
			RelPath:   rel,
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			IsImage:   m.config.IsImageExtension(ext),
			Extension: ext,
		})
		m.stats.IncrementFilesFound()
		return nil
	})

	return files, err
}

// processFile mirrors a single file.
func (m *Mirror) processFile(file FileInfo, targetRoot string) {
	log := logger.WithFileOperation(m.logger, file.Path, "mirror")
	m.stats.IncrementFilesProcessed()

	if !file.IsImage && !m.config.Mirror.CopyOthers {
		log.Debug("Skipping non-image file")
		m.stats.IncrementFilesSkipped()
		return
	}

	targetPath := filepath.Join(targetRoot, file.RelPath)
	if fileExists(targetPath) {
		var ok bool
		targetPath, ok = m.handleDuplicate(file, targetPath)
		if !ok {
			return
		}
	}

	if m.config.Mirror.DryRun {
		action := "copy"
		if file.IsImage {
			action = "compress"
		}
		log.Infof("DRY-RUN: Would %s %s -> %s", action, file.Path, targetPath)
		return
	}

	if err := m.createDirectory(filepath.Dir(targetPath)); err != nil {
		log.WithError(err).Error("Could not create directory")
		m.stats.IncrementFilesWithErrors()
		m.stats.AddError(file.Path, "directory_creation", err.Error())
		return
	}

	if file.IsImage {
		res, err := m.compressor.Compress(file.Path, targetPath)
		m.stats.RecordResult(res, err)
		if err != nil {
			log.WithError(err).Error("Could not mirror image")
		}
		return
	}

	if err := compressor.CopyFile(file.Path, targetPath); err != nil {
		log.WithError(err).Errorf("Could not copy file to %s", targetPath)
		m.stats.IncrementFilesWithErrors()
		m.stats.AddError(file.Path, "copy_file", err.Error())
		return
	}
	m.stats.IncrementOtherFilesCopied()
	m.stats.AddBytes(file.Size, file.Size)
	log.Debugf("Copied file to %s", targetPath)
}

// handleDuplicate applies the configured duplicate strategy. It returns the
// path to write to, or false when the file is skipped.
func (m *Mirror) handleDuplicate(file FileInfo, targetPath string) (string, bool) {
	m.stats.IncrementDuplicatesFound()

	switch m.config.Mirror.DuplicateHandling {
	case "skip":
		m.logger.Infof("Skipping existing file: %s", targetPath)
		m.stats.IncrementDuplicatesSkipped()
		m.stats.IncrementFilesSkipped()
		return "", false

	case "rename":
		newTargetPath := generateUniqueFilename(targetPath)
		m.logger.Infof("Renaming duplicate file: %s -> %s", file.Path, newTargetPath)
		m.stats.IncrementDuplicatesRenamed()
		return newTargetPath, true

	default:
		m.logger.Infof("Overwriting existing file: %s", targetPath)
		m.stats.IncrementDuplicatesReplaced()
		return targetPath, true
	}
}

// generateUniqueFilename returns a free path by adding a counter to the name.
func generateUniqueFilename(basePath string) string {
	dir := filepath.Dir(basePath)
	name := filepath.Base(basePath)
	ext := filepath.Ext(name)
	nameWithoutExt := strings.TrimSuffix(name, ext)

	for counter := 1; ; counter++ {
		newPath := filepath.Join(dir, fmt.Sprintf("%s_%d%s", nameWithoutExt, counter, ext))
		if !fileExists(newPath) {
			return newPath
		}
	}
}

// createDirectory creates a directory and its parents if they do not exist.
func (m *Mirror) createDirectory(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		if err := os.MkdirAll(dirPath, 0755); err != nil {
			return err
		}
		m.stats.IncrementDirectoriesCreated()
		m.logger.Debugf("Created directory: %s", dirPath)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
