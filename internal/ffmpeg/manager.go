package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"file-compressor-go/internal/config"
	"file-compressor-go/internal/logger"

	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound            = errors.New("ffmpeg not found")
	ErrUnsupportedPlatform = errors.New("automatic ffmpeg download is only supported on windows, install ffmpeg manually")
)

const (
	tempArchiveName = "ffmpeg_temp.zip"
	versionTimeout  = 5 * time.Second
)

var windowsCommonPaths = []string{
	`C:\ffmpeg\bin\ffmpeg.exe`,
	`C:\Program Files\ffmpeg\bin\ffmpeg.exe`,
	`C:\Program Files (x86)\ffmpeg\bin\ffmpeg.exe`,
}

// ProgressFunc receives the bytes downloaded so far and the expected total,
// which is -1 when the server does not report a length.
type ProgressFunc func(downloaded, total int64)

// Manager locates a working ffmpeg binary and installs one on Windows.
type Manager struct {
	binDir      string
	path        string
	downloadURL string
	altURL      string

	client *http.Client
	logger *logrus.Logger

	goos        string
	commonPaths []string
	probe       func(ctx context.Context, path string) error
}

// NewManager returns a Manager for the given settings.
func NewManager(cfg config.FFmpegConfig, logger *logrus.Logger) *Manager {
	m := &Manager{
		binDir:      cfg.BinDir,
		path:        cfg.Path,
		downloadURL: cfg.DownloadURL,
		altURL:      cfg.AltDownloadURL,
		client:      &http.Client{Timeout: 30 * time.Minute},
		logger:      logger,
		goos:        runtime.GOOS,
		probe:       runVersion,
	}
	if m.goos == "windows" {
		m.commonPaths = windowsCommonPaths
	}
	return m
}

// BinaryPath returns where a downloaded ffmpeg is placed.
func (m *Manager) BinaryPath() string {
	return filepath.Join(m.binDir, m.binaryName("ffmpeg"))
}

func (m *Manager) binaryName(name string) string {
	if m.goos == "windows" {
		return name + ".exe"
	}
	return name
}

// Check returns the first usable ffmpeg, probing the configured path, the bin
// directory, PATH and, on Windows, the common install locations in that
// order.
func (m *Manager) Check(ctx context.Context) (string, error) {
	log := logger.WithOperation(m.logger, "ffmpeg_check")
	for _, candidate := range m.candidates() {
		info, err := os.Stat(candidate)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := m.probe(ctx, candidate); err != nil {
			log.Debugf("ffmpeg candidate %s is not usable: %v", candidate, err)
			continue
		}
		log.WithField("path", candidate).Info("ffmpeg available")
		return candidate, nil
	}

	log.Warn("ffmpeg not found")
	return "", ErrNotFound
}

func (m *Manager) candidates() []string {
	var paths []string
	if m.path != "" {
		paths = append(paths, m.path)
	}
	if m.binDir != "" {
		paths = append(paths, m.BinaryPath())
	}
	if p, err := exec.LookPath("ffmpeg"); err == nil {
		paths = append(paths, p)
	}
	return append(paths, m.commonPaths...)
}

// runVersion runs "<path> -version" and reports whether it exited cleanly.
func runVersion(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	return exec.CommandContext(ctx, path, "-version").Run()
}

// Download installs ffmpeg and ffprobe into the bin directory and returns the
// ffmpeg path. url overrides the configured primary download URL. A
// previously downloaded archive is reused, and a partial one is resumed.
func (m *Manager) Download(ctx context.Context, url string, progress ProgressFunc) (string, error) {
	if m.goos != "windows" {
		return "", ErrUnsupportedPlatform
	}
	if url == "" {
		url = m.downloadURL
	}
	if url == "" {
		return "", errors.New("no ffmpeg download url configured")
	}

	if err := os.MkdirAll(m.binDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create bin directory: %w", err)
	}
	archive := filepath.Join(m.binDir, tempArchiveName)

	if m.archiveHasBinary(archive) {
		m.logger.WithField("archive", archive).Info("Reusing downloaded ffmpeg archive")
	} else if err := m.fetchAny(ctx, m.urls(url), archive, progress); err != nil {
		return "", err
	}

	path, err := m.extract(archive)
	if err != nil {
		return "", err
	}
	if err := os.Remove(archive); err != nil {
		m.logger.Warnf("Could not remove %s: %v", archive, err)
	}

	if err := m.probe(ctx, path); err != nil {
		return "", fmt.Errorf("downloaded ffmpeg does not run: %w", err)
	}
	m.logger.WithField("path", path).Info("ffmpeg installed")
	return path, nil
}

func (m *Manager) urls(primary string) []string {
	urls := []string{primary}
	if m.altURL != "" && m.altURL != primary {
		urls = append(urls, m.altURL)
	}
	return urls
}

// fetchAny downloads from the first URL that succeeds. A partial archive from
// a failed URL is discarded before the next one is tried.
func (m *Manager) fetchAny(ctx context.Context, urls []string, dest string, progress ProgressFunc) error {
	var errs []error
	for i, u := range urls {
		if i > 0 {
			_ = os.Remove(dest)
		}
		err := m.fetch(ctx, u, dest, progress)
		if err == nil {
			return nil
		}
		m.logger.WithError(err).Warnf("ffmpeg download from %s failed", u)
		errs = append(errs, fmt.Errorf("%s: %w", u, err))
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("ffmpeg download failed: %w", errors.Join(errs...))
}
