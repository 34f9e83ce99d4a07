package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"
)

// fetch downloads url into dest. When dest already holds a partial download
// the request asks for the remaining bytes; a server that ignores the range
// causes a restart from the beginning.
func (m *Manager) fetch(ctx context.Context, url, dest string, progress ProgressFunc) error {
	var offset int64
	if info, err := os.Stat(dest); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
		m.logger.Infof("Resuming ffmpeg download at %s", humanize.Bytes(uint64(offset)))
	case http.StatusOK:
		flags |= os.O_TRUNC
		offset = 0
	case http.StatusRequestedRangeNotSatisfiable:
		_ = os.Remove(dest)
		return fmt.Errorf("server rejected resume at %d bytes, partial download discarded", offset)
	default:
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
		m.logger.Infof("Downloading ffmpeg (%s)", humanize.Bytes(uint64(total)))
	}

	f, err := os.OpenFile(dest, flags, 0644)
	if err != nil {
		return err
	}
	pw := &progressWriter{downloaded: offset, total: total, fn: progress}
	if _, err := io.Copy(io.MultiWriter(f, pw), resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type progressWriter struct {
	downloaded int64
	total      int64
	fn         ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.downloaded += int64(len(b))
	if p.fn != nil {
		p.fn(p.downloaded, p.total)
	}
	return len(b), nil
}

// archiveHasBinary reports whether archive is a readable zip that contains
// the ffmpeg binary.
func (m *Manager) archiveHasBinary(archive string) bool {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return false
	}
	defer r.Close()

	want := m.binaryName("ffmpeg")
	for _, f := range r.File {
		if strings.EqualFold(filepath.Base(f.Name), want) {
			return true
		}
	}
	return false
}

// extract copies ffmpeg and ffprobe out of the archive into the bin
// directory, wherever they sit inside it.
func (m *Manager) extract(archive string) (string, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return "", fmt.Errorf("failed to open ffmpeg archive: %w", err)
	}
	defer r.Close()

	wanted := map[string]bool{
		strings.ToLower(m.binaryName("ffmpeg")):  true,
		strings.ToLower(m.binaryName("ffprobe")): true,
	}
	found := false
	for _, f := range r.File {
		name := strings.ToLower(filepath.Base(f.Name))
		if f.FileInfo().IsDir() || !wanted[name] {
			continue
		}
		dest := filepath.Join(m.binDir, m.binaryName(strings.TrimSuffix(name, ".exe")))
		if err := extractFile(f, dest); err != nil {
			return "", fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
		m.logger.Debugf("Extracted %s -> %s", f.Name, dest)
		if dest == m.BinaryPath() {
			found = true
		}
	}
	if !found {
		return "", fmt.Errorf("%s not found in archive", m.binaryName("ffmpeg"))
	}
	return m.BinaryPath(), nil
}

func extractFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
