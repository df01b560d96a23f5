package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// progressReader wraps an io.Reader to report bytes as they arrive.
type progressReader struct {
	reader   io.Reader
	total    int64
	current  int64
	callback func(current, total int64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.current += int64(n)
	if pr.callback != nil && n > 0 {
		pr.callback(pr.current, pr.total)
	}
	return n, err
}

// Fetcher performs resumable HTTP transfers into the downloads directory.
// Partial data lands in a temp subdirectory and is moved into place with an
// atomic rename on completion.
type Fetcher struct {
	client    *http.Client
	dir       string
	tempDir   string
	userAgent string
}

// NewFetcher creates a fetcher writing into dir.
func NewFetcher(dir, userAgent string) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 30 * time.Minute, // large media files
		},
		dir:       dir,
		tempDir:   filepath.Join(dir, "temp"),
		userAgent: userAgent,
	}
}

// Dir returns the downloads directory.
func (f *Fetcher) Dir() string { return f.dir }

// EnsureDirs creates the downloads and temp directories.
func (f *Fetcher) EnsureDirs() error {
	if err := os.MkdirAll(f.tempDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create downloads directory")
	}
	return nil
}

// Fetch downloads url into filename, resuming from any partial temp file.
// The callback receives cumulative byte counts; total is zero when the
// server does not report a length. A re-download of the same filename
// overwrites the previous file deterministically.
func (f *Fetcher) Fetch(ctx context.Context, url, filename string, callback func(current, total int64)) error {
	tempPath := filepath.Join(f.tempDir, filename+".tmp")
	targetPath := filepath.Join(f.dir, filename)

	var resumeFrom int64
	if stat, err := os.Stat(tempPath); err == nil {
		resumeFrom = stat.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", f.userAgent)
	if resumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to fetch media")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return errors.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var totalSize int64
	if resumeFrom > 0 && resp.StatusCode == http.StatusPartialContent {
		// Content-Range: "bytes 200-1023/1024"
		var start, end, total int64
		if n, err := fmt.Sscanf(resp.Header.Get("Content-Range"), "bytes %d-%d/%d", &start, &end, &total); n == 3 && err == nil {
			totalSize = total
		}
	} else {
		// The server ignored the Range header; start over.
		resumeFrom = 0
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if size, err := strconv.ParseInt(cl, 10, 64); err == nil {
				totalSize = size
			}
		}
	}

	var file *os.File
	if resumeFrom > 0 {
		file, err = os.OpenFile(tempPath, os.O_WRONLY|os.O_APPEND, 0644)
	} else {
		file, err = os.Create(tempPath)
	}
	if err != nil {
		return errors.Wrap(err, "failed to open temp file")
	}
	defer file.Close()

	reader := &progressReader{
		reader: resp.Body,
		total:  totalSize,
		callback: func(current, total int64) {
			if callback != nil {
				callback(resumeFrom+current, total)
			}
		},
	}

	if _, err := io.Copy(file, reader); err != nil {
		return errors.Wrap(err, "failed to write media")
	}

	if err := file.Close(); err != nil {
		return errors.Wrap(err, "failed to flush temp file")
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		return errors.Wrap(err, "failed to move media into place")
	}

	return nil
}

// Size returns the remote file size via a HEAD request, or zero when the
// server does not say.
func (f *Fetcher) Size(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create HEAD request")
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "failed to query media size")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		return 0, nil
	}
	return size, nil
}

// RemoveTemp deletes any partial temp file for filename, discarding resume
// data.
func (f *Fetcher) RemoveTemp(filename string) error {
	tempPath := filepath.Join(f.tempDir, filename+".tmp")
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove temp file")
	}
	return nil
}
