// Package fetch downloads remote files to disk atomically.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"wmclean/internal/progress"
)

// Options tunes a download.
type Options struct {
	// Client defaults to a client with Timeout.
	Client *http.Client
	// Timeout bounds the whole transfer when Client is nil. Zero means 5 minutes.
	Timeout time.Duration
	Header  http.Header
	// Progress receives 0-100 by bytes when the server reports a length.
	Progress progress.Func
}

// Download streams url into dest via a sibling .tmp file that is renamed on
// success. It returns the number of bytes written.
func Download(ctx context.Context, url, dest string, opts Options) (int64, error) {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("download request: %w", err)
	}
	for key, values := range opts.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create destination dir: %w", err)
	}
	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", tmp, err)
	}

	var src io.Reader = resp.Body
	if opts.Progress != nil && resp.ContentLength > 0 {
		src = &countingReader{r: resp.Body, total: resp.ContentLength, report: opts.Progress}
	}
	written, copyErr := io.Copy(out, src)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(tmp)
		return written, fmt.Errorf("download %s: %w", url, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return written, fmt.Errorf("close %s: %w", tmp, closeErr)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return written, fmt.Errorf("rename %s: %w", tmp, err)
	}
	opts.Progress.Report("download complete", 100)
	return written, nil
}

type countingReader struct {
	r       io.Reader
	total   int64
	read    int64
	lastPct int
	report  progress.Func
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += int64(n)
	pct := int(c.read * 100 / c.total)
	if pct > c.lastPct && pct < 100 {
		c.lastPct = pct
		c.report.Report("downloading", float64(pct))
	}
	return n, err
}
