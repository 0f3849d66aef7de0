// Package deps fetches the per-platform prerequisites a project needs
// before it can build, such as the iOS Xcode project template.
//
// A dependency whose file is already present with the expected checksum is
// not downloaded again. Interrupted downloads resume with an HTTP Range
// request, and zip archives are unpacked next to the downloaded file.
package deps

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mvp-joe/pew/internal/files"
	"github.com/sirupsen/logrus"
)

// Dependency is one downloadable prerequisite. DestDir may reference macros
// such as ${PROJECT_DIR}.
type Dependency struct {
	Name     string
	URL      string
	DestDir  string
	Checksum string // hex md5; empty skips verification
}

// Table lists the prerequisites of each platform.
var Table = map[string][]Dependency{
	"ios": {
		{
			Name:     "XCodeTemplate",
			URL:      "https://github.com/kollivier/PythonistaAppTemplate/archive/master.zip",
			DestDir:  "${PROJECT_DIR}/native/ios",
			Checksum: "5854ef7719b4c7bfab0b08052025e3ff",
		},
	},
}

// DefaultMaxTries bounds download attempts per dependency.
const DefaultMaxTries = 5

// ErrChecksumMismatch is returned when a finished download has the wrong md5.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Fetcher downloads and unpacks dependencies.
type Fetcher struct {
	Client   *http.Client
	Log      logrus.FieldLogger
	MaxTries int
	// OnProgress, when set, receives bytes written so far and the expected
	// total (0 when unknown).
	OnProgress func(current, total int64)
}

// NewFetcher returns a Fetcher using the default HTTP client.
func NewFetcher(log logrus.FieldLogger) *Fetcher {
	return &Fetcher{Client: http.DefaultClient, Log: log, MaxTries: DefaultMaxTries}
}

// ResolveMacros replaces ${NAME} references with values from macros.
func ResolveMacros(s string, macros map[string]string) string {
	for name, value := range macros {
		s = strings.ReplaceAll(s, "${"+name+"}", value)
	}
	return s
}

// Ensure makes every prerequisite of platform available. Platforms without
// prerequisites succeed immediately.
func (f *Fetcher) Ensure(ctx context.Context, platform string, macros map[string]string) error {
	for _, dep := range Table[platform] {
		if _, err := f.EnsureDependency(ctx, dep, macros); err != nil {
			return fmt.Errorf("dependency %s: %w", dep.Name, err)
		}
	}
	return nil
}

// EnsureDependency downloads, verifies and unpacks dep, returning the path
// of the downloaded file.
func (f *Fetcher) EnsureDependency(ctx context.Context, dep Dependency, macros map[string]string) (string, error) {
	destDir := ResolveMacros(dep.DestDir, macros)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}
	output := filepath.Join(destDir, path.Base(dep.URL))

	needsDownload := true
	if _, err := os.Stat(output); err == nil && dep.Checksum != "" {
		sum, err := Checksum(output)
		if err != nil {
			return "", err
		}
		if sum == dep.Checksum {
			needsDownload = false
			f.Log.WithField("path", output).Debug("Dependency already present")
		} else {
			// A stale or corrupt file would otherwise be resumed forever.
			if err := os.Remove(output); err != nil {
				return "", err
			}
		}
	}

	if needsDownload {
		if err := f.download(ctx, dep.URL, output); err != nil {
			return "", err
		}
		if dep.Checksum != "" {
			sum, err := Checksum(output)
			if err != nil {
				return "", err
			}
			if sum != dep.Checksum {
				return "", fmt.Errorf("%w: %s did not download correctly (got %s, want %s)", ErrChecksumMismatch, output, sum, dep.Checksum)
			}
		}
	}

	if strings.EqualFold(filepath.Ext(output), ".zip") {
		if err := files.ExtractZip(output, destDir); err != nil {
			return "", fmt.Errorf("extraction failed: %w", err)
		}
	}
	return output, nil
}

// download fetches url into output, resuming a partial file on retry.
func (f *Fetcher) download(ctx context.Context, url, output string) error {
	tries := f.MaxTries
	if tries <= 0 {
		tries = DefaultMaxTries
	}
	f.Log.WithField("url", url).Info("Downloading")

	var lastErr error
	for attempt := 1; attempt <= tries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := f.attempt(ctx, url, output)
		if err == nil {
			return nil
		}
		var status *statusError
		if errors.As(err, &status) {
			return err
		}
		lastErr = err
		f.Log.WithError(err).Warnf("Download attempt %d of %d failed", attempt, tries)
	}
	return fmt.Errorf("download of %s failed after %d attempts: %w", url, tries, lastErr)
}

type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("download failed for %s: status %d", e.url, e.code)
}

func (f *Fetcher) attempt(ctx context.Context, url, output string) error {
	var offset int64
	if info, err := os.Stat(output); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
	case http.StatusOK:
		// Server ignored the range; start over.
		offset = 0
		flags |= os.O_TRUNC
	default:
		return &statusError{url: url, code: resp.StatusCode}
	}

	out, err := os.OpenFile(output, flags, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	var total int64
	if resp.ContentLength > 0 {
		total = offset + resp.ContentLength
	}
	written, err := io.Copy(out, &progressReader{
		reader:     resp.Body,
		current:    offset,
		total:      total,
		onProgress: f.OnProgress,
	})
	if err != nil {
		return fmt.Errorf("download interrupted: %w", err)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		return fmt.Errorf("incomplete download: got %d bytes, expected %d", written, resp.ContentLength)
	}
	return nil
}

// Checksum returns the hex md5 of a file.
func Checksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := md5.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// progressReader wraps an io.Reader and reports cumulative progress.
type progressReader struct {
	reader     io.Reader
	current    int64
	total      int64
	onProgress func(current, total int64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.current += int64(n)
	if pr.onProgress != nil {
		pr.onProgress(pr.current, pr.total)
	}
	return n, err
}
