// Package attachment stores receipt files durably and hands back a public URL.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultMaxBytes bounds downloaded receipt files.
const DefaultMaxBytes = 20 << 20

var (
	ErrEmptyPayload = errors.New("attachment payload is empty")
	ErrTooLarge     = errors.New("attachment exceeds size limit")
)

// Uploader persists bytes under name and returns a durable URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, name, mime string) (string, error)
}

// Downloader fetches transport file URLs.
type Downloader struct {
	http     *http.Client
	maxBytes int64
}

// NewDownloader returns a downloader with the given timeout; zero values use defaults.
func NewDownloader(timeout time.Duration, maxBytes int64) *Downloader {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Downloader{http: &http.Client{Timeout: timeout}, maxBytes: maxBytes}
}

// Fetch downloads url and returns its body and declared content type.
func (d *Downloader) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, "", errors.New("attachment url is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download attachment: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("download attachment: %w", err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, "", ErrTooLarge
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyPayload
	}
	return data, NormalizeMime(resp.Header.Get("Content-Type")), nil
}
