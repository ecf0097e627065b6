// Package storage fetches asset bytes from the locations a payload may point at.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pokedexos/dexcache/pkg/errors"
)

// Fetcher retrieves the bytes behind an asset URL.
// Failures are marked errors.ErrTransport.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher downloads assets over HTTP(S)
type HTTPFetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// NewHTTPFetcher creates a fetcher. A nil client uses a default one.
func NewHTTPFetcher(client *http.Client, maxBytes int64, userAgent string) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFetcher{client: client, maxBytes: maxBytes, userAgent: userAgent}
}

// Fetch performs a GET and returns the body of a 2xx response
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	slog.Debug("asset_download_start", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrTransport, "failed to build asset request")
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		slog.Warn("asset_download_failed", "url", url, "error", err)
		return nil, errors.Mark(err, errors.ErrTransport, "asset request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("asset_download_bad_status", "url", url, "status", resp.StatusCode)
		return nil, errors.Mark(fmt.Errorf("status %d", resp.StatusCode), errors.ErrTransport, "asset request rejected")
	}

	data, err := readLimited(resp.Body, f.maxBytes)
	if err != nil {
		slog.Warn("asset_download_read_failed", "url", url, "error", err)
		return nil, errors.Mark(err, errors.ErrTransport, "failed to read asset body")
	}

	slog.Debug("asset_download_complete", "url", url, "size", len(data))
	return data, nil
}

// Router dispatches s3:// URLs to the S3 fetcher and everything else to HTTP
type Router struct {
	HTTP Fetcher
	S3   Fetcher
}

// Fetch implements Fetcher
func (r *Router) Fetch(ctx context.Context, url string) ([]byte, error) {
	if strings.HasPrefix(url, "s3://") {
		if r.S3 == nil {
			return nil, errors.Mark(fmt.Errorf("no s3 fetcher configured"), errors.ErrTransport, "cannot fetch "+url)
		}
		return r.S3.Fetch(ctx, url)
	}
	return r.HTTP.Fetch(ctx, url)
}
