// Package security validates downloaded assets before they are written to the cache.
package security

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
)

// DefaultMaxAssetSize bounds a single sprite download.
const DefaultMaxAssetSize = 5 * 1024 * 1024

// Validator provides security validation for cached assets
type Validator struct {
	maxAssetSize int64
}

// NewValidator creates a new asset validator
func NewValidator(maxAssetSize int64) *Validator {
	if maxAssetSize <= 0 {
		maxAssetSize = DefaultMaxAssetSize
	}
	slog.Debug("security_validator_init", "max_asset_size_kb", maxAssetSize/1024)

	return &Validator{maxAssetSize: maxAssetSize}
}

// MaxAssetSize returns the per-asset byte limit
func (v *Validator) MaxAssetSize() int64 {
	return v.maxAssetSize
}

// ValidateAssetURL accepts http, https and s3 URLs with a host
func (v *Validator) ValidateAssetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		slog.Error("security_url_validation_failed", "url", raw, "reason", "unparseable")
		return fmt.Errorf("security: invalid asset url %q: %w", raw, err)
	}

	switch u.Scheme {
	case "http", "https", "s3":
	default:
		slog.Error("security_url_validation_failed", "url", raw, "reason", "scheme", "scheme", u.Scheme)
		return fmt.Errorf("security: unsupported asset url scheme %q", u.Scheme)
	}

	if u.Host == "" {
		slog.Error("security_url_validation_failed", "url", raw, "reason", "empty_host")
		return fmt.Errorf("security: asset url has no host: %s", raw)
	}
	return nil
}

// ValidateAssetPath checks that path resolves inside dir
func (v *Validator) ValidateAssetPath(dir, path string) error {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		slog.Error("security_path_validation_failed", "path", path, "dir", dir, "reason", "not_relative")
		return fmt.Errorf("security: asset path %s not under %s: %w", path, dir, err)
	}

	// Reject paths that start with .. (escape the asset directory)
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		slog.Error("security_path_validation_failed", "path", path, "dir", dir, "reason", "path_traversal")
		return fmt.Errorf("security: path traversal detected: %s", path)
	}

	return nil
}

// ValidateAssetSize checks if an asset exceeds the max asset size
func (v *Validator) ValidateAssetSize(size int64) error {
	if size <= 0 {
		slog.Error("security_asset_empty")
		return fmt.Errorf("security: empty asset")
	}
	if size > v.maxAssetSize {
		slog.Error("security_asset_size_exceeded",
			"asset_size_kb", size/1024,
			"max_asset_size_kb", v.maxAssetSize/1024)
		return fmt.Errorf("security: asset size %d exceeds max %d", size, v.maxAssetSize)
	}
	return nil
}

// ValidateImage sniffs the content and rejects anything that is not an image
func (v *Validator) ValidateImage(data []byte) error {
	if err := v.ValidateAssetSize(int64(len(data))); err != nil {
		return err
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		slog.Error("security_asset_not_image", "content_type", contentType, "size", len(data))
		return fmt.Errorf("security: asset is %s, not an image", contentType)
	}
	return nil
}
