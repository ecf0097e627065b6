package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pokedexos/dexcache/pkg/errors"
)

// AssetPath is the deterministic sprite location for a record id
func (s *Store) AssetPath(id int) string {
	return filepath.Join(s.assetDir, strconv.Itoa(id)+AssetExt)
}

// EnsureAsset returns the local sprite path for id, downloading it from url
// only when no file exists yet. Concurrent calls for the same id share one
// download. When nothing could be stored the error is marked errors.ErrNoAsset
// and the path is empty.
func (s *Store) EnsureAsset(ctx context.Context, id int, url string) (string, error) {
	path := s.AssetPath(id)
	if fileExists(path) {
		slog.Debug("asset_cache_hit", "record_id", id, "path", path)
		s.metrics.ObserveAsset("cached")
		return path, nil
	}

	_, err, _ := s.flights.Do(strconv.Itoa(id), func() (any, error) {
		if fileExists(path) {
			return nil, nil
		}
		return nil, s.downloadAsset(ctx, id, url, path)
	})
	if err != nil {
		// A concurrent writer may have produced the file in the meantime.
		if fileExists(path) {
			return path, nil
		}
		s.metrics.ObserveAsset("failed")
		return "", errors.Mark(err, errors.ErrNoAsset, fmt.Sprintf("asset for record %d", id))
	}
	return path, nil
}

// downloadAsset fetches and validates the bytes, writes them to a temp file in
// the asset directory and renames it into place. Partial downloads are removed.
func (s *Store) downloadAsset(ctx context.Context, id int, url, path string) error {
	if s.fetcher == nil {
		return fmt.Errorf("asset fetching disabled")
	}
	if err := s.validator.ValidateAssetURL(url); err != nil {
		return err
	}
	if err := s.validator.ValidateAssetPath(s.assetDir, path); err != nil {
		return err
	}

	slog.Info("asset_download_start", "record_id", id, "url", url)

	data, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := s.validator.ValidateImage(data); err != nil {
		return err
	}

	if err := ensureDir(s.assetDir); err != nil {
		return errors.Mark(err, errors.ErrPersistence, "failed to create asset directory")
	}

	tmp, err := os.CreateTemp(s.assetDir, assetTempPrefix+"*")
	if err != nil {
		return errors.Mark(err, errors.ErrPersistence, "failed to create temp asset")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Mark(err, errors.ErrPersistence, "failed to write asset")
	}
	if err := tmp.Close(); err != nil {
		return errors.Mark(err, errors.ErrPersistence, "failed to close asset")
	}

	s.mu.Lock()
	err = os.Rename(tmpPath, path)
	s.mu.Unlock()
	if err != nil {
		return errors.Mark(err, errors.ErrPersistence, "failed to move asset into place")
	}

	s.metrics.ObserveAsset("downloaded")
	slog.Info("asset_download_complete", "record_id", id, "path", path, "size", len(data))
	return nil
}
