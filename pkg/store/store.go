// Package store is the persistent record cache: a SQLite table of records plus
// a directory holding one sprite file per cached record.
package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pokedexos/dexcache/pkg/db"
	"github.com/pokedexos/dexcache/pkg/errors"
	"github.com/pokedexos/dexcache/pkg/metrics"
	"github.com/pokedexos/dexcache/pkg/record"
	"github.com/pokedexos/dexcache/pkg/security"
	"github.com/pokedexos/dexcache/pkg/storage"
	"golang.org/x/sync/singleflight"
)

// AssetExt is the extension of every cached sprite file.
const AssetExt = ".png"

const assetTempPrefix = ".asset-"

// Config holds the store's paths and collaborators
type Config struct {
	DBPath   string
	AssetDir string

	// Fetcher downloads sprites. Nil disables asset caching.
	Fetcher   storage.Fetcher
	Validator *security.Validator
	Metrics   *metrics.Metrics

	// Now overrides the clock for last_updated.
	Now func() time.Time
}

// Store provides record persistence with upsert semantics
type Store struct {
	repo      *db.Repository
	assetDir  string
	fetcher   storage.Fetcher
	validator *security.Validator
	metrics   *metrics.Metrics
	now       func() time.Time

	// mu serializes every mutation of the table and the asset directory.
	mu        sync.Mutex
	lastWrite time.Time

	flights singleflight.Group
}

// Open creates the directories if needed and opens the database
func Open(cfg Config) (*Store, error) {
	if cfg.DBPath == "" || cfg.AssetDir == "" {
		return nil, errors.New("store: db path and asset dir are required")
	}

	if err := ensureDir(filepath.Dir(cfg.DBPath)); err != nil {
		return nil, errors.Mark(err, errors.ErrPersistence, "failed to create database directory")
	}
	if err := ensureDir(cfg.AssetDir); err != nil {
		return nil, errors.Mark(err, errors.ErrPersistence, "failed to create asset directory")
	}

	repo, err := db.NewRepository(cfg.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "db init failed")
	}

	s := &Store{
		repo:      repo,
		assetDir:  cfg.AssetDir,
		fetcher:   cfg.Fetcher,
		validator: cfg.Validator,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
	}
	if s.validator == nil {
		s.validator = security.NewValidator(security.DefaultMaxAssetSize)
	}
	if s.now == nil {
		s.now = time.Now
	}

	slog.Info("record_store_open", "db_path", cfg.DBPath, "asset_dir", cfg.AssetDir)
	return s, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	slog.Info("record_store_close")
	return s.repo.Close()
}

// Repository exposes the underlying table for auxiliary data such as descriptions
func (s *Store) Repository() *db.Repository {
	return s.repo
}

// AssetDir returns the sprite directory
func (s *Store) AssetDir() string {
	return s.assetDir
}

// StoreRaw parses a raw JSON payload and stores it
func (s *Store) StoreRaw(ctx context.Context, data []byte) error {
	p, err := record.ParsePayload(data)
	if err != nil {
		return err
	}
	return s.Store(ctx, p)
}

// Store converts the payload into a record, caches its sprite when possible,
// and upserts the record with a fresh last_updated.
// Asset failures never fail the call; database failures do.
func (s *Store) Store(ctx context.Context, p *record.Payload) error {
	if err := p.Validate(); err != nil {
		return err
	}
	rec := p.ToRecord()

	if url := p.AssetURL(); url != "" {
		path, err := s.EnsureAsset(ctx, p.ID, url)
		if err != nil {
			slog.Warn("record_store_asset_unavailable", "record_id", p.ID, "error", err)
		}
		rec.AssetPath = path
	} else if path := s.AssetPath(p.ID); fileExists(path) {
		rec.AssetPath = path
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.LastUpdated = s.stamp()
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return errors.Wrap(err, "store record "+strconv.Itoa(rec.ID))
	}

	slog.Info("record_stored", "record_id", rec.ID, "name", rec.Name, "has_asset", rec.HasAsset())
	return nil
}

// stamp returns a write time that never goes backwards within this store.
// Callers hold s.mu.
func (s *Store) stamp() time.Time {
	now := s.now().UTC()
	if now.Before(s.lastWrite) {
		now = s.lastWrite
	}
	s.lastWrite = now
	return now
}

// Get returns the record for the identifier, or nil when it is not cached
func (s *Store) Get(ctx context.Context, id record.Identifier) (*record.Record, error) {
	switch {
	case id.IsZero():
		return nil, nil
	case id.IsID():
		return s.repo.GetByID(ctx, id.ID)
	default:
		return s.repo.GetByName(ctx, id.Name)
	}
}

// GetByID is Get(ctx, record.ByID(id))
func (s *Store) GetByID(ctx context.Context, id int) (*record.Record, error) {
	return s.Get(ctx, record.ByID(id))
}

// Lookup parses a user-supplied identifier and calls Get
func (s *Store) Lookup(ctx context.Context, raw string) (*record.Record, error) {
	return s.Get(ctx, record.ParseIdentifier(raw))
}

// Exists reports whether the identifier is cached
func (s *Store) Exists(ctx context.Context, id record.Identifier) (bool, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// ListAll returns (id, name) for every record in ascending id order
func (s *Store) ListAll(ctx context.Context) ([]record.Summary, error) {
	return s.repo.List(ctx)
}

// Count returns the number of cached records
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Neighbor returns the next (or previous) cached id, or 0 at either end
func (s *Store) Neighbor(ctx context.Context, id int, next bool) (int, error) {
	return s.repo.Neighbor(ctx, id, next)
}

// NeighborOf returns the cached record adjacent to id, or nil when there is
// none. A name must itself be cached to have neighbors; a numeric id need not.
func (s *Store) NeighborOf(ctx context.Context, id record.Identifier, next bool) (*record.Record, error) {
	pivot := id.ID
	if !id.IsID() {
		rec, err := s.Get(ctx, id)
		if err != nil || rec == nil {
			return nil, err
		}
		pivot = rec.ID
	}

	n, err := s.Neighbor(ctx, pivot, next)
	if err != nil || n == 0 {
		return nil, err
	}
	return s.GetByID(ctx, n)
}

// Clear deletes all records, descriptions and asset files.
// The asset directory itself and any foreign files in it are kept.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slog.Info("record_store_clear", "asset_dir", s.assetDir)

	if err := s.repo.DeleteAll(ctx); err != nil {
		return errors.Wrap(err, "clear records")
	}

	entries, err := os.ReadDir(s.assetDir)
	if err != nil && !os.IsNotExist(err) {
		return errors.Mark(err, errors.ErrPersistence, "failed to read asset directory")
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !isAssetFile(entry.Name()) {
			continue
		}
		path := filepath.Join(s.assetDir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Error("asset_remove_failed", "path", path, "error", err)
			return errors.Mark(err, errors.ErrPersistence, "failed to remove asset")
		}
		removed++
	}

	if err := ensureDir(s.assetDir); err != nil {
		return errors.Mark(err, errors.ErrPersistence, "failed to recreate asset directory")
	}

	slog.Info("record_store_cleared", "assets_removed", removed)
	return nil
}

// isAssetFile matches cached sprites and interrupted download temp files.
func isAssetFile(name string) bool {
	return strings.HasSuffix(name, AssetExt) || strings.HasPrefix(name, assetTempPrefix)
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
