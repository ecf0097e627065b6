package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pokedexos/dexcache/internal/config"
	"github.com/pokedexos/dexcache/pkg/errors"
	"github.com/pokedexos/dexcache/pkg/lookup"
	"github.com/pokedexos/dexcache/pkg/metrics"
	"github.com/pokedexos/dexcache/pkg/remote"
	"github.com/pokedexos/dexcache/pkg/security"
	"github.com/pokedexos/dexcache/pkg/storage"
	"github.com/pokedexos/dexcache/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
)

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(dbPath, fsmDBPath string) error {
	// Create database directory
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	// Create FSM database directory (only needed for fetch command)
	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config invalid")
	}
	return cfg, nil
}

// app bundles the store, remote client and lookup service one command uses
type app struct {
	cfg      *config.Config
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    *store.Store
	remote   *remote.Client
	service  *lookup.Service
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := ensureDirectories(cfg.DBPath, ""); err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		return nil, errors.Wrap(err, "metrics init failed")
	}

	validator := security.NewValidator(cfg.MaxAssetSize)

	router := &storage.Router{
		HTTP: storage.NewHTTPFetcher(nil, cfg.MaxAssetSize, "dexcache/1.0"),
	}
	if s3Client, err := storage.NewS3Client(ctx, cfg.S3Region, cfg.MaxAssetSize); err != nil {
		slog.Warn("s3_unavailable", "error", err)
	} else {
		router.S3 = s3Client
	}

	st, err := store.Open(store.Config{
		DBPath:    cfg.DBPath,
		AssetDir:  cfg.AssetDir,
		Fetcher:   router,
		Validator: validator,
		Metrics:   m,
	})
	if err != nil {
		return nil, errors.Wrap(err, "store init failed")
	}

	rc := remote.NewClient(remote.Config{
		BaseURL:      cfg.APIBaseURL,
		Timeout:      cfg.HTTPTimeout,
		ProbeTimeout: cfg.ProbeTimeout,
		ProbeID:      cfg.ProbeID,
		CacheTTL:     cfg.RemoteCacheTTL,
	}, nil, m)

	svc := lookup.NewService(st, rc, lookup.Options{
		ItemTimeout: cfg.ItemTimeout,
		Metrics:     m,
	})

	return &app{
		cfg:      cfg,
		registry: registry,
		metrics:  m,
		store:    st,
		remote:   rc,
		service:  svc,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
