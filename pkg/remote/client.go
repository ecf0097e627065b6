// Package remote is the HTTP client for the species API that fills cache misses.
package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pokedexos/dexcache/pkg/errors"
	"github.com/pokedexos/dexcache/pkg/metrics"
	"github.com/pokedexos/dexcache/pkg/record"
)

// Config holds client settings. Zero fields take DefaultConfig values.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	ProbeTimeout time.Duration
	// ProbeID is a record known to exist upstream.
	ProbeID   int
	CacheTTL  time.Duration
	UserAgent string
	MaxBody   int64
}

// DefaultConfig returns settings for the public PokeAPI.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://pokeapi.co/api/v2",
		Timeout:      10 * time.Second,
		ProbeTimeout: 3 * time.Second,
		ProbeID:      1,
		CacheTTL:     10 * time.Minute,
		UserAgent:    "dexcache/1.0",
		MaxBody:      4 * 1024 * 1024,
	}
}

// Client fetches species payloads. Recent answers, including "does not
// exist", are memoized so repeated lookups do not hit the API again.
type Client struct {
	config     Config
	httpClient *http.Client
	cache      *cache.Cache
	metrics    *metrics.Metrics
}

type notFoundMarker struct{}

// NewClient creates a client. A nil httpClient gets one with no global timeout;
// every request is bounded by its own context deadline instead.
func NewClient(config Config, httpClient *http.Client, m *metrics.Metrics) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = def.ProbeTimeout
	}
	if config.ProbeID == 0 {
		config.ProbeID = def.ProbeID
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = def.CacheTTL
	}
	if config.MaxBody == 0 {
		config.MaxBody = def.MaxBody
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	slog.Info("remote_client_init",
		"base_url", config.BaseURL,
		"timeout", config.Timeout,
		"probe_timeout", config.ProbeTimeout,
		"cache_ttl", config.CacheTTL)

	return &Client{
		config:     config,
		httpClient: httpClient,
		cache:      cache.New(config.CacheTTL, config.CacheTTL*2),
		metrics:    m,
	}
}

// Fetch retrieves the payload for an identifier.
// It returns errors.ErrNotFoundRemotely when the API has no such entity and
// errors.ErrTransport for every other failure.
func (c *Client) Fetch(ctx context.Context, id record.Identifier) (*record.Payload, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("%w: empty identifier", errors.ErrNotFoundRemotely)
	}
	key := id.String()

	if cached, found := c.cache.Get(key); found {
		switch v := cached.(type) {
		case *record.Payload:
			slog.Debug("remote_cache_hit", "key", key)
			return v, nil
		case notFoundMarker:
			slog.Debug("remote_negative_cache_hit", "key", key)
			return nil, fmt.Errorf("%w: %s", errors.ErrNotFoundRemotely, key)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, status, err := c.get(reqCtx, c.pokemonURL(key))
	if err != nil {
		c.metrics.ObserveRemote("fetch", "error")
		return nil, errors.Mark(err, errors.ErrTransport, "fetch "+key)
	}

	switch {
	case status == http.StatusNotFound:
		c.metrics.ObserveRemote("fetch", "not_found")
		c.cache.Set(key, notFoundMarker{}, cache.DefaultExpiration)
		slog.Info("remote_not_found", "key", key)
		return nil, fmt.Errorf("%w: %s", errors.ErrNotFoundRemotely, key)
	case status < 200 || status > 299:
		c.metrics.ObserveRemote("fetch", "error")
		slog.Warn("remote_bad_status", "key", key, "status", status)
		return nil, errors.Mark(fmt.Errorf("status %d", status), errors.ErrTransport, "fetch "+key)
	}

	p, err := record.ParsePayload(body)
	if err != nil {
		c.metrics.ObserveRemote("fetch", "malformed")
		slog.Warn("remote_malformed_payload", "key", key, "error", err)
		return nil, errors.Mark(err, errors.ErrTransport, "fetch "+key)
	}

	c.metrics.ObserveRemote("fetch", "ok")
	// Memoize under both spellings so name and id lookups share the entry.
	c.cache.Set(key, p, cache.DefaultExpiration)
	c.cache.Set(strconv.Itoa(p.ID), p, cache.DefaultExpiration)
	c.cache.Set(strings.ToLower(p.Name), p, cache.DefaultExpiration)

	slog.Info("remote_fetch_complete", "key", key, "record_id", p.ID, "name", p.Name)
	return p, nil
}

// Probe fetches the known-good record with a short timeout, bypassing the memo.
func (c *Client) Probe(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.ProbeTimeout)
	defer cancel()

	_, status, err := c.get(reqCtx, c.pokemonURL(strconv.Itoa(c.config.ProbeID)))
	if err != nil {
		c.metrics.ObserveRemote("probe", "error")
		return errors.Mark(err, errors.ErrTransport, "probe")
	}
	if status < 200 || status > 299 {
		c.metrics.ObserveRemote("probe", "error")
		return errors.Mark(fmt.Errorf("status %d", status), errors.ErrTransport, "probe")
	}
	c.metrics.ObserveRemote("probe", "ok")
	return nil
}

// Forget drops every memoized answer.
func (c *Client) Forget() {
	c.cache.Flush()
}

// pokemonURL escapes key as a single path segment so names carrying
// '?', '#' or '/' cannot address another resource.
func (c *Client) pokemonURL(key string) string {
	return c.config.BaseURL + "/pokemon/" + url.PathEscape(key)
}

func (c *Client) get(ctx context.Context, target string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("remote_request_failed", "url", target, "error", err)
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBody))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
