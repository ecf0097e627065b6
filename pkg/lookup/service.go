// Package lookup resolves records local-first with remote fallback and
// pre-warms the cache over id ranges.
package lookup

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pokedexos/dexcache/pkg/errors"
	"github.com/pokedexos/dexcache/pkg/metrics"
	"github.com/pokedexos/dexcache/pkg/record"
)

// RemoteSource is the upstream species API.
// Fetch returns errors.ErrNotFoundRemotely for unknown entities; any other
// error is a transport failure. Probe checks reachability.
type RemoteSource interface {
	Fetch(ctx context.Context, id record.Identifier) (*record.Payload, error)
	Probe(ctx context.Context) error
}

// RecordStore is the persistence contract the service relies on.
type RecordStore interface {
	Get(ctx context.Context, id record.Identifier) (*record.Record, error)
	Store(ctx context.Context, p *record.Payload) error
}

// Status tags the outcome of a resolve.
type Status int

const (
	// StatusCacheHit means the record came from the local store without network access.
	StatusCacheHit Status = iota
	// StatusFetched means the record was fetched, stored, and read back.
	StatusFetched
	// StatusRemoteUnavailable means not cached and known offline.
	StatusRemoteUnavailable
	// StatusNotFound means not cached and the remote has no such entity.
	StatusNotFound
	// StatusRemoteFetchFailed means not cached and the remote call failed.
	StatusRemoteFetchFailed
)

func (s Status) String() string {
	switch s {
	case StatusCacheHit:
		return "cache_hit"
	case StatusFetched:
		return "fetched"
	case StatusRemoteUnavailable:
		return "remote_unavailable"
	case StatusNotFound:
		return "not_found"
	case StatusRemoteFetchFailed:
		return "remote_fetch_failed"
	default:
		return "unknown"
	}
}

// Found reports whether the status carries a record.
func (s Status) Found() bool {
	return s == StatusCacheHit || s == StatusFetched
}

// Result is the tagged outcome of Resolve.
type Result struct {
	Status Status
	Record *record.Record
	// Err holds the remote cause for StatusNotFound and StatusRemoteFetchFailed.
	Err error
}

// Options tune the service. Zero values take defaults.
type Options struct {
	// ItemTimeout bounds each remote fetch plus store during bulk warm.
	ItemTimeout time.Duration
	// FetchTimeout bounds the remote fetch plus store of a single resolve.
	FetchTimeout time.Duration
	Metrics      *metrics.Metrics
}

const (
	defaultItemTimeout  = 15 * time.Second
	defaultFetchTimeout = 20 * time.Second
)

// Service orchestrates local-first resolution
type Service struct {
	store   RecordStore
	remote  RemoteSource
	opts    Options
	metrics *metrics.Metrics

	// offline is set only by ProbeConnectivity. The zero value assumes online
	// until a probe says otherwise.
	offline atomic.Bool
}

// NewService wires the store and the remote source
func NewService(store RecordStore, remote RemoteSource, opts Options) *Service {
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = defaultItemTimeout
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	return &Service{store: store, remote: remote, opts: opts, metrics: opts.Metrics}
}

// Online reports the connectivity flag from the last probe
func (s *Service) Online() bool {
	return !s.offline.Load()
}

// ProbeConnectivity checks the remote and updates the connectivity flag.
// It never fails; any error counts as offline.
func (s *Service) ProbeConnectivity(ctx context.Context) bool {
	err := s.remote.Probe(ctx)
	online := err == nil
	s.offline.Store(!online)
	s.metrics.SetConnectivity(online)

	if online {
		slog.Info("connectivity_probe", "online", true)
	} else {
		slog.Warn("connectivity_probe", "online", false, "error", err)
	}
	return online
}

// ResolveString parses a user-supplied identifier and resolves it
func (s *Service) ResolveString(ctx context.Context, raw string) (*Result, error) {
	return s.Resolve(ctx, record.ParseIdentifier(raw))
}

// ResolveOnDemand resolves raw and probes connectivity only on a miss. A cache
// hit never touches the network. A failed fetch followed by a failed probe is
// reported as StatusRemoteUnavailable; a miss while known offline is retried
// once if a fresh probe succeeds.
func (s *Service) ResolveOnDemand(ctx context.Context, raw string) (*Result, error) {
	id := record.ParseIdentifier(raw)
	res, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	switch res.Status {
	case StatusRemoteFetchFailed:
		if !s.ProbeConnectivity(ctx) {
			return &Result{
				Status: StatusRemoteUnavailable,
				Err:    errors.Mark(res.Err, errors.ErrRemoteUnavailable, "fetch "+id.String()),
			}, nil
		}
	case StatusRemoteUnavailable:
		if s.ProbeConnectivity(ctx) {
			return s.Resolve(ctx, id)
		}
	}
	return res, nil
}

// Resolve returns the record for id, from the store when cached and from the
// remote otherwise. Soft failures come back as a Result status; the error
// return is reserved for local store failures.
func (s *Service) Resolve(ctx context.Context, id record.Identifier) (*Result, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		slog.Error("lookup_store_read_failed", "identifier", id.String(), "error", err)
		return nil, errors.Wrap(err, "local lookup")
	}
	if rec != nil {
		return s.done(id, &Result{Status: StatusCacheHit, Record: rec}), nil
	}

	if id.IsZero() {
		return s.done(id, &Result{Status: StatusNotFound, Err: errors.ErrNotFoundRemotely}), nil
	}

	if !s.Online() {
		return s.done(id, &Result{Status: StatusRemoteUnavailable, Err: errors.ErrRemoteUnavailable}), nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	p, err := s.remote.Fetch(fetchCtx, id)
	if err != nil {
		if errors.Is(err, errors.ErrNotFoundRemotely) {
			return s.done(id, &Result{Status: StatusNotFound, Err: err}), nil
		}
		return s.done(id, &Result{Status: StatusRemoteFetchFailed, Err: err}), nil
	}

	if err := s.store.Store(fetchCtx, p); err != nil {
		slog.Error("lookup_store_write_failed", "record_id", p.ID, "error", err)
		return nil, errors.Wrap(err, "persist fetched record")
	}

	// Read back through the same path a cache hit takes.
	rec, err = s.store.Get(ctx, record.ByID(p.ID))
	if err != nil {
		return nil, errors.Wrap(err, "read back fetched record")
	}
	if rec == nil {
		return nil, errors.Mark(errors.New("record missing after store"), errors.ErrPersistence, "read back fetched record")
	}
	return s.done(id, &Result{Status: StatusFetched, Record: rec}), nil
}

func (s *Service) done(id record.Identifier, r *Result) *Result {
	s.metrics.ObserveLookup(r.Status.String())
	attrs := []any{"identifier", id.String(), "status", r.Status.String()}
	if r.Record != nil {
		attrs = append(attrs, "record_id", r.Record.ID)
	}
	if r.Err != nil {
		attrs = append(attrs, "error", r.Err)
	}
	slog.Info("lookup_resolved", attrs...)
	return r
}
