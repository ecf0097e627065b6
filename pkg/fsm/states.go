package fsm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pokedexos/dexcache/pkg/errors"
	"github.com/pokedexos/dexcache/pkg/lookup"
	"github.com/pokedexos/dexcache/pkg/record"
	"github.com/superfly/fsm"
)

// Machine holds dependencies for FSM transitions
type Machine struct {
	store      lookup.RecordStore
	remote     lookup.RemoteSource
	maxRetries int
}

// NewMachine creates a new FSM machine with dependencies
func NewMachine(store lookup.RecordStore, remote lookup.RemoteSource, maxRetries int) *Machine {
	return &Machine{
		store:      store,
		remote:     remote,
		maxRetries: maxRetries,
	}
}

func (m *Machine) checkRetries(ctx context.Context, state, identifier string) error {
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		slog.Error("max_retries_exceeded", "state", state, "identifier", identifier, "max_retries", m.maxRetries)
		return fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}
	return nil
}

// handleCheckCache short-circuits when the record is already stored (idempotency)
func (m *Machine) handleCheckCache(ctx context.Context, req *fsm.Request[FetchRequest, FetchResponse]) (*fsm.Response[FetchResponse], error) {
	slog.Info("fsm_state_check_cache", "identifier", req.Msg.Identifier)

	if err := m.checkRetries(ctx, StateCheckCache, req.Msg.Identifier); err != nil {
		return nil, err
	}

	id := record.ParseIdentifier(req.Msg.Identifier)
	if id.IsZero() {
		return nil, fsm.Abort(fmt.Errorf("empty identifier"))
	}

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		slog.Error("cache_check_failed", "identifier", req.Msg.Identifier, "error", err)
		return nil, fsm.Abort(errors.Wrap(err, "database error"))
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &FetchResponse{}
	}

	if rec != nil {
		resp.Cached = true
		resp.RecordID = rec.ID
		resp.Name = rec.Name
		resp.AssetPath = rec.AssetPath
		slog.Info("record_already_cached", "identifier", req.Msg.Identifier, "record_id", rec.ID)
	}

	return fsm.NewResponse(resp), nil
}

// handleFetch retrieves the payload from the remote API.
// Transport errors are returned for retry; not-found aborts the run.
func (m *Machine) handleFetch(ctx context.Context, req *fsm.Request[FetchRequest, FetchResponse]) (*fsm.Response[FetchResponse], error) {
	slog.Info("fsm_state_fetch", "identifier", req.Msg.Identifier)

	if err := m.checkRetries(ctx, StateFetch, req.Msg.Identifier); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if resp.Cached {
		return fsm.NewResponse(resp), nil
	}

	p, err := m.remote.Fetch(ctx, record.ParseIdentifier(req.Msg.Identifier))
	if err != nil {
		if errors.Is(err, errors.ErrNotFoundRemotely) {
			slog.Warn("remote_record_not_found", "identifier", req.Msg.Identifier)
			resp.Status = lookup.StatusNotFound.String()
			resp.ErrorMessage = err.Error()
			return nil, fsm.Abort(err)
		}
		slog.Error("remote_fetch_failed", "identifier", req.Msg.Identifier, "error", err)
		return nil, errors.Wrap(err, "failed to fetch record")
	}

	resp.Payload = p
	return fsm.NewResponse(resp), nil
}

// handlePersist writes the fetched payload through the record store
func (m *Machine) handlePersist(ctx context.Context, req *fsm.Request[FetchRequest, FetchResponse]) (*fsm.Response[FetchResponse], error) {
	slog.Info("fsm_state_persist", "identifier", req.Msg.Identifier)

	if err := m.checkRetries(ctx, StatePersist, req.Msg.Identifier); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if resp.Cached {
		return fsm.NewResponse(resp), nil
	}
	if resp.Payload == nil {
		return nil, fsm.Abort(fmt.Errorf("no payload to persist"))
	}

	if err := m.store.Store(ctx, resp.Payload); err != nil {
		slog.Error("persist_failed", "record_id", resp.Payload.ID, "error", err)
		return nil, errors.Wrap(err, "failed to persist record")
	}

	resp.RecordID = resp.Payload.ID
	return fsm.NewResponse(resp), nil
}

// handleComplete reads the record back and reports where it came from
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[FetchRequest, FetchResponse]) (*fsm.Response[FetchResponse], error) {
	slog.Info("fsm_state_complete", "identifier", req.Msg.Identifier)

	if err := m.checkRetries(ctx, StateComplete, req.Msg.Identifier); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	rec, err := m.store.Get(ctx, record.ByID(resp.RecordID))
	if err != nil {
		slog.Error("failed_to_load_record", "record_id", resp.RecordID, "error", err)
		return nil, fsm.Abort(errors.Wrap(err, "failed to load record"))
	}
	if rec == nil {
		slog.Error("record_not_found_after_persist", "record_id", resp.RecordID)
		return nil, fsm.Abort(fmt.Errorf("record %d not found in database", resp.RecordID))
	}

	resp.Name = rec.Name
	resp.AssetPath = rec.AssetPath
	resp.Payload = nil
	if resp.Cached {
		resp.Status = StatusCached
	} else {
		resp.Status = StatusStored
	}

	slog.Info("fsm_complete", "identifier", req.Msg.Identifier, "record_id", rec.ID, "status", resp.Status)
	return fsm.NewResponse(resp), nil
}
