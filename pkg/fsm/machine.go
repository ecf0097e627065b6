// Package fsm implements the durable single-record fetch workflow.
// It checks the local cache, fetches the record from the remote API, and
// persists it, using the superfly/fsm library so that an interrupted run is
// resumed and transient transport failures are retried.
package fsm

import (
	"context"

	"github.com/pokedexos/dexcache/pkg/errors"
	"github.com/superfly/fsm"
)

// Name is the registered workflow name
const Name = "record-fetch"

// Register registers the record fetch FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[FetchRequest, FetchResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[FetchRequest, FetchResponse](manager, Name).
		Start(StateCheckCache, m.handleCheckCache).
		To(StateFetch, m.handleFetch).
		To(StatePersist, m.handlePersist).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}
