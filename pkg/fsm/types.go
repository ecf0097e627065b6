package fsm

import "github.com/pokedexos/dexcache/pkg/record"

// FetchRequest is the FSM input
type FetchRequest struct {
	Identifier string
}

// FetchResponse is the FSM output (accumulated across transitions)
type FetchResponse struct {
	// From CheckCache
	Cached bool

	// From Fetch
	Payload *record.Payload

	// From Persist/Complete
	RecordID  int
	Name      string
	AssetPath string

	// From Complete/Failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StateCheckCache = "check_cache"
	StateFetch      = "fetch"
	StatePersist    = "persist"
	StateComplete   = "complete"
	StateFailed     = "failed"
)

// Status values reported in FetchResponse.Status
const (
	StatusCached = "cached"
	StatusStored = "stored"
)
