package record

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pokedexos/dexcache/pkg/errors"
)

// unitScale converts remote decimeters and hectograms to meters and kilograms.
const unitScale = 10.0

// Payload is the remote species document as served by the API.
type Payload struct {
	ID      int           `json:"id"`
	Name    string        `json:"name"`
	Types   []TypeWrapper `json:"types"`
	Height  float64       `json:"height"`
	Weight  float64       `json:"weight"`
	Sprites Sprites       `json:"sprites"`
}

// TypeWrapper is one entry of the payload's types list.
type TypeWrapper struct {
	Slot int      `json:"slot,omitempty"`
	Type NamedRef `json:"type"`
}

// NamedRef is a named API resource reference.
type NamedRef struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Sprites holds image URLs. FrontDefault may be null upstream.
type Sprites struct {
	FrontDefault *string `json:"front_default"`
}

// ParsePayload decodes and validates a raw payload.
func ParsePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Mark(err, errors.ErrInvalidPayload, "decode payload")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the fields a Record needs.
func (p *Payload) Validate() error {
	if p.ID <= 0 {
		return fmt.Errorf("%w: id must be positive, got %d", errors.ErrInvalidPayload, p.ID)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: empty name for id %d", errors.ErrInvalidPayload, p.ID)
	}
	if len(p.Types) == 0 {
		return fmt.Errorf("%w: no types for id %d", errors.ErrInvalidPayload, p.ID)
	}
	for i, t := range p.Types {
		if t.Type.Name == "" {
			return fmt.Errorf("%w: empty type name at index %d for id %d", errors.ErrInvalidPayload, i, p.ID)
		}
	}
	if p.Height <= 0 || p.Weight <= 0 {
		return fmt.Errorf("%w: non-positive measurements for id %d", errors.ErrInvalidPayload, p.ID)
	}
	return nil
}

// AssetURL returns the sprite URL or "" when the payload has none.
func (p *Payload) AssetURL() string {
	if p.Sprites.FrontDefault == nil {
		return ""
	}
	return strings.TrimSpace(*p.Sprites.FrontDefault)
}

// Categories returns type names in payload order.
func (p *Payload) Categories() []string {
	out := make([]string, 0, len(p.Types))
	for _, t := range p.Types {
		out = append(out, t.Type.Name)
	}
	return out
}

// ToRecord converts the payload into a Record with normalized units.
// AssetPath and LastUpdated are left for the store to fill.
func (p *Payload) ToRecord() *Record {
	return &Record{
		ID:         p.ID,
		Name:       p.Name,
		Categories: p.Categories(),
		Height:     p.Height / unitScale,
		Weight:     p.Weight / unitScale,
	}
}
