// Package record defines the cached species record, the remote payload it is
// built from, and the identifier used to look records up.
package record

import (
	"strconv"
	"strings"
	"time"
)

// Record is one cached species entry
type Record struct {
	ID         int
	Name       string
	Categories []string
	// Height in meters, Weight in kilograms.
	Height float64
	Weight float64
	// AssetPath is empty when no local image exists.
	AssetPath   string
	LastUpdated time.Time
}

// HasAsset reports whether a local image was stored for the record.
func (r *Record) HasAsset() bool {
	return r.AssetPath != ""
}

// Summary is the (id, name) pair returned by store enumeration.
type Summary struct {
	ID   int
	Name string
}

// Description is localized flavor text for a record.
type Description struct {
	RecordID int
	Language string
	Text     string
}

// Identifier selects a record either by id or by name.
type Identifier struct {
	ID   int
	Name string
}

// ByID returns an identifier that selects by primary key.
func ByID(id int) Identifier {
	return Identifier{ID: id}
}

// ByName returns an identifier that selects by case-folded name.
func ByName(name string) Identifier {
	return Identifier{Name: strings.ToLower(strings.TrimSpace(name))}
}

// ParseIdentifier treats an all-digit string as an id and anything else as a name.
func ParseIdentifier(s string) Identifier {
	s = strings.TrimSpace(s)
	if isDigits(s) {
		if id, err := strconv.Atoi(s); err == nil {
			return ByID(id)
		}
	}
	return ByName(s)
}

// IsID reports whether the identifier selects by id.
func (i Identifier) IsID() bool {
	return i.Name == "" && i.ID > 0
}

// IsZero reports whether the identifier selects nothing.
func (i Identifier) IsZero() bool {
	return i.Name == "" && i.ID <= 0
}

// String returns the path segment used for remote lookups.
func (i Identifier) String() string {
	if i.IsID() {
		return strconv.Itoa(i.ID)
	}
	return i.Name
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
