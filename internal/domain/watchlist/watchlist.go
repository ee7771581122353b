package watchlist

import (
	"time"

	"github.com/google/uuid"
)

// Type categorizes a watchlist for risk weighting
type Type string

const (
	TypeSanctions    Type = "sanctions"
	TypePEP          Type = "pep"
	TypeAdverseMedia Type = "adverse_media"
	TypeCustom       Type = "custom"
)

func (t Type) Valid() bool {
	switch t {
	case TypeSanctions, TypePEP, TypeAdverseMedia, TypeCustom:
		return true
	}
	return false
}

// Entry is one record on a watchlist: the name variants it is known
// under plus exact identifiers (passport numbers, registration ids).
type Entry struct {
	Ref         string            `json:"ref"`
	Names       []string          `json:"names"`
	Identifiers map[string]string `json:"identifiers,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Watchlist is a versioned snapshot of one list. Read-mostly: the
// screening path never mutates it, only bulk imports create new
// versions.
type Watchlist struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Type       Type      `json:"type"`
	Source     string    `json:"source"`
	Version    int       `json:"version"`
	Active     bool      `json:"active"`
	ImportedAt time.Time `json:"imported_at"`
	Entries    []Entry   `json:"entries"`
}
