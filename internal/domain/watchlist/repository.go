package watchlist

import (
	"context"

	"github.com/google/uuid"
)

// Store is the watchlist collaborator interface. ListActive feeds the
// screening fan-out; the mutating operations belong to list ingestion
// and never run on the screening path.
type Store interface {
	ListActive(ctx context.Context) ([]*Watchlist, error)
	Find(ctx context.Context, id uuid.UUID) (*Watchlist, error)
	Create(ctx context.Context, wl *Watchlist) error
	Deactivate(ctx context.Context, id uuid.UUID) error

	// BulkImport replaces the active version for (listType, source) with a
	// new versioned snapshot built from entries.
	BulkImport(ctx context.Context, name string, listType Type, source string, entries []Entry) (*Watchlist, error)
}
