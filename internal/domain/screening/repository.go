package screening

import (
	"context"

	"github.com/google/uuid"
)

// ResultStore persists screening outcomes. SaveResult must write the
// result and its matches atomically: a result without its matches (or the
// reverse) is never observable. SaveResult is an upsert keyed by result
// ID so job redelivery is idempotent.
type ResultStore interface {
	SaveResult(ctx context.Context, result *ScreeningResult) error
	FindResult(ctx context.Context, id uuid.UUID) (*ScreeningResult, error)
	UpdateReview(ctx context.Context, id uuid.UUID, reviewedBy, notes string) (*ScreeningResult, error)
	ListByEntity(ctx context.Context, entityID string) ([]*ScreeningResult, error)
}
