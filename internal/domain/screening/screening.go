package screening

import (
	"time"

	"github.com/google/uuid"

	"github.com/complyco/entity-screening-backend/internal/domain/errors"
)

// EntityType identifies the kind of entity being screened
type EntityType string

const (
	EntityTypePerson       EntityType = "person"
	EntityTypeOrganization EntityType = "organization"
)

func (t EntityType) Valid() bool {
	return t == EntityTypePerson || t == EntityTypeOrganization
}

// Screening data fields recognized by the matching pipeline. Identifier
// fields are compared for equality instead of fuzzy similarity.
const (
	FieldFirstName      = "firstName"
	FieldLastName       = "lastName"
	FieldFullName       = "fullName"
	FieldPassportNumber = "passportNumber"
)

// IdentifierFields lists screening data fields that carry exact identifiers.
var IdentifierFields = map[string]bool{
	FieldPassportNumber: true,
}

// ScreeningRequest is the immutable intake payload. Once enqueued it is
// never mutated; the job wraps it with delivery bookkeeping.
type ScreeningRequest struct {
	EntityID      string            `json:"entity_id" validate:"required"`
	EntityType    EntityType        `json:"entity_type" validate:"required,oneof=person organization"`
	ScreeningData map[string]string `json:"screening_data" validate:"required,min=1"`
}

// JobStatus tracks a screening job through the queue lifecycle
type JobStatus string

const (
	JobStatusPending      JobStatus = "pending"
	JobStatusProcessing   JobStatus = "processing"
	JobStatusSucceeded    JobStatus = "succeeded"
	JobStatusFailed       JobStatus = "failed"
	JobStatusDeadLettered JobStatus = "dead_lettered"
)

// ScreeningJob wraps a request for at-least-once queue delivery. The queue
// owns the job until a worker claims it; results flow back through the
// result store keyed by JobID so re-deliveries are safe to repeat.
type ScreeningJob struct {
	JobID      uuid.UUID        `json:"job_id"`
	Request    ScreeningRequest `json:"request"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
	Attempt    int              `json:"attempt"`
	Status     JobStatus        `json:"status"`
}

// NewJob wraps a validated request into a pending job
func NewJob(req ScreeningRequest) (*ScreeningJob, error) {
	if req.EntityID == "" {
		return nil, errors.NewValidationError("MISSING_ENTITY_ID", "entity id is required")
	}
	if !req.EntityType.Valid() {
		return nil, errors.NewValidationError("INVALID_ENTITY_TYPE", "entity type must be person or organization")
	}
	if len(req.ScreeningData) == 0 {
		return nil, errors.NewValidationError("EMPTY_SCREENING_DATA", "screening data must contain at least one field")
	}

	return &ScreeningJob{
		JobID:      uuid.New(),
		Request:    req,
		EnqueuedAt: time.Now().UTC(),
		Attempt:    0,
		Status:     JobStatusPending,
	}, nil
}

// MatchCandidate is a transient (searchTerm, watchlistEntry) similarity
// above the screening threshold. Only candidates that survive scoring are
// persisted as ScreeningMatch rows.
type MatchCandidate struct {
	Score         int       `json:"score"` // 0-100
	MatchedField  string    `json:"matched_field"`
	MatchedName   string    `json:"matched_name"`
	WatchlistID   uuid.UUID `json:"watchlist_id"`
	WatchlistType string    `json:"watchlist_type"`
	EntryRef      string    `json:"entry_ref"`
}
