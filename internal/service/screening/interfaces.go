package screening

import (
	"context"
	"time"

	"github.com/google/uuid"

	domain "github.com/complyco/entity-screening-backend/internal/domain/screening"
	"github.com/complyco/entity-screening-backend/internal/domain/watchlist"
	"github.com/complyco/entity-screening-backend/internal/service/providers"
)

// Matcher finds approximate and exact candidates for a search term
// within a watchlist's entries
type Matcher interface {
	FindMatches(query string, entries []watchlist.Entry, threshold int) []domain.MatchCandidate
	MatchIdentifier(field, value string, entries []watchlist.Entry) []domain.MatchCandidate
}

// Scorer turns the full candidate set into the authoritative verdict
type Scorer interface {
	CalculateRiskScore(matches []domain.MatchCandidate) int
	DetermineStatus(score int, matches []domain.MatchCandidate) domain.Status
	DetermineRiskLevel(matchScore int) domain.RiskLevel
}

// BureauGateway aggregates credit bureau reports. Partial results are
// expected: a failing bureau is simply absent from the returned map.
type BureauGateway interface {
	GetAllReports(ctx context.Context, entityID string) map[string]*providers.NormalizedReport
}

// JobQueue is the durable delivery channel between intake and workers
type JobQueue interface {
	Enqueue(ctx context.Context, job *domain.ScreeningJob) error
	Dequeue(ctx context.Context) (*domain.ScreeningJob, error)
	Retry(ctx context.Context, job *domain.ScreeningJob, cause error) error
}

// Deduper suppresses duplicate submissions within a time window
type Deduper interface {
	ReserveFingerprint(ctx context.Context, fingerprint, jobID string, window time.Duration) (holder string, reserved bool, err error)
	ReleaseFingerprint(ctx context.Context, fingerprint string)
}

// JobTracker records which accepted jobs have not produced their result
// yet, so retrieval can answer "pending" instead of "not found" while a
// job is in flight.
type JobTracker interface {
	MarkPending(ctx context.Context, jobID uuid.UUID, ttl time.Duration) error
	IsPending(ctx context.Context, jobID uuid.UUID) (bool, error)
	ClearPending(ctx context.Context, jobID uuid.UUID)
}

// Screener is the public surface consumed by the HTTP layer
type Screener interface {
	Screen(ctx context.Context, req domain.ScreeningRequest) (*domain.ScreeningJob, error)
	ProcessJob(ctx context.Context, job *domain.ScreeningJob) error
	GetResult(ctx context.Context, id uuid.UUID) (*domain.ScreeningResult, error)
	GetHistory(ctx context.Context, entityID string) ([]*domain.ScreeningResult, error)
	ReviewFalsePositive(ctx context.Context, id uuid.UUID, reviewedBy, notes string) (*domain.ScreeningResult, error)
}
