package screening

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/complyco/entity-screening-backend/internal/domain/errors"
	domain "github.com/complyco/entity-screening-backend/internal/domain/screening"
	"github.com/complyco/entity-screening-backend/internal/domain/watchlist"
	"github.com/complyco/entity-screening-backend/internal/infrastructure/repository"
	"github.com/complyco/entity-screening-backend/internal/metrics"
	"github.com/complyco/entity-screening-backend/internal/service/matching"
	"github.com/complyco/entity-screening-backend/internal/service/providers"
	"github.com/complyco/entity-screening-backend/internal/service/scoring"
)

// fakeQueue records enqueued jobs without a broker
type fakeQueue struct {
	mu       sync.Mutex
	enqueued []*domain.ScreeningJob
	retried  []*domain.ScreeningJob
}

func (q *fakeQueue) Enqueue(ctx context.Context, job *domain.ScreeningJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, job)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (*domain.ScreeningJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.enqueued) == 0 {
		return nil, nil
	}
	job := q.enqueued[0]
	q.enqueued = q.enqueued[1:]
	return job, nil
}

func (q *fakeQueue) Retry(ctx context.Context, job *domain.ScreeningJob, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retried = append(q.retried, job)
	return nil
}

// fakeDeduper is an in-memory fingerprint registry
type fakeDeduper struct {
	mu     sync.Mutex
	claims map[string]string
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{claims: make(map[string]string)}
}

func (d *fakeDeduper) ReserveFingerprint(ctx context.Context, fingerprint, jobID string, window time.Duration) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if holder, ok := d.claims[fingerprint]; ok {
		return holder, false, nil
	}
	d.claims[fingerprint] = jobID
	return jobID, true, nil
}

func (d *fakeDeduper) ReleaseFingerprint(ctx context.Context, fingerprint string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claims, fingerprint)
}

// fakeTracker records pending markers in memory
type fakeTracker struct {
	mu      sync.Mutex
	pending map[uuid.UUID]bool
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{pending: make(map[uuid.UUID]bool)}
}

func (t *fakeTracker) MarkPending(ctx context.Context, jobID uuid.UUID, ttl time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[jobID] = true
	return nil
}

func (t *fakeTracker) IsPending(ctx context.Context, jobID uuid.UUID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending[jobID], nil
}

func (t *fakeTracker) ClearPending(ctx context.Context, jobID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, jobID)
}

// fakeBureaus returns a fixed report map
type fakeBureaus struct {
	reports map[string]*providers.NormalizedReport
}

func (b *fakeBureaus) GetAllReports(ctx context.Context, entityID string) map[string]*providers.NormalizedReport {
	if b.reports == nil {
		return map[string]*providers.NormalizedReport{}
	}
	return b.reports
}

type fixture struct {
	service    *Service
	queue      *fakeQueue
	watchlists *repository.MemoryWatchlistStore
	results    *repository.MemoryResultStore
	bureaus    *fakeBureaus
	tracker    *fakeTracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		queue:      &fakeQueue{},
		watchlists: repository.NewMemoryWatchlistStore(),
		results:    repository.NewMemoryResultStore(),
		bureaus:    &fakeBureaus{},
		tracker:    newFakeTracker(),
	}
	f.service = NewService(
		Config{MatchThreshold: 75, JobTimeout: 30 * time.Second, DedupeWindow: time.Hour},
		f.watchlists,
		f.results,
		matching.NewEngine(),
		scoring.NewEngine(scoring.DefaultConfig()),
		f.bureaus,
		f.queue,
		newFakeDeduper(),
		f.tracker,
		zaptest.NewLogger(t),
		metrics.NewRegistry(prometheus.NewRegistry()),
	)
	return f
}

func (f *fixture) importSanctionsList(t *testing.T) *watchlist.Watchlist {
	t.Helper()
	wl, err := f.watchlists.BulkImport(context.Background(), "OFAC SDN", watchlist.TypeSanctions, "ofac", []watchlist.Entry{
		{Ref: "SDN-6365", Names: []string{"Usama Bin Ladin"}},
		{Ref: "SDN-1001", Names: []string{"Maria Gonzalez"}, Identifiers: map[string]string{domain.FieldPassportNumber: "X1234567"}},
	})
	require.NoError(t, err)
	return wl
}

func personRequest(name string) domain.ScreeningRequest {
	return domain.ScreeningRequest{
		EntityID:      "cust-001",
		EntityType:    domain.EntityTypePerson,
		ScreeningData: map[string]string{domain.FieldFullName: name},
	}
}

func TestScreen_ValidatesAndEnqueues(t *testing.T) {
	f := newFixture(t)

	job, err := f.service.Screen(context.Background(), personRequest("John Smith"))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	require.Len(t, f.queue.enqueued, 1)
	assert.Equal(t, job.JobID, f.queue.enqueued[0].JobID)
}

func TestScreen_RejectsInvalidRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Screen(context.Background(), domain.ScreeningRequest{
		EntityID:   "cust-001",
		EntityType: "starship",
		ScreeningData: map[string]string{
			domain.FieldFullName: "John Smith",
		},
	})
	assert.Error(t, err)

	_, err = f.service.Screen(context.Background(), domain.ScreeningRequest{
		EntityID:      "cust-001",
		EntityType:    domain.EntityTypePerson,
		ScreeningData: map[string]string{},
	})
	assert.Error(t, err)
	assert.Empty(t, f.queue.enqueued)
}

func TestScreen_DuplicateCollapsesToOriginalJob(t *testing.T) {
	f := newFixture(t)

	first, err := f.service.Screen(context.Background(), personRequest("John Smith"))
	require.NoError(t, err)

	second, err := f.service.Screen(context.Background(), personRequest("John Smith"))
	require.NoError(t, err)

	assert.Equal(t, first.JobID, second.JobID, "duplicate must resolve to the same job and result id")
	assert.Len(t, f.queue.enqueued, 1, "duplicate must not enqueue a second job")
}

func TestScreen_DifferentDataIsNotADuplicate(t *testing.T) {
	f := newFixture(t)

	first, err := f.service.Screen(context.Background(), personRequest("John Smith"))
	require.NoError(t, err)
	second, err := f.service.Screen(context.Background(), personRequest("Jane Smith"))
	require.NoError(t, err)

	assert.NotEqual(t, first.JobID, second.JobID)
	assert.Len(t, f.queue.enqueued, 2)
}

func TestGetResult_PendingUntilProcessed(t *testing.T) {
	f := newFixture(t)
	f.importSanctionsList(t)

	job, err := f.service.Screen(context.Background(), personRequest("John Smith"))
	require.NoError(t, err)

	_, err = f.service.GetResult(context.Background(), job.JobID)
	require.ErrorIs(t, err, errors.ErrResultPending, "accepted but unprocessed job must report pending")

	require.NoError(t, f.service.ProcessJob(context.Background(), job))

	result, err := f.service.GetResult(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.JobID, result.ID)

	_, err = f.service.GetResult(context.Background(), uuid.New())
	require.ErrorIs(t, err, errors.ErrResultNotFound, "unknown ids stay not found")
}

func TestProcessJob_CleanEntityIsClear(t *testing.T) {
	f := newFixture(t)
	f.importSanctionsList(t)

	job, err := domain.NewJob(personRequest("John Smith"))
	require.NoError(t, err)
	require.NoError(t, f.service.ProcessJob(context.Background(), job))

	result, err := f.service.GetResult(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClear, result.Status)
	assert.Zero(t, result.OverallRiskScore)
	assert.Empty(t, result.Matches)
}

func TestProcessJob_TransliterationVariantIsBlocked(t *testing.T) {
	f := newFixture(t)
	f.importSanctionsList(t)

	job, err := domain.NewJob(personRequest("Osama Bin Laden"))
	require.NoError(t, err)
	require.NoError(t, f.service.ProcessJob(context.Background(), job))

	result, err := f.service.GetResult(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBlocked, result.Status)
	assert.GreaterOrEqual(t, result.OverallRiskScore, 90)
	require.NotEmpty(t, result.Matches)
	assert.Equal(t, string(watchlist.TypeSanctions), result.Matches[0].WatchlistType)
	assert.Equal(t, "SDN-6365", result.Matches[0].MatchDetails.EntryRef)
}

func TestProcessJob_PassportIdentifierIsExactMatch(t *testing.T) {
	f := newFixture(t)
	f.importSanctionsList(t)

	job, err := domain.NewJob(domain.ScreeningRequest{
		EntityID:   "cust-002",
		EntityType: domain.EntityTypePerson,
		ScreeningData: map[string]string{
			domain.FieldFullName:       "Totally Unrelated Name",
			domain.FieldPassportNumber: "X1234567",
		},
	})
	require.NoError(t, err)
	require.NoError(t, f.service.ProcessJob(context.Background(), job))

	result, err := f.service.GetResult(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBlocked, result.Status)
	require.NotEmpty(t, result.Matches)
	assert.Equal(t, 100, result.Matches[0].MatchScore)
	assert.Equal(t, domain.FieldPassportNumber, result.Matches[0].MatchedField)
}

func TestProcessJob_ReprocessingIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.importSanctionsList(t)

	job, err := domain.NewJob(personRequest("Osama Bin Laden"))
	require.NoError(t, err)

	require.NoError(t, f.service.ProcessJob(context.Background(), job))
	require.NoError(t, f.service.ProcessJob(context.Background(), job))

	history, err := f.service.GetHistory(context.Background(), "cust-001")
	require.NoError(t, err)
	assert.Len(t, history, 1, "redelivery must not create a second result")
	assert.Equal(t, job.JobID, history[0].ID)
}

func TestProcessJob_BureauIndicatorsContribute(t *testing.T) {
	f := newFixture(t)
	f.bureaus.reports = map[string]*providers.NormalizedReport{
		"experian": {
			Provider:    "experian",
			EntityID:    "cust-001",
			CreditScore: 480,
			Indicators: []providers.RiskIndicator{
				{Code: "FRAUD_ALERT", Description: "active fraud alert", Score: 80},
			},
		},
	}

	job, err := domain.NewJob(personRequest("John Smith"))
	require.NoError(t, err)
	require.NoError(t, f.service.ProcessJob(context.Background(), job))

	result, err := f.service.GetResult(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFlagged, result.Status)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "bureau:experian", result.Matches[0].MatchedField)
	assert.Equal(t, "FRAUD_ALERT", result.Matches[0].MatchDetails.EntryRef)
	assert.Equal(t, string(watchlist.TypeCustom), result.Matches[0].WatchlistType)
}

func TestProcessJob_MissingBureausDoNotFailTheJob(t *testing.T) {
	f := newFixture(t)
	f.importSanctionsList(t)
	// Empty report map models every bureau branch failing.
	f.bureaus.reports = map[string]*providers.NormalizedReport{}

	job, err := domain.NewJob(personRequest("Osama Bin Laden"))
	require.NoError(t, err)
	require.NoError(t, f.service.ProcessJob(context.Background(), job))

	result, err := f.service.GetResult(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBlocked, result.Status)
}

func TestReviewFalsePositive_AnnotatesWithoutErasing(t *testing.T) {
	f := newFixture(t)
	f.importSanctionsList(t)

	job, err := domain.NewJob(personRequest("Osama Bin Laden"))
	require.NoError(t, err)
	require.NoError(t, f.service.ProcessJob(context.Background(), job))

	reviewed, err := f.service.ReviewFalsePositive(context.Background(), job.JobID, "analyst@complyco.io", "confirmed different person")
	require.NoError(t, err)
	assert.True(t, reviewed.IsFalsePositive)
	assert.Equal(t, "analyst@complyco.io", reviewed.ReviewedBy)

	fetched, err := f.service.GetResult(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.True(t, fetched.IsFalsePositive)
	assert.GreaterOrEqual(t, fetched.OverallRiskScore, 90, "review must not erase the score")
	assert.NotEmpty(t, fetched.Matches, "review must not erase the matches")
}

func TestReviewFalsePositive_RequiresReviewer(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.ReviewFalsePositive(context.Background(), uuid.New(), "", "notes")
	assert.Error(t, err)
}

func TestGetHistory_NewestFirst(t *testing.T) {
	f := newFixture(t)

	first, err := domain.NewJob(personRequest("John Smith"))
	require.NoError(t, err)
	require.NoError(t, f.service.ProcessJob(context.Background(), first))

	second, err := domain.NewJob(personRequest("John Smith"))
	require.NoError(t, err)
	require.NoError(t, f.service.ProcessJob(context.Background(), second))

	history, err := f.service.GetHistory(context.Background(), "cust-001")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].ScreenedAt.Before(history[1].ScreenedAt))
}

func TestWorkerPool_ProcessesAndRetries(t *testing.T) {
	f := newFixture(t)
	f.importSanctionsList(t)

	job, err := domain.NewJob(personRequest("John Smith"))
	require.NoError(t, err)
	require.NoError(t, f.queue.Enqueue(context.Background(), job))

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewWorkerPool(f.service, f.queue, 2, zaptest.NewLogger(t))
	pool.Start(ctx)

	require.Eventually(t, func() bool {
		_, err := f.service.GetResult(context.Background(), job.JobID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	pool.Wait()
}
