package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domainerrors "github.com/complyco/entity-screening-backend/internal/domain/errors"
	"github.com/complyco/entity-screening-backend/internal/domain/screening"
	"github.com/complyco/entity-screening-backend/internal/metrics"
)

func testQueue(t *testing.T, cfg Config) (*JobQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewJobQueue(client, cfg, zaptest.NewLogger(t), metrics.NewRegistry(prometheus.NewRegistry())), mr
}

func testJob(t *testing.T) *screening.ScreeningJob {
	t.Helper()
	job, err := screening.NewJob(screening.ScreeningRequest{
		EntityID:      "entity-123",
		EntityType:    screening.EntityTypePerson,
		ScreeningData: map[string]string{screening.FieldFullName: "John Smith"},
	})
	require.NoError(t, err)
	return job
}

func TestJobQueue_EnqueueDequeueRoundTrip(t *testing.T) {
	q, _ := testQueue(t, Config{DequeueTimeout: time.Second})
	ctx := context.Background()

	job := testJob(t)
	require.NoError(t, q.Enqueue(ctx, job))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.JobID, got.JobID)
	assert.Equal(t, job.Request.EntityID, got.Request.EntityID)
	assert.Equal(t, screening.JobStatusPending, got.Status)
}

func TestJobQueue_DequeueTimeoutReturnsNil(t *testing.T) {
	q, _ := testQueue(t, Config{DequeueTimeout: 50 * time.Millisecond})

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestJobQueue_FIFOOrder(t *testing.T) {
	q, _ := testQueue(t, Config{DequeueTimeout: time.Second})
	ctx := context.Background()

	first := testJob(t)
	second := testJob(t)
	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.JobID, got.JobID)

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.JobID, got.JobID)
}

func TestJobQueue_RetrySchedulesWithBackoff(t *testing.T) {
	q, _ := testQueue(t, Config{
		MaxAttempts:    3,
		BaseBackoff:    time.Minute,
		DequeueTimeout: 50 * time.Millisecond,
	})
	ctx := context.Background()

	job := testJob(t)
	require.NoError(t, q.Retry(ctx, job, assert.AnError))
	assert.Equal(t, 1, job.Attempt)

	// Backoff has not elapsed, so nothing is ready or promotable yet.
	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	promoted, err := q.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, promoted)
}

func TestJobQueue_PromoteDueMovesElapsedRetries(t *testing.T) {
	q, _ := testQueue(t, Config{
		MaxAttempts:    3,
		BaseBackoff:    time.Millisecond,
		DequeueTimeout: time.Second,
	})
	ctx := context.Background()

	job := testJob(t)
	require.NoError(t, q.Retry(ctx, job, assert.AnError))

	time.Sleep(10 * time.Millisecond)
	promoted, err := q.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.JobID, got.JobID)
	assert.Equal(t, 1, got.Attempt)
}

func TestJobQueue_BackoffDoublesUpToCap(t *testing.T) {
	q, _ := testQueue(t, Config{
		BaseBackoff: 2 * time.Second,
		MaxBackoff:  10 * time.Second,
	})

	assert.Equal(t, 2*time.Second, q.backoff(1))
	assert.Equal(t, 4*time.Second, q.backoff(2))
	assert.Equal(t, 8*time.Second, q.backoff(3))
	assert.Equal(t, 10*time.Second, q.backoff(4))
	assert.Equal(t, 10*time.Second, q.backoff(9))
}

func TestJobQueue_DeadLetterAfterMaxAttempts(t *testing.T) {
	q, _ := testQueue(t, Config{
		MaxAttempts:    2,
		BaseBackoff:    time.Millisecond,
		DequeueTimeout: 50 * time.Millisecond,
	})
	ctx := context.Background()

	job := testJob(t)
	require.NoError(t, q.Retry(ctx, job, assert.AnError)) // attempt 1, delayed
	require.NoError(t, q.Retry(ctx, job, assert.AnError)) // attempt 2, dead

	dead, err := q.DeadLettered(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, job.JobID, dead[0].JobID)
	assert.Equal(t, screening.JobStatusDeadLettered, dead[0].Status)
	assert.Equal(t, 2, dead[0].Attempt)
}

func TestJobQueue_RequeueDeadLetter(t *testing.T) {
	q, _ := testQueue(t, Config{
		MaxAttempts:    1,
		DequeueTimeout: time.Second,
	})
	ctx := context.Background()

	job := testJob(t)
	require.NoError(t, q.Retry(ctx, job, assert.AnError))

	require.NoError(t, q.RequeueDeadLetter(ctx, job.JobID))

	dead, err := q.DeadLettered(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, dead)

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.JobID, got.JobID)
	assert.Zero(t, got.Attempt)
	assert.Equal(t, screening.JobStatusPending, got.Status)
}

func TestJobQueue_RequeueUnknownDeadLetter(t *testing.T) {
	q, _ := testQueue(t, Config{})

	err := q.RequeueDeadLetter(context.Background(), testJob(t).JobID)
	assert.ErrorIs(t, err, domainerrors.ErrJobNotFound)
}
