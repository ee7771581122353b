package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domainerrors "github.com/complyco/entity-screening-backend/internal/domain/errors"
	"github.com/complyco/entity-screening-backend/internal/domain/screening"
	"github.com/complyco/entity-screening-backend/internal/metrics"
)

// Config controls queue keys and retry behavior
type Config struct {
	KeyPrefix       string        `koanf:"key_prefix"`
	MaxAttempts     int           `koanf:"max_attempts"`
	BaseBackoff     time.Duration `koanf:"base_backoff"`
	MaxBackoff      time.Duration `koanf:"max_backoff"`
	PromoteInterval time.Duration `koanf:"promote_interval"`
	DequeueTimeout  time.Duration `koanf:"dequeue_timeout"`
}

// DefaultConfig returns production retry settings
func DefaultConfig() Config {
	return Config{
		KeyPrefix:       "screening:jobs",
		MaxAttempts:     5,
		BaseBackoff:     2 * time.Second,
		MaxBackoff:      5 * time.Minute,
		PromoteInterval: time.Second,
		DequeueTimeout:  5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.KeyPrefix == "" {
		c.KeyPrefix = def.KeyPrefix
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = def.BaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.PromoteInterval <= 0 {
		c.PromoteInterval = def.PromoteInterval
	}
	if c.DequeueTimeout <= 0 {
		c.DequeueTimeout = def.DequeueTimeout
	}
	return c
}

// JobQueue is a durable at-least-once screening job queue on Redis.
//
// Three keys per queue: a ready list (LPUSH/BRPOP), a delayed sorted set
// scored by the unix-milli time a retry becomes due, and a dead-letter
// list for jobs that exhausted their attempts. A promoter loop moves due
// delayed jobs back onto the ready list.
type JobQueue struct {
	client  *redis.Client
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Registry
}

// NewJobQueue creates a queue over an existing Redis client
func NewJobQueue(client *redis.Client, cfg Config, logger *zap.Logger, m *metrics.Registry) *JobQueue {
	return &JobQueue{
		client:  client,
		cfg:     cfg.withDefaults(),
		logger:  logger.Named("queue"),
		metrics: m,
	}
}

func (q *JobQueue) readyKey() string   { return q.cfg.KeyPrefix + ":ready" }
func (q *JobQueue) delayedKey() string { return q.cfg.KeyPrefix + ":delayed" }
func (q *JobQueue) deadKey() string    { return q.cfg.KeyPrefix + ":dead" }

// Enqueue makes a job immediately available to workers
func (q *JobQueue) Enqueue(ctx context.Context, job *screening.ScreeningJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return domainerrors.NewInternalError("marshal job").WithCause(err)
	}
	if err := q.client.LPush(ctx, q.readyKey(), payload).Err(); err != nil {
		return domainerrors.NewPersistenceError("enqueue").WithCause(err)
	}
	q.refreshDepth(ctx)

	q.logger.Debug("job enqueued",
		zap.String("job_id", job.JobID.String()),
		zap.String("entity_id", job.Request.EntityID),
		zap.Int("attempt", job.Attempt))
	return nil
}

// Dequeue blocks up to the configured timeout for the next ready job.
// A nil job with nil error means the timeout elapsed with nothing ready.
func (q *JobQueue) Dequeue(ctx context.Context) (*screening.ScreeningJob, error) {
	res, err := q.client.BRPop(ctx, q.cfg.DequeueTimeout, q.readyKey()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domainerrors.NewPersistenceError("dequeue").WithCause(err)
	}

	// BRPOP returns [key, value]
	var job screening.ScreeningJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, domainerrors.NewInternalError("unmarshal job").WithCause(err)
	}
	q.refreshDepth(ctx)
	return &job, nil
}

// Retry schedules a failed job for another attempt with exponential
// backoff, or dead-letters it once attempts are exhausted.
func (q *JobQueue) Retry(ctx context.Context, job *screening.ScreeningJob, cause error) error {
	job.Attempt++
	if job.Attempt >= q.cfg.MaxAttempts {
		return q.deadLetter(ctx, job, cause)
	}

	delay := q.backoff(job.Attempt)
	job.Status = screening.JobStatusPending
	payload, err := json.Marshal(job)
	if err != nil {
		return domainerrors.NewInternalError("marshal job").WithCause(err)
	}

	due := time.Now().Add(delay)
	if err := q.client.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: payload,
	}).Err(); err != nil {
		return domainerrors.NewPersistenceError("schedule retry").WithCause(err)
	}

	q.metrics.JobRetriesTotal.Inc()
	q.logger.Info("job scheduled for retry",
		zap.String("job_id", job.JobID.String()),
		zap.Int("attempt", job.Attempt),
		zap.Duration("delay", delay),
		zap.Error(cause))
	return nil
}

func (q *JobQueue) deadLetter(ctx context.Context, job *screening.ScreeningJob, cause error) error {
	job.Status = screening.JobStatusDeadLettered
	payload, err := json.Marshal(job)
	if err != nil {
		return domainerrors.NewInternalError("marshal job").WithCause(err)
	}
	if err := q.client.LPush(ctx, q.deadKey(), payload).Err(); err != nil {
		return domainerrors.NewPersistenceError("dead letter").WithCause(err)
	}

	q.metrics.JobsDeadLettered.Inc()
	q.logger.Error("job dead lettered",
		zap.String("job_id", job.JobID.String()),
		zap.String("entity_id", job.Request.EntityID),
		zap.Int("attempts", job.Attempt),
		zap.Error(cause))
	return nil
}

// backoff doubles per attempt starting from BaseBackoff, capped at MaxBackoff
func (q *JobQueue) backoff(attempt int) time.Duration {
	d := q.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= q.cfg.MaxBackoff {
			return q.cfg.MaxBackoff
		}
	}
	if d > q.cfg.MaxBackoff {
		return q.cfg.MaxBackoff
	}
	return d
}

// PromoteDue moves delayed jobs whose backoff has elapsed onto the ready
// list. Returns the number promoted.
func (q *JobQueue) PromoteDue(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return 0, domainerrors.NewPersistenceError("promote").WithCause(err)
	}

	promoted := 0
	for _, member := range members {
		// ZREM first so a concurrent promoter cannot double-deliver the
		// same delayed entry.
		removed, err := q.client.ZRem(ctx, q.delayedKey(), member).Result()
		if err != nil {
			return promoted, domainerrors.NewPersistenceError("promote").WithCause(err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.readyKey(), member).Err(); err != nil {
			return promoted, domainerrors.NewPersistenceError("promote").WithCause(err)
		}
		promoted++
	}

	if promoted > 0 {
		q.refreshDepth(ctx)
		q.logger.Debug("promoted delayed jobs", zap.Int("count", promoted))
	}
	return promoted, nil
}

// RunPromoter ticks PromoteDue until the context is cancelled
func (q *JobQueue) RunPromoter(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.PromoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.PromoteDue(ctx); err != nil && ctx.Err() == nil {
				q.logger.Error("promoter tick failed", zap.Error(err))
			}
		}
	}
}

// DeadLettered returns up to limit jobs from the dead-letter list,
// newest first, without removing them.
func (q *JobQueue) DeadLettered(ctx context.Context, limit int64) ([]*screening.ScreeningJob, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := q.client.LRange(ctx, q.deadKey(), 0, limit-1).Result()
	if err != nil {
		return nil, domainerrors.NewPersistenceError("list dead letters").WithCause(err)
	}

	jobs := make([]*screening.ScreeningJob, 0, len(raw))
	for _, item := range raw {
		var job screening.ScreeningJob
		if err := json.Unmarshal([]byte(item), &job); err != nil {
			q.logger.Warn("skipping unreadable dead letter", zap.Error(err))
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// RequeueDeadLetter moves one dead-lettered job back to the ready list
// with a fresh attempt counter
func (q *JobQueue) RequeueDeadLetter(ctx context.Context, jobID uuid.UUID) error {
	raw, err := q.client.LRange(ctx, q.deadKey(), 0, -1).Result()
	if err != nil {
		return domainerrors.NewPersistenceError("list dead letters").WithCause(err)
	}

	for _, item := range raw {
		var job screening.ScreeningJob
		if err := json.Unmarshal([]byte(item), &job); err != nil {
			continue
		}
		if job.JobID != jobID {
			continue
		}

		if err := q.client.LRem(ctx, q.deadKey(), 1, item).Err(); err != nil {
			return domainerrors.NewPersistenceError("requeue dead letter").WithCause(err)
		}
		job.Attempt = 0
		job.Status = screening.JobStatusPending
		return q.Enqueue(ctx, &job)
	}
	return fmt.Errorf("dead letter %s: %w", jobID, domainerrors.ErrJobNotFound)
}

// Depth reports the number of jobs currently ready
func (q *JobQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.readyKey()).Result()
	if err != nil {
		return 0, domainerrors.NewPersistenceError("queue depth").WithCause(err)
	}
	return n, nil
}

func (q *JobQueue) refreshDepth(ctx context.Context) {
	if n, err := q.client.LLen(ctx, q.readyKey()).Result(); err == nil {
		q.metrics.QueueDepth.Set(float64(n))
	}
}
