package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/complyco/entity-screening-backend/internal/infrastructure/config"
)

// Client wraps the shared Redis connection used for request dedupe and
// watchlist caching. The job queue holds its own reference to the same
// underlying connection.
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewClient connects to Redis and verifies the connection
func NewClient(cfg config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.URL,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("redis initialized",
		zap.String("addr", cfg.URL),
		zap.Int("db", cfg.DB),
		zap.Int("pool_size", cfg.PoolSize))

	return &Client{rdb: rdb, logger: logger.Named("cache")}, nil
}

// NewClientFromRedis wraps an existing connection (tests)
func NewClientFromRedis(rdb *redis.Client, logger *zap.Logger) *Client {
	return &Client{rdb: rdb, logger: logger.Named("cache")}
}

// Redis exposes the underlying connection for components that speak
// Redis directly, like the job queue
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Close releases the connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ReserveFingerprint claims a request fingerprint for jobID within the
// dedupe window. If another job already holds the fingerprint, its job
// ID is returned with reserved=false.
func (c *Client) ReserveFingerprint(ctx context.Context, fingerprint, jobID string, window time.Duration) (string, bool, error) {
	key := "screening:dedupe:" + fingerprint

	ok, err := c.rdb.SetNX(ctx, key, jobID, window).Result()
	if err != nil {
		return "", false, fmt.Errorf("reserve fingerprint: %w", err)
	}
	if ok {
		return jobID, true, nil
	}

	existing, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		// Holder expired between SETNX and GET; retry the claim once.
		ok, err = c.rdb.SetNX(ctx, key, jobID, window).Result()
		if err != nil {
			return "", false, fmt.Errorf("reserve fingerprint: %w", err)
		}
		if ok {
			return jobID, true, nil
		}
		existing, err = c.rdb.Get(ctx, key).Result()
	}
	if err != nil {
		return "", false, fmt.Errorf("reserve fingerprint: %w", err)
	}
	return existing, false, nil
}

// ReleaseFingerprint drops a dedupe claim early, used when enqueueing fails
func (c *Client) ReleaseFingerprint(ctx context.Context, fingerprint string) {
	if err := c.rdb.Del(ctx, "screening:dedupe:"+fingerprint).Err(); err != nil {
		c.logger.Warn("failed to release fingerprint", zap.Error(err))
	}
}

func pendingKey(jobID uuid.UUID) string {
	return "screening:pending:" + jobID.String()
}

// MarkPending records an accepted job that has no result yet. The TTL
// bounds how long a lost job keeps answering "pending".
func (c *Client) MarkPending(ctx context.Context, jobID uuid.UUID, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, pendingKey(jobID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("mark pending: %w", err)
	}
	return nil
}

// IsPending reports whether a job was accepted and is still in flight
func (c *Client) IsPending(ctx context.Context, jobID uuid.UUID) (bool, error) {
	n, err := c.rdb.Exists(ctx, pendingKey(jobID)).Result()
	if err != nil {
		return false, fmt.Errorf("check pending: %w", err)
	}
	return n > 0, nil
}

// ClearPending removes the marker once the job's result is persisted
func (c *Client) ClearPending(ctx context.Context, jobID uuid.UUID) {
	if err := c.rdb.Del(ctx, pendingKey(jobID)).Err(); err != nil {
		c.logger.Warn("failed to clear pending marker",
			zap.String("job_id", jobID.String()), zap.Error(err))
	}
}

// GetJSON reads a cached JSON value into dest. Returns false on miss.
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// Treat unreadable entries as a miss so callers fall through to
		// the source of truth.
		c.logger.Warn("dropping corrupt cache entry", zap.String("key", key), zap.Error(err))
		_ = c.rdb.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

// SetJSON caches a JSON-encoded value with a TTL
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Invalidate removes cached keys, used after watchlist mutations
func (c *Client) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
