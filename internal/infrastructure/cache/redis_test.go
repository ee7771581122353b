package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClientFromRedis(rdb, zaptest.NewLogger(t)), mr
}

func TestReserveFingerprint_FirstClaimWins(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	holder, reserved, err := c.ReserveFingerprint(ctx, "abc123", "job-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Equal(t, "job-1", holder)

	holder, reserved, err = c.ReserveFingerprint(ctx, "abc123", "job-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, "job-1", holder, "duplicate must resolve to the original job")
}

func TestReserveFingerprint_ExpiresWithWindow(t *testing.T) {
	c, mr := testClient(t)
	ctx := context.Background()

	_, reserved, err := c.ReserveFingerprint(ctx, "abc123", "job-1", time.Minute)
	require.NoError(t, err)
	require.True(t, reserved)

	mr.FastForward(2 * time.Minute)

	holder, reserved, err := c.ReserveFingerprint(ctx, "abc123", "job-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Equal(t, "job-2", holder)
}

func TestReleaseFingerprint(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	_, reserved, err := c.ReserveFingerprint(ctx, "abc123", "job-1", time.Minute)
	require.NoError(t, err)
	require.True(t, reserved)

	c.ReleaseFingerprint(ctx, "abc123")

	_, reserved, err = c.ReserveFingerprint(ctx, "abc123", "job-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestPendingMarkerLifecycle(t *testing.T) {
	c, mr := testClient(t)
	ctx := context.Background()
	jobID := uuid.New()

	pending, err := c.IsPending(ctx, jobID)
	require.NoError(t, err)
	assert.False(t, pending)

	require.NoError(t, c.MarkPending(ctx, jobID, time.Hour))

	pending, err = c.IsPending(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, pending)

	c.ClearPending(ctx, jobID)

	pending, err = c.IsPending(ctx, jobID)
	require.NoError(t, err)
	assert.False(t, pending)

	// a marker for a lost job ages out with its TTL
	require.NoError(t, c.MarkPending(ctx, jobID, time.Minute))
	mr.FastForward(2 * time.Minute)

	pending, err = c.IsPending(ctx, jobID)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestGetSetJSONRoundTrip(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	var out payload
	hit, err := c.GetJSON(ctx, "missing", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.SetJSON(ctx, "k", payload{Name: "sanctions", Count: 3}, time.Minute))

	hit, err = c.GetJSON(ctx, "k", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, payload{Name: "sanctions", Count: 3}, out)

	require.NoError(t, c.Invalidate(ctx, "k"))
	hit, err = c.GetJSON(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestGetJSON_CorruptEntryIsAMiss(t *testing.T) {
	c, mr := testClient(t)
	require.NoError(t, mr.Set("k", "not json"))

	var out map[string]string
	hit, err := c.GetJSON(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}
