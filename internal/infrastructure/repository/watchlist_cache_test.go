package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/complyco/entity-screening-backend/internal/domain/watchlist"
	"github.com/complyco/entity-screening-backend/internal/infrastructure/cache"
)

func cachedStore(t *testing.T) (*CachedWatchlistStore, *MemoryWatchlistStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	inner := NewMemoryWatchlistStore()
	c := cache.NewClientFromRedis(rdb, zaptest.NewLogger(t))
	return NewCachedWatchlistStore(inner, c, time.Minute, zaptest.NewLogger(t)), inner, mr
}

func sampleEntries() []watchlist.Entry {
	return []watchlist.Entry{
		{Ref: "OFAC-1", Names: []string{"Osama Bin Laden", "Usama Bin Ladin"}},
	}
}

func TestCachedWatchlistStore_ListActiveServesFromCache(t *testing.T) {
	store, inner, _ := cachedStore(t)
	ctx := context.Background()

	_, err := store.BulkImport(ctx, "OFAC SDN", watchlist.TypeSanctions, "ofac", sampleEntries())
	require.NoError(t, err)

	first, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A direct write to the inner store does not show until the cache is
	// invalidated or expires.
	require.NoError(t, inner.Create(ctx, &watchlist.Watchlist{
		Name:    "internal blocklist",
		Type:    watchlist.TypeCustom,
		Source:  "internal",
		Active:  true,
		Entries: sampleEntries(),
	}))

	second, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, second, 1)
}

func TestCachedWatchlistStore_MutationsInvalidate(t *testing.T) {
	store, _, _ := cachedStore(t)
	ctx := context.Background()

	wl, err := store.BulkImport(ctx, "OFAC SDN", watchlist.TypeSanctions, "ofac", sampleEntries())
	require.NoError(t, err)

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, store.Deactivate(ctx, wl.ID))

	active, err = store.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCachedWatchlistStore_BulkImportRetiresPriorVersion(t *testing.T) {
	store, _, _ := cachedStore(t)
	ctx := context.Background()

	v1, err := store.BulkImport(ctx, "OFAC SDN", watchlist.TypeSanctions, "ofac", sampleEntries())
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)

	v2, err := store.BulkImport(ctx, "OFAC SDN", watchlist.TypeSanctions, "ofac", sampleEntries())
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, v2.ID, active[0].ID)
}

func TestCachedWatchlistStore_CacheExpiryRefreshes(t *testing.T) {
	store, inner, mr := cachedStore(t)
	ctx := context.Background()

	_, err := store.BulkImport(ctx, "OFAC SDN", watchlist.TypeSanctions, "ofac", sampleEntries())
	require.NoError(t, err)

	_, err = store.ListActive(ctx)
	require.NoError(t, err)

	require.NoError(t, inner.Create(ctx, &watchlist.Watchlist{
		Name:    "internal blocklist",
		Type:    watchlist.TypeCustom,
		Source:  "internal",
		Active:  true,
		Entries: sampleEntries(),
	}))

	mr.FastForward(2 * time.Minute)

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}
