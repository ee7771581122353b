package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/complyco/entity-screening-backend/internal/domain/watchlist"
	"github.com/complyco/entity-screening-backend/internal/infrastructure/cache"
)

const activeWatchlistsKey = "screening:watchlists:active"

// CachedWatchlistStore caches ListActive in Redis in front of another
// store. Every screening job reads the full active set, so the cache
// turns the hot path into one Redis fetch. Mutations write through and
// invalidate.
type CachedWatchlistStore struct {
	inner  watchlist.Store
	cache  *cache.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedWatchlistStore(inner watchlist.Store, c *cache.Client, ttl time.Duration, logger *zap.Logger) *CachedWatchlistStore {
	return &CachedWatchlistStore{
		inner:  inner,
		cache:  c,
		ttl:    ttl,
		logger: logger.Named("watchlist_cache"),
	}
}

func (s *CachedWatchlistStore) ListActive(ctx context.Context) ([]*watchlist.Watchlist, error) {
	var cached []*watchlist.Watchlist
	hit, err := s.cache.GetJSON(ctx, activeWatchlistsKey, &cached)
	if err != nil {
		// Cache trouble is not a screening failure; fall through.
		s.logger.Warn("watchlist cache read failed", zap.Error(err))
	} else if hit {
		return cached, nil
	}

	lists, err := s.inner.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, activeWatchlistsKey, lists, s.ttl); err != nil {
		s.logger.Warn("watchlist cache write failed", zap.Error(err))
	}
	return lists, nil
}

func (s *CachedWatchlistStore) Find(ctx context.Context, id uuid.UUID) (*watchlist.Watchlist, error) {
	return s.inner.Find(ctx, id)
}

func (s *CachedWatchlistStore) Create(ctx context.Context, wl *watchlist.Watchlist) error {
	if err := s.inner.Create(ctx, wl); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedWatchlistStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.inner.Deactivate(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedWatchlistStore) BulkImport(ctx context.Context, name string, listType watchlist.Type, source string, entries []watchlist.Entry) (*watchlist.Watchlist, error) {
	wl, err := s.inner.BulkImport(ctx, name, listType, source, entries)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return wl, nil
}

func (s *CachedWatchlistStore) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, activeWatchlistsKey); err != nil {
		s.logger.Warn("watchlist cache invalidation failed", zap.Error(err))
	}
}
