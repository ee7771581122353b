package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/complyco/entity-screening-backend/internal/domain/errors"
	"github.com/complyco/entity-screening-backend/internal/domain/screening"
	"github.com/complyco/entity-screening-backend/internal/domain/watchlist"
)

// MemoryResultStore is an in-memory screening.ResultStore for tests and
// local development.
type MemoryResultStore struct {
	mu      sync.RWMutex
	results map[uuid.UUID]*screening.ScreeningResult
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{results: make(map[uuid.UUID]*screening.ScreeningResult)}
}

func (s *MemoryResultStore) SaveResult(ctx context.Context, result *screening.ScreeningResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.ID] = cloneResult(result)
	return nil
}

func (s *MemoryResultStore) FindResult(ctx context.Context, id uuid.UUID) (*screening.ScreeningResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[id]
	if !ok {
		return nil, errors.ErrResultNotFound
	}
	return cloneResult(result), nil
}

func (s *MemoryResultStore) UpdateReview(ctx context.Context, id uuid.UUID, reviewedBy, notes string) (*screening.ScreeningResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[id]
	if !ok {
		return nil, errors.ErrResultNotFound
	}
	if err := result.MarkFalsePositive(reviewedBy, notes); err != nil {
		return nil, err
	}
	return cloneResult(result), nil
}

func (s *MemoryResultStore) ListByEntity(ctx context.Context, entityID string) ([]*screening.ScreeningResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []*screening.ScreeningResult
	for _, result := range s.results {
		if result.EntityID == entityID {
			results = append(results, cloneResult(result))
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].ScreenedAt.After(results[j].ScreenedAt)
	})
	return results, nil
}

func cloneResult(r *screening.ScreeningResult) *screening.ScreeningResult {
	c := *r
	c.Matches = make([]screening.ScreeningMatch, len(r.Matches))
	copy(c.Matches, r.Matches)
	c.ScreeningData = make(map[string]string, len(r.ScreeningData))
	for k, v := range r.ScreeningData {
		c.ScreeningData[k] = v
	}
	return &c
}

// MemoryWatchlistStore is an in-memory watchlist.Store for tests and
// local development.
type MemoryWatchlistStore struct {
	mu    sync.RWMutex
	lists map[uuid.UUID]*watchlist.Watchlist
}

func NewMemoryWatchlistStore() *MemoryWatchlistStore {
	return &MemoryWatchlistStore{lists: make(map[uuid.UUID]*watchlist.Watchlist)}
}

func (s *MemoryWatchlistStore) ListActive(ctx context.Context) ([]*watchlist.Watchlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []*watchlist.Watchlist
	for _, wl := range s.lists {
		if wl.Active {
			active = append(active, wl)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Name < active[j].Name })
	return active, nil
}

func (s *MemoryWatchlistStore) Find(ctx context.Context, id uuid.UUID) (*watchlist.Watchlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wl, ok := s.lists[id]
	if !ok {
		return nil, errors.ErrWatchlistNotFound
	}
	return wl, nil
}

func (s *MemoryWatchlistStore) Create(ctx context.Context, wl *watchlist.Watchlist) error {
	if !wl.Type.Valid() {
		return errors.NewValidationError("INVALID_WATCHLIST_TYPE", "unknown watchlist type: "+string(wl.Type))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if wl.ID == uuid.Nil {
		wl.ID = uuid.New()
	}
	if wl.ImportedAt.IsZero() {
		wl.ImportedAt = time.Now().UTC()
	}
	if wl.Version == 0 {
		wl.Version = 1
	}
	s.lists[wl.ID] = wl
	return nil
}

func (s *MemoryWatchlistStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wl, ok := s.lists[id]
	if !ok {
		return errors.ErrWatchlistNotFound
	}
	wl.Active = false
	return nil
}

func (s *MemoryWatchlistStore) BulkImport(ctx context.Context, name string, listType watchlist.Type, source string, entries []watchlist.Entry) (*watchlist.Watchlist, error) {
	if !listType.Valid() {
		return nil, errors.NewValidationError("INVALID_WATCHLIST_TYPE", "unknown watchlist type: "+string(listType))
	}
	if len(entries) == 0 {
		return nil, errors.NewValidationError("EMPTY_IMPORT", "bulk import requires at least one entry")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version := 0
	for _, wl := range s.lists {
		if wl.Type == listType && wl.Source == source {
			if wl.Version > version {
				version = wl.Version
			}
			wl.Active = false
		}
	}

	wl := &watchlist.Watchlist{
		ID:         uuid.New(),
		Name:       name,
		Type:       listType,
		Source:     source,
		Version:    version + 1,
		Active:     true,
		ImportedAt: time.Now().UTC(),
		Entries:    entries,
	}
	s.lists[wl.ID] = wl
	return wl, nil
}
