package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/complyco/entity-screening-backend/internal/domain/errors"
	"github.com/complyco/entity-screening-backend/internal/domain/watchlist"
)

// WatchlistRepository implements watchlist.Store over PostgreSQL.
// Entries are stored as a jsonb document per list: lists are replaced as
// whole snapshots at import time and only ever read on the screening
// path, so row-per-entry granularity buys nothing.
type WatchlistRepository struct {
	db *pgxpool.Pool
}

func NewWatchlistRepository(db *pgxpool.Pool) *WatchlistRepository {
	return &WatchlistRepository{db: db}
}

func (r *WatchlistRepository) ListActive(ctx context.Context) ([]*watchlist.Watchlist, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, type, source, version, active, imported_at, entries
		FROM watchlists
		WHERE active = TRUE
		ORDER BY name`)
	if err != nil {
		return nil, errors.NewPersistenceError("list watchlists").WithCause(err)
	}
	defer rows.Close()

	var lists []*watchlist.Watchlist
	for rows.Next() {
		wl, err := scanWatchlist(rows)
		if err != nil {
			return nil, errors.NewPersistenceError("scan watchlist").WithCause(err)
		}
		lists = append(lists, wl)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistenceError("list watchlists").WithCause(err)
	}
	return lists, nil
}

func (r *WatchlistRepository) Find(ctx context.Context, id uuid.UUID) (*watchlist.Watchlist, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, type, source, version, active, imported_at, entries
		FROM watchlists
		WHERE id = $1`, id)

	wl, err := scanWatchlist(row)
	if err == pgx.ErrNoRows {
		return nil, errors.ErrWatchlistNotFound
	}
	if err != nil {
		return nil, errors.NewPersistenceError("find watchlist").WithCause(err)
	}
	return wl, nil
}

func (r *WatchlistRepository) Create(ctx context.Context, wl *watchlist.Watchlist) error {
	if !wl.Type.Valid() {
		return errors.NewValidationError("INVALID_WATCHLIST_TYPE", "unknown watchlist type: "+string(wl.Type))
	}
	if wl.ID == uuid.Nil {
		wl.ID = uuid.New()
	}
	if wl.ImportedAt.IsZero() {
		wl.ImportedAt = time.Now().UTC()
	}
	if wl.Version == 0 {
		wl.Version = 1
	}

	entries, err := json.Marshal(wl.Entries)
	if err != nil {
		return errors.NewInternalError("marshal entries").WithCause(err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO watchlists (id, name, type, source, version, active, imported_at, entries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		wl.ID, wl.Name, wl.Type, wl.Source, wl.Version, wl.Active, wl.ImportedAt, entries)
	if err != nil {
		return errors.NewPersistenceError("create watchlist").WithCause(err)
	}
	return nil
}

func (r *WatchlistRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE watchlists SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return errors.NewPersistenceError("deactivate watchlist").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrWatchlistNotFound
	}
	return nil
}

func (r *WatchlistRepository) BulkImport(ctx context.Context, name string, listType watchlist.Type, source string, entries []watchlist.Entry) (*watchlist.Watchlist, error) {
	if !listType.Valid() {
		return nil, errors.NewValidationError("INVALID_WATCHLIST_TYPE", "unknown watchlist type: "+string(listType))
	}
	if len(entries) == 0 {
		return nil, errors.NewValidationError("EMPTY_IMPORT", "bulk import requires at least one entry")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, errors.NewPersistenceError("begin transaction").WithCause(err)
	}
	defer tx.Rollback(ctx)

	var version int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM watchlists
		WHERE type = $1 AND source = $2`, listType, source).Scan(&version)
	if err != nil {
		return nil, errors.NewPersistenceError("resolve version").WithCause(err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE watchlists SET active = FALSE
		WHERE type = $1 AND source = $2 AND active = TRUE`, listType, source); err != nil {
		return nil, errors.NewPersistenceError("retire previous version").WithCause(err)
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

	raw, err := json.Marshal(wl.Entries)
	if err != nil {
		return nil, errors.NewInternalError("marshal entries").WithCause(err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO watchlists (id, name, type, source, version, active, imported_at, entries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		wl.ID, wl.Name, wl.Type, wl.Source, wl.Version, wl.Active, wl.ImportedAt, raw); err != nil {
		return nil, errors.NewPersistenceError("insert watchlist").WithCause(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.NewPersistenceError("commit import").WithCause(err)
	}
	return wl, nil
}

func scanWatchlist(row pgx.Row) (*watchlist.Watchlist, error) {
	var (
		wl      watchlist.Watchlist
		entries []byte
	)
	err := row.Scan(&wl.ID, &wl.Name, &wl.Type, &wl.Source,
		&wl.Version, &wl.Active, &wl.ImportedAt, &entries)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(entries, &wl.Entries); err != nil {
		return nil, err
	}
	return &wl, nil
}
