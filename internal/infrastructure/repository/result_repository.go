package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/complyco/entity-screening-backend/internal/domain/errors"
	"github.com/complyco/entity-screening-backend/internal/domain/screening"
)

// ResultRepository implements screening.ResultStore over PostgreSQL.
// Result and matches are written in one transaction keyed by result ID,
// so replaying a job overwrites its own previous write and nothing else.
type ResultRepository struct {
	db *pgxpool.Pool
}

func NewResultRepository(db *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{db: db}
}

func (r *ResultRepository) SaveResult(ctx context.Context, result *screening.ScreeningResult) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return errors.NewPersistenceError("begin transaction").WithCause(err)
	}
	defer tx.Rollback(ctx)

	screeningData, err := json.Marshal(result.ScreeningData)
	if err != nil {
		return errors.NewInternalError("marshal screening data").WithCause(err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO screening_results (
			id, entity_id, entity_type, screening_data,
			overall_risk_score, status, is_false_positive,
			reviewed_by, review_notes, screened_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			entity_id = EXCLUDED.entity_id,
			entity_type = EXCLUDED.entity_type,
			screening_data = EXCLUDED.screening_data,
			overall_risk_score = EXCLUDED.overall_risk_score,
			status = EXCLUDED.status,
			screened_at = EXCLUDED.screened_at`,
		result.ID, result.EntityID, result.EntityType, screeningData,
		result.OverallRiskScore, result.Status, result.IsFalsePositive,
		nullable(result.ReviewedBy), nullable(result.ReviewNotes), result.ScreenedAt,
	)
	if err != nil {
		return errors.NewPersistenceError("upsert result").WithCause(err)
	}

	// Replace matches wholesale; a redelivered job recomputes them.
	if _, err := tx.Exec(ctx, `DELETE FROM screening_matches WHERE result_id = $1`, result.ID); err != nil {
		return errors.NewPersistenceError("clear matches").WithCause(err)
	}

	for i := range result.Matches {
		m := &result.Matches[i]
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		details, err := json.Marshal(m.MatchDetails)
		if err != nil {
			return errors.NewInternalError("marshal match details").WithCause(err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO screening_matches (
				id, result_id, watchlist_id, watchlist_type,
				matched_field, match_score, match_details, risk_level
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			m.ID, result.ID, m.WatchlistID, m.WatchlistType,
			m.MatchedField, m.MatchScore, details, m.RiskLevel,
		)
		if err != nil {
			return errors.NewPersistenceError("insert match").WithCause(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.NewPersistenceError("commit result").WithCause(err)
	}
	return nil
}

func (r *ResultRepository) FindResult(ctx context.Context, id uuid.UUID) (*screening.ScreeningResult, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, entity_id, entity_type, screening_data,
		       overall_risk_score, status, is_false_positive,
		       COALESCE(reviewed_by, ''), COALESCE(review_notes, ''), screened_at
		FROM screening_results
		WHERE id = $1`, id)

	result, err := scanResult(row)
	if err == pgx.ErrNoRows {
		return nil, errors.ErrResultNotFound
	}
	if err != nil {
		return nil, errors.NewPersistenceError("find result").WithCause(err)
	}

	if err := r.loadMatches(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *ResultRepository) UpdateReview(ctx context.Context, id uuid.UUID, reviewedBy, notes string) (*screening.ScreeningResult, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE screening_results
		SET is_false_positive = TRUE, reviewed_by = $2, review_notes = $3
		WHERE id = $1`, id, reviewedBy, notes)
	if err != nil {
		return nil, errors.NewPersistenceError("update review").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, errors.ErrResultNotFound
	}
	return r.FindResult(ctx, id)
}

func (r *ResultRepository) ListByEntity(ctx context.Context, entityID string) ([]*screening.ScreeningResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, entity_id, entity_type, screening_data,
		       overall_risk_score, status, is_false_positive,
		       COALESCE(reviewed_by, ''), COALESCE(review_notes, ''), screened_at
		FROM screening_results
		WHERE entity_id = $1
		ORDER BY screened_at DESC`, entityID)
	if err != nil {
		return nil, errors.NewPersistenceError("list results").WithCause(err)
	}
	defer rows.Close()

	var results []*screening.ScreeningResult
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, errors.NewPersistenceError("scan result").WithCause(err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistenceError("list results").WithCause(err)
	}

	for _, result := range results {
		if err := r.loadMatches(ctx, result); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (r *ResultRepository) loadMatches(ctx context.Context, result *screening.ScreeningResult) error {
	rows, err := r.db.Query(ctx, `
		SELECT id, result_id, watchlist_id, watchlist_type,
		       matched_field, match_score, match_details, risk_level
		FROM screening_matches
		WHERE result_id = $1
		ORDER BY match_score DESC, id`, result.ID)
	if err != nil {
		return errors.NewPersistenceError("load matches").WithCause(err)
	}
	defer rows.Close()

	result.Matches = nil
	for rows.Next() {
		var (
			m       screening.ScreeningMatch
			details []byte
		)
		if err := rows.Scan(&m.ID, &m.ResultID, &m.WatchlistID, &m.WatchlistType,
			&m.MatchedField, &m.MatchScore, &details, &m.RiskLevel); err != nil {
			return errors.NewPersistenceError("scan match").WithCause(err)
		}
		if err := json.Unmarshal(details, &m.MatchDetails); err != nil {
			return errors.NewInternalError("unmarshal match details").WithCause(err)
		}
		result.Matches = append(result.Matches, m)
	}
	return rows.Err()
}

func scanResult(row pgx.Row) (*screening.ScreeningResult, error) {
	var (
		result        screening.ScreeningResult
		screeningData []byte
	)
	err := row.Scan(&result.ID, &result.EntityID, &result.EntityType, &screeningData,
		&result.OverallRiskScore, &result.Status, &result.IsFalsePositive,
		&result.ReviewedBy, &result.ReviewNotes, &result.ScreenedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(screeningData, &result.ScreeningData); err != nil {
		return nil, fmt.Errorf("unmarshal screening data: %w", err)
	}
	return &result, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
