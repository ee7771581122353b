package screening

import (
	"time"

	"github.com/google/uuid"

	"github.com/complyco/entity-screening-backend/internal/domain/errors"
)

// Status is the screening verdict consumed by onboarding flows
type Status string

const (
	StatusClear   Status = "clear"
	StatusFlagged Status = "flagged"
	StatusBlocked Status = "blocked"
)

// RiskLevel classifies an individual match by its score
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// ScreeningMatch is a persisted match. Immutable after creation;
// corrections happen at the result level so the audit trail survives
// review.
type ScreeningMatch struct {
	ID            uuid.UUID      `json:"id"`
	ResultID      uuid.UUID      `json:"result_id"`
	WatchlistID   uuid.UUID      `json:"watchlist_id"`
	WatchlistType string         `json:"watchlist_type"`
	MatchedField  string         `json:"matched_field"`
	MatchScore    int            `json:"match_score"`
	MatchDetails  MatchCandidate `json:"match_details"`
	RiskLevel     RiskLevel      `json:"risk_level"`
}

// ScreeningResult is the single authoritative outcome of a screening job.
// Created once at job completion; later mutated only by the human-review
// workflow, which annotates and never deletes the original score or
// matches.
type ScreeningResult struct {
	ID               uuid.UUID         `json:"id"`
	EntityID         string            `json:"entity_id"`
	EntityType       EntityType        `json:"entity_type"`
	ScreeningData    map[string]string `json:"screening_data"`
	OverallRiskScore int               `json:"overall_risk_score"`
	Status           Status            `json:"status"`
	Matches          []ScreeningMatch  `json:"matches"`
	IsFalsePositive  bool              `json:"is_false_positive"`
	ReviewedBy       string            `json:"reviewed_by,omitempty"`
	ReviewNotes      string            `json:"review_notes,omitempty"`
	ScreenedAt       time.Time         `json:"screened_at"`
}

// NewResult assembles a result from a completed job. The result ID is the
// job ID, which makes the store write an upsert under at-least-once
// delivery: re-processing the same job can never produce a second
// authoritative result.
func NewResult(job *ScreeningJob, score int, status Status, matches []ScreeningMatch) *ScreeningResult {
	r := &ScreeningResult{
		ID:               job.JobID,
		EntityID:         job.Request.EntityID,
		EntityType:       job.Request.EntityType,
		ScreeningData:    job.Request.ScreeningData,
		OverallRiskScore: score,
		Status:           status,
		Matches:          make([]ScreeningMatch, len(matches)),
		ScreenedAt:       time.Now().UTC(),
	}
	copy(r.Matches, matches)
	for i := range r.Matches {
		r.Matches[i].ResultID = r.ID
	}
	return r
}

// MarkFalsePositive annotates the result after human review. Score and
// matches are untouched.
func (r *ScreeningResult) MarkFalsePositive(reviewedBy, notes string) error {
	if reviewedBy == "" {
		return errors.NewValidationError("MISSING_REVIEWER", "reviewer identity is required")
	}
	r.IsFalsePositive = true
	r.ReviewedBy = reviewedBy
	r.ReviewNotes = notes
	return nil
}
