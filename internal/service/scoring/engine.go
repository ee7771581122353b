package scoring

import (
	"github.com/complyco/entity-screening-backend/internal/domain/screening"
	"github.com/complyco/entity-screening-backend/internal/domain/watchlist"
)

// Config carries the scoring policy. Every value here is tunable through
// application configuration; the defaults below are reference starting
// points, not business policy.
type Config struct {
	// Status thresholds
	BlockedScore        int `koanf:"blocked_score"`         // overall score that blocks outright
	SanctionsBlockScore int `koanf:"sanctions_block_score"` // a single sanctions match at this score blocks
	FlaggedScore        int `koanf:"flagged_score"`

	// Per-match risk level thresholds
	CriticalMatchScore int `koanf:"critical_match_score"`
	HighMatchScore     int `koanf:"high_match_score"`
	MediumMatchScore   int `koanf:"medium_match_score"`

	// Per-watchlist-type weights applied to the best match of each type.
	// Sanctions carry extra weight so a strong sanctions hit dominates the
	// overall score.
	TypeWeights   map[string]float64 `koanf:"type_weights"`
	DefaultWeight float64            `koanf:"default_weight"`
}

// DefaultConfig returns the reference scoring policy
func DefaultConfig() Config {
	return Config{
		BlockedScore:        90,
		SanctionsBlockScore: 95,
		FlaggedScore:        50,
		CriticalMatchScore:  90,
		HighMatchScore:      75,
		MediumMatchScore:    50,
		TypeWeights: map[string]float64{
			string(watchlist.TypeSanctions):    1.1,
			string(watchlist.TypePEP):          0.9,
			string(watchlist.TypeAdverseMedia): 0.6,
			string(watchlist.TypeCustom):       0.8,
		},
		DefaultWeight: 0.8,
	}
}

// Engine turns match candidates into an overall score, a verdict, and
// per-match risk levels.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.TypeWeights == nil {
		cfg.TypeWeights = DefaultConfig().TypeWeights
	}
	if cfg.DefaultWeight == 0 {
		cfg.DefaultWeight = DefaultConfig().DefaultWeight
	}
	return &Engine{cfg: cfg}
}

// CalculateRiskScore aggregates candidates into one 0-100 score: the best
// match per watchlist type is weighted by that type's weight and the
// maximum weighted value wins. An empty candidate set scores exactly 0,
// and any non-empty set scores at least 1, so a zero score always means
// "nothing matched".
func (e *Engine) CalculateRiskScore(matches []screening.MatchCandidate) int {
	if len(matches) == 0 {
		return 0
	}

	bestPerType := make(map[string]int)
	for _, m := range matches {
		if m.Score > bestPerType[m.WatchlistType] {
			bestPerType[m.WatchlistType] = m.Score
		}
	}

	best := 0.0
	for listType, score := range bestPerType {
		weighted := float64(score) * e.weightFor(listType)
		if weighted > best {
			best = weighted
		}
	}

	overall := int(best + 0.5)
	if overall > 100 {
		overall = 100
	}
	if overall < 1 {
		overall = 1
	}
	return overall
}

// DetermineStatus maps the aggregate score and raw candidates to a
// verdict. A strong sanctions hit blocks regardless of how the weighted
// aggregate came out.
func (e *Engine) DetermineStatus(score int, matches []screening.MatchCandidate) screening.Status {
	if score >= e.cfg.BlockedScore {
		return screening.StatusBlocked
	}
	for _, m := range matches {
		if m.WatchlistType == string(watchlist.TypeSanctions) && m.Score >= e.cfg.SanctionsBlockScore {
			return screening.StatusBlocked
		}
	}
	if score >= e.cfg.FlaggedScore {
		return screening.StatusFlagged
	}
	return screening.StatusClear
}

// DetermineRiskLevel classifies one match by its raw score
func (e *Engine) DetermineRiskLevel(matchScore int) screening.RiskLevel {
	switch {
	case matchScore >= e.cfg.CriticalMatchScore:
		return screening.RiskLevelCritical
	case matchScore >= e.cfg.HighMatchScore:
		return screening.RiskLevelHigh
	case matchScore >= e.cfg.MediumMatchScore:
		return screening.RiskLevelMedium
	default:
		return screening.RiskLevelLow
	}
}

func (e *Engine) weightFor(listType string) float64 {
	if w, ok := e.cfg.TypeWeights[listType]; ok {
		return w
	}
	return e.cfg.DefaultWeight
}
