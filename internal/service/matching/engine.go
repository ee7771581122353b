package matching

import (
	"sort"

	"github.com/complyco/entity-screening-backend/internal/domain/screening"
	"github.com/complyco/entity-screening-backend/internal/domain/watchlist"
)

// Engine scores query strings against watchlist entries. It is pure and
// stateless; watchlist identity and the originating field are stamped on
// candidates by the orchestrator.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// FindMatches emits one candidate per (query, entry) pair whose best
// name-variant similarity reaches threshold. All candidates at or above
// threshold are retained, ties included; relevance decisions belong to
// the scoring stage. Output ordering is deterministic: score descending,
// then entry ref.
func (e *Engine) FindMatches(query string, entries []watchlist.Entry, threshold int) []screening.MatchCandidate {
	threshold = clampThreshold(threshold)
	normalized := Normalize(query)
	if normalized == "" {
		return nil
	}

	var candidates []screening.MatchCandidate
	for _, entry := range entries {
		best, bestName := 0, ""
		for _, name := range entry.Names {
			score := Similarity(normalized, Normalize(name))
			if score > best {
				best, bestName = score, name
			}
		}
		if best >= threshold {
			candidates = append(candidates, screening.MatchCandidate{
				Score:       best,
				MatchedName: bestName,
				EntryRef:    entry.Ref,
			})
		}
	}

	sortCandidates(candidates)
	return candidates
}

// MatchIdentifier compares an exact identifier (passport number and the
// like) against entry identifiers. Equality scores 100 and bypasses
// approximate comparison entirely.
func (e *Engine) MatchIdentifier(field, value string, entries []watchlist.Entry) []screening.MatchCandidate {
	normalized := Normalize(value)
	if normalized == "" {
		return nil
	}

	var candidates []screening.MatchCandidate
	for _, entry := range entries {
		for idField, idValue := range entry.Identifiers {
			if idField == field && Normalize(idValue) == normalized {
				candidates = append(candidates, screening.MatchCandidate{
					Score:       100,
					MatchedName: idValue,
					EntryRef:    entry.Ref,
				})
				break
			}
		}
	}

	sortCandidates(candidates)
	return candidates
}

func sortCandidates(candidates []screening.MatchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].EntryRef < candidates[j].EntryRef
	})
}

func clampThreshold(threshold int) int {
	if threshold < 0 {
		return 0
	}
	if threshold > 100 {
		return 100
	}
	return threshold
}
