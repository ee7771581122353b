package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complyco/entity-screening-backend/internal/domain/watchlist"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  John   SMITH ", "john smith"},
		{"Müller", "muller"},
		{"O'Brien-Smith", "o brien smith"},
		{"José García", "jose garcia"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestSimilarity_ExactNormalizedMatchScores100(t *testing.T) {
	assert.Equal(t, 100, Similarity(Normalize("John Smith"), Normalize("JOHN   smith")))
	assert.Equal(t, 100, Similarity(Normalize("Müller"), Normalize("Muller")))
}

func TestSimilarity_SuffixNeverExceeds100(t *testing.T) {
	base := Normalize("John Smith")
	suffixed := Normalize("John Smith Jr Extra Words")
	score := Similarity(base, suffixed)
	assert.LessOrEqual(t, score, 100)
	assert.Less(t, score, 100, "suffixed variant is not an exact match")
}

func TestSimilarity_CloseVariants(t *testing.T) {
	score := Similarity(Normalize("Osama Bin Laden"), Normalize("Usama Bin Ladin"))
	assert.GreaterOrEqual(t, score, 75, "transliteration variants must clear the default threshold")
	assert.Less(t, score, 100)
}

func TestSimilarity_ReorderedTokens(t *testing.T) {
	score := Similarity(Normalize("Smith John"), Normalize("John Smith"))
	assert.Equal(t, 100, score)
}

func TestSimilarity_Deterministic(t *testing.T) {
	a, b := Normalize("Abdul Rahman al-Masri"), Normalize("Abd al Rahman Masri")
	first := Similarity(a, b)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Similarity(a, b))
	}
}

func sanctionedEntries() []watchlist.Entry {
	return []watchlist.Entry{
		{Ref: "SDN-001", Names: []string{"Usama Bin Ladin", "Osama bin Muhammad bin Awad bin Laden"}},
		{Ref: "SDN-002", Names: []string{"Maria Theresa Lopez"}, Identifiers: map[string]string{"passportNumber": "X1234567"}},
		{Ref: "SDN-003", Names: []string{"Johann Schmidt"}},
	}
}

func TestFindMatches_ExactMatchScores100(t *testing.T) {
	e := NewEngine()
	got := e.FindMatches("usama bin LADIN", sanctionedEntries(), 75)

	require.NotEmpty(t, got)
	assert.Equal(t, 100, got[0].Score)
	assert.Equal(t, "SDN-001", got[0].EntryRef)
}

func TestFindMatches_ThresholdMonotonicity(t *testing.T) {
	e := NewEngine()
	entries := sanctionedEntries()

	low := e.FindMatches("Osama Bin Laden", entries, 40)
	high := e.FindMatches("Osama Bin Laden", entries, 80)

	lowRefs := make(map[string]bool, len(low))
	for _, c := range low {
		lowRefs[c.EntryRef] = true
	}
	for _, c := range high {
		assert.True(t, lowRefs[c.EntryRef], "higher threshold result %s missing from lower threshold set", c.EntryRef)
	}
	assert.GreaterOrEqual(t, len(low), len(high))
}

func TestFindMatches_BelowThresholdExcluded(t *testing.T) {
	e := NewEngine()
	got := e.FindMatches("Completely Unrelated Name", sanctionedEntries(), 75)
	assert.Empty(t, got)
}

func TestFindMatches_TiesRetained(t *testing.T) {
	e := NewEngine()
	entries := []watchlist.Entry{
		{Ref: "A", Names: []string{"John Smith"}},
		{Ref: "B", Names: []string{"John Smith"}},
	}
	got := e.FindMatches("John Smith", entries, 75)

	require.Len(t, got, 2)
	assert.Equal(t, got[0].Score, got[1].Score)
}

func TestFindMatches_OneCandidatePerEntry(t *testing.T) {
	e := NewEngine()
	// Both aliases of SDN-001 clear the threshold; only the best one is
	// emitted for the entry.
	got := e.FindMatches("Usama Bin Ladin", sanctionedEntries(), 50)

	seen := make(map[string]int)
	for _, c := range got {
		seen[c.EntryRef]++
	}
	for ref, n := range seen {
		assert.Equal(t, 1, n, "entry %s emitted more than once", ref)
	}
}

func TestMatchIdentifier_ExactEquality(t *testing.T) {
	e := NewEngine()

	got := e.MatchIdentifier("passportNumber", "X1234567", sanctionedEntries())
	require.Len(t, got, 1)
	assert.Equal(t, 100, got[0].Score)
	assert.Equal(t, "SDN-002", got[0].EntryRef)

	assert.Empty(t, e.MatchIdentifier("passportNumber", "Z999", sanctionedEntries()))
}
