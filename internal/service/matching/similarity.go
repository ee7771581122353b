package matching

// Similarity scores two already-normalized strings in [0,100]. It is the
// maximum of an edit-distance ratio over the full strings and a token-set
// overlap ratio, so both character-level typos ("Ladin"/"Laden") and
// reordered name parts ("Smith John"/"John Smith") score high. Equal
// inputs always score 100; the cap at 100 keeps suffix concatenation from
// inflating an exact match.
func Similarity(a, b string) int {
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}

	score := editRatio(a, b)
	if ts := tokenSetRatio(a, b); ts > score {
		score = ts
	}
	if score > 100 {
		score = 100
	}
	return score
}

// editRatio is the normalized Levenshtein similarity scaled to 0-100
func editRatio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 100
	}
	dist := levenshtein(ra, rb)
	return int(float64(longest-dist)/float64(longest)*100 + 0.5)
}

// levenshtein computes edit distance with a two-row matrix
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// tokenSetRatio measures shared tokens between the two names. Order
// independent: a reordered full name keeps a perfect token score.
func tokenSetRatio(a, b string) int {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(ta))
	for _, t := range ta {
		setA[t] = true
	}
	setB := make(map[string]bool, len(tb))
	for _, t := range tb {
		setB[t] = true
	}

	shared := 0
	for t := range setA {
		if setB[t] {
			shared++
		}
	}
	if shared == 0 {
		return 0
	}
	union := len(setA) + len(setB) - shared
	return int(float64(shared)/float64(union)*100 + 0.5)
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
