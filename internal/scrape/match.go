package scrape

import "strings"

// Candidate is a product link harvested from a search results page.
type Candidate struct {
	Title string // anchor text as displayed
	URL   string // absolute product URL
}

// BestMatch picks the candidate whose normalized title is most similar to the
// cleaned query. Candidates whose flattened title contains the flattened
// query (or vice versa) are preferred; within the preferred pool the winner
// has the highest similarity ratio. Returns false when candidates is empty.
func BestMatch(cleanedQuery string, candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}

	flatQuery := Flatten(cleanedQuery)

	type scored struct {
		cand Candidate
		flat string
	}
	pool := make([]scored, 0, len(candidates))
	subset := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c.Title) == "" {
			continue
		}
		flat := Flatten(CleanQuery(c.Title))
		entry := scored{cand: c, flat: flat}
		pool = append(pool, entry)
		if strings.Contains(flat, flatQuery) || strings.Contains(flatQuery, flat) {
			subset = append(subset, entry)
		}
	}
	if len(pool) == 0 {
		return Candidate{}, false
	}
	if len(subset) > 0 {
		pool = subset
	}

	best := pool[0]
	bestScore := Similarity(flatQuery, best.flat)
	for _, entry := range pool[1:] {
		if score := Similarity(flatQuery, entry.flat); score > bestScore {
			best = entry
			bestScore = score
		}
	}
	return best.cand, true
}

// Similarity returns the Ratcliff/Obershelp ratio of two strings in [0, 1]:
// twice the number of matching characters over the total length.
func Similarity(a, b string) float64 {
	if len(a)+len(b) == 0 {
		return 1
	}
	matched := matchTotal(a, b)
	return 2 * float64(matched) / float64(len(a)+len(b))
}

// matchTotal sums matched characters by finding the longest common substring
// and recursing into the unmatched pieces on either side.
func matchTotal(a, b string) int {
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchTotal(a[:ai], b[:bi])
	total += matchTotal(a[ai+size:], b[bi+size:])
	return total
}

// longestCommonSubstring returns the start offsets and length of the longest
// substring common to a and b. Length ties resolve to the earliest start in
// a, then the earliest start in b, so the recursion in matchTotal splits the
// strings the same way SequenceMatcher does.
func longestCommonSubstring(a, b string) (int, int, int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}

	bestA, bestB, bestLen := 0, 0, 0
	// lengths[j+1] is the length of the common suffix ending at a[i-1], b[j].
	// prev carries the previous row's value diagonally so j can scan upward.
	lengths := make([]int, len(b)+1)
	for i := 0; i < len(a); i++ {
		prev := 0
		for j := 0; j < len(b); j++ {
			cur := lengths[j+1]
			if a[i] == b[j] {
				lengths[j+1] = prev + 1
				if lengths[j+1] > bestLen {
					bestLen = lengths[j+1]
					bestA = i - bestLen + 1
					bestB = j - bestLen + 1
				}
			} else {
				lengths[j+1] = 0
			}
			prev = cur
		}
	}
	return bestA, bestB, bestLen
}
