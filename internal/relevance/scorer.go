// Package relevance scores search candidates by lexical word overlap.
// This is a coarse heuristic, not semantic ranking.
package relevance

import "strings"

// Score counts the distinct words of term that occur as substrings of text.
// Both sides are lowercased first.
func Score(term, text string) int {
	text = strings.ToLower(text)
	seen := make(map[string]bool)
	score := 0
	for _, word := range strings.Fields(strings.ToLower(term)) {
		if seen[word] {
			continue
		}
		seen[word] = true
		if strings.Contains(text, word) {
			score++
		}
	}
	return score
}

// Best returns the index of the strictly highest-scoring candidate.
// Ties keep the first-seen candidate. Returns -1 when every score is
// zero — no confident match rather than an arbitrary pick.
func Best(term string, candidates []string) int {
	best := -1
	bestScore := 0
	for i, c := range candidates {
		if s := Score(term, c); s > bestScore {
			bestScore = s
			best = i
		}
	}
	return best
}
