// Package suggest offers "did you mean" candidates for mistyped split ids
// and names using Levenshtein distance.
package suggest

import (
	"sort"
	"strings"
)

// levenshtein calculates the edit distance between two strings
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// Closest returns up to limit candidates within a few edits of target, best
// match first. Comparison ignores case; a candidate that contains target as
// a prefix always qualifies.
func Closest(target string, candidates []string, limit int) []string {
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" || limit <= 0 {
		return nil
	}

	type scored struct {
		value string
		score int
	}
	var matches []scored
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		lc := strings.ToLower(c)
		if lc == target {
			continue
		}
		dist := levenshtein(target, lc)
		if strings.HasPrefix(lc, target) {
			dist = 0
		}
		if dist <= max(2, len(target)/3) {
			matches = append(matches, scored{c, dist})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score < matches[j].score
	})

	var out []string
	for i := 0; i < len(matches) && i < limit; i++ {
		out = append(out, matches[i].value)
	}
	return out
}
