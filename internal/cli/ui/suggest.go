package ui

import (
	"sort"
	"strings"
)

// Suggest returns up to three candidates within a small edit distance of
// target, closest first. Matching ignores case.
func Suggest(target string, candidates []string) []string {
	limit := max(3, len(target)/3)

	type match struct {
		value    string
		distance int
	}
	var matches []match
	for _, c := range candidates {
		d := LevenshteinDistance(strings.ToLower(target), strings.ToLower(c))
		if d <= limit {
			matches = append(matches, match{c, d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].distance < matches[j].distance })

	var out []string
	for i := 0; i < len(matches) && i < 3; i++ {
		out = append(out, matches[i].value)
	}
	return out
}

// LevenshteinDistance is the number of single-rune edits turning a into b
//
//	LevenshteinDistance("kitten", "sitting") // 3
func LevenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
