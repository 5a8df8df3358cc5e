// Package similarity provides the text comparison primitives shared by every
// anchor matching layer.
package similarity

import (
	"strings"
	"unicode"
)

// editGuardLength is the combined normalized length above which
// BoundedEditSimilarity falls back to SetSimilarity.
const editGuardLength = 300

// containmentScore is returned by SetSimilarity when one normalized string
// contains the other.
const containmentScore = 0.85

// Normalize lowercases s, drops every rune that is neither a word rune nor
// whitespace, collapses whitespace runs to a single space and trims.
func Normalize(s string) string {
	lowered := strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if isWordRune(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// SetSimilarity compares the normalized forms of a and b: identical strings
// score 1, containment scores 0.85, anything else scores the Jaccard ratio
// of the two word sets.
func SetSimilarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return containmentScore
	}

	wa := wordSet(na)
	wb := wordSet(nb)
	intersection := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			intersection++
		}
	}
	union := len(wa) + len(wb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(normalized string) map[string]struct{} {
	words := strings.Split(normalized, " ")
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// BoundedEditSimilarity scores 1 - levenshtein(a, b) / max(len(a), len(b))
// over the normalized runes of a and b. Inputs whose combined normalized
// length exceeds 300 runes are scored with SetSimilarity instead.
func BoundedEditSimilarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1
	}
	ra, rb := []rune(na), []rune(nb)
	if len(ra)+len(rb) > editGuardLength {
		return SetSimilarity(a, b)
	}
	maxLen := max(len(ra), len(rb))
	return 1 - float64(levenshtein(ra, rb))/float64(maxLen)
}

// levenshtein is the classic two-row edit distance.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1]
				continue
			}
			curr[j] = 1 + min(prev[j], curr[j-1], prev[j-1])
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
