// Package matcher scores cross-venue event titles and proposes candidate
// pairs for human review.
package matcher

import (
	"sort"
	"strings"
	"unicode"
)

// Normalize lowercases a title, turns every non-alphanumeric rune into a
// separator, and joins the sorted tokens with single spaces. Word order and
// punctuation therefore do not affect the score.
func Normalize(title string) string {
	tokens := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// Similarity returns the token-sort ratio of two titles in [0, 100].
func Similarity(a, b string) int {
	return ratio(Normalize(a), Normalize(b))
}

// ratio scores two already-normalized strings as 2*LCS/(lenA+lenB), the
// indel form of the Levenshtein ratio: a substitution counts as one insert
// plus one delete. Strings with no rune in common score 0.
func ratio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 100
	}
	score := 2 * float64(lcsLen(ra, rb)) / float64(total)
	return int(score*100 + 0.5)
}

// lcsLen is the length of the longest common subsequence of a and b, using
// two rows of the usual table.
func lcsLen(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for _, ra := range a {
		for j, rb := range b {
			if ra == rb {
				cur[j+1] = prev[j] + 1
			} else {
				cur[j+1] = max(prev[j+1], cur[j])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
