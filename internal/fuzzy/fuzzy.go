// Package fuzzy scores candidate tokens against a target phrase using a
// normalized insert/delete edit distance scaled to 0..100.
package fuzzy

import (
	"math"
	"strings"
	"unicode"
)

// Match is the outcome of BestMatch. An empty Candidate with Score 0 means no match.
type Match struct {
	Candidate string
	Score     int
	ratio     float64
}

// Ratio returns the similarity of a and b in [0,1]: (len(a)+len(b)-indel) / (len(a)+len(b)),
// where indel is the minimum number of single-rune insertions and deletions turning a into b.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	lcs := longestCommonSubsequence(ra, rb)
	return float64(2*lcs) / float64(total)
}

// Score returns Ratio scaled to an integer in [0,100]. Either side being empty scores 0.
// Half-way values round to even.
func Score(target, candidate string) int {
	if target == "" || candidate == "" {
		return 0
	}
	return int(math.RoundToEven(100 * Ratio(target, candidate)))
}

// BestMatch returns the candidate scoring highest against target. Candidates and target are
// normalized first (lower-cased, punctuation replaced by spaces, trimmed). Equal integer scores
// are resolved by the higher raw ratio; remaining ties keep the earlier candidate.
// An empty candidate list yields the zero Match.
func BestMatch(target string, candidates []string) Match {
	var best Match
	found := false
	t := Normalize(target)
	for _, c := range candidates {
		n := Normalize(c)
		if n == "" {
			continue
		}
		m := Match{Candidate: c, Score: Score(t, n), ratio: Ratio(t, n)}
		if !found || m.Score > best.Score || (m.Score == best.Score && m.ratio > best.ratio) {
			best = m
			found = true
		}
	}
	return best
}

// Normalize lower-cases s, turns every non letter/digit rune into a space and trims the result.
func Normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.TrimSpace(mapped)
}

func longestCommonSubsequence(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
