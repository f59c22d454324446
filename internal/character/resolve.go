package character

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// nameMatcher picks the registered given name that best matches a spoken or
// typed name. It combines Double Metaphone codes for candidate filtering with
// Jaro-Winkler similarity for ranking:
//
//  1. A name whose metaphone codes overlap the input's is a phonetic
//     candidate and is accepted at phoneticThreshold.
//  2. Without any phonetic candidate, plain Jaro-Winkler similarity must
//     reach fuzzyThreshold.
//
// Multi-word names ("Captain Mara") are compared word by word as well as in
// full.
type nameMatcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

func newNameMatcher() nameMatcher {
	return nameMatcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
}

// match returns the index into names of the best match for input and its
// score, or -1 when nothing is close enough.
func (m nameMatcher) match(input string, names []string) (int, float64) {
	in := strings.ToLower(strings.TrimSpace(input))
	if in == "" || len(names) == 0 {
		return -1, 0
	}
	inTokens := strings.Fields(in)
	inCodes := metaphoneCodes(inTokens)

	best, bestScore, bestPhonetic := -1, 0.0, false
	for i, name := range names {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" {
			continue
		}
		if n == in {
			return i, 1
		}
		nTokens := strings.Fields(n)
		score := jaroWinkler(inTokens, nTokens, in, n)

		if codesOverlap(inCodes, metaphoneCodes(nTokens)) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = i, score, true
			}
			continue
		}
		if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, bestScore
}

func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// jaroWinkler returns the best similarity of the full strings, the strings
// without spaces and any pair of words.
func jaroWinkler(inTokens, nameTokens []string, in, name string) float64 {
	score := matchr.JaroWinkler(in, name, false)
	if len(inTokens) > 1 || len(nameTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(inTokens, ""), strings.Join(nameTokens, ""), false); s > score {
			score = s
		}
	}
	for _, a := range inTokens {
		for _, b := range nameTokens {
			if s := matchr.JaroWinkler(a, b, false); s > score {
				score = s
			}
		}
	}
	return score
}
