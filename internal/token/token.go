// Package token normalises and tokenizes analyzed string values.
//
// Tokens are NFKC-normalised and case folded. Words split on anything that
// is not a letter, digit or combining mark, and on a change of script. Han
// ideographs are single-rune tokens; runs of Hiragana and runs of Katakana
// are tokens of their own.
package token

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize applies NFKC normalisation and case folding.
func Normalize(s string) string {
	return folder.String(norm.NFKC.String(s))
}

type class int

const (
	classSep class = iota
	classJoin
	classHan
	classHiragana
	classKatakana
	classLatin
	classGreek
	classCyrillic
	classArabic
	classHebrew
	classHangul
	classThai
	classDevanagari
	classOther
)

var scripts = []struct {
	table *unicode.RangeTable
	class class
}{
	{unicode.Latin, classLatin},
	{unicode.Greek, classGreek},
	{unicode.Cyrillic, classCyrillic},
	{unicode.Arabic, classArabic},
	{unicode.Hebrew, classHebrew},
	{unicode.Hangul, classHangul},
	{unicode.Thai, classThai},
	{unicode.Devanagari, classDevanagari},
}

func classify(r rune) class {
	switch {
	case unicode.Is(unicode.Han, r):
		return classHan
	case unicode.Is(unicode.Hiragana, r):
		return classHiragana
	case unicode.Is(unicode.Katakana, r), r == '\u30fc':
		return classKatakana
	case unicode.IsDigit(r), unicode.Is(unicode.Mn, r), unicode.Is(unicode.Mc, r):
		return classJoin
	case unicode.IsLetter(r):
		for _, s := range scripts {
			if unicode.Is(s.table, r) {
				return s.class
			}
		}
		return classOther
	default:
		return classSep
	}
}

// Tokenize splits s into normalised tokens.
func Tokenize(s string) []string {
	s = Normalize(s)
	var tokens []string
	var cur strings.Builder
	curClass := classSep
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
		curClass = classSep
	}
	for _, r := range s {
		c := classify(r)
		switch {
		case c == classSep:
			flush()
		case c == classHan:
			flush()
			tokens = append(tokens, string(r))
		case c == classJoin:
			if curClass == classSep {
				curClass = classJoin
			}
			cur.WriteRune(r)
		default:
			if curClass != classSep && curClass != classJoin && curClass != c {
				flush()
			}
			curClass = c
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// FuzzyDistance is the edit distance allowed for a fuzzy query token:
// 0 for up to two runes, 1 for three to five, 2 beyond.
func FuzzyDistance(queryToken string) int {
	switch n := len([]rune(queryToken)); {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}

// Matches reports whether candidate matches query, exactly or within the
// fuzzy edit distance of query.
func Matches(query, candidate string, fuzzy bool) bool {
	if query == candidate {
		return true
	}
	if !fuzzy {
		return false
	}
	limit := FuzzyDistance(query)
	return limit > 0 && Distance(query, candidate, limit) <= limit
}

// Distance is the Levenshtein distance between a and b in runes. It stops
// early and returns limit+1 once the distance must exceed limit.
func Distance(a, b string, limit int) int {
	ra, rb := []rune(a), []rune(b)
	if d := len(ra) - len(rb); d > limit || -d > limit {
		return limit + 1
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		best := curr[0]
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			best = min(best, curr[j])
		}
		if best > limit {
			return limit + 1
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
