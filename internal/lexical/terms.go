// Package lexical provides keyword and phrase matching used when no
// embedding is available for a query.
package lexical

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// minKeywordLength is the shortest token (in runes) kept as a keyword,
// exclusive.
const minKeywordLength = 2

// Point weights for TextSimilarity.
const (
	phraseWeight  = 3.0
	keywordWeight = 1.0
)

var quotedPhrase = regexp.MustCompile(`"([^"]*)"`)

// SearchTerms is the output of ExtractSearchTerms.
type SearchTerms struct {
	// Keywords are lower-cased, deduplicated and ordered longest first.
	Keywords []string

	// ExactPhrases are the double-quoted substrings of the query, verbatim.
	ExactPhrases []string
}

// IsEmpty reports whether the terms can match anything at all.
func (t SearchTerms) IsEmpty() bool {
	return len(t.Keywords) == 0 && len(t.ExactPhrases) == 0
}

// ExtractSearchTerms splits text into quoted exact phrases and keywords.
// The result depends only on text.
func ExtractSearchTerms(text string) SearchTerms {
	terms := SearchTerms{
		Keywords:     []string{},
		ExactPhrases: []string{},
	}

	for _, m := range quotedPhrase.FindAllStringSubmatch(text, -1) {
		if strings.TrimSpace(m[1]) == "" {
			continue
		}
		terms.ExactPhrases = append(terms.ExactPhrases, m[1])
	}
	remaining := quotedPhrase.ReplaceAllString(text, " ")

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, strings.ToLower(remaining))

	seen := make(map[string]struct{})
	for _, tok := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(tok) <= minKeywordLength {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		terms.Keywords = append(terms.Keywords, tok)
	}

	// Longer tokens first; equal lengths keep first-occurrence order.
	slices.SortStableFunc(terms.Keywords, func(a, b string) int {
		return utf8.RuneCountInString(b) - utf8.RuneCountInString(a)
	})

	return terms
}

// TextSimilarity scores candidate against terms in [0, 1]. Each exact
// phrase found is worth three points and each keyword found one point;
// the score is the matched share of all possible points. Empty terms
// score 0.
func TextSimilarity(terms SearchTerms, candidate string) float64 {
	total := phraseWeight*float64(len(terms.ExactPhrases)) + keywordWeight*float64(len(terms.Keywords))
	if total == 0 {
		return 0
	}

	lower := strings.ToLower(candidate)

	matched := 0.0
	for _, phrase := range terms.ExactPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			matched += phraseWeight
		}
	}

	keywordHits := 0
	for _, kw := range terms.Keywords {
		if strings.Contains(lower, kw) {
			keywordHits++
		}
	}
	keywordHits = min(keywordHits, len(terms.Keywords))
	matched += keywordWeight * float64(keywordHits)

	return matched / total
}
