package dialog

import (
	"strings"
	"unicode"
)

const maxKeywords = 10

// Mixed Turkish/English stopword list; interviews run in either language and
// job configs frequently mix both.
var stopwords = map[string]struct{}{
	"ve": {}, "veya": {}, "ile": {}, "için": {}, "gibi": {}, "ama": {},
	"bir": {}, "bu": {}, "şu": {}, "o": {}, "da": {}, "de": {}, "mi": {},
	"çok": {}, "daha": {}, "en": {}, "ben": {}, "sen": {}, "biz": {},
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "in": {},
	"on": {}, "to": {}, "for": {}, "with": {}, "is": {}, "are": {}, "was": {},
	"be": {}, "have": {}, "has": {}, "i": {}, "you": {}, "we": {}, "it": {},
	"my": {}, "your": {}, "at": {}, "as": {}, "by": {}, "that": {}, "this": {},
}

// ExtractKeywords returns up to 10 unique lowercase tokens from text, in
// first-appearance order, with boundary punctuation stripped and stopwords
// removed. Pure and deterministic.
func ExtractKeywords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, maxKeywords)
	for _, field := range fields {
		token := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len([]rune(token)) < 2 {
			continue
		}
		if _, ok := stopwords[token]; ok {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
		if len(out) == maxKeywords {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// KeywordHits counts how many of the given keywords occur in text
// (case-insensitive substring match).
func KeywordHits(keywords []string, text string) int {
	if len(keywords) == 0 || text == "" {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return hits
}

// KeywordOverlap counts shared tokens between two extracted keyword sets.
func KeywordOverlap(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, kw := range a {
		set[kw] = struct{}{}
	}
	overlap := 0
	for _, kw := range b {
		if _, ok := set[kw]; ok {
			overlap++
		}
	}
	return overlap
}
