package rag

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxKeywords = 3

// ExtractKeywords picks up to three content words from text: lowercased,
// stripped of surrounding punctuation, longer than three characters and not stop words.
func ExtractKeywords(text string, stopWords map[string]struct{}) string {
	var keywords []string
	for _, field := range strings.Fields(strings.ToLower(text)) {
		word := strings.TrimFunc(field, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if utf8.RuneCountInString(word) <= 3 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		keywords = append(keywords, word)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return strings.Join(keywords, " ")
}

// StopWordSet builds the lookup set used by ExtractKeywords
func StopWordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return set
}
