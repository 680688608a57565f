package ingest

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars is the default chunk size in characters
const DefaultMaxChars = 1200

// SplitChunks packs blank-line separated paragraphs into chunks of at most maxChars
// characters. A paragraph longer than maxChars is cut on word boundaries.
func SplitChunks(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		for _, piece := range splitLong(para, maxChars) {
			sep := 0
			if current.Len() > 0 {
				sep = 2
			}
			if utf8.RuneCountInString(current.String())+sep+utf8.RuneCountInString(piece) > maxChars {
				flush()
				sep = 0
			}
			if sep > 0 {
				current.WriteString("\n\n")
			}
			current.WriteString(piece)
		}
	}
	flush()

	return chunks
}

// splitLong cuts a paragraph into word-aligned pieces of at most maxChars characters
func splitLong(para string, maxChars int) []string {
	if utf8.RuneCountInString(para) <= maxChars {
		return []string{para}
	}

	var pieces []string
	var b strings.Builder
	n := 0
	for _, word := range strings.Fields(para) {
		wn := utf8.RuneCountInString(word)
		if n > 0 && n+1+wn > maxChars {
			pieces = append(pieces, b.String())
			b.Reset()
			n = 0
		}
		// A single word longer than the limit is hard-cut
		for wn > maxChars {
			runes := []rune(word)
			pieces = append(pieces, string(runes[:maxChars]))
			word = string(runes[maxChars:])
			wn = len(runes) - maxChars
		}
		if n > 0 {
			b.WriteByte(' ')
			n++
		}
		b.WriteString(word)
		n += wn
	}
	if b.Len() > 0 {
		pieces = append(pieces, b.String())
	}
	return pieces
}
