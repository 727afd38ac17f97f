package index

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it on anything that is not a letter
// or digit. Han characters become single-rune tokens. Stop words are
// dropped.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	tokens := make([]string, 0, len(text)/4)
	var cur strings.Builder

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		tok := cur.String()
		if _, stop := stopWords[tok]; !stop {
			tokens = append(tokens, tok)
		}
		cur.Reset()
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

var stopWords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "is", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "do", "does", "did", "will", "would", "could",
		"should", "may", "might", "shall", "can", "to", "of", "in", "for",
		"on", "with", "at", "by", "from", "as", "into", "through", "during",
		"before", "after", "above", "below", "between", "out", "off", "over",
		"under", "again", "then", "once", "and", "but", "or", "nor", "so",
		"yet", "both", "each", "all", "any", "few", "more", "most", "other",
		"some", "such", "only", "own", "same", "than", "too", "very", "just",
		"because", "if", "when", "where", "how", "what", "which", "who",
		"whom", "this", "that", "these", "those", "i", "me", "my", "we",
		"our", "you", "your", "he", "him", "his", "she", "her", "it", "its",
		"they", "them", "their",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
