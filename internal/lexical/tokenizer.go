package lexical

import (
	"regexp"
	"strings"
)

// wordRegex matches runs of letters, digits, and underscores — good enough
// to split prose and inline code identifiers alike.
var wordRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// DefaultStopWords are common English words filtered out of documentation
// prose before BM25 scoring; they carry little discriminative weight and
// would otherwise dominate term-frequency statistics.
var DefaultStopWords = []string{
	"a", "an", "the", "and", "or", "but", "if", "then", "else",
	"is", "are", "was", "were", "be", "been", "being",
	"to", "of", "in", "on", "at", "for", "with", "by", "from",
	"this", "that", "these", "those", "it", "its",
	"as", "can", "will", "would", "should", "could",
}

// Tokenize splits text into lowercase word tokens, dropping anything
// shorter than minLength.
func Tokenize(text string, minLength int) []string {
	words := wordRegex.FindAllString(text, -1)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		lower := strings.ToLower(w)
		if len(lower) >= minLength {
			tokens = append(tokens, lower)
		}
	}
	return tokens
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordSet converts a slice of stop words into a lookup set.
func BuildStopWordSet(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}
