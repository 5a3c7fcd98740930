// Package keyword's tokenizer breaks chunk content — mostly source code
// and the prose wrapped around it — into index terms. A naive
// whitespace split treats "getUserById" as one opaque term, which is
// useless against a query for "user"; this tokenizer additionally
// explodes identifiers along their camelCase/PascalCase/snake_case
// boundaries so sub-words are independently searchable.
package keyword

import (
	"regexp"
	"strings"
	"unicode"
)

// minTermLength drops single-character fragments ("a", "i") that would
// otherwise flood the postings list without narrowing any real query.
const minTermLength = 2

// wordBoundary matches a maximal run of letters, digits, or underscores;
// everything else (whitespace, punctuation, operators) is a separator.
var wordBoundary = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// TokenizeCode extracts lowercased index terms from text: it isolates
// word-like runs, explodes each one into its identifier sub-words, and
// drops anything shorter than minTermLength.
func TokenizeCode(text string) []string {
	var terms []string
	for _, word := range wordBoundary.FindAllString(text, -1) {
		for _, part := range SplitCodeToken(word) {
			if lower := strings.ToLower(part); len(lower) >= minTermLength {
				terms = append(terms, lower)
			}
		}
	}
	return terms
}

// SplitCodeToken explodes one word-like run into identifier sub-words,
// first on underscores, then on camelCase/PascalCase boundaries within
// each underscore-delimited piece.
func SplitCodeToken(token string) []string {
	if !strings.Contains(token, "_") {
		return SplitCamelCase(token)
	}

	var parts []string
	for _, piece := range strings.Split(token, "_") {
		if piece != "" {
			parts = append(parts, SplitCamelCase(piece)...)
		}
	}
	return parts
}

// SplitCamelCase breaks an identifier at case transitions, keeping runs
// of acronym letters together: "parseHTTPRequest" yields ["parse",
// "HTTP", "Request"], not ["parse", "H", "T", "T", "P", "Request"].
// A boundary falls before an uppercase rune when the rune before it is
// lowercase (new word starting) or the rune after it is lowercase (an
// acronym run ending and a new capitalized word beginning).
func SplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	runes := []rune(s)
	var words []string
	var word strings.Builder

	for i, r := range runes {
		boundary := i > 0 && unicode.IsUpper(r) &&
			(unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1])))
		if boundary && word.Len() > 0 {
			words = append(words, word.String())
			word.Reset()
		}
		word.WriteRune(r)
	}
	if word.Len() > 0 {
		words = append(words, word.String())
	}
	return words
}

// FilterStopWords drops any token present in stopWords (case-insensitive),
// preserving order.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, stop := stopWords[strings.ToLower(token)]; !stop {
			kept = append(kept, token)
		}
	}
	return kept
}

// BuildStopWordMap lowercases and indexes a stop word list for O(1)
// membership checks during filtering.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	set := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		set[strings.ToLower(word)] = struct{}{}
	}
	return set
}
