package index

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and returns its maximal runs of letters, combining
// marks, digits and underscores, in order. Corpus chunks and questions both go through it.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), isSeparator)
}

func isSeparator(r rune) bool {
	return !(unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsDigit(r) || r == '_')
}
