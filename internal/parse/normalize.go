// Package parse contains the pure text parsers used by the dialogue engine:
// dates, times, quantities and yes/no intents, matched against pt-BR
// conventions. All matching is case-insensitive and diacritic-insensitive.
package parse

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips diacritics and collapses whitespace so that
// "Não", "nao" and " NAO " all compare equal.
func Normalize(s string) string {
	out, _, err := transform.String(stripAccents, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// hasWordPrefix reports whether text starts with token as a whole word.
func hasWordPrefix(text, token string) bool {
	if !strings.HasPrefix(text, token) {
		return false
	}
	if len(text) == len(token) {
		return true
	}
	next := rune(text[len(token)])
	return !unicode.IsLetter(next) && !unicode.IsDigit(next)
}

func containsWord(text, token string) bool {
	for _, w := range strings.Fields(text) {
		if w == token {
			return true
		}
	}
	return false
}
