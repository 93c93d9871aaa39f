// Package textnorm normalizes player utterances before keyword matching.
// Trigger keywords are authored in mixed case and players type whatever they
// like, so all substring checks in the pipeline go through Fold first.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var folder = cases.Fold()

// Fold lowercases the input with full Unicode case folding and collapses
// runs of whitespace to single spaces.
func Fold(s string) string {
	folded := folder.String(s)
	fields := strings.FieldsFunc(folded, unicode.IsSpace)
	return strings.Join(fields, " ")
}

// ContainsAny reports whether the folded input contains any of the keywords
// as a substring. Empty keywords are skipped. Matching is fold-insensitive on
// both sides.
func ContainsAny(input string, keywords []string) (string, bool) {
	folded := Fold(input)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(folded, Fold(kw)) {
			return kw, true
		}
	}
	return "", false
}

// Title renders an identifier-style string ("quest_stage") as display text
// ("Quest Stage") for prompts and console output.
func Title(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	return cases.Title(language.English).String(s)
}
