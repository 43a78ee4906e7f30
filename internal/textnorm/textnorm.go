// Package textnorm normalizes free text for keyword matching.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Fold applies NFKC normalization and Unicode case folding. Two strings that
// differ only in case or compatibility form fold to the same value.
func Fold(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}

// Words folds s and reduces it to its letter and digit runs, joined by single
// spaces and padded with one leading and trailing space. A phrase match
// against the result is then a plain substring search for " phrase ".
func Words(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(' ')
	gap := false
	for _, r := range Fold(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if gap {
				b.WriteByte(' ')
				gap = false
			}
			b.WriteRune(r)
			continue
		}
		if b.Len() > 1 {
			gap = true
		}
	}
	b.WriteByte(' ')
	return b.String()
}

// ContainsPhrase reports whether the padded word form w contains phrase as a
// whole word sequence. w must come from Words.
func ContainsPhrase(w, phrase string) bool {
	p := strings.TrimSpace(Words(phrase))
	if p == "" {
		return false
	}
	return strings.Contains(w, " "+p+" ")
}
