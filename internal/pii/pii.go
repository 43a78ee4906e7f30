// Package pii detects personally identifiable information in ticket text and
// replaces it with opaque per-category placeholders.
package pii

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
)

// Category names a kind of PII.
type Category string

const (
	Email Category = "email"
	Phone Category = "phone"
	SSN   Category = "ssn"
	IPv4  Category = "ip"
)

// Placeholder is the token that replaces a match of c, e.g. [REDACTED_EMAIL].
// Placeholders are never reversed.
func (c Category) Placeholder() string {
	return "[REDACTED_" + strings.ToUpper(string(c)) + "]"
}

type detector struct {
	cat Category
	re  *regexp.Regexp
}

// Detector order is the tie-break when two categories match the same span.
var detectors = []detector{
	{Email, longest(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)},
	{SSN, longest(`\b\d{3}-\d{2}-\d{4}\b`)},
	// seven or more digits, optionally grouped by spaces, dashes or parentheses
	{Phone, longest(`\+?\(?\d(?:[ \-()]{0,2}\d){6,}`)},
	{IPv4, longest(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`)},
}

func longest(expr string) *regexp.Regexp {
	re := regexp.MustCompile(expr)
	re.Longest()
	return re
}

// Categories lists every category the redactor knows, in tie-break order.
func Categories() []Category {
	out := make([]Category, len(detectors))
	for i, d := range detectors {
		out[i] = d.cat
	}
	return out
}

// Result is the outcome of redacting one text.
type Result struct {
	Text   string
	Counts map[Category]int
}

// Redacted reports whether at least one span was replaced.
func (r Result) Redacted() bool { return len(r.Counts) > 0 }

// Found returns the categories that were replaced, sorted.
func (r Result) Found() []Category {
	out := make([]Category, 0, len(r.Counts))
	for c := range r.Counts {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Redactor masks PII. The zero value masks nothing; use New.
type Redactor struct {
	detectors []detector
}

// New returns a Redactor for the given categories, or for all known
// categories when none are given. Unknown categories are ignored.
func New(cats ...Category) *Redactor {
	if len(cats) == 0 {
		return &Redactor{detectors: detectors}
	}
	r := &Redactor{}
	for _, d := range detectors {
		if slices.Contains(cats, d.cat) {
			r.detectors = append(r.detectors, d)
		}
	}
	return r
}

type span struct {
	start, end int
	cat        Category
	rank       int
	// categories of other matches folded into this span
	also []Category
}

// Redact replaces every detected span in text with its category placeholder.
// Matches are taken left to right without overlap. At a given start the
// longest candidate wins. A match of another category that begins inside the
// winner and runs past it is folded into the winner, so no fragment of it
// survives. When enabled is false the text is returned as is.
func (r *Redactor) Redact(text string, enabled bool) Result {
	if !enabled || text == "" {
		return Result{Text: text}
	}

	spans := r.scan(text)
	if len(spans) == 0 {
		return Result{Text: text}
	}

	res := Result{Counts: make(map[Category]int)}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s.start])
		b.WriteString(s.cat.Placeholder())
		res.Counts[s.cat]++
		for _, c := range s.also {
			res.Counts[c]++
		}
		last = s.end
	}
	b.WriteString(text[last:])
	res.Text = b.String()
	return res
}

// scan rescans from the end of each winner, so a match shadowed by an
// overlapping one is still found.
func (r *Redactor) scan(text string) []span {
	var out []span
	cursor := 0
	for cursor < len(text) {
		s, ok := r.first(text, cursor)
		if !ok {
			break
		}
		s = r.absorb(text, s)
		out = append(out, s)
		cursor = s.end
	}
	return out
}

// first returns the earliest match at or after from. Ties go to the longer
// match, then to detector order.
func (r *Redactor) first(text string, from int) (span, bool) {
	var best span
	found := false
	for rank, d := range r.detectors {
		loc := d.re.FindStringIndex(text[from:])
		if loc == nil {
			continue
		}
		c := span{start: from + loc[0], end: from + loc[1], cat: d.cat, rank: rank}
		if !found || before(c, best) {
			best, found = c, true
		}
	}
	return best, found
}

func before(a, b span) bool {
	return cmp.Or(
		cmp.Compare(a.start, b.start),
		cmp.Compare(b.end-b.start, a.end-a.start),
		cmp.Compare(a.rank, b.rank),
	) < 0
}

// absorb grows s over matches that start inside it and end past it. A match
// is left alone when the same detector finds its tail on its own right after
// s; the next scan step picks that up as a separate span.
func (r *Redactor) absorb(text string, s span) span {
	for grown := true; grown; {
		grown = false
		for _, d := range r.detectors {
			for _, loc := range d.re.FindAllStringIndex(text[s.start:], -1) {
				start, end := s.start+loc[0], s.start+loc[1]
				if start >= s.end {
					break
				}
				if end <= s.end || standsAlone(d.re, text, s.end, end) {
					continue
				}
				s.end = end
				if d.cat != s.cat && !slices.Contains(s.also, d.cat) {
					s.also = append(s.also, d.cat)
				}
				grown = true
			}
		}
	}
	return s
}

// standsAlone reports whether re matches text[from:end] after optional
// leading whitespace.
func standsAlone(re *regexp.Regexp, text string, from, end int) bool {
	loc := re.FindStringIndex(text[from:])
	if loc == nil || from+loc[1] != end {
		return false
	}
	return strings.TrimSpace(text[from:from+loc[0]]) == ""
}

// Union merges the categories found across several results, sorted.
func Union(results ...Result) []Category {
	seen := make(map[Category]struct{})
	for _, r := range results {
		for c := range r.Counts {
			seen[c] = struct{}{}
		}
	}
	out := make([]Category, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}
