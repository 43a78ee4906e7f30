// Package signal matches ticket text against read-only keyword tables (the
// knowledge base and the incident history) and reports the strongest match as
// a severity boost.
package signal

import (
	"fmt"
	"strings"

	"github.com/linnemanlabs/lookout/internal/textnorm"
)

// DefaultWeight applies to entries that do not declare a weight.
const DefaultWeight = 10.0

// Entry is one row of a signal table. Keyword and Signal are single-keyword
// shorthands that are merged into Keywords.
type Entry struct {
	ID       string   `json:"id" yaml:"id"`
	Title    string   `json:"title,omitempty" yaml:"title,omitempty"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Keyword  string   `json:"keyword,omitempty" yaml:"keyword,omitempty"`
	Signal   string   `json:"signal,omitempty" yaml:"signal,omitempty"`
	Weight   *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// Boost is the result of a lookup. Weight is in classifier score points and
// may be negative. Reference is the ID of the matched entry.
type Boost struct {
	Matched   bool    `json:"matched"`
	Weight    float64 `json:"weight"`
	Reference string  `json:"reference,omitempty"`
}

type row struct {
	id       string
	keywords []string
	weight   float64
}

// Table is an immutable keyword table. It is safe for concurrent use.
type Table struct {
	name string
	rows []row
}

// NewTable builds a table from entries, keeping their order. Entries without
// an ID are named after the table and their position. Entries without any
// keyword are rejected.
func NewTable(name string, entries []Entry) (*Table, error) {
	t := &Table{name: name, rows: make([]row, 0, len(entries))}
	seen := make(map[string]struct{}, len(entries))

	for i, e := range entries {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			id = fmt.Sprintf("%s-%d", name, i+1)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%s entry %d: duplicate id %q", name, i, id)
		}
		seen[id] = struct{}{}

		var kws []string
		for _, k := range append(append([]string{}, e.Keywords...), e.Keyword, e.Signal) {
			if f := strings.TrimSpace(textnorm.Fold(k)); f != "" {
				kws = append(kws, f)
			}
		}
		if len(kws) == 0 {
			return nil, fmt.Errorf("%s entry %q: no keywords", name, id)
		}

		w := DefaultWeight
		if e.Weight != nil {
			w = *e.Weight
		}
		t.rows = append(t.rows, row{id: id, keywords: kws, weight: w})
	}
	return t, nil
}

// Empty returns a table with no entries. Lookups on it never match.
func Empty(name string) *Table {
	return &Table{name: name}
}

// Name returns the table name, e.g. "kb" or "history".
func (t *Table) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Lookup returns the highest-weight entry whose keywords appear anywhere in
// text or tags, compared case-insensitively. Ties go to the entry listed
// first. A nil table never matches.
func (t *Table) Lookup(text string, tags []string) Boost {
	if t.Len() == 0 {
		return Boost{}
	}

	hay := textnorm.Fold(text + "\n" + strings.Join(tags, "\n"))

	var best Boost
	for _, r := range t.rows {
		if best.Matched && r.weight <= best.Weight {
			continue
		}
		for _, k := range r.keywords {
			if strings.Contains(hay, k) {
				best = Boost{Matched: true, Weight: r.weight, Reference: r.id}
				break
			}
		}
	}
	return best
}
