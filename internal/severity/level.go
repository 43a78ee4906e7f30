// Package severity assigns P0..P4 severity labels to tickets with an ordered,
// deterministic rule table and derives a confidence from how far the score
// sits from a label boundary.
package severity

import (
	"fmt"
	"strings"
)

// Level is a severity label. P0 is the most severe.
type Level string

const (
	P0 Level = "P0"
	P1 Level = "P1"
	P2 Level = "P2"
	P3 Level = "P3"
	P4 Level = "P4"
)

// Default is assigned when no rule or signal fires.
const Default = P2

// Levels lists all labels from most to least severe.
var Levels = []Level{P0, P1, P2, P3, P4}

// Valid reports whether l is one of P0..P4.
func (l Level) Valid() bool {
	return l.Rank() >= 0
}

// Rank returns 0 for P0 through 4 for P4, or -1 for an unknown label.
func (l Level) Rank() int {
	for i, v := range Levels {
		if v == l {
			return i
		}
	}
	return -1
}

// ParseLevel accepts labels case-insensitively ("p1", "P1").
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown severity %q (want P0..P4)", s)
	}
	return l, nil
}
