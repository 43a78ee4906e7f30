package triage

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Ticket limits.
const (
	MaxTicketIDLen = 128
	MaxTags        = 32
	MaxTagLen      = 64
)

// ErrValidation matches any *ValidationError with errors.Is.
var ErrValidation = errors.New("invalid ticket")

// ValidationError reports a malformed ticket.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid ticket: %s %s", e.Field, e.Reason)
}

// Unwrap returns ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validate checks the structural requirements on t.
func (t *Ticket) Validate() error {
	id := strings.TrimSpace(t.ID)
	switch {
	case id == "":
		return &ValidationError{Field: "id", Reason: "is required"}
	case len(t.ID) > MaxTicketIDLen:
		return &ValidationError{Field: "id", Reason: fmt.Sprintf("exceeds %d bytes", MaxTicketIDLen)}
	case strings.IndexFunc(t.ID, unicode.IsControl) >= 0:
		return &ValidationError{Field: "id", Reason: "contains control characters"}
	}

	if len(t.Tags) > MaxTags {
		return &ValidationError{Field: "tags", Reason: fmt.Sprintf("has more than %d entries", MaxTags)}
	}
	for i, tag := range t.Tags {
		if len(tag) > MaxTagLen {
			return &ValidationError{Field: fmt.Sprintf("tags[%d]", i), Reason: fmt.Sprintf("exceeds %d bytes", MaxTagLen)}
		}
	}
	return nil
}
