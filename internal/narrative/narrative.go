// Package narrative defines the contract for producing the human-readable part
// of a triage decision (summary, recommended actions, rationale), the
// deterministic template used when no backend is available, and the prompt
// and payload handling shared by hosted backends.
//
// Backends only ever see redacted ticket text. Severity is decided upstream
// and is passed in as context; backends must not change it.
package narrative

import (
	"context"
	"errors"
	"fmt"

	"github.com/linnemanlabs/lookout/internal/severity"
)

const (
	// PromptVersion is recorded on every decision.
	PromptVersion = "v1.1"

	// MaxActions caps the recommended action list.
	MaxActions = 5

	// SummaryChars is the length of the templated summary excerpt.
	SummaryChars = 240

	// DefaultMaxOutputChars bounds each generated text field.
	DefaultMaxOutputChars = 480
)

// ErrGeneration matches any *GenerationError with errors.Is.
var ErrGeneration = errors.New("narrative generation failed")

// GenerationError reports a failed or timed out backend call.
type GenerationError struct {
	Backend string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("narrative backend %s: %v", e.Backend, e.Err)
}

// Unwrap exposes both ErrGeneration and the cause.
func (e *GenerationError) Unwrap() []error {
	return []error{ErrGeneration, e.Err}
}

// Request is everything a backend may use. All text is redacted.
type Request struct {
	TicketID       string
	Title          string
	Text           string
	Tags           []string
	Severity       severity.Level
	Confidence     float64
	KnowledgeRefs  []string
	HistoryRefs    []string
	Rationale      string
	PIIFound       bool
	MaxOutputChars int
}

// Narrative is a backend's output.
type Narrative struct {
	Summary    string   `json:"summary"`
	Actions    []string `json:"actions"`
	Rationale  string   `json:"rationale"`
	TokensUsed int      `json:"tokens_used"`
	Cost       float64  `json:"cost_usd"`
}

// Generator produces a narrative for one ticket. Implementations make a single
// attempt and honor ctx cancellation.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Narrative, error)
}
