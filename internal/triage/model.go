package triage

import (
	"time"

	"github.com/linnemanlabs/lookout/internal/pii"
	"github.com/linnemanlabs/lookout/internal/severity"
)

// SourceFallback is the narrative source recorded when the backend failed and
// the deterministic template was used instead.
const SourceFallback = "fallback"

// Ticket is an inbound incident report.
type Ticket struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags,omitempty"`
	Source      string    `json:"source,omitempty"`
	ReportedAt  time.Time `json:"reported_at,omitzero"`
}

// Decision is the triage outcome for one ticket. It never contains
// unredacted text when redaction is enabled.
type Decision struct {
	TicketID         string         `json:"ticket_id"`
	Severity         severity.Level `json:"severity"`
	Confidence       float64        `json:"confidence"`
	Escalate         bool           `json:"escalate"`
	Summary          string         `json:"summary"`
	Actions          []string       `json:"actions"`
	Rationale        string         `json:"rationale"`
	RedactionApplied bool           `json:"redaction_applied"`
	PIICategories    []pii.Category `json:"pii_categories,omitempty"`
	References       []string       `json:"references"`
	KnowledgeRefs    []string       `json:"knowledge_refs"`
	HistoryRefs      []string       `json:"history_refs"`
	NarrativeSource  string         `json:"narrative_source"`
	NarrativePartial bool           `json:"narrative_partial,omitempty"`
	TokensUsed       int            `json:"tokens_used"`
	Cost             float64        `json:"cost_usd"`
	PromptVersion    string         `json:"prompt_version"`
}

// Record is a persisted decision. Ticket holds the redacted ticket.
type Record struct {
	ID        string    `json:"id"`
	Ticket    Ticket    `json:"ticket"`
	Decision  Decision  `json:"decision"`
	CreatedAt time.Time `json:"created_at"`
	Duration  float64   `json:"duration_seconds"`
}

// BatchResult is one positional slot of Engine.TriageBatch. Exactly one of
// Decision and Err is set.
type BatchResult struct {
	TicketID string
	Decision *Decision
	Err      error
}

// BatchItem is one positional slot of Service.SubmitBatch. Exactly one of
// Record and Err is set.
type BatchItem struct {
	TicketID string
	Record   *Record
	Err      error
}
