package narrative

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/linnemanlabs/lookout/internal/severity"
)

// Template builds the deterministic narrative from severity and matched
// signals. It is the fallback for every backend failure.
func Template(req *Request) *Narrative {
	return &Narrative{
		Summary:   summarize(req),
		Actions:   recommendActions(req),
		Rationale: req.Rationale,
	}
}

func summarize(req *Request) string {
	src := strings.TrimSpace(req.Text)
	if src == "" {
		src = strings.TrimSpace(req.Title)
	}
	if src == "" {
		return fmt.Sprintf("%s ticket %s: no description provided", req.Severity, req.TicketID)
	}
	if utf8.RuneCountInString(src) <= SummaryChars {
		return src
	}
	return string([]rune(src)[:SummaryChars]) + "..."
}

func recommendActions(req *Request) []string {
	var actions []string
	switch req.Severity {
	case severity.P0, severity.P1:
		actions = append(actions, "Page on-call responder", "Create war room channel", "Collect logs and metrics")
	case severity.P2:
		actions = append(actions, "Collect logs and metrics")
	default:
		actions = append(actions, "Schedule follow-up within 24h")
	}
	if req.PIIFound {
		actions = append(actions, "Apply PII handling protocol")
	}
	for _, ref := range req.KnowledgeRefs {
		actions = append(actions, "Review knowledge base entry "+ref)
	}
	for _, ref := range req.HistoryRefs {
		actions = append(actions, "Compare with past incident "+ref)
	}
	return append(actions, "Update ticket with findings")
}

// Sanitize bounds n and fills any empty or missing field from fallback.
// Whitespace-only actions are dropped, at most MaxActions are kept, and every
// text field is cut to maxChars runes. Token and cost accounting of n is kept.
func Sanitize(n, fallback *Narrative, maxChars int) *Narrative {
	if maxChars <= 0 {
		maxChars = DefaultMaxOutputChars
	}
	if n == nil {
		n = &Narrative{}
	}

	out := &Narrative{TokensUsed: n.TokensUsed, Cost: n.Cost}

	out.Summary = strings.TrimSpace(n.Summary)
	if out.Summary == "" {
		out.Summary = fallback.Summary
	}
	out.Summary = Truncate(out.Summary, maxChars)

	for _, a := range n.Actions {
		if a = strings.TrimSpace(a); a != "" {
			out.Actions = append(out.Actions, Truncate(a, maxChars))
		}
		if len(out.Actions) == MaxActions {
			break
		}
	}
	if len(out.Actions) == 0 {
		for _, a := range fallback.Actions {
			out.Actions = append(out.Actions, Truncate(a, maxChars))
			if len(out.Actions) == MaxActions {
				break
			}
		}
	}

	out.Rationale = strings.TrimSpace(n.Rationale)
	if out.Rationale == "" {
		out.Rationale = fallback.Rationale
	}
	out.Rationale = Truncate(out.Rationale, maxChars)

	return out
}

// Missing lists the fields of n that Sanitize would take from the fallback.
func Missing(n *Narrative) []string {
	if n == nil {
		return []string{"summary", "actions", "rationale"}
	}
	var out []string
	if strings.TrimSpace(n.Summary) == "" {
		out = append(out, "summary")
	}
	if !slices.ContainsFunc(n.Actions, func(a string) bool { return strings.TrimSpace(a) != "" }) {
		out = append(out, "actions")
	}
	if strings.TrimSpace(n.Rationale) == "" {
		out = append(out, "rationale")
	}
	return out
}

// Truncate cuts s to at most limit runes, ending in "..." when cut.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 3 {
		return string([]rune(s)[:limit])
	}
	return string([]rune(s)[:limit-3]) + "..."
}
