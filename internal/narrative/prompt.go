package narrative

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	jsonStart = "<<JSON>>"
	jsonEnd   = "<</JSON>>"
)

// SystemPrompt frames the backend's role.
const SystemPrompt = `You are an incident triage assistant. Produce a concise JSON response that strictly matches the schema.
Severity is decided by upstream deterministic logic and must not be changed. Focus only on summary, recommended_actions and rationale.
Ticket text has been redacted; never attempt to reconstruct redacted values.`

// BuildPrompt renders the user prompt for req. The deterministic template is
// embedded between markers as the shape the backend should return.
func BuildPrompt(req *Request) (string, error) {
	tmpl := Template(req)
	example, err := json.MarshalIndent(payload{
		Summary:   tmpl.Summary,
		Actions:   tmpl.Actions,
		Rationale: tmpl.Rationale,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal template: %w", err)
	}

	limit := req.MaxOutputChars
	if limit <= 0 {
		limit = DefaultMaxOutputChars
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Fields:\n")
	fmt.Fprintf(&b, "- summary: short summary (<=%d chars)\n", min(limit, SummaryChars))
	fmt.Fprintf(&b, "- recommended_actions: ordered list of concrete next steps (<=%d items)\n", MaxActions)
	fmt.Fprintf(&b, "- rationale: brief reasoning for the severity and actions (<=%d chars)\n", limit)
	fmt.Fprintf(&b, "\nContext:\n")
	fmt.Fprintf(&b, "- ticket_id: %s\n", req.TicketID)
	fmt.Fprintf(&b, "- severity: %s\n", req.Severity)
	fmt.Fprintf(&b, "- confidence: %.2f\n", req.Confidence)
	fmt.Fprintf(&b, "- tags: %s\n", orNone(req.Tags))
	fmt.Fprintf(&b, "- knowledge_refs: %s\n", orNone(req.KnowledgeRefs))
	fmt.Fprintf(&b, "- history_refs: %s\n", orNone(req.HistoryRefs))
	fmt.Fprintf(&b, "- prompt_version: %s\n", PromptVersion)
	fmt.Fprintf(&b, "\nTicket title: %s\n", req.Title)
	fmt.Fprintf(&b, "Ticket description:\n%s\n", req.Text)
	fmt.Fprintf(&b, "\nReturn JSON only. Use this template between markers:\n%s\n%s\n%s\n", jsonStart, example, jsonEnd)
	return b.String(), nil
}

func orNone(vs []string) string {
	if len(vs) == 0 {
		return "none"
	}
	return strings.Join(vs, ", ")
}

type payload struct {
	Summary   string   `json:"summary"`
	Actions   []string `json:"recommended_actions"`
	Rationale string   `json:"rationale"`
}

// ParsePayload extracts a narrative from a backend response. It tries the
// whole content as JSON, then the block between <<JSON>> markers, then the
// outermost brace-delimited object. Fields of the wrong type are left empty
// for Sanitize to fill. ok is false when no JSON object was found.
func ParsePayload(content string) (n *Narrative, ok bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return &Narrative{}, false
	}

	candidates := []string{content}
	if _, rest, found := strings.Cut(content, jsonStart); found {
		if block, _, found := strings.Cut(rest, jsonEnd); found {
			candidates = append(candidates, strings.TrimSpace(block))
		}
	}
	if first, last := strings.Index(content, "{"), strings.LastIndex(content, "}"); first >= 0 && last > first {
		candidates = append(candidates, content[first:last+1])
	}

	for _, c := range candidates {
		var raw map[string]any
		if err := json.Unmarshal([]byte(c), &raw); err != nil {
			continue
		}
		return fromRaw(raw), true
	}
	return &Narrative{}, false
}

func fromRaw(raw map[string]any) *Narrative {
	n := &Narrative{}
	n.Summary, _ = raw["summary"].(string)
	n.Rationale, _ = raw["rationale"].(string)

	list, _ := raw["recommended_actions"].([]any)
	if list == nil {
		list, _ = raw["actions"].([]any)
	}
	for _, v := range list {
		if s, ok := v.(string); ok {
			n.Actions = append(n.Actions, s)
		}
	}
	return n
}
