// Package slack posts escalated triage decisions to Slack via incoming
// webhooks so a human can review them.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/lookout/internal/severity"
	"github.com/linnemanlabs/lookout/internal/triage"
)

const (
	maxSectionLen = 2900 // Slack caps section text at 3000
	httpTimeout   = 10 * time.Second
)

// Notifier sends escalated triage records to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Send posts rec to the configured Slack webhook. Ticket text in rec is
// already redacted.
func (n *Notifier) Send(ctx context.Context, rec *triage.Record) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(rec))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Debug(ctx, "escalation posted to slack", "triage_id", rec.ID, "ticket_id", rec.Decision.TicketID)
	return nil
}

func buildMessage(r *triage.Record) map[string]any {
	return map[string]any{
		"text": fmt.Sprintf("Ticket %s needs review (%s)", r.Decision.TicketID, r.Decision.Severity),
		"blocks": []map[string]any{
			headerBlock(r),
			fieldsBlock(r),
			{"type": "divider"},
			section("Summary", r.Decision.Summary, "_No summary available._"),
			section("Recommended actions", bullets(r.Decision.Actions), "_None._"),
			section("Rationale", r.Decision.Rationale, "_None._"),
			{"type": "divider"},
			contextBlock(r),
		},
	}
}

func headerBlock(r *triage.Record) map[string]any {
	title := r.Ticket.Title
	if title == "" {
		title = r.Decision.TicketID
	}
	text := fmt.Sprintf("%s Needs review: %s", severityEmoji(r.Decision.Severity), title)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": truncate(text, 150),
		},
	}
}

func fieldsBlock(r *triage.Record) map[string]any {
	d := &r.Decision
	refs := "none"
	if len(d.References) > 0 {
		refs = strings.Join(d.References, ", ")
	}
	pii := "none"
	if d.RedactionApplied {
		cats := make([]string, len(d.PIICategories))
		for i, c := range d.PIICategories {
			cats[i] = string(c)
		}
		pii = "redacted: " + strings.Join(cats, ", ")
	}

	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Ticket:* %s", d.TicketID)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:* %s", d.Severity)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Confidence:* %.2f", d.Confidence)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Narrative:* %s", d.NarrativeSource)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*References:* %s", refs)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*PII:* %s", pii)},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func section(title, body, empty string) map[string]any {
	text := truncate(body, maxSectionLen)
	if strings.TrimSpace(text) == "" {
		text = empty
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*%s*\n%s", title, text),
		},
	}
}

func bullets(items []string) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString("• ")
		b.WriteString(it)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func contextBlock(r *triage.Record) map[string]any {
	source := r.Ticket.Source
	if source == "" {
		source = "unknown"
	}
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("lookout • triage %s • source %s • %s",
					r.ID, source, r.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

func severityEmoji(l severity.Level) string {
	switch l {
	case severity.P0, severity.P1:
		return "\U0001f534" // red circle
	case severity.P2:
		return "\U0001f7e0" // orange circle
	case severity.P3:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit-3]) + "..."
}
