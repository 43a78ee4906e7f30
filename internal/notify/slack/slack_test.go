package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/lookout/internal/pii"
	"github.com/linnemanlabs/lookout/internal/severity"
	"github.com/linnemanlabs/lookout/internal/triage"
)

func testRecord() *triage.Record {
	return &triage.Record{
		ID: "01JN123",
		Ticket: triage.Ticket{
			ID:     "T-42",
			Title:  "Login errors for [REDACTED_EMAIL]",
			Source: "api",
		},
		Decision: triage.Decision{
			TicketID:         "T-42",
			Severity:         severity.P2,
			Confidence:       0.45,
			Escalate:         true,
			Summary:          "Users see intermittent login errors.",
			Actions:          []string{"Collect logs and metrics", "Update ticket with findings"},
			Rationale:        "no severity signals found; defaulted to P2",
			RedactionApplied: true,
			PIICategories:    []pii.Category{pii.Email},
			References:       []string{"kb-login"},
			NarrativeSource:  "fallback",
		},
		CreatedAt: time.Date(2026, 2, 26, 14, 23, 0, 0, time.UTC),
	}
}

func blockText(t *testing.T, b any) string {
	t.Helper()
	m := b.(map[string]any)
	return m["text"].(map[string]any)["text"].(string)
}

func TestSend_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, log.Nop())
	if err := n.Send(context.Background(), testRecord()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}

	// header, fields, divider, summary, actions, rationale, divider, context
	if len(blocks) != 8 {
		t.Fatalf("blocks count = %d, want 8", len(blocks))
	}

	header := blockText(t, blocks[0])
	if !strings.Contains(header, "Login errors for [REDACTED_EMAIL]") {
		t.Errorf("header text = %q, want ticket title", header)
	}
	if !strings.Contains(header, "\U0001f7e0") {
		t.Errorf("header should contain orange circle for P2")
	}

	fields := blocks[1].(map[string]any)["fields"].([]any)
	var all []string
	for _, f := range fields {
		all = append(all, f.(map[string]any)["text"].(string))
	}
	joined := strings.Join(all, "|")
	for _, want := range []string{"*Ticket:* T-42", "*Confidence:* 0.45", "*References:* kb-login", "*PII:* redacted: email"} {
		if !strings.Contains(joined, want) {
			t.Errorf("fields %q missing %q", joined, want)
		}
	}

	actions := blockText(t, blocks[4])
	if !strings.Contains(actions, "• Collect logs and metrics\n• Update ticket with findings") {
		t.Errorf("actions text = %q", actions)
	}

	if fallback, _ := got["text"].(string); !strings.Contains(fallback, "T-42") {
		t.Errorf("fallback text = %q, want ticket id", fallback)
	}
}

func TestSend_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("", nil)
	if err := n.Send(context.Background(), &triage.Record{}); err != nil {
		t.Fatalf("Send with empty URL should be no-op, got: %v", err)
	}
}

func TestSend_TruncatesLongSummary(t *testing.T) {
	t.Parallel()

	rec := testRecord()
	rec.Decision.Summary = strings.Repeat("é", 4000)

	blocks := buildMessage(rec)["blocks"].([]map[string]any)
	text := blocks[3]["text"].(map[string]any)["text"].(string)

	prefix := "*Summary*\n"
	if n := utf8.RuneCountInString(text); n > maxSectionLen+utf8.RuneCountInString(prefix) {
		t.Errorf("summary runes = %d, want <= %d", n, maxSectionLen+len(prefix))
	}
	if !strings.HasSuffix(text, "...") {
		t.Error("expected truncated summary to end with ...")
	}
	if !utf8.ValidString(text) {
		t.Error("truncation split a multi-byte rune")
	}
}

func TestSend_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	err := New(srv.URL, log.Nop()).Send(context.Background(), testRecord())
	if err == nil {
		t.Fatal("expected error on non-OK status")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q, want to contain status code 500", err.Error())
	}
}

func TestSeverityEmoji(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level severity.Level
		want  string
	}{
		{severity.P0, "\U0001f534"},
		{severity.P1, "\U0001f534"},
		{severity.P2, "\U0001f7e0"},
		{severity.P3, "\U0001f7e1"},
		{severity.P4, "\U0001f7e2"},
		{"", "\U0001f7e2"},
	}

	for _, tt := range tests {
		if got := severityEmoji(tt.level); got != tt.want {
			t.Errorf("severityEmoji(%q) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func FuzzSlackBuild(f *testing.F) {
	f.Add("T-1", "Primary DB down", "summary", "P0", "action")
	f.Add("", "", "", "", "")
	f.Add("<@U123> mention", "*bold* _italic_ ~strike~", "```code```", "P9", "<http://example.com|link>")
	f.Add("id\x00\x01", "title\nline", "sum\ttab", "P2", "a\x00b")
	f.Add(strings.Repeat("A", 500), strings.Repeat("B", 5000), strings.Repeat("x", 10000), "P1", strings.Repeat("y", 4000))

	f.Fuzz(func(t *testing.T, id, title, summary, level, action string) {
		rec := &triage.Record{
			ID:     "fuzz-id",
			Ticket: triage.Ticket{ID: id, Title: title},
			Decision: triage.Decision{
				TicketID: id,
				Severity: severity.Level(level),
				Summary:  summary,
				Actions:  []string{action},
			},
		}

		data, err := json.Marshal(buildMessage(rec))
		if err != nil {
			t.Fatalf("buildMessage produced non-marshalable output: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("buildMessage JSON does not round-trip: %v", err)
		}
		if blocks, ok := decoded["blocks"].([]any); !ok || len(blocks) != 8 {
			t.Fatalf("blocks = %v, want 8", decoded["blocks"])
		}
	})
}
