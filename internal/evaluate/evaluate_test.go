package evaluate

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/linnemanlabs/lookout/internal/escalation"
	"github.com/linnemanlabs/lookout/internal/severity"
	"github.com/linnemanlabs/lookout/internal/triage"
)

func testCase(id string, sev severity.Level) Case {
	return Case{Ticket: triage.Ticket{ID: id}, ExpectedSeverity: sev}
}

func severities(cases []Case) map[string]severity.Level {
	out := make(map[string]severity.Level, len(cases))
	for _, c := range cases {
		out[c.Ticket.ID] = c.ExpectedSeverity
	}
	return out
}

func TestMerge(t *testing.T) {
	t.Parallel()

	base := []Case{testCase("a", severity.P1), testCase("b", severity.P2)}
	candidates := []Case{testCase("b", severity.P0), testCase("c", severity.P3)}

	tests := []struct {
		name         string
		mode         MergeMode
		wantAdded    int
		wantReplaced int
		want         map[string]severity.Level
	}{
		{"skip keeps existing", MergeSkip, 1, 0, map[string]severity.Level{"a": "P1", "b": "P2", "c": "P3"}},
		{"replace overwrites", MergeReplace, 1, 1, map[string]severity.Level{"a": "P1", "b": "P0", "c": "P3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := Merge(base, candidates, tt.mode)
			if res.Added != tt.wantAdded || res.Replaced != tt.wantReplaced {
				t.Errorf("added/replaced = %d/%d, want %d/%d", res.Added, res.Replaced, tt.wantAdded, tt.wantReplaced)
			}
			if diff := cmp.Diff(tt.want, severities(res.Cases)); diff != "" {
				t.Errorf("merged mismatch (-want +got):\n%s", diff)
			}
			if base[1].ExpectedSeverity != severity.P2 {
				t.Error("base was modified")
			}
		})
	}
}

func TestMerge_OrderAndIgnoredCandidates(t *testing.T) {
	t.Parallel()

	candidates := []Case{
		{ExpectedSeverity: severity.P1},
		testCase("z", severity.P4),
		testCase("y", severity.P3),
		testCase("z", severity.P0),
	}
	res := Merge(nil, candidates, MergeSkip)

	var ids []string
	for _, c := range res.Cases {
		ids = append(ids, c.Ticket.ID)
	}
	if diff := cmp.Diff([]string{"z", "y"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if res.Added != 2 || res.Replaced != 0 {
		t.Errorf("added/replaced = %d/%d, want 2/0", res.Added, res.Replaced)
	}
}

func TestMerge_NoCandidates(t *testing.T) {
	t.Parallel()

	res := Merge(nil, []Case{{}}, MergeReplace)
	if len(res.Cases) != 0 || res.Added != 0 || res.Replaced != 0 {
		t.Errorf("res = %+v, want empty", res)
	}
}

func TestParseMergeMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]MergeMode{"skip": MergeSkip, " Replace ": MergeReplace} {
		got, err := ParseMergeMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMergeMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseMergeMode("append"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestLoadCases(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "cases.json")
	yamlPath := filepath.Join(dir, "cases.yaml")

	if err := os.WriteFile(jsonPath, []byte(`[{"ticket":{"id":"T-1","title":"Primary database down","tags":["db"]},"expected_severity":"P0"}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte("- ticket:\n    id: T-1\n    title: Primary database down\n    tags: [db]\n  expected_severity: P0\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	want := []Case{{
		Ticket:           triage.Ticket{ID: "T-1", Title: "Primary database down", Tags: []string{"db"}},
		ExpectedSeverity: severity.P0,
	}}
	for _, p := range []string{jsonPath, yamlPath} {
		got, err := LoadCases(p)
		if err != nil {
			t.Fatalf("LoadCases(%s): %v", filepath.Base(p), err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", filepath.Base(p), diff)
		}
	}
}

func TestLoadCases_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadCases(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v, want os.ErrNotExist", err)
	}
	if _, err := LoadCases(bad); err == nil {
		t.Error("expected decode error")
	}
	if _, err := LoadCases(filepath.Join(dir, "cases.csv")); err == nil {
		t.Error("expected unsupported extension error")
	}

	cases, err := LoadCasesOrEmpty(filepath.Join(dir, "missing.json"))
	if err != nil || len(cases) != 0 {
		t.Errorf("LoadCasesOrEmpty = %v, %v; want empty, nil", cases, err)
	}
}

func TestWriteCases_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "cases.json")
	in := []Case{testCase("a", severity.P1)}
	if err := WriteCases(path, in); err != nil {
		t.Fatalf("WriteCases: %v", err)
	}
	got, err := LoadCases(path)
	if err != nil {
		t.Fatalf("LoadCases: %v", err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	empty := filepath.Join(t.TempDir(), "empty.json")
	if err := WriteCases(empty, nil); err != nil {
		t.Fatalf("WriteCases(nil): %v", err)
	}
	data, _ := os.ReadFile(empty)
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("empty file = %q, want []", data)
	}
}

func testEngine() *triage.Engine {
	return triage.NewEngine(triage.EngineConfig{
		Policy:    escalation.Policy{Threshold: escalation.DefaultThreshold},
		RedactPII: true,
	}, nil, triage.EngineHooks{})
}

func TestRun(t *testing.T) {
	t.Parallel()

	cases := []Case{
		{Ticket: triage.Ticket{ID: "E-1", Title: "Primary database down"}, ExpectedSeverity: severity.P0},
		{Ticket: triage.Ticket{ID: "E-2", Title: "Question about exports"}, ExpectedSeverity: severity.P2},
		{Ticket: triage.Ticket{ID: "E-3", Title: "Printer jam"}, ExpectedSeverity: severity.P2},
	}

	rep := Run(context.Background(), testEngine(), cases)

	if len(rep.Results) != 3 {
		t.Fatalf("len(Results) = %d, want 3", len(rep.Results))
	}
	if math.Abs(rep.Accuracy-2.0/3.0) > 1e-9 {
		t.Errorf("Accuracy = %v, want 0.667", rep.Accuracy)
	}
	if rep.Escalations != 1 {
		t.Errorf("Escalations = %d, want 1", rep.Escalations)
	}
	if math.Abs(rep.AvgConfidence-(0.74+0.74+0.45)/3) > 1e-9 {
		t.Errorf("AvgConfidence = %v", rep.AvgConfidence)
	}

	failures := rep.Failures()
	if len(failures) != 1 || failures[0].TicketID != "E-2" || failures[0].Predicted != severity.P3 {
		t.Errorf("failures = %+v, want E-2 predicted P3", failures)
	}
}

type failingTriager struct{}

func (failingTriager) TriageBatch(_ context.Context, tickets []triage.Ticket) []triage.BatchResult {
	out := make([]triage.BatchResult, len(tickets))
	for i, tk := range tickets {
		out[i] = triage.BatchResult{TicketID: tk.ID, Err: errors.New("backend down")}
	}
	return out
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	rep := Run(context.Background(), failingTriager{}, []Case{testCase("X-1", severity.P1)})
	if rep.Accuracy != 0 || rep.AvgConfidence != 0 {
		t.Errorf("accuracy/conf = %v/%v, want 0/0", rep.Accuracy, rep.AvgConfidence)
	}
	if f := rep.Failures(); len(f) != 1 || f[0].Err == nil {
		t.Errorf("failures = %+v, want one error", f)
	}

	rep = Run(context.Background(), testEngine(), []Case{{Ticket: triage.Ticket{ID: "X-2", Title: "Printer jam"}, ExpectedSeverity: "urgent"}})
	if f := rep.Failures(); len(f) != 1 || f[0].Err == nil || !strings.Contains(f[0].Err.Error(), "unknown expected severity") {
		t.Errorf("failures = %+v, want unknown expected severity", f)
	}
}

func TestRun_Empty(t *testing.T) {
	t.Parallel()

	rep := Run(context.Background(), testEngine(), nil)
	if rep.Accuracy != 0 || len(rep.Results) != 0 {
		t.Errorf("rep = %+v, want zero report", rep)
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	rep := &Report{
		Results: []Result{
			{TicketID: "E-1", Expected: "P0", Predicted: "P0", Passed: true, Confidence: 0.74},
			{TicketID: "E-2", Expected: "P2", Predicted: "P3", Confidence: 0.74},
			{TicketID: "E-3", Expected: "P1", Err: errors.New("backend down")},
		},
		Accuracy:      1.0 / 3.0,
		AvgConfidence: 0.49,
	}

	for _, md := range []bool{false, true} {
		var buf bytes.Buffer
		if err := Render(&buf, rep, md); err != nil {
			t.Fatalf("Render: %v", err)
		}
		out := buf.String()
		for _, want := range []string{
			"Evaluated 3 tickets",
			"Severity accuracy: 33.3%",
			"Avg confidence: 0.49",
			"E-2: expected P2, got P3 (conf 0.74)",
			"E-3: backend down",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("markdown=%v output missing %q:\n%s", md, want, out)
			}
		}
		if md && !strings.Contains(out, "| E-1 |") {
			t.Errorf("markdown output missing table row:\n%s", out)
		}
	}
}
