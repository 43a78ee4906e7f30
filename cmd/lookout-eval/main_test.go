package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/linnemanlabs/lookout/internal/evaluate"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestMergeCmd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := filepath.Join(dir, "base.json")
	cands := filepath.Join(dir, "cands.json")
	writeFile(t, base, `[{"ticket":{"id":"a"},"expected_severity":"P1"},{"ticket":{"id":"b"},"expected_severity":"P2"}]`)
	writeFile(t, cands, `[{"ticket":{"id":"b"},"expected_severity":"P0"},{"ticket":{"id":"c"},"expected_severity":"P3"},{"ticket":{}}]`)

	cmd := newMergeCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--base", base, "--candidates", cands, "--mode", "replace"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("merge: %v", err)
	}

	if !strings.Contains(out.String(), "Added: 1, Replaced: 1") {
		t.Errorf("output = %q", out.String())
	}
	got, err := evaluate.LoadCases(base)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[1].ExpectedSeverity != "P0" || got[2].Ticket.ID != "c" {
		t.Errorf("merged = %+v", got)
	}
}

func TestMergeCmd_DryRunAndBadMode(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := filepath.Join(dir, "base.json")
	cands := filepath.Join(dir, "cands.json")
	writeFile(t, cands, `[{"ticket":{"id":"a"},"expected_severity":"P1"}]`)

	cmd := newMergeCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--base", base, "--candidates", cands, "--dry-run"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if _, err := os.Stat(base); !os.IsNotExist(err) {
		t.Errorf("dry run wrote base file: %v", err)
	}

	cmd = newMergeCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--base", base, "--candidates", cands, "--mode", "append"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestEvaluateCmd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cases := filepath.Join(dir, "cases.yaml")
	writeFile(t, cases, `- ticket:
    id: E-1
    title: Primary database down
  expected_severity: P0
- ticket:
    id: E-2
    title: Printer jam
  expected_severity: P2
`)

	run := func(extra ...string) (string, error) {
		cmd := newEvaluateCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		args := append([]string{"--cases", cases, "--kb-path", "", "--history-path", ""}, extra...)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}

	out, err := run()
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for _, want := range []string{"Evaluated 2 tickets", "Severity accuracy: 100.0%", "Escalations: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := run("--confidence-threshold", "1.5"); err == nil {
		t.Error("expected error for invalid threshold")
	}
	if _, err := run("--cases", filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing case file")
	}
}
