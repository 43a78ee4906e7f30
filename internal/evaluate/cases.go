// Package evaluate runs the triage engine over labelled tickets offline and
// maintains the labelled case files.
package evaluate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/lookout/internal/severity"
	"github.com/linnemanlabs/lookout/internal/triage"
)

// Case is a ticket with the severity a human assigned to it.
type Case struct {
	Ticket           triage.Ticket  `json:"ticket"`
	ExpectedSeverity severity.Level `json:"expected_severity"`
}

// LoadCases reads a JSON or YAML list of cases, chosen by extension. A
// missing file yields an error wrapping os.ErrNotExist.
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("read cases: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		// go through JSON so both formats share the ticket's json tags
		var raw []map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode cases %s: %w", path, err)
		}
		if data, err = json.Marshal(raw); err != nil {
			return nil, fmt.Errorf("decode cases %s: %w", path, err)
		}
	case ".json", "":
	default:
		return nil, fmt.Errorf("unsupported case file extension %q (want .json, .yaml or .yml)", filepath.Ext(path))
	}

	var cases []Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("decode cases %s: %w", path, err)
	}
	return cases, nil
}

// LoadCasesOrEmpty is LoadCases with a missing file treated as no cases.
func LoadCasesOrEmpty(path string) ([]Case, error) {
	cases, err := LoadCases(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return cases, err
}

// WriteCases writes cases as indented JSON, creating parent directories.
func WriteCases(path string, cases []Case) error {
	if cases == nil {
		cases = []Case{}
	}
	data, err := json.MarshalIndent(cases, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cases: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create case dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write cases: %w", err)
	}
	return nil
}

// MergeMode decides what happens when a candidate's ticket ID already exists.
type MergeMode string

const (
	// MergeSkip keeps the existing case.
	MergeSkip MergeMode = "skip"
	// MergeReplace overwrites the existing case in place.
	MergeReplace MergeMode = "replace"
)

// ParseMergeMode validates a mode name.
func ParseMergeMode(s string) (MergeMode, error) {
	switch m := MergeMode(strings.ToLower(strings.TrimSpace(s))); m {
	case MergeSkip, MergeReplace:
		return m, nil
	default:
		return "", fmt.Errorf("unknown merge mode %q (want skip or replace)", s)
	}
}

// MergeResult reports what Merge did.
type MergeResult struct {
	Cases    []Case
	Added    int
	Replaced int
}

// Merge folds candidates into base keyed by ticket ID. New IDs are appended
// in candidate order. Candidates without a ticket ID are ignored. base is not
// modified.
func Merge(base, candidates []Case, mode MergeMode) MergeResult {
	merged := make([]Case, len(base), len(base)+len(candidates))
	copy(merged, base)

	index := make(map[string]int, len(base))
	for i, c := range base {
		if c.Ticket.ID != "" {
			index[c.Ticket.ID] = i
		}
	}

	var res MergeResult
	for _, c := range candidates {
		id := c.Ticket.ID
		if id == "" {
			continue
		}
		if i, ok := index[id]; ok {
			if mode == MergeReplace {
				merged[i] = c
				res.Replaced++
			}
			continue
		}
		index[id] = len(merged)
		merged = append(merged, c)
		res.Added++
	}
	res.Cases = merged
	return res
}
