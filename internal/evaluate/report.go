package evaluate

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/linnemanlabs/lookout/internal/severity"
	"github.com/linnemanlabs/lookout/internal/triage"
)

// Triager is the part of triage.Engine that Run needs.
type Triager interface {
	TriageBatch(ctx context.Context, tickets []triage.Ticket) []triage.BatchResult
}

// Result is the outcome of one case.
type Result struct {
	TicketID   string
	Expected   severity.Level
	Predicted  severity.Level
	Passed     bool
	Confidence float64
	Escalate   bool
	Rationale  string
	Err        error
}

// Report summarizes a run. A case whose triage failed counts as failed with
// zero confidence.
type Report struct {
	Results       []Result
	Accuracy      float64
	AvgConfidence float64
	Escalations   int
}

// Failures returns the results that did not pass, in case order.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// Run triages every case and scores the predictions. Cases with an unknown
// expected severity fail without being compared.
func Run(ctx context.Context, t Triager, cases []Case) *Report {
	tickets := make([]triage.Ticket, len(cases))
	for i, c := range cases {
		tickets[i] = c.Ticket
	}
	batch := t.TriageBatch(ctx, tickets)

	rep := &Report{Results: make([]Result, len(cases))}
	var passed int
	var confSum float64
	for i, c := range cases {
		res := Result{TicketID: c.Ticket.ID, Expected: c.ExpectedSeverity}
		b := batch[i]
		switch {
		case b.Err != nil:
			res.Err = b.Err
		case b.Decision == nil:
			res.Err = fmt.Errorf("no decision for ticket %q", c.Ticket.ID)
		default:
			d := b.Decision
			res.Predicted = d.Severity
			res.Confidence = d.Confidence
			res.Escalate = d.Escalate
			res.Rationale = d.Rationale
			if !c.ExpectedSeverity.Valid() {
				res.Err = fmt.Errorf("unknown expected severity %q", c.ExpectedSeverity)
			} else {
				res.Passed = d.Severity == c.ExpectedSeverity
			}
		}

		if res.Passed {
			passed++
		}
		if res.Escalate {
			rep.Escalations++
		}
		confSum += res.Confidence
		rep.Results[i] = res
	}

	if n := len(cases); n > 0 {
		rep.Accuracy = float64(passed) / float64(n)
		rep.AvgConfidence = confSum / float64(n)
	}
	return rep
}

// Render writes the summary and a per-case table. Markdown switches the table
// to GitHub-flavoured Markdown.
func Render(w io.Writer, rep *Report, markdown bool) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Ticket", "Expected", "Predicted", "Confidence", "Escalate", "Result"})
	for _, r := range rep.Results {
		tw.AppendRow(table.Row{r.TicketID, r.Expected, predicted(r), fmt.Sprintf("%.2f", r.Confidence), r.Escalate, outcome(r)})
	}
	tw.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%.2f", rep.AvgConfidence), rep.Escalations, fmt.Sprintf("%.1f%%", rep.Accuracy*100)})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 6, AlignFooter: text.AlignRight},
	})

	body := tw.Render()
	if markdown {
		body = tw.RenderMarkdown()
	}

	_, err := fmt.Fprintf(w,
		"Evaluated %d tickets\nSeverity accuracy: %.1f%%\nAvg confidence: %.2f\nEscalations: %d\n\n%s\n",
		len(rep.Results), rep.Accuracy*100, rep.AvgConfidence, rep.Escalations, body,
	)
	if err != nil {
		return err
	}

	failures := rep.Failures()
	if len(failures) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "Failures:"); err != nil {
		return err
	}
	for _, f := range failures {
		line := fmt.Sprintf(" - %s: expected %s, got %s (conf %.2f)", f.TicketID, f.Expected, predicted(f), f.Confidence)
		if f.Err != nil {
			line = fmt.Sprintf(" - %s: %v", f.TicketID, f.Err)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func predicted(r Result) string {
	if r.Predicted == "" {
		return "-"
	}
	return string(r.Predicted)
}

func outcome(r Result) string {
	switch {
	case r.Err != nil:
		return "error"
	case r.Passed:
		return "pass"
	default:
		return "FAIL"
	}
}
