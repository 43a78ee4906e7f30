package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/lookout/internal/escalation"
	"github.com/linnemanlabs/lookout/internal/evaluate"
	sig "github.com/linnemanlabs/lookout/internal/signal"
	"github.com/linnemanlabs/lookout/internal/triage"
)

type evaluateFlags struct {
	cases       string
	kbPath      string
	historyPath string
	threshold   float64
	redactPII   bool
	concurrency int
	markdown    bool
	minAccuracy float64
}

func newEvaluateCmd() *cobra.Command {
	var f evaluateFlags
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Triage every case and report severity accuracy",
		Long: `Evaluate triages each labelled ticket with the deterministic narrative
backend and compares the predicted severity to the expected one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEvaluate(cmd, &f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.cases, "cases", "data/eval_cases.json", "Labelled case file (JSON or YAML)")
	fl.StringVar(&f.kbPath, "kb-path", "data/knowledge_base.json", "Knowledge base signal table (empty = none)")
	fl.StringVar(&f.historyPath, "history-path", "data/history.yaml", "Incident history signal table (empty = none)")
	fl.Float64Var(&f.threshold, "confidence-threshold", escalation.DefaultThreshold, "Escalate decisions with confidence below this (0..1)")
	fl.BoolVar(&f.redactPII, "redact-pii", true, "Mask PII before classification")
	fl.IntVar(&f.concurrency, "concurrency", triage.DefaultBatchConcurrency, "Tickets triaged in parallel")
	fl.BoolVar(&f.markdown, "markdown", false, "Render the result table as Markdown")
	fl.Float64Var(&f.minAccuracy, "min-accuracy", 0, "Exit non-zero when accuracy is below this (0..1, 0 = never)")
	return cmd
}

func runEvaluate(cmd *cobra.Command, f *evaluateFlags) error {
	policy, err := escalation.New(f.threshold)
	if err != nil {
		return err
	}
	knowledge, err := loadTable("kb", f.kbPath)
	if err != nil {
		return err
	}
	history, err := loadTable("history", f.historyPath)
	if err != nil {
		return err
	}
	cases, err := evaluate.LoadCases(f.cases)
	if err != nil {
		return err
	}

	engine := triage.NewEngine(triage.EngineConfig{
		Knowledge:        knowledge,
		History:          history,
		Policy:           policy,
		RedactPII:        f.redactPII,
		BatchConcurrency: f.concurrency,
	}, log.Nop(), triage.EngineHooks{})

	rep := evaluate.Run(cmd.Context(), engine, cases)
	if err := evaluate.Render(cmd.OutOrStdout(), rep, f.markdown); err != nil {
		return err
	}

	if f.minAccuracy > 0 && rep.Accuracy < f.minAccuracy {
		return fmt.Errorf("accuracy %.1f%% below minimum %.1f%%", rep.Accuracy*100, f.minAccuracy*100)
	}
	return nil
}

// loadTable mirrors the server: an empty path or a missing file means an
// empty table.
func loadTable(name, path string) (*sig.Table, error) {
	if path == "" {
		return sig.Empty(name), nil
	}
	t, err := sig.Load(name, path)
	if errors.Is(err, os.ErrNotExist) {
		return sig.Empty(name), nil
	}
	return t, err
}
