package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/lookout/internal/evaluate"
)

type mergeFlags struct {
	base       string
	candidates string
	mode       string
	dryRun     bool
}

func newMergeCmd() *cobra.Command {
	var f mergeFlags
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge vetted candidate cases into the main case file",
		Long: `Merge folds candidate cases into the base file keyed by ticket id.
With --mode skip existing cases win; with --mode replace candidates overwrite
them in place. Candidates without a ticket id are ignored. A missing file is
treated as empty.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMerge(cmd, &f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.base, "base", "data/eval_cases.json", "Main case file, rewritten in place")
	fl.StringVar(&f.candidates, "candidates", "data/eval_cases_candidates.json", "Vetted candidate case file")
	fl.StringVar(&f.mode, "mode", string(evaluate.MergeSkip), "Duplicate ticket ids: skip or replace")
	fl.BoolVar(&f.dryRun, "dry-run", false, "Report counts without writing the base file")
	return cmd
}

func runMerge(cmd *cobra.Command, f *mergeFlags) error {
	mode, err := evaluate.ParseMergeMode(f.mode)
	if err != nil {
		return err
	}
	base, err := evaluate.LoadCasesOrEmpty(f.base)
	if err != nil {
		return err
	}
	candidates, err := evaluate.LoadCasesOrEmpty(f.candidates)
	if err != nil {
		return err
	}

	res := evaluate.Merge(base, candidates, mode)
	if !f.dryRun {
		if err := evaluate.WriteCases(f.base, res.Cases); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Base cases: %d\n", len(base))
	fmt.Fprintf(out, "Candidates: %d\n", len(candidates))
	fmt.Fprintf(out, "Added: %d, Replaced: %d\n", res.Added, res.Replaced)
	fmt.Fprintf(out, "Total now: %d -> %s\n", len(res.Cases), f.base)
	return nil
}
