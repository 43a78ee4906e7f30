// Command lookout-eval scores the triage engine against labelled tickets and
// maintains the labelled case files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	v "github.com/linnemanlabs/go-core/version"
)

var rootCmd = &cobra.Command{
	Use:   "lookout-eval",
	Short: "Offline evaluation for lookout triage",
	Long:  "lookout-eval runs the triage engine over labelled tickets and reports\nseverity accuracy, confidence and escalations.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	v.AppName = "lookout"
	v.Component = "eval"

	rootCmd.AddCommand(newEvaluateCmd())
	rootCmd.AddCommand(newMergeCmd())
	rootCmd.Version = v.Get().Version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
