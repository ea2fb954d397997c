package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fiscalflow/fiscalflow/internal/crossval"
	"github.com/fiscalflow/fiscalflow/internal/metrics"
)

var crossValidateCmd = &cobra.Command{
	Use:   "cross-validate <from> [<to>]",
	Short: "Recompute cross-source verdicts for a date range",
	Long: `Reclassifies every asset-day holding observations inside the range,
updates the per-metric inconsistency streaks and raises non-conformances
for streaks crossing the escalation threshold. Dates are business-date
keys (YYYY-MM-DD); a missing <to> means today.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCrossValidate,
}

var crossValidateJSON bool

func init() {
	rootCmd.AddCommand(crossValidateCmd)
	crossValidateCmd.Flags().BoolVar(&crossValidateJSON, "json", false, "Print the summary as JSON")
}

func runCrossValidate(cmd *cobra.Command, args []string) error {
	dates, err := argDateRange(args)
	if err != nil {
		return err
	}
	cfg, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signalContext()
	defer stop()

	val := crossval.New(store.Repository(), cfg.CrossValidation, metrics.NewMetricsRegistry())
	summary, err := val.Run(ctx, dates)
	if err != nil {
		return err
	}

	if crossValidateJSON {
		return printJSON(summary)
	}
	fmt.Printf("Cross-validated %d asset-days, %d verdicts (%s to %s)\n", summary.Pairs, summary.Verdicts, dates.From, dates.To)
	for _, class := range sortedKeys(summary.ByClassification) {
		fmt.Printf("  %-18s %d\n", class, summary.ByClassification[class])
	}
	if summary.Resolved > 0 {
		fmt.Printf("  streaks resolved:  %d\n", summary.Resolved)
	}
	if summary.Escalated > 0 {
		fmt.Printf("  new escalations:   %d\n", summary.Escalated)
	}
	return nil
}
