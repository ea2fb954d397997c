package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fiscalflow/fiscalflow/internal/metrics"
	"github.com/fiscalflow/fiscalflow/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <from> [<to>]",
	Short: "Recompute hourly-vs-daily verdicts for a date range",
	Long: `Recomputes the reconciliation verdicts of every asset-day holding
production facts inside the range. Prior verdicts of each touched pair
are replaced. Dates are business-date keys (YYYY-MM-DD); a missing <to>
means today.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runReconcile,
}

var reconcileJSON bool

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().BoolVar(&reconcileJSON, "json", false, "Print the summary as JSON")
}

func runReconcile(cmd *cobra.Command, args []string) error {
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

	rec := reconcile.New(store.Repository(), cfg.Reconciliation, metrics.NewMetricsRegistry())
	summary, err := rec.Run(ctx, dates)
	if err != nil {
		return err
	}

	if reconcileJSON {
		return printJSON(summary)
	}
	fmt.Printf("Reconciled %d asset-days, %d verdicts (%s to %s)\n", summary.Pairs, summary.Verdicts, dates.From, dates.To)
	for _, verdict := range sortedKeys(summary.ByVerdict) {
		fmt.Printf("  %-18s %d\n", verdict, summary.ByVerdict[verdict])
	}
	return nil
}
