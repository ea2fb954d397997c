package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fiscalflow/fiscalflow/internal/crossval"
	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/ingest"
	"github.com/fiscalflow/fiscalflow/internal/metrics"
	"github.com/fiscalflow/fiscalflow/internal/reconcile"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>",
	Short: "Ingest a report file, directory or zip archive",
	Long: `Stages every file of the submission by content fingerprint, parses the
recognized report shapes, lands the canonical facts and refreshes the
reconciliation and cross-validation verdicts of every touched asset-day.

Files whose content already parsed successfully are skipped unless
--force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var (
	ingestForce     bool
	ingestWorkers   int
	ingestExport    string
	ingestNoDerived bool
	ingestJSON      bool
)

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "Reparse files whose content was already ingested")
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 0, "Parse worker count (0 = CPU count)")
	ingestCmd.Flags().StringVar(&ingestExport, "export", "", "Export folder override for the batch summary artifact")
	ingestCmd.Flags().BoolVar(&ingestNoDerived, "skip-derived", false, "Skip reconciliation and cross-validation after the batch")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "Print the batch summary as JSON")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if ingestForce {
		cfg.ForceReparse = true
	}
	if ingestWorkers > 0 {
		cfg.Workers = ingestWorkers
	}
	if ingestExport != "" {
		cfg.ExportFolder = ingestExport
	}

	reg := metrics.NewMetricsRegistry()
	stopMetrics := serveMetrics(cfg.MetricsAddr, reg)
	defer stopMetrics()

	repo := store.Repository()
	var rec ingest.Reconciler
	var val ingest.CrossValidator
	if !ingestNoDerived {
		rec = reconcile.New(repo, cfg.Reconciliation, reg)
		val = crossval.New(repo, cfg.CrossValidation, reg)
	}
	pipe := ingest.New(repo, cfg, reg, rec, val)

	ctx, stop := signalContext()
	defer stop()

	summary, err := pipe.Run(ctx, args[0])
	if err != nil {
		return err
	}

	if ingestJSON {
		if err := printJSON(summary); err != nil {
			return err
		}
	} else {
		printBatchSummary(summary)
	}

	switch {
	case summary.Status == domain.BatchFailed:
		return fmt.Errorf("batch %s failed: no file could be ingested", summary.BatchID)
	case summary.Status == domain.BatchCancelled:
		return fmt.Errorf("batch %s cancelled", summary.BatchID)
	case summary.FilesFailed > 0:
		return &exitError{
			code: exitPartial,
			err:  fmt.Errorf("batch %s: %d of %d files failed to parse", summary.BatchID, summary.FilesFailed, summary.FilesDiscovered),
		}
	}
	return nil
}

func printBatchSummary(s *ingest.BatchSummary) {
	fmt.Printf("Batch %s (%s)\n", s.BatchID, s.Name)
	fmt.Printf("  status:    %s in %.1fs\n", s.Status, s.DurationSeconds)
	fmt.Printf("  files:     %d discovered, %d parsed, %d partial, %d failed, %d skipped\n",
		s.FilesDiscovered, s.FilesParsed, s.FilesPartial, s.FilesFailed, s.FilesSkipped)
	fmt.Printf("  records:   %d staged across %d asset-days\n", s.RecordsStaged, s.AssetDays)
	fmt.Printf("  verdicts:  %d reconciliation, %d cross-validation\n", s.ReconcileVerdicts, s.CrossVerdicts)
	if s.StreaksResolved > 0 {
		fmt.Printf("  resolved:  %d inconsistency streaks closed\n", s.StreaksResolved)
	}
	if s.Escalations > 0 {
		fmt.Printf("  escalated: %d streaks raised a non-conformance\n", s.Escalations)
	}
	for _, in := range s.SkippedInputs {
		fmt.Printf("  ignored:   %s\n", in)
	}
	for _, f := range s.Failures {
		fmt.Printf("  failed:    %s: %s\n", f.Filename, strings.Join(f.Errors, "; "))
	}
	if s.ArtifactPath != "" {
		fmt.Printf("  artifact:  %s\n", s.ArtifactPath)
	}
}

// serveMetrics exposes the Prometheus registry for the lifetime of the
// command. A scraper pointed at a long batch sees parse progress live.
func serveMetrics(addr string, reg *metrics.MetricsRegistry) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Str("addr", addr).Msg("Metrics endpoint stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("Serving metrics")
	return func() { srv.Close() }
}
