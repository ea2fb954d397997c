package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store contents and open findings",
	Long: `Summarizes recent batches, reconciliation and cross-validation verdicts,
hourly coverage, open inconsistency streaks and non-conformances. The
date range defaults to the last 30 days.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var (
	statusFrom    string
	statusTo      string
	statusBatches int
	statusJSON    bool
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusFrom, "from", "", "Range start (YYYY-MM-DD), default 30 days back")
	statusCmd.Flags().StringVar(&statusTo, "to", "", "Range end (YYYY-MM-DD), default today")
	statusCmd.Flags().IntVar(&statusBatches, "batches", 5, "Recent batches to list")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the report as JSON")
}

type batchReport struct {
	persistence.Batch
	Files map[string]int64 `json:"files,omitempty"`
}

type statusReport struct {
	Range           persistence.DateRange             `json:"range"`
	Health          persistence.HealthCheck           `json:"health"`
	Batches         []batchReport                     `json:"batches,omitempty"`
	Verdicts        map[string]int64                  `json:"verdicts,omitempty"`
	Coverage        map[string]int                    `json:"coverage,omitempty"`
	Classifications map[string]int64                  `json:"classifications,omitempty"`
	ActiveStreaks   []persistence.InconsistencyStreak `json:"active_streaks,omitempty"`
	Escalated       []persistence.InconsistencyStreak `json:"escalated_streaks,omitempty"`
	NonConformances []persistence.NonConformance      `json:"non_conformances,omitempty"`
}

func statusRange() (persistence.DateRange, error) {
	now := time.Now().UTC()
	r := persistence.DateRange{
		From: now.AddDate(0, 0, -30).Format(dateKeyFormat),
		To:   now.Format(dateKeyFormat),
	}
	if statusFrom != "" {
		if _, err := time.Parse(dateKeyFormat, statusFrom); err != nil {
			return r, &exitError{code: exitConfig, err: fmt.Errorf("invalid --from %q, want YYYY-MM-DD", statusFrom)}
		}
		r.From = statusFrom
	}
	if statusTo != "" {
		if _, err := time.Parse(dateKeyFormat, statusTo); err != nil {
			return r, &exitError{code: exitConfig, err: fmt.Errorf("invalid --to %q, want YYYY-MM-DD", statusTo)}
		}
		r.To = statusTo
	}
	if r.From > r.To {
		return r, &exitError{code: exitConfig, err: fmt.Errorf("range start %s is after end %s", r.From, r.To)}
	}
	return r, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	dates, err := statusRange()
	if err != nil {
		return err
	}
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signalContext()
	defer stop()

	repo := store.Repository()
	report := statusReport{Range: dates, Health: store.Health().Health(ctx)}

	batches, err := repo.Batches.List(ctx, statusBatches)
	if err != nil {
		return fmt.Errorf("list batches: %w", err)
	}
	for _, b := range batches {
		counts, err := repo.Batches.FileStatusCounts(ctx, b.ID)
		if err != nil {
			return fmt.Errorf("count batch files %s: %w", b.ID, err)
		}
		report.Batches = append(report.Batches, batchReport{Batch: b, Files: counts})
	}

	if report.Verdicts, err = repo.Verdicts.Summary(ctx, dates); err != nil {
		return fmt.Errorf("summarize verdicts: %w", err)
	}
	coverage, err := repo.Verdicts.ListCompleteness(ctx, dates)
	if err != nil {
		return fmt.Errorf("list completeness: %w", err)
	}
	report.Coverage = map[string]int{}
	for _, c := range coverage {
		report.Coverage[c.Status]++
	}
	if report.Classifications, err = repo.CrossVal.Summary(ctx, dates); err != nil {
		return fmt.Errorf("summarize cross-validation: %w", err)
	}
	if report.ActiveStreaks, err = repo.CrossVal.ListStreaks(ctx, domain.StreakActive); err != nil {
		return fmt.Errorf("list active streaks: %w", err)
	}
	if report.Escalated, err = repo.CrossVal.ListStreaks(ctx, domain.StreakEscalated); err != nil {
		return fmt.Errorf("list escalated streaks: %w", err)
	}
	if report.NonConformances, err = repo.CrossVal.ListNonConformances(ctx, 10); err != nil {
		return fmt.Errorf("list non-conformances: %w", err)
	}

	if statusJSON {
		return printJSON(report)
	}
	printStatus(&report)
	return nil
}

func printStatus(r *statusReport) {
	fmt.Printf("FiscalFlow status (%s to %s)\n", r.Range.From, r.Range.To)
	if r.Health.Healthy {
		fmt.Printf("  store healthy, ping %dms\n", r.Health.ResponseTimeMS)
	} else {
		fmt.Printf("  store UNHEALTHY: %s\n", strings.Join(r.Health.Errors, "; "))
	}

	if len(r.Batches) > 0 {
		fmt.Println("\nRecent batches")
		for _, b := range r.Batches {
			fmt.Printf("  %s  %-10s %3d files %-24s %s  %s\n",
				shortID(b.ID), b.Status, b.FileCount, fileCountsLine(b.Files),
				b.StartedAt.Format("2006-01-02 15:04"), b.Name)
		}
	}

	if len(r.Verdicts) > 0 {
		fmt.Println("\nReconciliation verdicts")
		for _, k := range sortedKeys(r.Verdicts) {
			fmt.Printf("  %-18s %d\n", k, r.Verdicts[k])
		}
	}
	if len(r.Coverage) > 0 {
		fmt.Println("\nHourly coverage")
		for _, k := range sortedKeys(r.Coverage) {
			fmt.Printf("  %-18s %d asset-days\n", k, r.Coverage[k])
		}
	}
	if len(r.Classifications) > 0 {
		fmt.Println("\nCross-validation")
		for _, k := range sortedKeys(r.Classifications) {
			fmt.Printf("  %-18s %d\n", k, r.Classifications[k])
		}
	}

	if len(r.ActiveStreaks) > 0 {
		fmt.Println("\nActive inconsistency streaks")
		for _, s := range r.ActiveStreaks {
			fmt.Printf("  %s %s: %d consecutive days since %s\n",
				s.AssetTag, s.Metric, s.ConsecutiveDays, s.FirstOccurrence)
		}
	}
	if len(r.Escalated) > 0 {
		fmt.Println("\nEscalated streaks")
		for _, s := range r.Escalated {
			fmt.Printf("  %s %s: %d days, last inconsistent %s\n",
				s.AssetTag, s.Metric, s.ConsecutiveDays, s.LastOccurrence)
		}
	}
	if len(r.NonConformances) > 0 {
		fmt.Println("\nNon-conformances")
		for _, nc := range r.NonConformances {
			fmt.Printf("  %s  %s %s on %s (respond by %s, close by %s)\n",
				nc.EventID, nc.AssetTag, nc.Metric, nc.OccurrenceDate, nc.PartialDeadline, nc.FinalDeadline)
		}
	}
}

// fileCountsLine renders a per-status count map as "3 SUCCESS, 1 FAILED".
func fileCountsLine(counts map[string]int64) string {
	if len(counts) == 0 {
		return ""
	}
	parts := make([]string, 0, len(counts))
	for _, k := range sortedKeys(counts) {
		parts = append(parts, fmt.Sprintf("%d %s", counts[k], k))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
