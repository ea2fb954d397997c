// Package reconcile checks the statement identity between the hourly MPFM
// reports of a business day and the daily report covering it. Every run
// replaces the prior verdicts of the touched asset-days, so re-ingesting a
// corrected report converges without manual cleanup.
package reconcile

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fiscalflow/fiscalflow/internal/config"
	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/metrics"
	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

// nearZero guards the relative delta against vanishing daily statements.
const nearZero = 1e-6

// Reconciler recomputes hourly-vs-daily verdicts for touched asset-days.
type Reconciler struct {
	repo    *persistence.Repository
	cfg     config.ReconciliationConfig
	metrics *metrics.MetricsRegistry
	now     func() time.Time
}

// New builds a Reconciler over the repository with the configured bounds.
func New(repo *persistence.Repository, cfg config.ReconciliationConfig, reg *metrics.MetricsRegistry) *Reconciler {
	return &Reconciler{repo: repo, cfg: cfg, metrics: reg, now: time.Now}
}

// Summary aggregates one reconciliation run.
type Summary struct {
	Pairs     int            `json:"pairs"`
	Verdicts  int            `json:"verdicts"`
	ByVerdict map[string]int `json:"by_verdict"`
}

// Run reconciles every (asset, business date) pair holding production facts
// inside the range and returns the aggregated verdict counts.
func (r *Reconciler) Run(ctx context.Context, dates persistence.DateRange) (*Summary, error) {
	pairs, err := r.repo.Facts.TouchedAssetDates(ctx, dates)
	if err != nil {
		return nil, fmt.Errorf("failed to list touched asset dates: %w", err)
	}

	summary := &Summary{ByVerdict: map[string]int{}}
	groups := persistence.GroupByAsset(pairs)

	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)
	tasks := make(chan []persistence.AssetDate)
	for i := 0; i < groupWorkers(len(groups)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// A worker keeps draining after a failure so the feeder
			// never blocks on a dead pool.
			for group := range tasks {
				for _, pair := range group {
					mu.Lock()
					stop := firstErr != nil
					mu.Unlock()
					if stop || ctx.Err() != nil {
						break
					}
					verdicts, err := r.Reconcile(ctx, pair.AssetTag, pair.BusinessDate)
					mu.Lock()
					if err != nil {
						if firstErr == nil {
							firstErr = err
						}
						mu.Unlock()
						break
					}
					summary.Pairs++
					summary.Verdicts += len(verdicts)
					for _, v := range verdicts {
						summary.ByVerdict[string(v.Verdict)]++
					}
					mu.Unlock()
				}
			}
		}()
	}

	for _, group := range groups {
		select {
		case <-ctx.Done():
		case tasks <- group:
		}
	}
	close(tasks)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return summary, nil
}

// groupWorkers bounds the asset fan-out. One asset's days stay on one worker
// so coverage rows land in date order.
func groupWorkers(groups int) int {
	n := runtime.NumCPU()
	if n > groups {
		n = groups
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Reconcile recomputes all metric verdicts for one asset-day, replaces any
// prior run's rows and refreshes the coverage row.
func (r *Reconciler) Reconcile(ctx context.Context, assetTag, businessDate string) ([]persistence.ReconciliationVerdict, error) {
	daily, err := r.repo.Facts.DailyFact(ctx, assetTag, businessDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily fact for %s %s: %w", assetTag, businessDate, err)
	}
	hourlies, err := r.repo.Facts.HourlyFacts(ctx, assetTag, businessDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load hourly facts for %s %s: %w", assetTag, businessDate, err)
	}

	verdicts := r.compare(assetTag, businessDate, daily, hourlies)
	if err := r.repo.Verdicts.ReplaceForAssetDate(ctx, assetTag, businessDate, verdicts); err != nil {
		return nil, fmt.Errorf("failed to store verdicts for %s %s: %w", assetTag, businessDate, err)
	}
	if err := r.repo.Verdicts.UpsertCompleteness(ctx, coverage(assetTag, businessDate, daily != nil, len(hourlies))); err != nil {
		return nil, fmt.Errorf("failed to store completeness for %s %s: %w", assetTag, businessDate, err)
	}

	dayStatus := domain.VerdictPass
	for i, v := range verdicts {
		if i == 0 {
			dayStatus = v.Verdict
		} else {
			dayStatus = domain.WorseVerdict(dayStatus, v.Verdict)
		}
		r.metrics.RecordVerdict(string(v.Verdict))
	}
	evt := log.Debug()
	if dayStatus == domain.VerdictFail {
		evt = log.Warn()
	}
	evt.Str("asset", assetTag).
		Str("business_date", businessDate).
		Int("verdicts", len(verdicts)).
		Int("hourly_facts", len(hourlies)).
		Bool("has_daily", daily != nil).
		Str("day_status", string(dayStatus)).
		Msg("Asset-day reconciled")
	return verdicts, nil
}

// compare walks the canonical metric list and produces one verdict per
// metric stated by either grain. Metrics stated by neither grain yield no
// row at all.
func (r *Reconciler) compare(assetTag, businessDate string, daily *persistence.ProductionFact, hourlies []persistence.ProductionFact) []persistence.ReconciliationVerdict {
	computedAt := r.now().UTC()
	var out []persistence.ReconciliationVerdict
	for _, metric := range domain.ProductionMetrics() {
		var dailyValue *float64
		if daily != nil {
			dailyValue = daily.Value(metric)
		}
		var sum float64
		count := 0
		for i := range hourlies {
			if v := hourlies[i].Value(metric); v != nil {
				sum += *v
				count++
			}
		}
		if dailyValue == nil && count == 0 {
			continue
		}

		v := persistence.ReconciliationVerdict{
			AssetTag:     assetTag,
			BusinessDate: businessDate,
			Metric:       metric,
			DailyValue:   dailyValue,
			HourlyCount:  count,
			ComputedAt:   computedAt,
		}
		switch {
		case dailyValue == nil:
			v.SumHourly = &sum
			v.Verdict = domain.VerdictMissingDaily
		case count == 0:
			v.Verdict = domain.VerdictMissingHourly
		default:
			v.SumHourly = &sum
			v.Verdict = r.judge(metric, *dailyValue, sum, &v)
		}
		out = append(out, v)
	}
	return out
}

// judge applies the tolerance rule to one stated pair and fills the deltas.
// The relative bound gates the warn band: a delta inside the relative
// tolerance but beyond the absolute one may still warn instead of failing,
// up to twice the absolute bound.
func (r *Reconciler) judge(metric string, daily, sum float64, v *persistence.ReconciliationVerdict) domain.Verdict {
	tolAbs := r.absTolerance(metric)
	tolPct := r.cfg.RelativePct / 100

	deltaAbs := math.Abs(daily - sum)
	var deltaPct float64
	if math.Abs(daily) > nearZero {
		deltaPct = deltaAbs / math.Abs(daily)
	} else if deltaAbs > tolAbs {
		deltaPct = 1.0
	}
	v.DeltaAbs = &deltaAbs
	v.DeltaPct = &deltaPct

	switch {
	case deltaAbs <= tolAbs && deltaPct <= tolPct:
		return domain.VerdictPass
	case deltaPct <= tolPct && deltaAbs <= 2*tolAbs:
		return domain.VerdictWarn
	default:
		return domain.VerdictFail
	}
}

func (r *Reconciler) absTolerance(metric string) float64 {
	if domain.MetricKindOf(metric) == domain.KindVolume {
		return r.cfg.AbsoluteVolumeSm3
	}
	return r.cfg.AbsoluteMassT
}

// coverage summarizes how much of the expected day actually arrived.
func coverage(assetTag, businessDate string, hasDaily bool, foundHourly int) persistence.Completeness {
	pct := float64(foundHourly) / domain.ExpectedHourlyReports * 100
	if pct > 100 {
		pct = 100
	}
	status := domain.CoverageIncomplete
	switch {
	case foundHourly == 0 && !hasDaily:
		status = domain.CoverageNoData
	case foundHourly >= domain.ExpectedHourlyReports && hasDaily:
		status = domain.CoverageComplete
	}
	return persistence.Completeness{
		AssetTag:        assetTag,
		BusinessDate:    businessDate,
		ExpectedHourly:  domain.ExpectedHourlyReports,
		FoundHourly:     foundHourly,
		HasDaily:        hasDaily,
		CompletenessPct: pct,
		Status:          status,
	}
}
