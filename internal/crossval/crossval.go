// Package crossval compares the same canonical metric across source shapes
// and tracks how long each disagreement persists. Spreadsheet, regulator XML
// and the two MPFM dump forms each contribute one value per comparison
// group; groups that keep disagreeing day after day escalate into
// non-conformance events with regulatory response deadlines.
package crossval

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fiscalflow/fiscalflow/internal/config"
	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/metrics"
	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

// lockStripes sizes the striped mutex table guarding streak updates.
const lockStripes = 64

// Validator recomputes cross-source verdicts and inconsistency streaks.
type Validator struct {
	repo    *persistence.Repository
	cfg     config.CrossValidationConfig
	metrics *metrics.MetricsRegistry
	now     func() time.Time

	// locks serializes the read-modify-write cycle per (asset, metric)
	// streak key. Callers still process the dates of one asset in
	// ascending order; the stripes only guard against concurrent pairs.
	locks [lockStripes]sync.Mutex
}

// New builds a Validator over the repository with the configured tolerances.
func New(repo *persistence.Repository, cfg config.CrossValidationConfig, reg *metrics.MetricsRegistry) *Validator {
	return &Validator{repo: repo, cfg: cfg, metrics: reg, now: time.Now}
}

// Summary aggregates one cross-validation run.
type Summary struct {
	Pairs            int            `json:"pairs"`
	Verdicts         int            `json:"verdicts"`
	ByClassification map[string]int `json:"by_classification"`
	Resolved         int            `json:"resolved"`
	Escalated        int            `json:"escalated"`
}

// Run cross-validates every (asset, business date) pair holding
// observations inside the range. Dates arrive in ascending order per asset,
// which the day-streak arithmetic depends on.
func (v *Validator) Run(ctx context.Context, dates persistence.DateRange) (*Summary, error) {
	pairs, err := v.repo.Observations.TouchedAssetDates(ctx, dates)
	if err != nil {
		return nil, fmt.Errorf("failed to list touched asset dates: %w", err)
	}

	summary := &Summary{ByClassification: map[string]int{}}
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
					verdicts, outcome, err := v.ValidatePair(ctx, pair.AssetTag, pair.BusinessDate)
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
					for _, cv := range verdicts {
						summary.ByClassification[string(cv.Classification)]++
					}
					summary.Resolved += outcome.Resolved
					summary.Escalated += outcome.Escalated
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

// groupWorkers bounds the asset fan-out. One asset's days stay on one
// worker so the streak arithmetic sees them oldest first.
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

// PairOutcome reports the streak transitions one asset-day caused.
type PairOutcome struct {
	Resolved  int
	Escalated int
}

// ValidatePair recomputes the cross verdicts for one asset-day, stores them
// and feeds the day's agreement into the per-metric streaks.
func (v *Validator) ValidatePair(ctx context.Context, assetTag, businessDate string) ([]persistence.CrossVerdict, PairOutcome, error) {
	var outcome PairOutcome
	obs, err := v.repo.Observations.ListByAssetDate(ctx, assetTag, businessDate)
	if err != nil {
		return nil, outcome, fmt.Errorf("failed to load observations for %s %s: %w", assetTag, businessDate, err)
	}
	if len(obs) == 0 {
		return nil, outcome, nil
	}

	verdicts := v.classify(assetTag, businessDate, obs)
	if err := v.repo.CrossVal.UpsertVerdicts(ctx, verdicts); err != nil {
		return nil, outcome, fmt.Errorf("failed to store cross verdicts for %s %s: %w", assetTag, businessDate, err)
	}
	for _, cv := range verdicts {
		v.metrics.RecordClassification(string(cv.Classification))
	}

	// A metric's day agrees only when every compared group agrees. Groups
	// with a single source never speak for or against a streak.
	agreesByMetric := map[string]bool{}
	for _, cv := range verdicts {
		switch {
		case cv.Classification == domain.ClassInconsistent:
			agreesByMetric[cv.Metric] = false
		case cv.Classification.Agrees():
			if _, seen := agreesByMetric[cv.Metric]; !seen {
				agreesByMetric[cv.Metric] = true
			}
		}
	}
	for _, metric := range sortedKeys(agreesByMetric) {
		transition, err := v.updateStreak(ctx, assetTag, metric, businessDate, agreesByMetric[metric])
		if err != nil {
			return nil, outcome, err
		}
		outcome.Resolved += transition.Resolved
		outcome.Escalated += transition.Escalated
	}

	log.Debug().
		Str("asset", assetTag).
		Str("business_date", businessDate).
		Int("observations", len(obs)).
		Int("verdicts", len(verdicts)).
		Int("escalated", outcome.Escalated).
		Msg("Asset-day cross-validated")
	return verdicts, outcome, nil
}

type groupKey struct {
	metric string
	window string
}

// classify folds the day's observations into one verdict per comparison
// group. Sources are compared by their extremes: the widest disagreement
// decides the whole group.
func (v *Validator) classify(assetTag, businessDate string, obs []persistence.Observation) []persistence.CrossVerdict {
	groups := map[groupKey][]persistence.Observation{}
	for _, o := range obs {
		k := groupKey{metric: o.Metric, window: o.TimeWindow}
		groups[k] = append(groups[k], o)
	}
	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].metric != keys[j].metric {
			return keys[i].metric < keys[j].metric
		}
		return keys[i].window < keys[j].window
	})

	computedAt := v.now().UTC()
	out := make([]persistence.CrossVerdict, 0, len(keys))
	for _, k := range keys {
		cv := persistence.CrossVerdict{
			AssetTag:     assetTag,
			BusinessDate: businessDate,
			TimeWindow:   k.window,
			Metric:       k.metric,
			ComputedAt:   computedAt,
		}
		values := make([]float64, 0, 4)
		for _, o := range groups[k] {
			val := o.Value
			switch o.Source {
			case domain.SourceSpreadsheet:
				cv.SpreadsheetValue = &val
			case domain.SourceXML:
				cv.XMLValue = &val
			case domain.SourcePDF:
				cv.PDFValue = &val
			case domain.SourceTXT:
				cv.TXTValue = &val
			default:
				continue
			}
			values = append(values, val)
		}
		cv.SourcesPresent = len(values)

		switch {
		case len(values) == 0:
			cv.Classification = domain.ClassNoData
		case len(values) == 1:
			cv.Classification = domain.ClassSingleSource
		default:
			judgeGroup(&cv, values, v.tolerance(k.metric))
		}
		out = append(out, cv)
	}
	return out
}

// judgeGroup fills the spread fields and classifies a compared group.
func judgeGroup(cv *persistence.CrossVerdict, values []float64, tol config.Tolerance) {
	lo, hi := values[0], values[0]
	for _, val := range values[1:] {
		lo = math.Min(lo, val)
		hi = math.Max(hi, val)
	}
	maxAbs := hi - lo
	magnitude := math.Max(math.Abs(hi), math.Abs(lo))
	var maxPct float64
	if magnitude > 0 {
		maxPct = maxAbs / magnitude
	}
	applied := math.Max(tol.Abs, magnitude*tol.Pct/100)

	cv.MaxAbs = &maxAbs
	cv.MaxPct = &maxPct
	cv.ToleranceApplied = &applied

	switch {
	case maxAbs == 0:
		cv.Classification = domain.ClassConsistent
	case maxAbs <= applied:
		cv.Classification = domain.ClassAcceptable
	default:
		cv.Classification = domain.ClassInconsistent
	}
}

// tolerance resolves the bound pair for a metric: explicit configuration
// first, then the flow-time exact match, then the unit family default.
func (v *Validator) tolerance(metric string) config.Tolerance {
	if tol, ok := v.cfg.Tolerances[metric]; ok {
		return tol
	}
	if metric == "flow_time_min" {
		return config.Tolerance{}
	}
	switch domain.MetricKindOf(metric) {
	case domain.KindVolume:
		return config.Tolerance{Abs: 0.01, Pct: 0.1}
	case domain.KindEnergy:
		return config.Tolerance{Abs: 0.01, Pct: 1.0}
	default:
		return config.Tolerance{Abs: 0.01, Pct: 0.5}
	}
}

// updateStreak applies one day's agreement to the (asset, metric) streak.
// Consecutive inconsistent days extend the streak; a gap restarts it; an
// agreeing day resolves it. Crossing the escalation threshold flips the
// streak to ESCALATED exactly once and raises the non-conformance event.
func (v *Validator) updateStreak(ctx context.Context, assetTag, metric, businessDate string, agrees bool) (PairOutcome, error) {
	var outcome PairOutcome
	mu := v.lockFor(assetTag + "|" + metric)
	mu.Lock()
	defer mu.Unlock()

	streak, err := v.repo.CrossVal.GetStreak(ctx, assetTag, metric)
	if err != nil {
		return outcome, fmt.Errorf("failed to load streak %s/%s: %w", assetTag, metric, err)
	}

	if agrees {
		if streak == nil || streak.Status == domain.StreakResolved {
			return outcome, nil
		}
		streak.Status = domain.StreakResolved
		if err := v.repo.CrossVal.UpsertStreak(ctx, *streak); err != nil {
			return outcome, fmt.Errorf("failed to resolve streak %s/%s: %w", assetTag, metric, err)
		}
		outcome.Resolved++
		log.Info().Str("asset", assetTag).Str("metric", metric).
			Int("consecutive_days", streak.ConsecutiveDays).
			Msg("Inconsistency streak resolved")
		return outcome, nil
	}

	switch {
	case streak == nil:
		streak = &persistence.InconsistencyStreak{
			AssetTag:        assetTag,
			Metric:          metric,
			Status:          domain.StreakActive,
			FirstOccurrence: businessDate,
			LastOccurrence:  businessDate,
			ConsecutiveDays: 1,
		}
	case streak.LastOccurrence == businessDate:
		// Re-run of an already counted day. Counters stay; a prior
		// resolution on this day flips back.
		if streak.Status == domain.StreakResolved {
			streak.Status = domain.StreakActive
		}
	case streak.LastOccurrence == previousDay(businessDate):
		streak.ConsecutiveDays++
		streak.LastOccurrence = businessDate
		if streak.Status == domain.StreakResolved {
			streak.Status = domain.StreakActive
		}
	default:
		streak.Status = domain.StreakActive
		streak.FirstOccurrence = businessDate
		streak.LastOccurrence = businessDate
		streak.ConsecutiveDays = 1
	}

	if streak.ConsecutiveDays >= v.cfg.EscalationDays && streak.Status != domain.StreakEscalated {
		streak.Status = domain.StreakEscalated
		created, err := v.escalate(ctx, streak, businessDate)
		if err != nil {
			return outcome, err
		}
		if created {
			outcome.Escalated++
		}
	}
	if err := v.repo.CrossVal.UpsertStreak(ctx, *streak); err != nil {
		return outcome, fmt.Errorf("failed to store streak %s/%s: %w", assetTag, metric, err)
	}
	return outcome, nil
}

// escalate raises the idempotent non-conformance event for a streak that
// just crossed the threshold.
func (v *Validator) escalate(ctx context.Context, streak *persistence.InconsistencyStreak, businessDate string) (bool, error) {
	nc := persistence.NonConformance{
		EventID:        fmt.Sprintf("NC-CV-%s-%s-%s", streak.AssetTag, streak.Metric, businessDate),
		AssetTag:       streak.AssetTag,
		Metric:         streak.Metric,
		OccurrenceDate: businessDate,
		DetectedAt:     v.now().UTC(),
		Description: fmt.Sprintf("Sources disagreed on %s for %s for %d consecutive days",
			streak.Metric, streak.AssetTag, streak.ConsecutiveDays),
		PartialDeadline: addDays(businessDate, 10),
		FinalDeadline:   addDays(businessDate, 30),
	}
	created, err := v.repo.CrossVal.CreateNonConformance(ctx, nc)
	if err != nil {
		return false, fmt.Errorf("failed to create non-conformance %s: %w", nc.EventID, err)
	}
	if created {
		v.metrics.RecordEscalation()
		log.Warn().Str("event_id", nc.EventID).
			Str("asset", streak.AssetTag).
			Str("metric", streak.Metric).
			Int("consecutive_days", streak.ConsecutiveDays).
			Str("partial_deadline", nc.PartialDeadline).
			Str("final_deadline", nc.FinalDeadline).
			Msg("Inconsistency streak escalated")
	}
	return created, nil
}

func (v *Validator) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &v.locks[h.Sum32()%lockStripes]
}

func previousDay(dateKey string) string {
	return addDays(dateKey, -1)
}

func addDays(dateKey string, days int) string {
	t, err := time.Parse("2006-01-02", dateKey)
	if err != nil {
		return dateKey
	}
	return domain.DateKey(t.AddDate(0, 0, days))
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
