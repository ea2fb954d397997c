package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalflow/fiscalflow/internal/config"
	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/metrics"
	"github.com/fiscalflow/fiscalflow/internal/parse"
	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

func newReconciler(facts *fakeFacts, verdicts *fakeVerdicts) *Reconciler {
	repo := &persistence.Repository{Facts: facts, Verdicts: verdicts}
	r := New(repo, config.Default().Reconciliation, metrics.NewMetricsRegistry())
	r.now = func() time.Time { return time.Date(2024, 5, 12, 9, 0, 0, 0, time.UTC) }
	return r
}

func TestJudgeVerdictBands(t *testing.T) {
	r := newReconciler(&fakeFacts{}, &fakeVerdicts{})
	cases := []struct {
		name   string
		metric string
		daily  float64
		sum    float64
		want   domain.Verdict
	}{
		{name: "inside both bounds", metric: "corrected_mass_total_t", daily: 1000, sum: 1000.2, want: domain.VerdictPass},
		{name: "absolute exceeded inside warn band", metric: "corrected_mass_total_t", daily: 1000, sum: 1000.8, want: domain.VerdictWarn},
		{name: "beyond twice the absolute bound", metric: "corrected_mass_total_t", daily: 1000, sum: 1001.2, want: domain.VerdictFail},
		{name: "relative bound exceeded", metric: "corrected_mass_total_t", daily: 100, sum: 101, want: domain.VerdictFail},
		{name: "zero daily with small residue", metric: "corrected_mass_total_t", daily: 0, sum: 0.3, want: domain.VerdictPass},
		{name: "zero daily with material residue", metric: "corrected_mass_total_t", daily: 0, sum: 2.0, want: domain.VerdictFail},
		{name: "volume bound is wider", metric: "pvt_ref_vol_total_sm3", daily: 3000, sum: 3000.9, want: domain.VerdictPass},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var v persistence.ReconciliationVerdict
			got := r.judge(tc.metric, tc.daily, tc.sum, &v)
			assert.Equal(t, tc.want, got)
			require.NotNil(t, v.DeltaAbs)
			require.NotNil(t, v.DeltaPct)
		})
	}
}

func TestJudgeZeroDailyDeltaPct(t *testing.T) {
	r := newReconciler(&fakeFacts{}, &fakeVerdicts{})

	var v persistence.ReconciliationVerdict
	r.judge("corrected_mass_total_t", 0, 2.0, &v)
	assert.Equal(t, 1.0, *v.DeltaPct)

	v = persistence.ReconciliationVerdict{}
	r.judge("corrected_mass_total_t", 0, 0.3, &v)
	assert.Equal(t, 0.0, *v.DeltaPct)
}

func TestCompareEmitsMissingBranches(t *testing.T) {
	r := newReconciler(&fakeFacts{}, &fakeVerdicts{})
	daily := factOf(domain.ReportDaily, "corrected_mass_total_t", 2988.1)
	hourly := factOf(domain.ReportHourly, "pvt_ref_vol_total_sm3", 130.1)

	verdicts := r.compare("13FT0367", "2024-05-10", &daily, []persistence.ProductionFact{hourly})

	require.Len(t, verdicts, 2)
	massV := verdicts[0]
	assert.Equal(t, "corrected_mass_total_t", massV.Metric)
	assert.Equal(t, domain.VerdictMissingHourly, massV.Verdict)
	require.NotNil(t, massV.DailyValue)
	assert.Nil(t, massV.SumHourly)
	assert.Nil(t, massV.DeltaAbs)

	volV := verdicts[1]
	assert.Equal(t, "pvt_ref_vol_total_sm3", volV.Metric)
	assert.Equal(t, domain.VerdictMissingDaily, volV.Verdict)
	assert.Nil(t, volV.DailyValue)
	require.NotNil(t, volV.SumHourly)
	assert.Equal(t, 130.1, *volV.SumHourly)
	assert.Equal(t, 1, volV.HourlyCount)
}

func TestCompareSumsOnlyContributingHourlies(t *testing.T) {
	r := newReconciler(&fakeFacts{}, &fakeVerdicts{})
	daily := factOf(domain.ReportDaily, "corrected_mass_total_t", 300)
	hourlies := []persistence.ProductionFact{
		factOf(domain.ReportHourly, "corrected_mass_total_t", 150),
		factOf(domain.ReportHourly, "corrected_mass_total_t", 150.1),
		factOf(domain.ReportHourly, "pvt_ref_vol_total_sm3", 99),
	}

	verdicts := r.compare("13FT0367", "2024-05-10", &daily, hourlies)

	require.Len(t, verdicts, 2)
	massV := verdicts[0]
	assert.Equal(t, 2, massV.HourlyCount)
	require.NotNil(t, massV.SumHourly)
	assert.InDelta(t, 300.1, *massV.SumHourly, 1e-9)
	assert.Equal(t, domain.VerdictPass, massV.Verdict)
}

func TestReconcileReplacesVerdictsAndCoverage(t *testing.T) {
	daily := factOf(domain.ReportDaily, "corrected_mass_total_t", 2400)
	facts := &fakeFacts{
		daily:    map[string]*persistence.ProductionFact{"13FT0367|2024-05-10": &daily},
		hourlies: map[string][]persistence.ProductionFact{},
	}
	for i := 0; i < 24; i++ {
		facts.hourlies["13FT0367|2024-05-10"] = append(
			facts.hourlies["13FT0367|2024-05-10"],
			factOf(domain.ReportHourly, "corrected_mass_total_t", 100),
		)
	}
	verdicts := &fakeVerdicts{}
	r := newReconciler(facts, verdicts)

	out, err := r.Reconcile(context.Background(), "13FT0367", "2024-05-10")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.VerdictPass, out[0].Verdict)

	stored := verdicts.replaced["13FT0367|2024-05-10"]
	require.Len(t, stored, 1)
	require.Len(t, verdicts.coverage, 1)
	cov := verdicts.coverage[0]
	assert.Equal(t, domain.CoverageComplete, cov.Status)
	assert.Equal(t, 24, cov.FoundHourly)
	assert.True(t, cov.HasDaily)
	assert.Equal(t, 100.0, cov.CompletenessPct)
}

func TestRunAggregatesAcrossPairs(t *testing.T) {
	dailyA := factOf(domain.ReportDaily, "corrected_mass_total_t", 200)
	facts := &fakeFacts{
		touched: []persistence.AssetDate{
			{AssetTag: "A", BusinessDate: "2024-05-10"},
			{AssetTag: "B", BusinessDate: "2024-05-10"},
		},
		daily: map[string]*persistence.ProductionFact{
			"A|2024-05-10": &dailyA,
		},
		hourlies: map[string][]persistence.ProductionFact{
			"A|2024-05-10": {
				factOf(domain.ReportHourly, "corrected_mass_total_t", 100),
				factOf(domain.ReportHourly, "corrected_mass_total_t", 100),
			},
			"B|2024-05-10": {
				factOf(domain.ReportHourly, "corrected_mass_total_t", 55),
			},
		},
	}
	verdicts := &fakeVerdicts{}
	r := newReconciler(facts, verdicts)

	summary, err := r.Run(context.Background(), persistence.DateRange{From: "2024-05-10", To: "2024-05-10"})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Pairs)
	assert.Equal(t, 2, summary.Verdicts)
	assert.Equal(t, 1, summary.ByVerdict[string(domain.VerdictPass)])
	assert.Equal(t, 1, summary.ByVerdict[string(domain.VerdictMissingDaily)])
}

func TestCoverageStates(t *testing.T) {
	cases := []struct {
		name     string
		hasDaily bool
		found    int
		wantPct  float64
		want     string
	}{
		{name: "full day", hasDaily: true, found: 24, wantPct: 100, want: domain.CoverageComplete},
		{name: "half day", hasDaily: true, found: 12, wantPct: 50, want: domain.CoverageIncomplete},
		{name: "daily only", hasDaily: true, found: 0, wantPct: 0, want: domain.CoverageIncomplete},
		{name: "hourly only", hasDaily: false, found: 24, wantPct: 100, want: domain.CoverageIncomplete},
		{name: "nothing", hasDaily: false, found: 0, wantPct: 0, want: domain.CoverageNoData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := coverage("13FT0367", "2024-05-10", tc.hasDaily, tc.found)
			assert.Equal(t, tc.want, c.Status)
			assert.Equal(t, tc.wantPct, c.CompletenessPct)
			assert.Equal(t, domain.ExpectedHourlyReports, c.ExpectedHourly)
		})
	}
}

func factOf(rt domain.ReportType, metric string, v float64) persistence.ProductionFact {
	return persistence.ProductionFact{
		AssetTag:     "13FT0367",
		ReportType:   rt,
		BusinessDate: "2024-05-10",
		Values:       map[string]*float64{metric: parse.Ptr(v)},
	}
}

type fakeFacts struct {
	persistence.FactsRepo
	daily    map[string]*persistence.ProductionFact
	hourlies map[string][]persistence.ProductionFact
	touched  []persistence.AssetDate
}

func (f *fakeFacts) DailyFact(_ context.Context, assetTag, businessDate string) (*persistence.ProductionFact, error) {
	return f.daily[assetTag+"|"+businessDate], nil
}

func (f *fakeFacts) HourlyFacts(_ context.Context, assetTag, businessDate string) ([]persistence.ProductionFact, error) {
	return f.hourlies[assetTag+"|"+businessDate], nil
}

func (f *fakeFacts) TouchedAssetDates(context.Context, persistence.DateRange) ([]persistence.AssetDate, error) {
	return f.touched, nil
}

type fakeVerdicts struct {
	persistence.VerdictsRepo
	mu       sync.Mutex
	replaced map[string][]persistence.ReconciliationVerdict
	coverage []persistence.Completeness
}

func (f *fakeVerdicts) ReplaceForAssetDate(_ context.Context, assetTag, businessDate string, verdicts []persistence.ReconciliationVerdict) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaced == nil {
		f.replaced = map[string][]persistence.ReconciliationVerdict{}
	}
	f.replaced[assetTag+"|"+businessDate] = verdicts
	return nil
}

func (f *fakeVerdicts) UpsertCompleteness(_ context.Context, c persistence.Completeness) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coverage = append(f.coverage, c)
	return nil
}
