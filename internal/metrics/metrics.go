package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// MetricsRegistry holds all Prometheus metrics for FiscalFlow
type MetricsRegistry struct {
	registry *prometheus.Registry

	// Parse pipeline metrics
	FilesParsed   *prometheus.CounterVec
	ParseDuration *prometheus.HistogramVec
	RecordsStaged *prometheus.CounterVec
	ActiveWorkers prometheus.Gauge

	// Batch metrics
	BatchesTotal  *prometheus.CounterVec
	BatchDuration prometheus.Histogram

	// Analysis metrics
	ReconcileVerdicts    *prometheus.CounterVec
	CrossClassifications *prometheus.CounterVec
	Escalations          prometheus.Counter
}

// NewMetricsRegistry creates a registry with all FiscalFlow metrics. Metrics
// live on a dedicated Prometheus registry so repeated construction in tests
// never collides with the global one.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		FilesParsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiscalflow_files_parsed_total",
				Help: "Total number of files parsed by shape and outcome",
			},
			[]string{"shape", "status"},
		),

		ParseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fiscalflow_parse_duration_seconds",
				Help:    "Duration of a single file parse in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"shape"},
		),

		RecordsStaged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiscalflow_records_staged_total",
				Help: "Total number of canonical records staged by shape",
			},
			[]string{"shape"},
		),

		ActiveWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fiscalflow_active_workers",
				Help: "Number of parse workers currently busy",
			},
		),

		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiscalflow_batches_total",
				Help: "Total number of ingestion batches by terminal status",
			},
			[]string{"status"},
		),

		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fiscalflow_batch_duration_seconds",
				Help:    "End-to-end duration of one ingestion batch in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
		),

		ReconcileVerdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiscalflow_reconcile_verdicts_total",
				Help: "Total reconciliation verdicts by outcome",
			},
			[]string{"verdict"},
		),

		CrossClassifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiscalflow_cross_classifications_total",
				Help: "Total cross-validation classifications by outcome",
			},
			[]string{"classification"},
		),

		Escalations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fiscalflow_escalations_total",
				Help: "Total inconsistency streaks escalated to non-conformances",
			},
		),
	}

	m.registry.MustRegister(
		m.FilesParsed,
		m.ParseDuration,
		m.RecordsStaged,
		m.ActiveWorkers,
		m.BatchesTotal,
		m.BatchDuration,
		m.ReconcileVerdicts,
		m.CrossClassifications,
		m.Escalations,
	)

	return m
}

// ParseTimer tracks execution time for one file parse
type ParseTimer struct {
	metrics *MetricsRegistry
	shape   string
	start   time.Time
}

// StartParseTimer begins timing a file parse
func (m *MetricsRegistry) StartParseTimer(shape string) *ParseTimer {
	m.ActiveWorkers.Inc()
	return &ParseTimer{
		metrics: m,
		shape:   shape,
		start:   time.Now(),
	}
}

// Stop completes the parse timing and records the outcome
func (t *ParseTimer) Stop(status string) {
	duration := time.Since(t.start)
	t.metrics.ActiveWorkers.Dec()
	t.metrics.ParseDuration.WithLabelValues(t.shape).Observe(duration.Seconds())
	t.metrics.FilesParsed.WithLabelValues(t.shape, status).Inc()

	log.Debug().
		Str("shape", t.shape).
		Str("status", status).
		Dur("duration", duration).
		Msg("File parse completed")
}

// RecordStaged counts canonical records produced from one file
func (m *MetricsRegistry) RecordStaged(shape string, count int) {
	m.RecordsStaged.WithLabelValues(shape).Add(float64(count))
}

// RecordBatch records a finished batch with its terminal status
func (m *MetricsRegistry) RecordBatch(status string, duration time.Duration) {
	m.BatchesTotal.WithLabelValues(status).Inc()
	m.BatchDuration.Observe(duration.Seconds())
}

// RecordVerdict counts one reconciliation verdict
func (m *MetricsRegistry) RecordVerdict(verdict string) {
	m.ReconcileVerdicts.WithLabelValues(verdict).Inc()
}

// RecordClassification counts one cross-validation classification
func (m *MetricsRegistry) RecordClassification(classification string) {
	m.CrossClassifications.WithLabelValues(classification).Inc()
}

// RecordEscalation counts one streak escalation
func (m *MetricsRegistry) RecordEscalation() {
	m.Escalations.Inc()
}

// Handler returns an HTTP handler serving this registry
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Snapshot flattens current counter and gauge values into a map keyed by
// metric name plus label values. The batch summary artifact embeds it.
func (m *MetricsRegistry) Snapshot() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	out := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			name := family.GetName() + labelSuffix(metric)
			switch family.GetType() {
			case io_prometheus_client.MetricType_COUNTER:
				out[name] = metric.GetCounter().GetValue()
			case io_prometheus_client.MetricType_GAUGE:
				out[name] = metric.GetGauge().GetValue()
			}
		}
	}

	return out, nil
}

func labelSuffix(metric *io_prometheus_client.Metric) string {
	labels := metric.GetLabel()
	if len(labels) == 0 {
		return ""
	}

	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		parts = append(parts, label.GetName()+"="+label.GetValue())
	}
	sort.Strings(parts)

	return "{" + strings.Join(parts, ",") + "}"
}
