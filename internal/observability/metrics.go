package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "drought_monitor"

// Metrics holds the Prometheus counters, histograms, and gauges for drought runs.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec // labels: outcome={success,failed,nothing_to_do,not_ready}
	RunDuration     prometheus.Histogram
	PipelineRunning prometheus.Gauge
	LastSuccess     prometheus.Gauge

	// Per-slot index computation.
	SlotsTotal *prometheus.CounterVec // labels: index, outcome={computed,skipped,failed}

	// Availability decisions.
	Decisions      *prometheus.CounterVec // labels: source, state
	StaleOverrides prometheus.Counter

	// Alert output.
	AlertLevels     *prometheus.GaugeVec // labels: level
	AlertsPublished prometheus.Counter
	PublishErrors   prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Processing runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete processing run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		SlotsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_total",
			Help:      "Index slots by index and outcome.",
		}, []string{"index", "outcome"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_decisions_total",
			Help:      "Availability decisions by source and state.",
		}, []string{"source", "state"}),
		StaleOverrides: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_overrides_total",
			Help:      "Runs that proceeded on incomplete data after the wait threshold.",
		}),
		AlertLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_subareas",
			Help:      "Sub-areas per alert level for the last processed month.",
		}, []string{"level"}),
		AlertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_published_total",
			Help:      "Alert records written to the Kafka topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed attempts to publish alert records.",
		}),
	}
}

// NewMetrics creates and registers all run metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.PipelineRunning,
		m.LastSuccess,
		m.SlotsTotal,
		m.Decisions,
		m.StaleOverrides,
		m.AlertLevels,
		m.AlertsPublished,
		m.PublishErrors,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
