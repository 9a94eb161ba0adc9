// Package metrics exports the engine's signals as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/elonfeng/buzzradar/pkg/buzz"
)

const namespace = "buzzradar"

// Metrics implements buzz.Metrics on Prometheus collectors.
type Metrics struct {
	CacheLookups           *prometheus.CounterVec
	ClassificationFailures prometheus.Counter
	MissingInputs          *prometheus.CounterVec
	InvariantViolations    *prometheus.CounterVec
	BatchItems             *prometheus.CounterVec
	ComputeDuration        prometheus.Histogram
	AlertsSent             *prometheus.CounterVec
	LastRefresh            prometheus.Gauge
}

var _ buzz.Metrics = (*Metrics)(nil)

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by category and result.",
		}, []string{"category", "result"}),
		ClassificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sentiment",
			Name:      "classification_failures_total",
			Help:      "Comments the classifier failed on and that were counted as neutral.",
		}),
		MissingInputs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "score",
			Name:      "missing_data_total",
			Help:      "Sub-scores computed as 0 because an input was missing, by component.",
		}, []string{"component"}),
		InvariantViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "score",
			Name:      "invariant_violations_total",
			Help:      "Records rejected for exceeding a cap, by field.",
		}, []string{"field"}),
		BatchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "items_total",
			Help:      "Batch items by outcome.",
		}, []string{"outcome"}),
		ComputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "score",
			Name:      "compute_duration_seconds",
			Help:      "Time to ingest and score one video.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "sent_total",
			Help:      "Topic-of-the-day notifications by notifier and result.",
		}, []string{"notifier", "result"}),
		LastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time of the last completed refresh cycle.",
		}),
	}

	reg.MustRegister(
		m.CacheLookups,
		m.ClassificationFailures,
		m.MissingInputs,
		m.InvariantViolations,
		m.BatchItems,
		m.ComputeDuration,
		m.AlertsSent,
		m.LastRefresh,
	)
	return m
}

func (m *Metrics) CacheLookup(category string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(category, result).Inc()
}

func (m *Metrics) ClassificationFailure() {
	m.ClassificationFailures.Inc()
}

func (m *Metrics) MissingData(component string) {
	m.MissingInputs.WithLabelValues(component).Inc()
}

func (m *Metrics) InvariantViolation(field string) {
	m.InvariantViolations.WithLabelValues(field).Inc()
}

func (m *Metrics) BatchItem(outcome string) {
	m.BatchItems.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCompute(d time.Duration) {
	m.ComputeDuration.Observe(d.Seconds())
}

// AlertSent counts one notifier delivery.
func (m *Metrics) AlertSent(notifier string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.AlertsSent.WithLabelValues(notifier, result).Inc()
}

// RefreshCompleted records the end of a refresh cycle.
func (m *Metrics) RefreshCompleted(at time.Time) {
	m.LastRefresh.Set(float64(at.Unix()))
}
