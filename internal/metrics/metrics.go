package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for bulk operations, derivations and uploads.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	bulkOperations *prometheus.CounterVec
	bulkItems      *prometheus.CounterVec
	derivations    *prometheus.CounterVec
	deriveDuration prometheus.Histogram
	uploadFailures *prometheus.CounterVec
}

// New registers the collectors with reg. Registration errors panic, mirroring
// promauto, so duplicate wiring surfaces at startup.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		bulkOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medialib",
			Subsystem: "bulk",
			Name:      "operations_total",
			Help:      "Bulk operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		bulkItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medialib",
			Subsystem: "bulk",
			Name:      "items_total",
			Help:      "Per-item results of bulk operations.",
		}, []string{"op", "result"}),
		derivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medialib",
			Subsystem: "editor",
			Name:      "derivations_total",
			Help:      "Image derivations by outcome.",
		}, []string{"outcome"}),
		deriveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "medialib",
			Subsystem: "editor",
			Name:      "derive_duration_seconds",
			Help:      "Time spent rendering a derived image.",
			Buckets:   prometheus.DefBuckets,
		}),
		uploadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medialib",
			Subsystem: "upload",
			Name:      "phase_failures_total",
			Help:      "Upload failures by phase (reserve, transfer).",
		}, []string{"phase"}),
	}
	reg.MustRegister(m.bulkOperations, m.bulkItems, m.derivations, m.deriveDuration, m.uploadFailures)
	return m
}

func (m *Metrics) ObserveBulk(op, outcome string, succeeded, failed int) {
	if m == nil {
		return
	}
	m.bulkOperations.WithLabelValues(op, outcome).Inc()
	m.bulkItems.WithLabelValues(op, "succeeded").Add(float64(succeeded))
	m.bulkItems.WithLabelValues(op, "failed").Add(float64(failed))
}

func (m *Metrics) ObserveDerivation(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.derivations.WithLabelValues(outcome).Inc()
	m.deriveDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) IncUploadFailure(phase string) {
	if m == nil {
		return
	}
	m.uploadFailures.WithLabelValues(phase).Inc()
}
