// Package observability holds the Prometheus instrumentation for the
// monitoring pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments monitoring cycles, alert decisions and notification
// deliveries.
type Metrics struct {
	CyclesTotal      prometheus.Counter
	CycleDuration    prometheus.Histogram
	EvaluationsTotal *prometheus.CounterVec
	AlertsTotal      *prometheus.CounterVec
	DeliveriesTotal  *prometheus.CounterVec
}

// NewMetrics registers the floodwatch metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "cycles_total",
			Help:      "Completed monitoring cycles.",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "floodwatch",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one monitoring cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		EvaluationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "evaluations_total",
			Help:      "District evaluations by outcome.",
		}, []string{"district", "outcome"}),
		AlertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "alerts_total",
			Help:      "Alerts recorded by level.",
		}, []string{"alert_level"}),
		DeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodwatch",
			Name:      "delivery_attempts_total",
			Help:      "Notification delivery attempts by channel and result.",
		}, []string{"channel", "result"}),
	}
}

// NewMetricsForTesting returns metrics on a private registry.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
