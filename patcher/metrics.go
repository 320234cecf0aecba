package patcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the patcher's prometheus collectors.
type Metrics struct {
	patchDuration prometheus.Histogram
	patchErrors   *prometheus.CounterVec
}

// NewMetrics registers the patcher's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		patchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "patcher_duration_seconds",
			Help:    "Time taken to apply a state diff.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),
		patchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "patcher_errors_total",
			Help: "Rejected state diffs by reason.",
		}, []string{"reason"}),
	}
}
