package differ

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the differ's prometheus collectors.
type Metrics struct {
	diffDuration *prometheus.HistogramVec
	diffErrors   *prometheus.CounterVec
}

// NewMetrics registers the differ's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		diffDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "differ_duration_seconds",
			Help:    "Time taken to diff two state snapshots.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
		}, []string{}),
		diffErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "differ_errors_total",
			Help: "Protocol differ failures by schema.",
		}, []string{"schema"}),
	}
}
