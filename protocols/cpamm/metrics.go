package cpamm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the swap engine collectors.
type Metrics struct {
	swapsTotal        *prometheus.CounterVec
	swapFailuresTotal *prometheus.CounterVec
	swapDuration      *prometheus.HistogramVec
	guardChecksTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers the engine collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		swapsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cpamm",
				Name:      "swaps_total",
				Help:      "Swaps committed, by mode and direction.",
			},
			[]string{"mode", "direction"},
		),
		swapFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cpamm",
				Name:      "swap_failures_total",
				Help:      "Rejected swaps, by error code.",
			},
			[]string{"code"},
		),
		swapDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cpamm",
				Name:      "swap_duration_seconds",
				Help:      "Time spent running the swap pipeline.",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
			},
			[]string{"kind"},
		),
		guardChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cpamm",
				Name:      "guard_checks_total",
				Help:      "Single-swap guard evaluations, by result.",
			},
			[]string{"result"},
		),
	}
}
