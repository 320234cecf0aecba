package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	eventsPublished *prometheus.CounterVec
	refreshErrors   prometheus.Counter
	subscribers     prometheus.Gauge
	rpcCalls        *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_events_published_total",
			Help: "Events published to state stream subscribers, by type.",
		}, []string{"type"}),
		refreshErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "stream_refresh_errors_total",
			Help: "Snapshots that could not be diffed against the previous one.",
		}),
		subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stream_subscribers",
			Help: "Currently connected state stream subscribers.",
		}),
		rpcCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rpc_calls_total",
			Help: "Quote and swap calls served, by method and result.",
		}, []string{"method", "result"}),
	}
}
