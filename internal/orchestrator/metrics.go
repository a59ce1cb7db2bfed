package orchestrator

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the event loop.
type Metrics struct {
	EventsTotal   *prometheus.CounterVec
	EventDuration *prometheus.HistogramVec
	ChartsTotal   *prometheus.CounterVec
}

// NewMetrics registers and returns event-loop metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_events_total",
			Help: "Events processed by the loop, by type and outcome.",
		}, []string{"type", "outcome"}),
		EventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "herald_event_duration_seconds",
			Help:    "Duration of event handlers in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		}, []string{"type"}),
		ChartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_charts_total",
			Help: "Chart generation attempts, by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.EventsTotal, m.EventDuration, m.ChartsTotal)
	return m
}
