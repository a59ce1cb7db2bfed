package ingest

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for webhook intake.
type Metrics struct {
	BatchesTotal *prometheus.CounterVec
	AlertsTotal  *prometheus.CounterVec
}

// NewMetrics registers and returns intake metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_webhook_batches_total",
			Help: "Webhook batches received, by outcome.",
		}, []string{"outcome"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_webhook_alerts_total",
			Help: "Alerts processed from webhook batches, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.BatchesTotal, m.AlertsTotal)
	return m
}
