// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors for cutover and failover activity.
type Metrics struct {
	Cutovers     *prometheus.CounterVec
	FailoverRTO  prometheus.Histogram
	HealthScore  *prometheus.GaugeVec
	ProxyReloads prometheus.Counter
}

// New creates and registers the collectors on the given registry. A nil
// registry uses a private one, which keeps tests independent.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		Cutovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchyard_cutovers_total",
			Help: "Cutover operations by outcome (committed, degraded, rolled_back, reversed).",
		}, []string{"outcome"}),
		FailoverRTO: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "switchyard_failover_rto_seconds",
			Help:    "Wall-clock recovery time of failover operations.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		HealthScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "switchyard_health_score",
			Help: "Last aggregate health score per unit and environment.",
		}, []string{"unit", "environment"}),
		ProxyReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "switchyard_proxy_reloads_total",
			Help: "Reverse-proxy configuration reloads applied.",
		}),
	}

	reg.MustRegister(m.Cutovers, m.FailoverRTO, m.HealthScore, m.ProxyReloads)
	return m
}
