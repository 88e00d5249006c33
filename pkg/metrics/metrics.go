// Package metrics exposes Prometheus collectors for delivery operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DeliveryMetrics groups the collectors for the delivery core.
type DeliveryMetrics struct {
	sendsTotal      *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
	duplicatesTotal *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	breakerState    *prometheus.GaugeVec
}

// New creates and registers the delivery collectors on reg. Pass
// prometheus.DefaultRegisterer to use the process-wide registry.
func New(reg prometheus.Registerer) *DeliveryMetrics {
	m := &DeliveryMetrics{
		sendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deliverycore",
			Name:      "sends_total",
			Help:      "Total send operations by provider and outcome.",
		}, []string{"provider", "status"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deliverycore",
			Name:      "retries_total",
			Help:      "Total queue-level delivery retries by provider.",
		}, []string{"provider"}),
		duplicatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deliverycore",
			Name:      "duplicates_suppressed_total",
			Help:      "Sends suppressed by duplicate detection.",
		}, []string{"provider"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "deliverycore",
			Name:      "queue_depth",
			Help:      "Number of messages pending in the delivery queue.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "deliverycore",
			Name:      "breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
		}, []string{"name"}),
	}
	if reg != nil {
		reg.MustRegister(m.sendsTotal, m.retriesTotal, m.duplicatesTotal, m.queueDepth, m.breakerState)
	}
	return m
}

// ObserveSend records the outcome of one send operation.
func (m *DeliveryMetrics) ObserveSend(provider, status string) {
	m.sendsTotal.WithLabelValues(provider, status).Inc()
}

// IncRetry records one queue-level retry.
func (m *DeliveryMetrics) IncRetry(provider string) {
	m.retriesTotal.WithLabelValues(provider).Inc()
}

// IncDuplicate records one suppressed duplicate send.
func (m *DeliveryMetrics) IncDuplicate(provider string) {
	m.duplicatesTotal.WithLabelValues(provider).Inc()
}

// SetQueueDepth updates the pending queue depth.
func (m *DeliveryMetrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// SetBreakerState updates the breaker state gauge for a named target.
func (m *DeliveryMetrics) SetBreakerState(name string, state int) {
	m.breakerState.WithLabelValues(name).Set(float64(state))
}
