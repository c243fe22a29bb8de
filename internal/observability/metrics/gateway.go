package metrics

import "github.com/prometheus/client_golang/prometheus"

// GatewayMetrics exposes counters/histograms for payment gateway calls.
type GatewayMetrics struct {
	callsTotal   *prometheus.CounterVec
	callLatency  *prometheus.HistogramVec
	retriesTotal *prometheus.CounterVec
}

func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lessons",
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Total outbound payment gateway calls",
		}, []string{"operation", "outcome"}),
		callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lessons",
			Subsystem: "gateway",
			Name:      "call_latency_seconds",
			Help:      "Latency of payment gateway calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lessons",
			Subsystem: "gateway",
			Name:      "read_retries_total",
			Help:      "Retries performed on idempotent gateway reads",
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.callsTotal, m.callLatency, m.retriesTotal)
	return m
}

func (m *GatewayMetrics) ObserveCall(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(operation, outcome).Inc()
	m.callLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *GatewayMetrics) ObserveRetry(operation string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(operation).Inc()
}
