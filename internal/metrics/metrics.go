// Package metrics exposes the engine's Prometheus collectors: order
// latency, exchange API errors, and live gauges for the operator API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	registry *prometheus.Registry

	OrderLatency    *prometheus.HistogramVec
	APIRequestCount *prometheus.CounterVec
	APIErrorCount   *prometheus.CounterVec
	TargetsTotal    *prometheus.CounterVec
	ActivePositions prometheus.Gauge
	CircuitState    *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OrderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sniper_order_latency_seconds",
			Help:    "Order execution latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"side"}),
		APIRequestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_api_requests_total",
			Help: "Exchange API requests.",
		}, []string{"endpoint", "status"}),
		APIErrorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_api_errors_total",
			Help: "Exchange API errors.",
		}, []string{"endpoint"}),
		TargetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_targets_total",
			Help: "Targets processed by the scheduler, by outcome.",
		}, []string{"outcome"}),
		ActivePositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sniper_active_positions",
			Help: "Currently open positions.",
		}),
		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sniper_circuit_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
	}
	m.registry.MustRegister(
		m.OrderLatency,
		m.APIRequestCount,
		m.APIErrorCount,
		m.TargetsTotal,
		m.ActivePositions,
		m.CircuitState,
	)
	return m
}

// Registry returns the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveAPICall records one exchange call outcome.
func (m *Metrics) ObserveAPICall(endpoint string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		m.APIErrorCount.WithLabelValues(endpoint).Inc()
	}
	m.APIRequestCount.WithLabelValues(endpoint, status).Inc()
}
