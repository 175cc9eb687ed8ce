package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics tracks cross-instance fan-out through Redis.
type RelayMetrics struct {
	Published           prometheus.Counter
	Received            prometheus.Counter
	Fallbacks           prometheus.Counter
	CircuitBreakerState prometheus.Gauge
}

// NewRelayMetrics creates and registers relay metrics on reg.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "published_total",
			Help:      "Notifications published to Redis.",
		}),
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "received_total",
			Help:      "Notifications received from Redis and fanned out locally.",
		}),
		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "local_fallbacks_total",
			Help:      "Notifications delivered locally because Redis was unavailable.",
		}),
		CircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
	}

	reg.MustRegister(m.Published, m.Received, m.Fallbacks, m.CircuitBreakerState)
	return m
}
