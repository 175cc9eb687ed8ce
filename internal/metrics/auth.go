package metrics

import "github.com/prometheus/client_golang/prometheus"

// Login and registration outcomes used as label values.
const (
	ResultSuccess   = "success"
	ResultRejected  = "rejected"
	ResultDuplicate = "duplicate"
	ResultError     = "error"
)

// AuthMetrics counts credential endpoint outcomes.
type AuthMetrics struct {
	LoginAttempts     *prometheus.CounterVec
	Registrations     *prometheus.CounterVec
	HandshakeRejected *prometheus.CounterVec
}

// NewAuthMetrics creates and registers auth metrics on reg.
func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	m := &AuthMetrics{
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "registrations_total",
			Help:      "Registration attempts by result.",
		}, []string{"result"}),
		HandshakeRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "handshake_rejected_total",
			Help:      "WebSocket handshakes rejected before upgrade, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.LoginAttempts, m.Registrations, m.HandshakeRejected)
	return m
}
