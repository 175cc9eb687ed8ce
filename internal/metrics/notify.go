package metrics

import "github.com/prometheus/client_golang/prometheus"

// NotificationMetrics tracks the notification registry. It satisfies
// notify.Observer.
type NotificationMetrics struct {
	ActiveChannels prometheus.Gauge
	Broadcasts     prometheus.Counter
	Deliveries     prometheus.Counter
	Evictions      prometheus.Counter
}

// NewNotificationMetrics creates and registers registry metrics on reg.
func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	m := &NotificationMetrics{
		ActiveChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "active_channels",
			Help:      "Number of registered notification channels.",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "broadcasts_total",
			Help:      "Total number of broadcasts fanned out locally.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "deliveries_total",
			Help:      "Total number of messages accepted by channels.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "evictions_total",
			Help:      "Total number of channels evicted after a failed send.",
		}),
	}

	reg.MustRegister(m.ActiveChannels, m.Broadcasts, m.Deliveries, m.Evictions)
	return m
}

func (m *NotificationMetrics) ChannelRegistered() { m.ActiveChannels.Inc() }

func (m *NotificationMetrics) ChannelRemoved() { m.ActiveChannels.Dec() }

func (m *NotificationMetrics) BroadcastDelivered(delivered, failed int) {
	m.Broadcasts.Inc()
	m.Deliveries.Add(float64(delivered))
	m.Evictions.Add(float64(failed))
}
