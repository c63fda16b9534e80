package metrics

import "github.com/prometheus/client_golang/prometheus"

// RegistryMetrics holds Prometheus metrics for the connection registry.
type RegistryMetrics struct {
	ActiveUsers         prometheus.Gauge
	ActiveConnections   prometheus.Gauge
	HandshakeRejections prometheus.Counter
	MessagesDelivered   *prometheus.CounterVec
	MalformedMessages   prometheus.Counter
	SlowClientsEvicted  prometheus.Counter
	IdleDisconnects     prometheus.Counter
	PingFailures        prometheus.Counter
	SendDuration        prometheus.Histogram
	Panics              prometheus.Counter
}

// NewRegistryMetrics creates and registers registry metrics on the given registry.
func NewRegistryMetrics(reg prometheus.Registerer) *RegistryMetrics {
	m := &RegistryMetrics{
		ActiveUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "active_users",
			Help:      "Number of distinct users with at least one open connection.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "active_connections",
			Help:      "Number of open WebSocket connections.",
		}),
		HandshakeRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "handshake_rejections_total",
			Help:      "Total number of connections rejected for missing userId or token.",
		}),
		MessagesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "messages_delivered_total",
			Help:      "Total number of messages handed to connections, by publish scope.",
		}, []string{"scope"}),
		MalformedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "malformed_messages_total",
			Help:      "Total number of inbound payloads that could not be parsed.",
		}),
		SlowClientsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "slow_clients_evicted_total",
			Help:      "Total number of connections evicted because their send buffer was full.",
		}),
		IdleDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "idle_disconnects_total",
			Help:      "Total number of connections closed after the idle timeout.",
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "ping_failures_total",
			Help:      "Total number of keepalive pings that could not be written.",
		}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "message_send_duration_seconds",
			Help:      "Duration of a single WebSocket frame write in seconds.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .5},
		}),
		Panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "panics_total",
			Help:      "Total number of recovered registry panics.",
		}),
	}

	reg.MustRegister(
		m.ActiveUsers, m.ActiveConnections, m.HandshakeRejections, m.MessagesDelivered,
		m.MalformedMessages, m.SlowClientsEvicted, m.IdleDisconnects, m.PingFailures,
		m.SendDuration, m.Panics,
	)
	return m
}
