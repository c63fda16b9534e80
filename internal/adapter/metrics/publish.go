package metrics

import "github.com/prometheus/client_golang/prometheus"

// PublishMetrics holds Prometheus metrics for upstream publish commands.
type PublishMetrics struct {
	Requests         *prometheus.CounterVec
	InvalidCommands  *prometheus.CounterVec
	BreakerState     prometheus.Gauge
	BreakerChanges   *prometheus.CounterVec
	SubscriberActive prometheus.Gauge
}

// NewPublishMetrics creates and registers publish pipeline metrics on the given registry.
func NewPublishMetrics(reg prometheus.Registerer) *PublishMetrics {
	m := &PublishMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "requests_total",
			Help:      "Total number of publish requests, by source and scope.",
		}, []string{"source", "scope"}),
		InvalidCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "invalid_commands_total",
			Help:      "Total number of rejected publish commands, by source.",
		}, []string{"source"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "circuit_breaker_state",
			Help:      "Current Redis circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		BreakerChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Redis circuit breaker transitions, by new state.",
		}, []string{"state"}),
		SubscriberActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "subscriber_active",
			Help:      "Whether the Redis publish subscription is active (1) or disconnected (0).",
		}),
	}

	reg.MustRegister(m.Requests, m.InvalidCommands, m.BreakerState, m.BreakerChanges, m.SubscriberActive)
	return m
}
