package metrics

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var httpLabels = []string{"method", "route", "status_code"}

// HTTPMetrics tracks short-lived REST requests. Upgraded WebSocket
// connections are accounted for by RegistryMetrics instead.
type HTTPMetrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	InFlightGauge   prometheus.Gauge
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of REST requests by route.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, httpLabels),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "REST requests served, by route and status code.",
		}, httpLabels),
		InFlightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "REST requests currently being served.",
		}),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.InFlightGauge)
	return m
}

// Middleware records every request the skipper lets through. Requests that
// turn into long-lived sockets must be skipped or they hold the in-flight
// gauge for their whole lifetime.
func (m *HTTPMetrics) Middleware(skipper middleware.Skipper) echo.MiddlewareFunc {
	if skipper == nil {
		skipper = middleware.DefaultSkipper
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper(c) {
				return next(c)
			}

			m.InFlightGauge.Inc()
			timer := prometheus.NewTimer(prometheus.ObserverFunc(func(seconds float64) {
				m.observe(c, seconds)
			}))
			defer func() {
				timer.ObserveDuration()
				m.InFlightGauge.Dec()
			}()

			return next(c)
		}
	}
}

func (m *HTTPMetrics) observe(c echo.Context, seconds float64) {
	labels := prometheus.Labels{
		"method":      c.Request().Method,
		"route":       c.Path(),
		"status_code": strconv.Itoa(c.Response().Status),
	}
	m.RequestDuration.With(labels).Observe(seconds)
	m.RequestsTotal.With(labels).Inc()
}
