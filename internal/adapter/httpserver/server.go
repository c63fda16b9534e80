package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/adapter/metrics"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/domain"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/platform/config"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

// liveRegistry is what the REST surface needs from the connection registry.
type liveRegistry interface {
	domain.Publisher
	domain.StatsReader
	Ping() error
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	registry         liveRegistry
	stats            singleflight.Group
	websocketHandler http.Handler
	metricsHandler   http.Handler

	httpMetrics    *metrics.HTTPMetrics
	publishMetrics *metrics.PublishMetrics

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, clock clockwork.Clock, registry liveRegistry, websocketHandler http.Handler, promRegistry *prometheus.Registry, publishMetrics *metrics.PublishMetrics, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:             e,
		config:           cfg,
		clock:            clock,
		registry:         registry,
		websocketHandler: websocketHandler,
		metricsHandler:   metrics.Handler(promRegistry),
		httpMetrics:      metrics.NewHTTPMetrics(promRegistry),
		publishMetrics:   publishMetrics,
		healthChecks:     healthChecks,
		startTime:        clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP exposes the router, mainly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
