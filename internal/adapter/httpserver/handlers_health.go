package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/platform/version"
	"github.com/labstack/echo/v4"
)

const (
	startupCheckTimeout   = 2 * time.Second
	readinessCheckTimeout = 5 * time.Second

	registryCheckName = "registry"
)

// HealthCheck is an extra dependency check, e.g. Redis. The registry is
// always checked first.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type livenessResponse struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}

type readinessResponse struct {
	Status      string `json:"status"`
	FailedCheck string `json:"failed_check,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.checkHandler(startupCheckTimeout))
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.checkHandler(readinessCheckTimeout))
	s.echo.GET("/version", s.handleVersion)
}

// handleLiveness only proves the process serves HTTP; a wedged registry is a
// readiness problem.
func (s *Server) handleLiveness(c echo.Context) error {
	resp := livenessResponse{Status: "ok", Uptime: s.clock.Since(s.startTime).Seconds()}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

func (s *Server) checkHandler(timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()

		status, resp := http.StatusOK, readinessResponse{Status: "ready"}
		if name, err := s.firstFailingCheck(ctx); err != nil {
			slog.WarnContext(ctx, "Health check failed", "check", name, "error", err)
			status = http.StatusServiceUnavailable
			resp = readinessResponse{Status: "unhealthy", FailedCheck: name, Error: err.Error()}
		}

		if err := c.JSON(status, resp); err != nil {
			return fmt.Errorf("failed to send JSON response: %w", err)
		}
		return nil
	}
}

func (s *Server) firstFailingCheck(ctx context.Context) (string, error) {
	if err := s.registry.Ping(); err != nil {
		return registryCheckName, err
	}
	for _, hc := range s.healthChecks {
		if err := hc.Check(ctx); err != nil {
			return hc.Name, err
		}
	}
	return "", nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
