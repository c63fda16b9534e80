package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/domain"
	apperrors "github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/platform/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	publishSource  = "http"
	maxPublishBody = "64K"
)

func (s *Server) registerAPIRoutes() {
	api := s.echo.Group("/api", middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{s.config.AppURL},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
	}))
	if s.config.PublishAPIKey != "" {
		api.Use(apiKeyAuth(s.config.PublishAPIKey))
	}

	api.GET("/stats", s.handleStats)

	burst := int(math.Max(1, math.Ceil(s.config.PublishRateLimit)))
	publish := api.Group("/publish", newRateLimiter(s.config.PublishRateLimit, burst), middleware.BodyLimit(maxPublishBody))
	publish.POST("/users/:userId", s.handlePublishToUser)
	publish.POST("/roles/:role", s.handlePublishToRole)
	publish.POST("/all", s.handlePublishToAll)
}

// handleStats collapses concurrent dashboard polls into one registry round trip.
func (s *Server) handleStats(c echo.Context) error {
	stats, _, _ := s.stats.Do("stats", func() (any, error) {
		return s.registry.Stats(), nil
	})
	if err := c.JSON(http.StatusOK, stats); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handlePublishToUser(c echo.Context) error {
	result, err := s.publish(c, domain.ScopeUser, c.Param("userId"))
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, map[string]bool{"delivered": result.Delivered}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handlePublishToRole(c echo.Context) error {
	return s.publishCount(c, domain.ScopeRole, c.Param("role"))
}

func (s *Server) handlePublishToAll(c echo.Context) error {
	return s.publishCount(c, domain.ScopeAll, "")
}

func (s *Server) publishCount(c echo.Context, scope domain.PublishScope, target string) error {
	result, err := s.publish(c, scope, target)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, map[string]int{"delivered": result.Count}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) publish(c echo.Context, scope domain.PublishScope, target string) (domain.PublishResult, error) {
	var msg domain.Message
	if err := json.NewDecoder(c.Request().Body).Decode(&msg); err != nil {
		s.recordInvalid()
		return domain.PublishResult{}, apperrors.ValidationError("request body must be a JSON object").WithField("scope", string(scope))
	}

	req := domain.PublishRequest{Scope: scope, Target: target, Message: msg}
	if err := req.Validate(); err != nil {
		s.recordInvalid()
		return domain.PublishResult{}, apperrors.ValidationError(err.Error()).WithField("scope", string(scope))
	}

	if s.publishMetrics != nil {
		s.publishMetrics.Requests.WithLabelValues(publishSource, string(scope)).Inc()
	}

	result, err := s.registry.Dispatch(req)
	if errors.Is(err, domain.ErrRegistryStopped) {
		return domain.PublishResult{}, apperrors.UnavailableError("server shutting down", err)
	}
	if err != nil {
		return domain.PublishResult{}, apperrors.InternalError("failed to publish message", err).WithField("scope", string(scope))
	}

	slog.DebugContext(c.Request().Context(), "Published message",
		"scope", scope, "target", target, "type", msg.Type, "delivered", result.Count)
	return result, nil
}

func (s *Server) recordInvalid() {
	if s.publishMetrics != nil {
		s.publishMetrics.InvalidCommands.WithLabelValues(publishSource).Inc()
	}
}
