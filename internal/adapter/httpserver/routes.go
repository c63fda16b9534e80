package httpserver

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// webSocketPaths are accepted in addition to /ws/*; the path is recorded as
// the connection's endpoint.
var webSocketPaths = []string{"/ws", "/ws/*", "/notifications", "/dashboard"}

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.httpMetrics.Middleware(skipHTTPMetrics))
	s.echo.Use(ErrorHandlingMiddleware())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         63072000, // 2 years; only sent over HTTPS
		ReferrerPolicy:     "no-referrer",
	}))

	wsHandler := echo.WrapHandler(s.websocketHandler)
	for _, path := range webSocketPaths {
		s.echo.GET(path, wsHandler)
	}

	s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	s.registerHealthRoutes()
	s.registerAPIRoutes()
}

func isWebSocketRoute(route string) bool {
	return slices.Contains(webSocketPaths, route)
}

// skipHTTPMetrics leaves health checks, scrapes and socket upgrades out of the REST metrics.
func skipHTTPMetrics(c echo.Context) bool {
	route := c.Path()
	return route == "/metrics" || strings.HasPrefix(route, "/health/") || isWebSocketRoute(route)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Path(), "/health/") || c.Path() == "/metrics"
		},
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
