package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/adapter/httpserver"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/adapter/metrics"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/adapter/redis"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/adapter/websocket"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/platform/config"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/platform/logging"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/platform/version"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/registry"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config, breaker *redis.CircuitBreakerHook) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL, breaker)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// serve runs the HTTP server and, when configured, the Redis subscriber until
// ctx is cancelled or one of them fails, then shuts the server down.
func serve(ctx context.Context, cfg *config.Config, srv *httpserver.Server, sub *redis.Subscriber) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if sub != nil {
		g.Go(func() error {
			if err := sub.Run(ctx); err != nil {
				return fmt.Errorf("redis subscriber: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "version", version.Get().String(), "env", cfg.AppEnv, "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	promRegistry := metrics.NewRegistry()
	registryMetrics := metrics.NewRegistryMetrics(promRegistry)
	publishMetrics := metrics.NewPublishMetrics(promRegistry)

	reg := registry.New(clock, registryMetrics)

	healthChecks := []httpserver.HealthCheck{}

	var sub *redis.Subscriber
	if cfg.RedisEnabled() {
		breaker := redis.NewCircuitBreakerHook(publishMetrics)
		redisClient := setupRedis(ctx, cfg, breaker)
		defer func() { _ = redisClient.Close() }()

		sub = redis.NewSubscriber(redisClient, cfg.RedisPublishChannel, reg, publishMetrics)
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				if err := breaker.Ready(); err != nil {
					return err
				}
				return sub.Ping(ctx)
			},
		})
	} else {
		slog.Info("REDIS_URL not set, publish commands accepted over HTTP only")
	}

	wsHandler := websocket.NewHandler(
		reg,
		websocket.NewConnectionLimiter(cfg.MaxConnections),
		websocket.NewCheckOrigin(cfg.AppURL, !cfg.IsProduction()),
	)

	srv := httpserver.NewServer(cfg, clock, reg, wsHandler, promRegistry, publishMetrics, healthChecks)

	err := serve(ctx, cfg, srv, sub)
	reg.Stop()
	if err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
