package httpserver

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/adapter/metrics"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/domain"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/platform/config"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeRegistry struct {
	mu       sync.Mutex
	requests []domain.PublishRequest
	result   domain.PublishResult
	err      error
	stats    domain.Stats
	pingErr  error
}

func (f *fakeRegistry) Dispatch(req domain.PublishRequest) (domain.PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.result, f.err
}

func (f *fakeRegistry) Stats() domain.Stats {
	return f.stats
}

func (f *fakeRegistry) Ping() error {
	return f.pingErr
}

func (f *fakeRegistry) dispatched() []domain.PublishRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PublishRequest(nil), f.requests...)
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:           "development",
		Port:             "8000",
		AppURL:           "http://localhost:3000",
		PublishRateLimit: 1000,
		ShutdownTimeout:  time.Second,
	}
}

type testServerOpts struct {
	cfg          *config.Config
	registry     liveRegistry
	ws           http.Handler
	promRegistry *prometheus.Registry
	healthChecks []HealthCheck
	clock        clockwork.Clock
}

func newTestServer(t *testing.T, opts testServerOpts) *Server {
	t.Helper()
	if opts.cfg == nil {
		opts.cfg = testConfig()
	}
	if opts.registry == nil {
		opts.registry = &fakeRegistry{}
	}
	if opts.ws == nil {
		opts.ws = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte(r.URL.Path))
		})
	}
	if opts.clock == nil {
		opts.clock = clockwork.NewFakeClock()
	}

	reg := opts.promRegistry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return NewServer(opts.cfg, opts.clock, opts.registry, opts.ws, reg, metrics.NewPublishMetrics(reg), opts.healthChecks)
}

func healthOK(_ context.Context) error { return nil }
