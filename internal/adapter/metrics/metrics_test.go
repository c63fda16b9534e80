package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistration_NoConflicts(t *testing.T) {
	reg := NewRegistry()

	require.NotPanics(t, func() {
		NewRegistryMetrics(reg)
		NewPublishMetrics(reg)
		NewHTTPMetrics(reg)
	})
}

func TestRegistration_DuplicatePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRegistryMetrics(reg)

	assert.Panics(t, func() { NewRegistryMetrics(reg) })
}

func TestRegistryMetrics_Names(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistryMetrics(reg)

	m.ActiveUsers.Set(2)
	m.ActiveConnections.Set(3)
	m.HandshakeRejections.Inc()
	m.MessagesDelivered.WithLabelValues("user").Add(4)
	m.MalformedMessages.Inc()
	m.SlowClientsEvicted.Inc()

	expected := `
# HELP igcfms_registry_active_users Number of distinct users with at least one open connection.
# TYPE igcfms_registry_active_users gauge
igcfms_registry_active_users 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "igcfms_registry_active_users"))

	assert.InDelta(t, 3.0, testutil.ToFloat64(m.ActiveConnections), 0.001)
	assert.InDelta(t, 4.0, testutil.ToFloat64(m.MessagesDelivered.WithLabelValues("user")), 0.001)

	count, err := testutil.GatherAndCount(reg,
		"igcfms_registry_handshake_rejections_total",
		"igcfms_registry_malformed_messages_total",
		"igcfms_registry_slow_clients_evicted_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := NewRegistry()
	m := NewPublishMetrics(reg)
	m.Requests.WithLabelValues("http", "all").Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `igcfms_publish_requests_total{scope="all",source="http"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestHTTPMetrics_RecordsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware(func(c echo.Context) bool { return strings.HasPrefix(c.Path(), "/health/") }))
	e.GET("/api/stats", func(c echo.Context) error { return c.String(http.StatusOK, "{}") })
	e.GET("/health/live", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/stats", "200")), 0.001)
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal), "skipped routes are not recorded")
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.InFlightGauge), 0.001)
}

func TestHTTPMetrics_NilSkipperRecordsEverything(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())

	e := echo.New()
	e.Use(m.Middleware(nil))
	e.POST("/api/publish/all", func(c echo.Context) error { return c.NoContent(http.StatusAccepted) })

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/publish/all", nil))

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "/api/publish/all", "202")), 0.001)
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))
}
