package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/adapter/metrics"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/domain"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/registry"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allowAll(*http.Request) bool { return true }

func newTestServer(t *testing.T, maxConns int64) (*registry.Registry, *ConnectionLimiter, string) {
	t.Helper()
	reg := registry.New(clockwork.NewFakeClockAt(time.Now()), metrics.NewRegistryMetrics(prometheus.NewRegistry()))
	t.Cleanup(reg.Stop)

	limiter := NewConnectionLimiter(maxConns)
	srv := httptest.NewServer(NewHandler(reg, limiter, allowAll))
	t.Cleanup(srv.Close)
	return reg, limiter, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForConnections(t *testing.T, reg *registry.Registry, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return reg.Stats().TotalConnectionCount == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestParseHandshake(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/notifications?userId=u1&token=t1&role=admin", nil)

	hs := ParseHandshake(r)

	assert.Equal(t, domain.Handshake{UserID: "u1", Token: "t1", Role: "admin", Endpoint: "/notifications"}, hs)
}

func TestHandler_AcceptsAndAcknowledges(t *testing.T) {
	reg, limiter, url := newTestServer(t, 10)

	conn := dial(t, url+"/ws?userId=u1&token=t1")
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack map[string]any
	require.NoError(t, conn.ReadJSON(&ack))

	assert.Equal(t, domain.TypeConnectionEstablished, ack["type"])
	assert.Equal(t, "u1", ack["userId"])
	waitForConnections(t, reg, 1)
	assert.Equal(t, int64(1), limiter.Current())
}

func TestHandler_RejectsMissingIdentity(t *testing.T) {
	reg, _, url := newTestServer(t, 10)

	conn := dial(t, url+"/ws?userId=u1")
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, registry.CloseReasonUnauthorized, closeErr.Text)
	assert.Equal(t, 0, reg.Stats().TotalConnectionCount)
}

func TestHandler_ForwardsInboundPing(t *testing.T) {
	_, _, url := newTestServer(t, 10)

	conn := dial(t, url+"/ws?userId=u1&token=t1")
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack map[string]any
	require.NoError(t, conn.ReadJSON(&ack))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	var pong map[string]any
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, domain.TypePong, pong["type"])
}

func TestHandler_UnregistersOnClientClose(t *testing.T) {
	reg, limiter, url := newTestServer(t, 10)

	conn := dial(t, url+"/ws?userId=u1&token=t1")
	waitForConnections(t, reg, 1)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitForConnections(t, reg, 0)
	require.Eventually(t, func() bool { return limiter.Current() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_RejectsAtCapacity(t *testing.T) {
	reg, _, url := newTestServer(t, 1)

	dial(t, url+"/ws?userId=u1&token=t1")
	waitForConnections(t, reg, 1)

	_, resp, err := websocket.DefaultDialer.Dial(url+"/ws?userId=u2&token=t2", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
