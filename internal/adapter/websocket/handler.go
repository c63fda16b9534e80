package websocket

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	maxMessageSize  = 64 * 1024
	readBufferSize  = 1024
	writeBufferSize = 1024
)

// Registry is the part of the connection registry the transport drives.
type Registry interface {
	Accept(conn *websocket.Conn, hs domain.Handshake) (domain.ConnID, error)
	HandleInboundMessage(id domain.ConnID, payload []byte)
	Close(id domain.ConnID)
}

// Handler upgrades HTTP requests to WebSocket connections, hands them to the
// registry and pumps inbound frames until the transport closes.
type Handler struct {
	registry Registry
	limiter  *ConnectionLimiter
	upgrader websocket.Upgrader
}

func NewHandler(registry Registry, limiter *ConnectionLimiter, checkOrigin func(r *http.Request) bool) *Handler {
	return &Handler{
		registry: registry,
		limiter:  limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin:     checkOrigin,
		},
	}
}

// ParseHandshake extracts the declared identity from the connection request.
func ParseHandshake(r *http.Request) domain.Handshake {
	q := r.URL.Query()
	return domain.Handshake{
		UserID:   q.Get("userId"),
		Token:    q.Get("token"),
		Role:     q.Get("role"),
		Endpoint: r.URL.Path,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Acquire() {
		slog.Warn("Rejecting WebSocket upgrade: at capacity", "max_connections", h.limiter.Max(), "remote_addr", r.RemoteAddr)
		http.Error(w, "server at capacity", http.StatusServiceUnavailable)
		return
	}
	defer h.limiter.Release()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		slog.Debug("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	id, err := h.registry.Accept(conn, ParseHandshake(r))
	if errors.Is(err, domain.ErrMissingIdentity) {
		return
	}
	if err != nil {
		slog.Error("Failed to register connection", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	h.readLoop(id, conn)
}

func (h *Handler) readLoop(id domain.ConnID, conn *websocket.Conn) {
	defer h.registry.Close(id)

	conn.SetReadLimit(maxMessageSize)
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.Warn("WebSocket transport error", "conn_id", id.String(), "error", err)
			}
			return
		}
		h.registry.HandleInboundMessage(id, payload)
	}
}
