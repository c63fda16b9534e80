package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy decides which browser origins may open a live-update socket.
type originPolicy struct {
	appOrigin     string
	allowLoopback bool
}

// NewCheckOrigin returns the upgrader's CheckOrigin. Requests without an
// Origin header (backend jobs, CLI tools) and the frontend at appURL are
// accepted; loopback origins only when isDevelopment is set.
func NewCheckOrigin(appURL string, isDevelopment bool) func(r *http.Request) bool {
	p := originPolicy{appOrigin: normalizeOrigin(appURL), allowLoopback: isDevelopment}
	return p.allows
}

func (p originPolicy) allows(r *http.Request) bool {
	raw := r.Header.Get("Origin")
	if raw == "" {
		return true
	}

	origin := normalizeOrigin(raw)
	if origin != "" && origin == p.appOrigin {
		return true
	}
	if p.allowLoopback && isLoopbackOrigin(raw) {
		return true
	}

	slog.Warn("WebSocket origin rejected", "origin", raw, "endpoint", r.URL.Path, "remote_addr", r.RemoteAddr)
	return false
}

// normalizeOrigin reduces a URL to scheme://host[:port], lowercased and with
// the scheme's default port dropped. Returns "" for URLs without a host.
func normalizeOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
