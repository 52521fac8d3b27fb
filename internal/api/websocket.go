package api

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"assistant/internal/ws"
)

type WebSocketHandler struct {
	hub            *ws.Hub
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:            hub,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// GET /api/v1/sessions/{sessionID}/ws
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	session := GetSession(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "component", "api", "error", err)
		return
	}

	if err := ws.Serve(h.hub, conn, session); err != nil {
		slog.Error("error subscribing websocket client", "component", "api", "session_id", session.ID, "error", err)
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if isLoopbackOrigin(origin) {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if originMatchesAllowed(origin, allowed) {
			return true
		}
	}
	return false
}

func originMatchesAllowed(origin, allowed string) bool {
	allowed = strings.TrimSpace(allowed)
	switch {
	case allowed == "":
		return false
	case allowed == "*":
		return true
	case strings.HasSuffix(allowed, "*"):
		return strings.HasPrefix(origin, strings.TrimSuffix(allowed, "*"))
	default:
		return strings.EqualFold(origin, allowed)
	}
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
