package api

import (
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"arena-shooter/internal/logger"
	"arena-shooter/internal/protocol"
	"arena-shooter/internal/transport"
)

const (
	// MaxWSConnectionsTotal is the maximum number of relay connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum relay connections per IP
	MaxWSConnectionsPerIP = 10
)

// relayHandler upgrades room members to websocket and pumps their frames
// through the hub. Query: user, role (host|peer), codec (json|msgpack).
type relayHandler struct {
	hub       *transport.Hub
	origins   *OriginPolicy
	wsLimiter *WebSocketRateLimiter
	upgrader  websocket.Upgrader
	log       *logrus.Entry

	frames  transport.RelayStats
	members atomic.Int64
}

func newRelayHandler(hub *transport.Hub, origins *OriginPolicy, wsLimiter *WebSocketRateLimiter) *relayHandler {
	h := &relayHandler{
		hub:       hub,
		origins:   origins,
		wsLimiter: wsLimiter,
		log:       logger.With("relay"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if h.origins.Allowed(origin) {
				return true
			}
			h.log.WithField("origin", origin).Warn("⚠️ Relay connection rejected by origin")
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

func (h *relayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "code"))
	q := r.URL.Query()
	user := strings.TrimSpace(q.Get("user"))
	if user == "" || len(user) > 32 {
		writeError(w, "user must be 1-32 characters", http.StatusBadRequest)
		return
	}
	role, err := protocol.ParseRole(q.Get("role"))
	if err != nil || role == protocol.RoleSolo {
		writeError(w, "role must be host or peer", http.StatusBadRequest)
		return
	}
	codec, err := protocol.CodecByName(q.Get("codec"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if role == protocol.RolePeer && !h.hub.HasHost(code) {
		writeError(w, "room not found", http.StatusNotFound)
		return
	}

	ip := GetClientIP(r)
	if reason := h.wsLimiter.Acquire(ip); reason != "" {
		h.log.WithFields(logrus.Fields{"ip": ip, "reason": reason}).Warn("⚠️ Relay connection rejected")
		RecordConnectionRejected(reason)
		status := http.StatusTooManyRequests
		if reason == "ws_total_limit" {
			status = http.StatusServiceUnavailable
		}
		writeError(w, "too many connections", status)
		return
	}
	defer h.wsLimiter.Release(ip)

	ep, err := h.hub.Join(code, user, role)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, transport.ErrRoomHasHost) || errors.Is(err, transport.ErrNameTaken) {
			status = http.StatusConflict
		}
		writeError(w, err.Error(), status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		h.log.WithError(err).Debug("Relay upgrade failed")
		ep.Close()
		return
	}

	UpdateWSConnections(int(h.members.Add(1)))
	log := h.log.WithFields(logrus.Fields{"room": code, "user": user, "role": role.String(), "ip": ip})
	log.Info("📱 Relay member connected")

	transport.Relay(conn, ep, codec, &h.frames)

	UpdateWSConnections(int(h.members.Add(-1)))
	log.Info("📱 Relay member disconnected")
}
