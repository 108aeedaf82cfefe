package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gaelstats/sideline/pkg/logger"
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	CheckOrigin:      func(r *http.Request) bool { return true },
}

// SubscribeHandler upgrades live-feed connections and hands them to
// the broadcast hub.
type SubscribeHandler struct {
	deps Dependencies
}

// NewSubscribeHandler creates a new subscribe handler.
func NewSubscribeHandler(deps Dependencies) *SubscribeHandler {
	return &SubscribeHandler{deps: deps}
}

// HandleSubscribe authorizes the caller, then upgrades to WebSocket.
// Authorization happens before the upgrade so tenant rejections come
// back as plain HTTP statuses instead of close frames.
func (h *SubscribeHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	club := strings.TrimSpace(r.Header.Get("X-Club-ID"))
	if club == "" {
		// Browser WebSocket clients cannot set headers.
		club = strings.TrimSpace(r.URL.Query().Get("club"))
	}
	if club == "" {
		writeDomainError(w, ErrUnauthenticated)
		return
	}
	matchID := r.PathValue("id")

	if err := h.deps.Authorize(r.Context(), club, matchID); err != nil {
		writeDomainError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		logger.Get().Warn(r.Context(), "websocket upgrade failed",
			logger.String("match_id", matchID),
			logger.Error(err),
		)
		return
	}

	// The request context dies when this handler returns; the session
	// outlives it, so it runs on its own context.
	if _, err := h.deps.Subscribe(context.Background(), club, matchID, conn); err != nil {
		_ = conn.Close()
		return
	}
}
