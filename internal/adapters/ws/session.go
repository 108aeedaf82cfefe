package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gaelstats/sideline/internal/domain/types"
	"github.com/gaelstats/sideline/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait).
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Session is one viewer's connection to one match. It is created on a
// successful subscribe handshake and is terminal: a reconnecting
// client gets a new session and a fresh snapshot rather than resuming
// the old cursor.
type Session struct {
	ID      string
	MatchID string

	conn *websocket.Conn
	send chan any
	hub  *Hub

	// cursor is the last sequence queued for delivery, set from the
	// snapshot at subscribe time and advanced by trySend under the
	// group lock. Read it for diagnostics, not for resumption.
	cursor uint64

	closeOnce sync.Once
	closed    chan struct{}

	log logger.Logger
}

func newSession(matchID string, conn *websocket.Conn, hub *Hub, sendBuffer int) *Session {
	return &Session{
		ID:      uuid.NewString(),
		MatchID: matchID,
		conn:    conn,
		send:    make(chan any, sendBuffer),
		hub:     hub,
		closed:  make(chan struct{}),
		log:     hub.log.Named("session"),
	}
}

// start launches the read and write pumps.
func (s *Session) start(ctx context.Context) {
	go s.writePump(ctx)
	go s.readPump(ctx)
}

// trySend queues msg without blocking. Returns false when the buffer
// is full or the session already closed; the hub handles teardown.
// Deltas at or below the cursor are dropped as delivered: the snapshot
// taken at subscribe time already covers them, and a publish landing
// between the state save and the snapshot read must not repeat.
func (s *Session) trySend(msg any) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	if d, ok := msg.(types.Delta); ok && d.Sequence <= s.cursor {
		return true
	}
	select {
	case s.send <- msg:
		if d, ok := msg.(types.Delta); ok {
			s.cursor = d.Sequence
		}
		return true
	default:
		return false
	}
}

// close shuts the session down. Idempotent; the read pump's deferred
// unregister handles removal from the hub.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

// writePump drains the send buffer to the connection and keeps the
// peer alive with pings. A write error or timeout ends the session.
func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
			return
		case <-s.closed:
			_ = s.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
			return
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.log.Debug(ctx, "write failed",
					logger.String("session_id", s.ID),
					logger.Error(err),
				)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// clientMessage is the minimal inbound protocol: pings for liveness.
// Anything a viewer wants beyond that (a resync) is a new subscribe.
type clientMessage struct {
	Type string `json:"type"`
}

// readPump consumes inbound frames until the connection dies, then
// unregisters the session.
func (s *Session) readPump(ctx context.Context) {
	defer func() {
		s.hub.unregister(ctx, s)
		s.close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug(ctx, "unexpected close",
					logger.String("session_id", s.ID),
					logger.Error(err),
				)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			s.trySend(map[string]string{"type": types.MessagePong})
		}
	}
}
