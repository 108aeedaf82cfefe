// Package ws implements the broadcast hub: per-match subscriber sets
// fed a snapshot on subscribe and ordered deltas thereafter.
package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/gaelstats/sideline/internal/domain/model"
	"github.com/gaelstats/sideline/internal/domain/state"
	"github.com/gaelstats/sideline/internal/domain/types"
	"github.com/gaelstats/sideline/pkg/logger"
	"github.com/gaelstats/sideline/pkg/metrics"
)

// SnapshotSource supplies the full-state snapshot sent to a session at
// subscribe time.
type SnapshotSource interface {
	Snapshot(ctx context.Context, matchID string) (types.Snapshot, error)
}

// group is one match's subscriber set. Its lock orders subscribes
// against publishes so a registered session never misses a delta above
// its snapshot cursor; the cursor itself guards against repeats.
type group struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithSendBuffer sets the per-session outbound buffer size.
func WithSendBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.sendBuffer = size
		}
	}
}

// WithLogger sets a custom logger for the hub.
func WithLogger(log logger.Logger) Option {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

// Hub maintains per-match subscriber sets and fans accepted events out
// to them. Fan-out for different matches is fully independent: each
// match has its own group lock and all per-session sends are
// non-blocking, so a stalled viewer of one match cannot delay another.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]*group

	snapshots  SnapshotSource
	sendBuffer int
	log        logger.Logger
}

// Default hub configuration constants.
const (
	defaultSendBuffer = 256
)

// NewHub creates a hub that pulls subscribe-time snapshots from src.
func NewHub(src SnapshotSource, opts ...Option) *Hub {
	h := &Hub{
		groups:     make(map[string]*group),
		snapshots:  src,
		sendBuffer: defaultSendBuffer,
		log:        logger.Get().Named("hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) group(matchID string) *group {
	h.mu.RLock()
	g, ok := h.groups[matchID]
	h.mu.RUnlock()
	if ok {
		return g
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if g, ok := h.groups[matchID]; ok {
		return g
	}
	g = &group{sessions: make(map[*Session]struct{})}
	h.groups[matchID] = g
	return g
}

// Subscribe creates a session for conn and registers it for the match.
// The snapshot is queued, and the cursor set from it, before the
// session joins the subscriber set; the session then drops any delta
// at or below that cursor, so every delta it delivers has a sequence
// strictly greater than the snapshot's.
func (h *Hub) Subscribe(ctx context.Context, matchID string, conn *websocket.Conn) (*Session, error) {
	s := newSession(matchID, conn, h, h.sendBuffer)
	g := h.group(matchID)

	g.mu.Lock()
	snap, err := h.snapshots.Snapshot(ctx, matchID)
	if err != nil {
		g.mu.Unlock()
		return nil, fmt.Errorf("snapshot for subscribe: %w", err)
	}
	s.cursor = snap.Sequence
	if !s.trySend(snap) {
		g.mu.Unlock()
		return nil, fmt.Errorf("session %s: snapshot enqueue failed", s.ID)
	}
	g.sessions[s] = struct{}{}
	g.mu.Unlock()

	s.start(ctx)
	metrics.RecordSessionOpened()
	metrics.UpdateActiveSessions(h.SessionCount())
	h.log.Info(ctx, "session subscribed",
		logger.String("session_id", s.ID),
		logger.String("match_id", matchID),
		logger.Uint64("cursor", snap.Sequence),
	)
	return s, nil
}

// Publish pushes one accepted event to every subscriber of its match.
// Called from the match's sequencer, so calls for one match arrive in
// sequence order; the group lock preserves that order into each
// session's buffer. Sessions that cannot keep up are torn down, never
// waited on.
func (h *Hub) Publish(ctx context.Context, ev *model.Event, st state.MatchState) {
	g := h.group(ev.MatchID)
	delta := types.DeltaFor(ev)

	var dropped []*Session
	g.mu.Lock()
	for s := range g.sessions {
		if !s.trySend(delta) {
			delete(g.sessions, s)
			dropped = append(dropped, s)
		}
	}
	g.mu.Unlock()

	metrics.RecordDeltaBroadcast()
	for _, s := range dropped {
		metrics.RecordSessionOverflow()
		h.log.Warn(ctx, "dropping slow session",
			logger.String("session_id", s.ID),
			logger.String("match_id", ev.MatchID),
			logger.Uint64("sequence", ev.Sequence),
		)
		s.close()
	}
	if len(dropped) > 0 {
		metrics.UpdateActiveSessions(h.SessionCount())
	}
}

// unregister removes a session after its connection dies. Safe to call
// more than once per session.
func (h *Hub) unregister(ctx context.Context, s *Session) {
	g := h.group(s.MatchID)

	g.mu.Lock()
	_, present := g.sessions[s]
	if present {
		delete(g.sessions, s)
	}
	g.mu.Unlock()

	if present {
		metrics.RecordSessionClosed()
		metrics.UpdateActiveSessions(h.SessionCount())
		h.log.Info(ctx, "session disconnected",
			logger.String("session_id", s.ID),
			logger.String("match_id", s.MatchID),
		)
	}
}

// SessionCount returns the number of live sessions across all matches.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, g := range h.groups {
		g.mu.Lock()
		n += len(g.sessions)
		g.mu.Unlock()
	}
	return n
}

// CloseMatch tears down every session subscribed to a match. Used when
// a match is retired.
func (h *Hub) CloseMatch(ctx context.Context, matchID string) {
	h.mu.Lock()
	g, ok := h.groups[matchID]
	if ok {
		delete(h.groups, matchID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	g.mu.Lock()
	sessions := make([]*Session, 0, len(g.sessions))
	for s := range g.sessions {
		sessions = append(sessions, s)
		delete(g.sessions, s)
	}
	g.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	metrics.UpdateActiveSessions(h.SessionCount())
}

// Shutdown closes every session on every match.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	groups := make([]*group, 0, len(h.groups))
	for id, g := range h.groups {
		groups = append(groups, g)
		delete(h.groups, id)
	}
	h.mu.Unlock()

	for _, g := range groups {
		g.mu.Lock()
		for s := range g.sessions {
			delete(g.sessions, s)
			s.close()
		}
		g.mu.Unlock()
	}
	metrics.UpdateActiveSessions(0)
}
