// Package service provides the core business service that implements
// the dependencies required by the HTTP API and the broadcast hub.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gaelstats/sideline/internal/adapters/repository"
	"github.com/gaelstats/sideline/internal/adapters/ws"
	"github.com/gaelstats/sideline/internal/domain/dedupe"
	"github.com/gaelstats/sideline/internal/domain/model"
	"github.com/gaelstats/sideline/internal/domain/state"
	"github.com/gaelstats/sideline/internal/domain/types"
	"github.com/gaelstats/sideline/internal/ingest"
	"github.com/gaelstats/sideline/pkg/logger"
	"github.com/gaelstats/sideline/pkg/metrics"
)

// Service wires the store, idempotency ledger, sequencer arena, and
// broadcast hub together. It is the only place club isolation is
// enforced: nothing below it knows about tenants.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    repository.Store
	ledger   dedupe.Ledger
	hub      *ws.Hub
	registry *ingest.Registry

	// Configuration
	mailboxSize   int
	sendBuffer    int
	recentLimit   int
	ingestTimeout time.Duration

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithMailboxSize bounds each match sequencer's mailbox.
func WithMailboxSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.mailboxSize = size
		}
	}
}

// WithSessionSendBuffer bounds each subscriber session's outbound queue.
func WithSessionSendBuffer(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.sendBuffer = size
		}
	}
}

// WithRecentEventsLimit caps the recent_events list in snapshots.
func WithRecentEventsLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.recentLimit = n
		}
	}
}

// WithIngestTimeout bounds one ingest call end to end.
func WithIngestTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ingestTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		mailboxSize:   256,
		sendBuffer:    256,
		recentLimit:   20,
		ingestTimeout: 5 * time.Second,
		logger:        nil, // Will be replaced when service starts
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting match event service...")

	s.store = repository.NewMemStore()
	s.ledger = dedupe.NewInMemoryLedger()
	s.hub = ws.NewHub(s,
		ws.WithSendBuffer(s.sendBuffer),
		ws.WithLogger(s.logger),
	)
	s.registry = ingest.NewRegistry(s.store, s.ledger, s.hub,
		ingest.WithMailboxSize(s.mailboxSize),
		ingest.WithLogger(s.logger),
	)

	s.started = true
	s.logger.Info(ctx, "match event service started",
		logger.Int("mailboxSize", s.mailboxSize),
		logger.Int("sendBuffer", s.sendBuffer),
		logger.Duration("ingestTimeout", s.ingestTimeout),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping match event service...")

	s.registry.Shutdown()
	s.hub.Shutdown(ctx)

	s.started = false
	s.logger.Info(ctx, "match event service stopped")
}

// authorize loads the match and enforces the club isolation boundary.
func (s *Service) authorize(ctx context.Context, clubID, matchID string) (model.Match, error) {
	m, err := s.store.Match(ctx, matchID)
	if err != nil {
		return model.Match{}, err
	}
	if m.ClubID != clubID {
		metrics.RecordTenantMismatch()
		s.logger.Warn(ctx, "club mismatch",
			logger.String("match_id", matchID),
			logger.String("club_id", clubID),
		)
		return model.Match{}, fmt.Errorf("%w: match %s", ingest.ErrTenantMismatch, matchID)
	}
	return m, nil
}

// Authorize checks that a match belongs to the caller's club. The
// WebSocket handler uses it before upgrading the connection so tenant
// rejections surface as plain HTTP errors.
func (s *Service) Authorize(ctx context.Context, clubID, matchID string) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	_, err := s.authorize(ctx, clubID, matchID)
	return err
}

// OpenMatch registers a fixture for the caller's club. The match
// starts in the scheduled state; no events are accepted until it is
// started.
func (s *Service) OpenMatch(ctx context.Context, clubID string, m model.Match) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	m.ClubID = clubID
	if m.Status == "" {
		m.Status = model.MatchScheduled
	}
	m.CreatedAt = time.Now().UTC()
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ingest.ErrValidation, err)
	}
	if err := s.store.CreateMatch(ctx, m); err != nil {
		return err
	}
	s.logger.Info(ctx, "match opened",
		logger.String("match_id", m.ID),
		logger.String("club_id", m.ClubID),
		logger.String("opposition", m.Opposition),
	)
	return nil
}

// SetMatchStatus moves a match through its lifecycle.
func (s *Service) SetMatchStatus(ctx context.Context, clubID, matchID string, to model.MatchStatus) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	m, err := s.authorize(ctx, clubID, matchID)
	if err != nil {
		return err
	}
	if !m.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", model.ErrBadStatusChange, m.Status, to)
	}
	if err := s.store.SetMatchStatus(ctx, matchID, to); err != nil {
		return err
	}
	s.logger.Info(ctx, "match status changed",
		logger.String("match_id", matchID),
		logger.String("status", string(to)),
	)

	if to.Terminal() {
		s.registry.Retire(ctx, matchID)
		s.hub.CloseMatch(ctx, matchID)
	}
	return nil
}

// Ingest accepts one event for the caller's club, bounded by the
// configured ingest timeout. Replays of an already-accepted
// client_event_id return the original sequence with Duplicate set.
func (s *Service) Ingest(ctx context.Context, clubID string, ev *model.Event) (ingest.Result, error) {
	if !s.isStarted() {
		return ingest.Result{}, ErrNotStarted
	}
	if _, err := s.authorize(ctx, clubID, ev.MatchID); err != nil {
		return ingest.Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.ingestTimeout)
	defer cancel()
	return s.registry.Ingest(ctx, ev)
}

// Snapshot builds a consistent full-state snapshot for a match. It
// implements ws.SnapshotSource; tenant checks happen in SnapshotFor
// and Subscribe before this is reached.
func (s *Service) Snapshot(ctx context.Context, matchID string) (types.Snapshot, error) {
	st, err := s.store.State(ctx, matchID)
	if errors.Is(err, repository.ErrStateNotFound) {
		st = state.New(matchID)
	} else if err != nil {
		return types.Snapshot{}, err
	}

	recent, err := s.store.RecentEvents(ctx, matchID, s.recentLimit)
	if err != nil {
		return types.Snapshot{}, err
	}

	metrics.RecordSnapshotRequest()
	return types.Snapshot{
		Type:         types.MessageState,
		MatchID:      matchID,
		Sequence:     st.LastSequence,
		Totals:       st,
		RecentEvents: recent,
	}, nil
}

// SnapshotFor is the authorized snapshot read used by the HTTP API.
func (s *Service) SnapshotFor(ctx context.Context, clubID, matchID string) (types.Snapshot, error) {
	if !s.isStarted() {
		return types.Snapshot{}, ErrNotStarted
	}
	if _, err := s.authorize(ctx, clubID, matchID); err != nil {
		return types.Snapshot{}, err
	}
	return s.Snapshot(ctx, matchID)
}

// Subscribe authorizes the caller and hands the connection to the hub.
func (s *Service) Subscribe(ctx context.Context, clubID, matchID string, conn *websocket.Conn) (*ws.Session, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	if _, err := s.authorize(ctx, clubID, matchID); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx, matchID, conn)
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started": s.started,
	}

	if s.started {
		stats["matches"] = s.store.MatchCount(ctx)
		stats["events"] = s.store.EventCount(ctx)
		stats["sequencers"] = s.registry.Count()
		stats["sessions"] = s.hub.SessionCount()
		stats["dedupeEntries"] = s.ledger.Size()

		metrics.UpdateMatchCount(s.store.MatchCount(ctx))
		metrics.UpdateSequencerCount(s.registry.Count())
		metrics.UpdateActiveSessions(s.hub.SessionCount())
	}

	return stats
}
