// Package syncer drains the pitch-side outbox to the ingestion API.
//
// The worker wakes on a timer or an explicit kick, walks pending
// entries in capture order, and preserves per-match ordering: when an
// entry cannot clear in a cycle, later entries for the same match
// wait for the next cycle. Corrections wait until the entry they
// correct has a confirmed server sequence.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gaelstats/sideline/internal/capture/outbox"
	"github.com/gaelstats/sideline/pkg/logger"
	"github.com/gaelstats/sideline/pkg/metrics"
)

const (
	defaultInterval    = 30 * time.Second
	defaultMaxAttempts = 3
	attemptBackoff     = 500 * time.Millisecond
)

// Sender is the upload side of the sync worker.
type Sender interface {
	Send(ctx context.Context, e outbox.Entry, correctionOf uint64) (uint64, error)
}

// Syncer owns the background drain loop.
type Syncer struct {
	box    *outbox.Outbox
	sender Sender

	interval    time.Duration
	maxAttempts int
	backoff     time.Duration

	kick chan struct{}
	once sync.Once
	log  logger.Logger
}

// Option applies a configuration option to the Syncer.
type Option func(*Syncer)

// WithInterval sets the idle wakeup interval.
func WithInterval(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMaxAttempts bounds transient retries per entry per cycle.
func WithMaxAttempts(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay between transient retries.
func WithBackoff(d time.Duration) Option {
	return func(s *Syncer) {
		if d >= 0 {
			s.backoff = d
		}
	}
}

// WithLogger sets a custom logger for the syncer.
func WithLogger(log logger.Logger) Option {
	return func(s *Syncer) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a sync worker over box, uploading through sender.
func New(box *outbox.Outbox, sender Sender, opts ...Option) *Syncer {
	s := &Syncer{
		box:         box,
		sender:      sender,
		interval:    defaultInterval,
		maxAttempts: defaultMaxAttempts,
		backoff:     attemptBackoff,
		kick:        make(chan struct{}, 1),
		log:         logger.Get(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kick requests an immediate drain cycle. Safe from any goroutine;
// kicks coalesce while a cycle is running.
func (s *Syncer) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run drains until ctx is canceled. One cycle runs immediately so a
// restart with a backlog does not wait out the first interval.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cycle(ctx)
		case <-s.kick:
			s.Cycle(ctx)
		}
	}
}

// Cycle walks pending entries once, in capture order.
func (s *Syncer) Cycle(ctx context.Context) {
	metrics.RecordSyncCycle()

	entries, err := s.box.Pending(ctx)
	if err != nil {
		s.log.Error(ctx, "outbox read failed", logger.Error(err))
		return
	}
	if len(entries) == 0 {
		return
	}

	// Once an entry fails to clear, later entries for its match hold
	// back so the server sees each match's events in capture order.
	blocked := make(map[string]bool)
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if blocked[e.MatchID] {
			continue
		}
		if !s.drain(ctx, e) {
			blocked[e.MatchID] = true
		}
	}

	if n, err := s.box.PendingCount(ctx); err == nil {
		metrics.UpdateOutboxPending(n)
	}
}

// drain attempts to clear one entry. It reports whether later entries
// for the same match may proceed this cycle.
func (s *Syncer) drain(ctx context.Context, e outbox.Entry) bool {
	var correctionOf uint64
	if e.CorrectsClientID != "" {
		seq, err := s.box.SequenceFor(ctx, e.CorrectsClientID)
		if errors.Is(err, outbox.ErrNotConfirmed) {
			// Target has not cleared yet. Hold the correction and
			// everything behind it.
			metrics.RecordSyncAttempt("deferred")
			return false
		}
		if err != nil {
			s.log.Error(ctx, "correction lookup failed",
				logger.String("client_event_id", e.ClientEventID),
				logger.Error(err),
			)
			return false
		}
		correctionOf = seq
	}

	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(s.backoff << uint(attempt-1)):
			}
		}

		seq, err := s.sender.Send(ctx, e, correctionOf)
		if err == nil {
			metrics.RecordSyncAttempt("accepted")
			if err := s.box.Confirm(ctx, e.ClientEventID, seq); err != nil {
				s.log.Error(ctx, "confirm failed",
					logger.String("client_event_id", e.ClientEventID),
					logger.Error(err),
				)
				return false
			}
			s.log.Debug(ctx, "entry confirmed",
				logger.String("client_event_id", e.ClientEventID),
				logger.Uint64("sequence", seq),
			)
			return true
		}
		if errors.Is(err, ErrRejected) {
			metrics.RecordSyncAttempt("rejected")
			s.log.Warn(ctx, "entry rejected",
				logger.String("client_event_id", e.ClientEventID),
				logger.Error(err),
			)
			if err := s.box.MarkFailed(ctx, e.ClientEventID, err.Error()); err != nil {
				s.log.Error(ctx, "mark failed errored", logger.Error(err))
			}
			// A rejected entry leaves the stream; later events for
			// the match are independent of it.
			return true
		}
		metrics.RecordSyncAttempt("transient")
		lastErr = err
	}

	if err := s.box.RecordAttempt(ctx, e.ClientEventID, lastErr.Error()); err != nil {
		s.log.Error(ctx, "record attempt failed", logger.Error(err))
	}
	s.log.Warn(ctx, "entry deferred to next cycle",
		logger.String("client_event_id", e.ClientEventID),
		logger.Error(lastErr),
	)
	return false
}
