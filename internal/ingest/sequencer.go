// Package ingest owns sequence assignment: one sequencer goroutine per
// match is the single writer for that match's log and state, so
// sequences are gap-free and acceptance order defines broadcast order.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gaelstats/sideline/internal/adapters/repository"
	"github.com/gaelstats/sideline/internal/domain/dedupe"
	"github.com/gaelstats/sideline/internal/domain/model"
	"github.com/gaelstats/sideline/internal/domain/state"
	"github.com/gaelstats/sideline/pkg/logger"
	"github.com/gaelstats/sideline/pkg/metrics"
)

// Result is the ingestion acknowledgement returned to the client.
type Result struct {
	Sequence  uint64 `json:"sequence"`
	Duplicate bool   `json:"duplicate"`
}

// Sink receives every accepted (event, state) pair for fan-out. The
// implementation must not block: a slow subscriber is the sink's
// problem, never the sequencer's.
type Sink interface {
	Publish(ctx context.Context, ev *model.Event, st state.MatchState)
}

// request pairs an event with its reply channel.
type request struct {
	ev    *model.Event
	reply chan reply
}

type reply struct {
	res Result
	err error
}

// Sequencer serializes ingestion for a single match. All writes to the
// match log, derived state, and idempotency ledger happen on its
// goroutine; callers interact only through Ingest.
type Sequencer struct {
	matchID string
	store   repository.Store
	ledger  dedupe.Ledger
	sink    Sink

	mailbox chan request
	st      state.MatchState

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}

	log logger.Logger
}

// newSequencer recovers the match's state from the log and starts the
// writer goroutine. Rebuilding by replay (rather than trusting a saved
// snapshot) is what makes crash recovery and the saved state agree.
// ctx bounds the recovery reads only; the writer goroutine lives until
// Close, never tied to any caller's context.
func newSequencer(ctx context.Context, matchID string, store repository.Store, ledger dedupe.Ledger, sink Sink, mailboxSize int, log logger.Logger) (*Sequencer, error) {
	events, err := store.Events(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load log for %s: %w", matchID, err)
	}
	st, err := state.Replay(matchID, events)
	if err != nil {
		return nil, fmt.Errorf("replay log for %s: %w", matchID, err)
	}
	for _, ev := range events {
		ledger.Record(ctx, matchID, ev.ClientEventID, ev.Sequence)
	}

	s := &Sequencer{
		matchID: matchID,
		store:   store,
		ledger:  ledger,
		sink:    sink,
		mailbox: make(chan request, mailboxSize),
		st:      st,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		log:     log.Named("sequencer"),
	}
	go s.run()
	return s, nil
}

// Ingest submits one event and waits for its acknowledgement. The
// caller bounds the wait through ctx; a full mailbox fails fast with
// ErrBackpressure rather than queueing unboundedly.
func (s *Sequencer) Ingest(ctx context.Context, ev *model.Event) (Result, error) {
	req := request{ev: ev, reply: make(chan reply, 1)}

	select {
	case s.mailbox <- req:
	case <-s.done:
		return Result{}, ErrClosed
	case <-ctx.Done():
		return Result{}, fmt.Errorf("ingest submit: %w", ctx.Err())
	default:
		select {
		case s.mailbox <- req:
		case <-s.done:
			return Result{}, ErrClosed
		case <-ctx.Done():
			metrics.RecordIngestBackpressure()
			return Result{}, fmt.Errorf("%w: %v", ErrBackpressure, ctx.Err())
		}
	}

	select {
	case rep := <-req.reply:
		return rep.res, rep.err
	case <-ctx.Done():
		// The event may still be accepted after the caller gives up;
		// idempotent replay resolves the ambiguity on the next attempt.
		return Result{}, fmt.Errorf("ingest await: %w", ctx.Err())
	}
}

// Close stops the writer goroutine. Pending requests receive ErrClosed.
func (s *Sequencer) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	<-s.stopped
}

// LastSequence returns the current log tail as seen by the writer.
// Only used for stats; the authoritative value lives on the goroutine.
func (s *Sequencer) LastSequence(ctx context.Context) uint64 {
	seq, err := s.store.LastSequence(ctx, s.matchID)
	if err != nil {
		return 0
	}
	return seq
}

func (s *Sequencer) run() {
	defer close(s.stopped)

	// The writer runs on its own context. Request contexts bound the
	// submit/await in Ingest only; a caller timing out must not take the
	// match's sequencer down with it.
	ctx := context.Background()
	for {
		select {
		case <-s.done:
			s.drain()
			return
		case req := <-s.mailbox:
			start := time.Now()
			res, err := s.handle(ctx, req.ev)
			metrics.RecordIngestLatency(float64(time.Since(start).Milliseconds()))
			req.reply <- reply{res: res, err: err}
		}
	}
}

// drain fails any requests still queued at shutdown.
func (s *Sequencer) drain() {
	for {
		select {
		case req := <-s.mailbox:
			req.reply <- reply{err: ErrClosed}
		default:
			return
		}
	}
}

// handle runs the full acceptance pipeline for one event: dedupe,
// validate, assign, persist, aggregate, publish. Persist, aggregate
// and publish happen before the next event is taken off the mailbox,
// which is what makes the three steps appear atomic to subscribers.
func (s *Sequencer) handle(ctx context.Context, ev *model.Event) (Result, error) {
	if seq, seen := s.ledger.Lookup(ctx, s.matchID, ev.ClientEventID); seen {
		metrics.RecordEventDuplicate()
		return Result{Sequence: seq, Duplicate: true}, nil
	}

	if err := ev.Validate(); err != nil {
		metrics.RecordEventRejected("invalid_event")
		return Result{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	m, err := s.store.Match(ctx, s.matchID)
	if err != nil {
		return Result{}, err
	}
	if !m.Status.AcceptsEvents() {
		metrics.RecordEventRejected("match_not_open")
		return Result{}, fmt.Errorf("%w: status %s", ErrMatchNotOpen, m.Status)
	}

	var corrected *model.Event
	if ev.IsCorrection() {
		if ev.CorrectionOf > s.st.LastSequence {
			metrics.RecordEventRejected("unknown_correction")
			return Result{}, fmt.Errorf("%w: %d", ErrUnknownCorrection, ev.CorrectionOf)
		}
		corrected, err = s.store.Event(ctx, s.matchID, ev.CorrectionOf)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %d", ErrUnknownCorrection, ev.CorrectionOf)
		}
		if corrected.IsCorrection() {
			metrics.RecordEventRejected("correction_of_correction")
			return Result{}, fmt.Errorf("%w: sequence %d is itself a correction", ErrValidation, ev.CorrectionOf)
		}
	}

	ev.Sequence = s.st.LastSequence + 1
	ev.ReceivedAt = time.Now().UTC()

	if err := s.store.Append(ctx, ev); err != nil {
		// Sequence not consumed: s.st is untouched, so the next event
		// gets the same number.
		s.log.Error(ctx, "append failed",
			logger.String("match_id", s.matchID),
			logger.Uint64("sequence", ev.Sequence),
			logger.Error(err),
		)
		return Result{}, fmt.Errorf("append event: %w", err)
	}

	next, err := state.Apply(s.st, ev, corrected)
	if err != nil {
		return Result{}, fmt.Errorf("apply event: %w", err)
	}
	if err := s.store.SaveState(ctx, next); err != nil {
		s.log.Warn(ctx, "state save failed; will rebuild by replay",
			logger.String("match_id", s.matchID),
			logger.Error(err),
		)
	}

	s.ledger.Record(ctx, s.matchID, ev.ClientEventID, ev.Sequence)
	s.st = next

	s.sink.Publish(ctx, ev, next)
	metrics.RecordEventAccepted()

	return Result{Sequence: ev.Sequence}, nil
}
