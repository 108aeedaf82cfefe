package ingest

import (
	"context"
	"sync"

	"github.com/gaelstats/sideline/internal/adapters/repository"
	"github.com/gaelstats/sideline/internal/domain/dedupe"
	"github.com/gaelstats/sideline/internal/domain/model"
	"github.com/gaelstats/sideline/pkg/logger"
	"github.com/gaelstats/sideline/pkg/metrics"
)

// Default registry configuration constants.
const (
	defaultMailboxSize = 256
)

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithMailboxSize bounds each sequencer's pending-request mailbox.
func WithMailboxSize(size int) Option {
	return func(r *Registry) {
		if size > 0 {
			r.mailboxSize = size
		}
	}
}

// WithLogger sets a custom logger for the registry and its sequencers.
func WithLogger(log logger.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// Registry is the arena of per-match sequencers. Each match gets its
// own single-writer goroutine; distinct matches never share a lock, so
// a busy match cannot stall ingestion for another.
type Registry struct {
	mu   sync.RWMutex
	seqs map[string]*Sequencer

	store  repository.Store
	ledger dedupe.Ledger
	sink   Sink

	mailboxSize int
	log         logger.Logger
}

// NewRegistry creates an empty sequencer arena.
func NewRegistry(store repository.Store, ledger dedupe.Ledger, sink Sink, opts ...Option) *Registry {
	r := &Registry{
		seqs:        make(map[string]*Sequencer),
		store:       store,
		ledger:      ledger,
		sink:        sink,
		mailboxSize: defaultMailboxSize,
		log:         logger.Get(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ensure returns the sequencer for a match, creating and recovering it
// on first use. ctx bounds the recovery reads only; the sequencer runs
// until the match is retired or the registry shuts down.
func (r *Registry) Ensure(ctx context.Context, matchID string) (*Sequencer, error) {
	r.mu.RLock()
	s, ok := r.seqs[matchID]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.seqs[matchID]; ok {
		return s, nil
	}

	s, err := newSequencer(ctx, matchID, r.store, r.ledger, r.sink, r.mailboxSize, r.log)
	if err != nil {
		return nil, err
	}
	r.seqs[matchID] = s
	metrics.UpdateSequencerCount(len(r.seqs))
	return s, nil
}

// Ingest routes one event to its match's sequencer.
func (r *Registry) Ingest(ctx context.Context, ev *model.Event) (Result, error) {
	s, err := r.Ensure(ctx, ev.MatchID)
	if err != nil {
		return Result{}, err
	}
	return s.Ingest(ctx, ev)
}

// Retire stops the sequencer for a completed match and forgets its
// idempotency ledger. The log and state stay readable in the store.
func (r *Registry) Retire(ctx context.Context, matchID string) {
	r.mu.Lock()
	s, ok := r.seqs[matchID]
	if ok {
		delete(r.seqs, matchID)
	}
	metrics.UpdateSequencerCount(len(r.seqs))
	r.mu.Unlock()

	if ok {
		s.Close()
	}
	r.ledger.Drop(ctx, matchID)
}

// Count returns the number of live sequencers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.seqs)
}

// Shutdown stops every sequencer.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	seqs := make([]*Sequencer, 0, len(r.seqs))
	for id, s := range r.seqs {
		seqs = append(seqs, s)
		delete(r.seqs, id)
	}
	r.mu.Unlock()

	for _, s := range seqs {
		s.Close()
	}
}
