// Package dedupe defines the idempotency ledger for ingestion.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Ledger maps (match, client_event_id) pairs to the sequence assigned
// when the event was first accepted. Re-ingesting a recorded id is not
// an error: the caller returns the original sequence to the client.
type Ledger interface {
	// Lookup returns the sequence previously assigned to id within the
	// match, if any.
	Lookup(ctx context.Context, matchID, id string) (uint64, bool)

	// Record stores the assignment for id. Recording the same id twice
	// keeps the first sequence.
	Record(ctx context.Context, matchID, id string, seq uint64)

	// Drop forgets all ids for a match. Called when the match is closed
	// and replay is no longer possible.
	Drop(ctx context.Context, matchID string)

	Size() int64
}

// inMemoryLedger implements Ledger with a two-level map. The outer map
// is keyed by match so Drop is O(ids in that match) and lookups for
// different matches only contend on the outer read lock.
type inMemoryLedger struct {
	mu      sync.RWMutex
	matches map[string]map[string]uint64
	size    atomic.Int64
}

// NewInMemoryLedger creates an empty in-memory ledger.
func NewInMemoryLedger() Ledger {
	return &inMemoryLedger{
		matches: make(map[string]map[string]uint64),
	}
}

func (l *inMemoryLedger) Lookup(ctx context.Context, matchID, id string) (uint64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids, ok := l.matches[matchID]
	if !ok {
		return 0, false
	}
	seq, ok := ids[id]
	return seq, ok
}

func (l *inMemoryLedger) Record(ctx context.Context, matchID, id string, seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids, ok := l.matches[matchID]
	if !ok {
		ids = make(map[string]uint64)
		l.matches[matchID] = ids
	}
	if _, exists := ids[id]; exists {
		return // first assignment wins
	}
	ids[id] = seq
	l.size.Add(1)
}

func (l *inMemoryLedger) Drop(ctx context.Context, matchID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ids, ok := l.matches[matchID]; ok {
		l.size.Add(int64(-len(ids)))
		delete(l.matches, matchID)
	}
}

// Size returns the total number of recorded ids across all matches.
func (l *inMemoryLedger) Size() int64 {
	return l.size.Load()
}
