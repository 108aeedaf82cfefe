package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/gaelstats/sideline/internal/domain/model"
	"github.com/gaelstats/sideline/internal/domain/state"
	"github.com/gaelstats/sideline/pkg/metrics"
)

// matchLog holds one match's record, log, and state behind its own
// lock so reads and writes for different matches never contend.
type matchLog struct {
	mu     sync.RWMutex
	match  model.Match
	events []*model.Event
	st     state.MatchState
	hasSt  bool
}

// MemStore implements Store with per-match in-memory logs. The outer
// map is only locked to find or create a matchLog; all event and state
// access goes through the per-match lock.
type MemStore struct {
	mu      sync.RWMutex
	matches map[string]*matchLog
	events  int64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{matches: make(map[string]*matchLog)}
}

func (s *MemStore) find(matchID string) (*matchLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ml, ok := s.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	return ml, nil
}

func (s *MemStore) CreateMatch(ctx context.Context, m model.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.matches[m.ID]; exists {
		return fmt.Errorf("%w: %s", ErrMatchExists, m.ID)
	}
	s.matches[m.ID] = &matchLog{match: m}
	metrics.UpdateMatchCount(len(s.matches))
	return nil
}

func (s *MemStore) Match(ctx context.Context, matchID string) (model.Match, error) {
	ml, err := s.find(matchID)
	if err != nil {
		return model.Match{}, err
	}

	ml.mu.RLock()
	defer ml.mu.RUnlock()
	return ml.match, nil
}

func (s *MemStore) SetMatchStatus(ctx context.Context, matchID string, status model.MatchStatus) error {
	ml, err := s.find(matchID)
	if err != nil {
		return err
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.match.Status = status
	return nil
}

func (s *MemStore) Append(ctx context.Context, ev *model.Event) error {
	ml, err := s.find(ev.MatchID)
	if err != nil {
		return err
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()

	want := uint64(len(ml.events)) + 1
	if ev.Sequence != want {
		return fmt.Errorf("%w: got %d, want %d", ErrSequenceConflict, ev.Sequence, want)
	}
	cp := *ev
	ml.events = append(ml.events, &cp)

	s.mu.Lock()
	s.events++
	metrics.UpdateEventLogSize(int(s.events))
	s.mu.Unlock()
	return nil
}

func (s *MemStore) Events(ctx context.Context, matchID string) ([]*model.Event, error) {
	ml, err := s.find(matchID)
	if err != nil {
		return nil, err
	}

	ml.mu.RLock()
	defer ml.mu.RUnlock()

	out := make([]*model.Event, len(ml.events))
	copy(out, ml.events)
	return out, nil
}

func (s *MemStore) Event(ctx context.Context, matchID string, seq uint64) (*model.Event, error) {
	ml, err := s.find(matchID)
	if err != nil {
		return nil, err
	}

	ml.mu.RLock()
	defer ml.mu.RUnlock()

	if seq == 0 || seq > uint64(len(ml.events)) {
		return nil, fmt.Errorf("%w: match %s sequence %d", ErrEventNotFound, matchID, seq)
	}
	return ml.events[seq-1], nil
}

func (s *MemStore) RecentEvents(ctx context.Context, matchID string, n int) ([]*model.Event, error) {
	ml, err := s.find(matchID)
	if err != nil {
		return nil, err
	}

	ml.mu.RLock()
	defer ml.mu.RUnlock()

	if n <= 0 || n > len(ml.events) {
		n = len(ml.events)
	}
	out := make([]*model.Event, n)
	copy(out, ml.events[len(ml.events)-n:])
	return out, nil
}

func (s *MemStore) LastSequence(ctx context.Context, matchID string) (uint64, error) {
	ml, err := s.find(matchID)
	if err != nil {
		return 0, err
	}

	ml.mu.RLock()
	defer ml.mu.RUnlock()
	return uint64(len(ml.events)), nil
}

func (s *MemStore) SaveState(ctx context.Context, st state.MatchState) error {
	ml, err := s.find(st.MatchID)
	if err != nil {
		return err
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.st = st.Clone()
	ml.hasSt = true
	return nil
}

func (s *MemStore) State(ctx context.Context, matchID string) (state.MatchState, error) {
	ml, err := s.find(matchID)
	if err != nil {
		return state.MatchState{}, err
	}

	ml.mu.RLock()
	defer ml.mu.RUnlock()

	if !ml.hasSt {
		return state.MatchState{}, fmt.Errorf("%w: %s", ErrStateNotFound, matchID)
	}
	return ml.st.Clone(), nil
}

func (s *MemStore) MatchCount(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matches)
}

func (s *MemStore) EventCount(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.events)
}
