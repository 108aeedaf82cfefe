// Package repository defines the persistence contract for matches,
// their append-only event logs, and derived state snapshots.
package repository

import (
	"context"

	"github.com/gaelstats/sideline/internal/domain/model"
	"github.com/gaelstats/sideline/internal/domain/state"
)

// Store is the narrow persistence surface the core requires. The
// reference implementation is in-memory; a durable engine only has to
// honor the same append/read semantics.
type Store interface {
	// CreateMatch registers a new match. Returns ErrMatchExists if the
	// id is already taken.
	CreateMatch(ctx context.Context, m model.Match) error

	// Match returns the match record, or ErrMatchNotFound.
	Match(ctx context.Context, matchID string) (model.Match, error)

	// SetMatchStatus updates the lifecycle status.
	SetMatchStatus(ctx context.Context, matchID string, status model.MatchStatus) error

	// Append adds ev to the match log. The event's sequence must be
	// exactly one past the current tail; anything else returns
	// ErrSequenceConflict so a buggy writer cannot create gaps.
	Append(ctx context.Context, ev *model.Event) error

	// Events returns the full ordered log for a match.
	Events(ctx context.Context, matchID string) ([]*model.Event, error)

	// Event returns the event at the given sequence, or ErrEventNotFound.
	Event(ctx context.Context, matchID string, seq uint64) (*model.Event, error)

	// RecentEvents returns up to n events from the tail of the log, in
	// sequence order.
	RecentEvents(ctx context.Context, matchID string, n int) ([]*model.Event, error)

	// LastSequence returns the sequence of the log tail (0 when empty).
	LastSequence(ctx context.Context, matchID string) (uint64, error)

	// SaveState stores the point-in-time derived state for a match.
	SaveState(ctx context.Context, st state.MatchState) error

	// State returns the stored derived state, or ErrStateNotFound when
	// no state has been saved yet.
	State(ctx context.Context, matchID string) (state.MatchState, error)

	// MatchCount returns the number of matches tracked.
	MatchCount(ctx context.Context) int

	// EventCount returns the total number of events across all matches.
	EventCount(ctx context.Context) int
}
