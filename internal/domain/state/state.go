// Package state derives live match state from the ordered event log.
//
// Aggregation is a pure function of the log: replaying all events from
// an empty state always reproduces the incrementally maintained state,
// which is what crash recovery and audit rely on.
package state

import (
	"errors"
	"fmt"

	"github.com/gaelstats/sideline/internal/domain/model"
)

// Aggregation errors.
var (
	ErrUnknownCorrection = errors.New("correction references unknown sequence")
	ErrOutOfOrder        = errors.New("event applied out of sequence order")
	ErrCorrectionTarget  = errors.New("corrections may not target corrections")
)

// ScoreLine is one team's scoreboard in GAA terms.
type ScoreLine struct {
	Goals       int `json:"goals"`
	OnePointers int `json:"one_pointers"`
	TwoPointers int `json:"two_pointers"`
}

// Points returns the scoreboard total: goals are worth 3 points,
// two-pointers 2, one-pointers 1.
func (s ScoreLine) Points() int {
	return s.Goals*3 + s.TwoPointers*2 + s.OnePointers
}

// Display renders the traditional goals-points form, e.g. "2-08".
func (s ScoreLine) Display() string {
	return fmt.Sprintf("%d-%02d", s.Goals, s.OnePointers+s.TwoPointers)
}

// TeamTotals holds one team's scoreboard and per-event-type counters.
type TeamTotals struct {
	Score  ScoreLine               `json:"score"`
	Points int                     `json:"points"`
	Counts map[model.EventType]int `json:"counts"`
}

func newTeamTotals() TeamTotals {
	return TeamTotals{Counts: make(map[model.EventType]int)}
}

func (t TeamTotals) clone() TeamTotals {
	c := t
	c.Counts = make(map[model.EventType]int, len(t.Counts))
	for k, v := range t.Counts {
		c.Counts[k] = v
	}
	return c
}

// MatchState is the derived aggregate for one match. It is never
// mutated in place by callers; Apply returns a fresh value so readers
// always observe a consistent snapshot.
type MatchState struct {
	MatchID      string     `json:"match_id"`
	LastSequence uint64     `json:"sequence"`
	Club         TeamTotals `json:"club"`
	Opposition   TeamTotals `json:"opposition"`
}

// New returns the empty state for a match that has just been opened.
func New(matchID string) MatchState {
	return MatchState{
		MatchID:    matchID,
		Club:       newTeamTotals(),
		Opposition: newTeamTotals(),
	}
}

// Clone deep-copies the state so the copy can be published safely.
func (s MatchState) Clone() MatchState {
	c := s
	c.Club = s.Club.clone()
	c.Opposition = s.Opposition.clone()
	return c
}

func (s *MatchState) totals(team model.Team) *TeamTotals {
	if team == model.TeamOpposition {
		return &s.Opposition
	}
	return &s.Club
}

// add applies the numeric contribution of ev with the given sign.
func (s *MatchState) add(ev *model.Event, sign int) {
	if ev.Type == model.Correction {
		// Pure undo marker: no contribution of its own.
		return
	}
	t := s.totals(ev.Team)
	t.Counts[ev.Type] += sign
	if t.Counts[ev.Type] == 0 {
		delete(t.Counts, ev.Type)
	}
	switch ev.Type {
	case model.ScoreGoal:
		t.Score.Goals += sign
	case model.ScoreOnePoint:
		t.Score.OnePointers += sign
	case model.ScoreTwoPoint:
		t.Score.TwoPointers += sign
	}
	t.Points = t.Score.Points()
}

// Apply folds one accepted event into the state and returns the new
// state. For a correction, corrected must be the event named by
// ev.CorrectionOf; its contribution is reversed before any effect
// carried by ev itself is added. Apply never mutates its receiver.
func Apply(s MatchState, ev *model.Event, corrected *model.Event) (MatchState, error) {
	if ev.Sequence <= s.LastSequence {
		return s, fmt.Errorf("%w: sequence %d after %d", ErrOutOfOrder, ev.Sequence, s.LastSequence)
	}
	if ev.IsCorrection() {
		if corrected == nil {
			return s, fmt.Errorf("%w: sequence %d", ErrUnknownCorrection, ev.CorrectionOf)
		}
		if corrected.IsCorrection() {
			return s, fmt.Errorf("%w: sequence %d", ErrCorrectionTarget, ev.CorrectionOf)
		}
	}

	next := s.Clone()
	if ev.IsCorrection() {
		next.add(corrected, -1)
	}
	next.add(ev, +1)
	next.LastSequence = ev.Sequence
	return next, nil
}

// Replay recomputes the state for a match from its full ordered log.
// Events must be sorted by sequence; gaps and out-of-order input are
// rejected so a corrupt log is caught rather than silently folded in.
func Replay(matchID string, events []*model.Event) (MatchState, error) {
	st := New(matchID)
	bySeq := make(map[uint64]*model.Event, len(events))
	for _, ev := range events {
		if ev.Sequence != st.LastSequence+1 {
			return st, fmt.Errorf("%w: got %d, want %d", ErrOutOfOrder, ev.Sequence, st.LastSequence+1)
		}
		var corrected *model.Event
		if ev.IsCorrection() {
			corrected = bySeq[ev.CorrectionOf]
		}
		next, err := Apply(st, ev, corrected)
		if err != nil {
			return st, err
		}
		st = next
		bySeq[ev.Sequence] = ev
	}
	return st, nil
}
