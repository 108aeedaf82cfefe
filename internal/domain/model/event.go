// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Team identifies which side of the match an event belongs to.
type Team string

// Team values.
const (
	TeamClub       Team = "club"
	TeamOpposition Team = "opposition"
)

// Valid reports whether t is a known team value.
func (t Team) Valid() bool {
	return t == TeamClub || t == TeamOpposition
}

// EventType enumerates the closed set of pitch-side occurrences.
type EventType string

// Event types captured by the recorder.
const (
	// Scores
	ScoreGoal     EventType = "score_goal"
	ScoreOnePoint EventType = "score_1point"
	ScoreTwoPoint EventType = "score_2point" // from outside the 40m arc

	// Shots
	ShotOnTarget EventType = "shot_on_target"
	ShotWide     EventType = "shot_wide"
	ShotSaved    EventType = "shot_saved"

	// Defensive
	TackleWon  EventType = "tackle_won"
	TackleLost EventType = "tackle_lost"
	Block      EventType = "block"

	// Possession
	TurnoverWon  EventType = "turnover_won"
	TurnoverLost EventType = "turnover_lost"

	// Kick-outs
	KickoutWon  EventType = "kickout_won"
	KickoutLost EventType = "kickout_lost"

	// Administrative
	Substitution  EventType = "substitution"
	Injury        EventType = "injury"
	FoulCommitted EventType = "foul_committed"
	FoulConceded  EventType = "foul_conceded"

	// Correction is a pure undo marker: it reverses the event named by
	// CorrectionOf and carries no effect of its own.
	Correction EventType = "correction"
)

// allEventTypes is the closed enumeration used for validation.
var allEventTypes = map[EventType]struct{}{
	ScoreGoal: {}, ScoreOnePoint: {}, ScoreTwoPoint: {},
	ShotOnTarget: {}, ShotWide: {}, ShotSaved: {},
	TackleWon: {}, TackleLost: {}, Block: {},
	TurnoverWon: {}, TurnoverLost: {},
	KickoutWon: {}, KickoutLost: {},
	Substitution: {}, Injury: {}, FoulCommitted: {}, FoulConceded: {},
	Correction: {},
}

// Valid reports whether t is part of the closed enumeration.
func (t EventType) Valid() bool {
	_, ok := allEventTypes[t]
	return ok
}

// Points returns the scoreboard value of a scoring event type (0 for
// everything else). Goals are worth 3, two-pointers 2, one-pointers 1.
func (t EventType) Points() int {
	switch t {
	case ScoreGoal:
		return 3
	case ScoreTwoPoint:
		return 2
	case ScoreOnePoint:
		return 1
	default:
		return 0
	}
}

// Kick-out outcome values carried in Payload.Outcome.
const (
	KickoutOutcomeClean    = "clean"
	KickoutOutcomeBreak    = "break"
	KickoutOutcomeSideline = "sideline"
)

// Card colours carried in Payload.Card.
const (
	CardYellow = "yellow"
	CardRed    = "red"
	CardBlack  = "black"
)

// Payload carries event-type-specific structured data. Fields are
// optional unless the event type demands them (see validate).
type Payload struct {
	AssistRef    string   `json:"assist_ref,omitempty"`
	Angle        *float64 `json:"angle,omitempty"`    // kick-out angle, degrees from own goal line
	Distance     *float64 `json:"distance,omitempty"` // kick-out distance, metres
	Outcome      string   `json:"outcome,omitempty"`  // kick-out outcome: clean, break, sideline
	PlayerOnRef  string   `json:"player_on_ref,omitempty"`
	PlayerOffRef string   `json:"player_off_ref,omitempty"`
	Card         string   `json:"card,omitempty"`
	Note         string   `json:"note,omitempty"`
}

// Event is the canonical record of one pitch-side occurrence. The
// server assigns Sequence and ReceivedAt at acceptance time; everything
// else originates on the client.
type Event struct {
	ClientEventID string    `json:"client_event_id"`
	MatchID       string    `json:"match_id"`
	Sequence      uint64    `json:"sequence"`
	Type          EventType `json:"event_type"`
	Team          Team      `json:"team"`
	ActorRef      string    `json:"actor_ref,omitempty"`
	Minute        int       `json:"minute"`
	Payload       Payload   `json:"payload"`
	CorrectionOf  uint64    `json:"correction_of,omitempty"` // 0 means not a correction
	ReceivedAt    time.Time `json:"received_at,omitzero"`
}

// Validation errors.
var (
	ErrMissingClientEventID = errors.New("missing client_event_id")
	ErrMissingMatchID       = errors.New("missing match_id")
	ErrUnknownEventType     = errors.New("unknown event_type")
	ErrUnknownTeam          = errors.New("unknown team")
	ErrInvalidMinute        = errors.New("minute out of range")
	ErrInvalidPayload       = errors.New("payload inconsistent with event_type")
	ErrMissingCorrectionRef = errors.New("correction event missing correction_of")
)

// maxMatchMinute bounds the advisory match-clock minute. Extra time in
// a GAA championship match does not realistically push past this.
const maxMatchMinute = 100

// Validate checks the client-supplied fields of an event. Sequence and
// ReceivedAt are deliberately ignored; the server owns them.
func (e *Event) Validate() error {
	if strings.TrimSpace(e.ClientEventID) == "" {
		return ErrMissingClientEventID
	}
	if strings.TrimSpace(e.MatchID) == "" {
		return ErrMissingMatchID
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	if !e.Team.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTeam, e.Team)
	}
	if e.Minute < 0 || e.Minute > maxMatchMinute {
		return fmt.Errorf("%w: %d", ErrInvalidMinute, e.Minute)
	}
	if e.Type == Correction && e.CorrectionOf == 0 {
		return ErrMissingCorrectionRef
	}
	return e.validatePayload()
}

func (e *Event) validatePayload() error {
	p := &e.Payload
	switch e.Type {
	case Substitution:
		if p.PlayerOnRef == "" || p.PlayerOffRef == "" {
			return fmt.Errorf("%w: substitution requires player_on_ref and player_off_ref", ErrInvalidPayload)
		}
	case KickoutWon, KickoutLost:
		switch p.Outcome {
		case "", KickoutOutcomeClean, KickoutOutcomeBreak, KickoutOutcomeSideline:
		default:
			return fmt.Errorf("%w: unknown kick-out outcome %q", ErrInvalidPayload, p.Outcome)
		}
		if p.Angle != nil && (*p.Angle < 0 || *p.Angle >= 360) {
			return fmt.Errorf("%w: kick-out angle out of range", ErrInvalidPayload)
		}
		if p.Distance != nil && *p.Distance < 0 {
			return fmt.Errorf("%w: negative kick-out distance", ErrInvalidPayload)
		}
	case FoulCommitted, FoulConceded:
		switch p.Card {
		case "", CardYellow, CardRed, CardBlack:
		default:
			return fmt.Errorf("%w: unknown card %q", ErrInvalidPayload, p.Card)
		}
	}
	return nil
}

// IsCorrection reports whether the event reverses a prior one.
func (e *Event) IsCorrection() bool {
	return e.CorrectionOf != 0
}
