package model

import (
	"errors"
	"strings"
	"time"
)

// MatchStatus tracks where a match is in its lifecycle.
type MatchStatus string

// Match lifecycle states. Events are accepted only while in progress.
const (
	MatchScheduled  MatchStatus = "scheduled"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
	MatchPostponed  MatchStatus = "postponed"
	MatchCancelled  MatchStatus = "cancelled"
)

// AcceptsEvents reports whether ingestion is open for this status.
func (s MatchStatus) AcceptsEvents() bool {
	return s == MatchInProgress
}

// Terminal reports whether the match can no longer change status.
func (s MatchStatus) Terminal() bool {
	return s == MatchCompleted || s == MatchCancelled
}

// Match describes one fixture. ClubID is the owning tenant; every
// ingest and subscribe call is checked against it.
type Match struct {
	ID          string      `json:"match_id"`
	ClubID      string      `json:"club_id"`
	Opposition  string      `json:"opposition"`
	Competition string      `json:"competition,omitempty"`
	Venue       string      `json:"venue,omitempty"`
	Status      MatchStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Match validation errors.
var (
	ErrMissingClubID     = errors.New("missing club_id")
	ErrMissingOpposition = errors.New("missing opposition")
	ErrBadStatusChange   = errors.New("invalid status transition")
)

// Validate checks the fields required to open a match.
func (m *Match) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return ErrMissingMatchID
	}
	if strings.TrimSpace(m.ClubID) == "" {
		return ErrMissingClubID
	}
	if strings.TrimSpace(m.Opposition) == "" {
		return ErrMissingOpposition
	}
	return nil
}

// CanTransition reports whether a status change is allowed. The
// lifecycle only moves forward; postponed matches may be rescheduled.
func (s MatchStatus) CanTransition(to MatchStatus) bool {
	switch s {
	case MatchScheduled:
		return to == MatchInProgress || to == MatchPostponed || to == MatchCancelled
	case MatchInProgress:
		return to == MatchCompleted || to == MatchCancelled
	case MatchPostponed:
		return to == MatchScheduled || to == MatchCancelled
	default:
		return false
	}
}
