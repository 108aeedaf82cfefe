// Package types contains the wire-level message shapes shared by the
// HTTP API and the WebSocket broadcast path.
package types

import (
	"github.com/gaelstats/sideline/internal/domain/model"
	"github.com/gaelstats/sideline/internal/domain/state"
)

// Message type discriminators carried in the "type" field.
const (
	MessageState = "state"
	MessageEvent = "event"
	MessagePong  = "pong"
)

// Snapshot is the full match state sent once per session start and on
// explicit resync. Sequence is the subscriber's starting cursor.
type Snapshot struct {
	Type         string           `json:"type"`
	MatchID      string           `json:"match_id"`
	Sequence     uint64           `json:"sequence"`
	Totals       state.MatchState `json:"totals"`
	RecentEvents []*model.Event   `json:"recent_events"`
}

// Delta is the incremental push sent to subscribed sessions for every
// accepted event, in sequence order.
type Delta struct {
	Type      string          `json:"type"`
	MatchID   string          `json:"match_id"`
	Sequence  uint64          `json:"sequence"`
	EventType model.EventType `json:"event_type"`
	Team      model.Team      `json:"team"`
	ActorRef  string          `json:"actor_ref,omitempty"`
	Minute    int             `json:"minute"`
	Payload   model.Payload   `json:"payload"`
}

// DeltaFor builds the broadcast delta for an accepted event.
func DeltaFor(ev *model.Event) Delta {
	return Delta{
		Type:      MessageEvent,
		MatchID:   ev.MatchID,
		Sequence:  ev.Sequence,
		EventType: ev.Type,
		Team:      ev.Team,
		ActorRef:  ev.ActorRef,
		Minute:    ev.Minute,
		Payload:   ev.Payload,
	}
}
