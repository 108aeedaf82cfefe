package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gaelstats/sideline/internal/domain/model"
)

// EventsHandler handles event ingestion requests.
type EventsHandler struct {
	deps Dependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps Dependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

type postEventRequest struct {
	ClientEventID string          `json:"client_event_id"`
	Type          model.EventType `json:"event_type"`
	Team          model.Team      `json:"team"`
	ActorRef      string          `json:"actor_ref,omitempty"`
	Minute        int             `json:"minute"`
	Payload       model.Payload   `json:"payload,omitempty"`
	CorrectionOf  uint64          `json:"correction_of,omitempty"`
}

type postEventResponse struct {
	Sequence  uint64 `json:"sequence"`
	Duplicate bool   `json:"duplicate"`
}

// HandlePostEvent accepts one match event. Replaying the same
// client_event_id returns the originally assigned sequence.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	club, err := clubID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	matchID := r.PathValue("id")

	var req postEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}

	ev := &model.Event{
		ClientEventID: req.ClientEventID,
		MatchID:       matchID,
		Type:          req.Type,
		Team:          req.Team,
		ActorRef:      req.ActorRef,
		Minute:        req.Minute,
		Payload:       req.Payload,
		CorrectionOf:  req.CorrectionOf,
	}

	res, err := h.deps.Ingest(r.Context(), club, ev)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, postEventResponse{Sequence: res.Sequence, Duplicate: res.Duplicate})
}
