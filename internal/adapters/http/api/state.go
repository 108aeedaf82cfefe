package api

import "net/http"

// StateHandler serves full-state snapshot reads.
type StateHandler struct {
	deps Dependencies
}

// NewStateHandler creates a new state handler.
func NewStateHandler(deps Dependencies) *StateHandler {
	return &StateHandler{deps: deps}
}

// HandleGetState returns the current aggregate for a match, with the
// tail of recent events.
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	club, err := clubID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	matchID := r.PathValue("id")

	snap, err := h.deps.SnapshotFor(r.Context(), club, matchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}
