package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/gaelstats/sideline/internal/domain/model"
)

// MatchesHandler handles match lifecycle requests.
type MatchesHandler struct {
	deps Dependencies
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(deps Dependencies) *MatchesHandler {
	return &MatchesHandler{deps: deps}
}

type openMatchRequest struct {
	ID          string `json:"id,omitempty"`
	Opposition  string `json:"opposition"`
	Competition string `json:"competition,omitempty"`
	Venue       string `json:"venue,omitempty"`
}

type openMatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// HandleOpenMatch registers a new fixture for the caller's club.
func (h *MatchesHandler) HandleOpenMatch(w http.ResponseWriter, r *http.Request) {
	club, err := clubID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req openMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	m := model.Match{
		ID:          req.ID,
		Opposition:  req.Opposition,
		Competition: req.Competition,
		Venue:       req.Venue,
	}
	if err := h.deps.OpenMatch(r.Context(), club, m); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, openMatchResponse{
		ID:     req.ID,
		Status: string(model.MatchScheduled),
	})
}

// HandleStartMatch moves a scheduled match into play.
func (h *MatchesHandler) HandleStartMatch(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.MatchInProgress)
}

// HandleCompleteMatch finishes a match; its sequencer and sessions are
// released.
func (h *MatchesHandler) HandleCompleteMatch(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.MatchCompleted)
}

func (h *MatchesHandler) transition(w http.ResponseWriter, r *http.Request, to model.MatchStatus) {
	club, err := clubID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	matchID := r.PathValue("id")

	if err := h.deps.SetMatchStatus(r.Context(), club, matchID, to); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, openMatchResponse{ID: matchID, Status: string(to)})
}
