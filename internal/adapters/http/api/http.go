// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/gaelstats/sideline/internal/adapters/repository"
	"github.com/gaelstats/sideline/internal/adapters/ws"
	"github.com/gaelstats/sideline/internal/domain/model"
	"github.com/gaelstats/sideline/internal/domain/types"
	"github.com/gaelstats/sideline/internal/ingest"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	OpenMatch(ctx context.Context, clubID string, m model.Match) error
	SetMatchStatus(ctx context.Context, clubID, matchID string, to model.MatchStatus) error
	Ingest(ctx context.Context, clubID string, ev *model.Event) (ingest.Result, error)
	SnapshotFor(ctx context.Context, clubID, matchID string) (types.Snapshot, error)
	Authorize(ctx context.Context, clubID, matchID string) error
	Subscribe(ctx context.Context, clubID, matchID string, conn *websocket.Conn) (*ws.Session, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	matchesHandler   *MatchesHandler
	eventsHandler    *EventsHandler
	stateHandler     *StateHandler
	subscribeHandler *SubscribeHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		matchesHandler:   NewMatchesHandler(deps),
		eventsHandler:    NewEventsHandler(deps),
		stateHandler:     NewStateHandler(deps),
		subscribeHandler: NewSubscribeHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /matches", MetricsMiddleware(s.matchesHandler.HandleOpenMatch, "matches"))
	mux.HandleFunc("POST /matches/{id}/start", MetricsMiddleware(s.matchesHandler.HandleStartMatch, "match_start"))
	mux.HandleFunc("POST /matches/{id}/complete", MetricsMiddleware(s.matchesHandler.HandleCompleteMatch, "match_complete"))
	mux.HandleFunc("POST /matches/{id}/events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("GET /matches/{id}/state", MetricsMiddleware(s.stateHandler.HandleGetState, "state"))
	mux.HandleFunc("GET /ws/matches/{id}", s.subscribeHandler.HandleSubscribe)
}

// clubID extracts the caller identity placed on the request by the
// auth collaborator in front of this service.
func clubID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get("X-Club-ID"))
	if id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps domain error kinds onto HTTP statuses and
// stable error codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", err)
	case errors.Is(err, ingest.ErrTenantMismatch):
		writeError(w, http.StatusForbidden, "club_mismatch", err)
	case errors.Is(err, repository.ErrMatchNotFound):
		writeError(w, http.StatusNotFound, "match_not_found", err)
	case errors.Is(err, repository.ErrMatchExists):
		writeError(w, http.StatusConflict, "match_exists", err)
	case errors.Is(err, ingest.ErrMatchNotOpen), errors.Is(err, model.ErrBadStatusChange):
		writeError(w, http.StatusConflict, "match_not_open", err)
	case errors.Is(err, ingest.ErrUnknownCorrection):
		writeError(w, http.StatusUnprocessableEntity, "unknown_correction", err)
	case errors.Is(err, ingest.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_rejected", err)
	case errors.Is(err, ingest.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ingest.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}
