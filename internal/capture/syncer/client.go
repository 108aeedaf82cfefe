package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gaelstats/sideline/internal/capture/outbox"
	"github.com/gaelstats/sideline/internal/domain/model"
)

// ErrRejected marks a permanent server rejection. Retrying the same
// entry can never succeed, so the sync worker journals it as failed
// instead of blocking the drain.
var ErrRejected = errors.New("entry rejected")

// Client uploads outbox entries to the ingestion API.
type Client struct {
	baseURL string
	clubID  string
	http    *http.Client
}

// NewClient creates an upload client for one club against one server.
func NewClient(baseURL, clubID string) *Client {
	return &Client{
		baseURL: baseURL,
		clubID:  clubID,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type eventRequest struct {
	ClientEventID string          `json:"client_event_id"`
	Type          model.EventType `json:"event_type"`
	Team          model.Team      `json:"team"`
	ActorRef      string          `json:"actor_ref,omitempty"`
	Minute        int             `json:"minute"`
	Payload       model.Payload   `json:"payload,omitempty"`
	CorrectionOf  uint64          `json:"correction_of,omitempty"`
}

type eventResponse struct {
	Sequence  uint64 `json:"sequence"`
	Duplicate bool   `json:"duplicate"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Send uploads one entry. correctionOf carries the resolved server
// sequence when the entry corrects an earlier confirmed event.
// Accepted and duplicate responses both return the server-assigned
// sequence; a wrapped ErrRejected means the server will never take
// this entry.
func (c *Client) Send(ctx context.Context, e outbox.Entry, correctionOf uint64) (uint64, error) {
	body, err := json.Marshal(eventRequest{
		ClientEventID: e.ClientEventID,
		Type:          e.Type,
		Team:          e.Team,
		ActorRef:      e.ActorRef,
		Minute:        e.Minute,
		Payload:       e.Payload,
		CorrectionOf:  correctionOf,
	})
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}

	url := fmt.Sprintf("%s/matches/%s/events", c.baseURL, e.MatchID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Club-ID", c.clubID)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send event: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		var out eventResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return 0, fmt.Errorf("decode response: %w", err)
		}
		return out.Sequence, nil
	case permanentStatus(resp.StatusCode):
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return 0, fmt.Errorf("%w: %s (%s)", ErrRejected, eb.Message, eb.Code)
	default:
		return 0, fmt.Errorf("server returned %d", resp.StatusCode)
	}
}

// permanentStatus reports whether a response status can never change
// for the same entry. Conflict (match not yet open) and throttling
// stay retryable.
func permanentStatus(code int) bool {
	switch code {
	case http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusUnprocessableEntity:
		return true
	}
	return false
}
