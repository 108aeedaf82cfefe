// Package outbox provides the durable pitch-side event journal.
//
// Every captured event lands in local SQLite before anything touches
// the network. The sync worker drains entries in capture order and
// records the server-assigned sequence in a confirmations table, so
// a crash between send and acknowledgment is recovered by resending
// the same client_event_id.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gaelstats/sideline/internal/domain/model"
	"github.com/gaelstats/sideline/pkg/metrics"
)

// Entry status values.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// Entry is one captured event waiting for (or rejected from) upload.
type Entry struct {
	ClientEventID    string
	MatchID          string
	Type             model.EventType
	Team             model.Team
	ActorRef         string
	Minute           int
	Payload          model.Payload
	CorrectsClientID string
	Status           string
	Attempts         int
	LastError        string
	EnqueuedAt       time.Time
}

// Outbox manages the local SQLite journal with WAL mode for
// concurrent capture and sync access.
type Outbox struct {
	db *sql.DB
}

// New opens (or creates) the outbox database and initializes the schema.
func New(path string) (*Outbox, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	o := &Outbox{db: db}
	if err := o.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate outbox: %w", err)
	}
	return o, nil
}

// Close closes the database connection.
func (o *Outbox) Close() error { return o.db.Close() }

func retryOnContention(fn func() error) error {
	return retryOp(defaultRetryConfig, fn)
}

func (o *Outbox) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		client_event_id    TEXT PRIMARY KEY,
		match_id           TEXT NOT NULL,
		event_type         TEXT NOT NULL,
		team               TEXT NOT NULL,
		actor_ref          TEXT,
		minute             INTEGER NOT NULL,
		payload            TEXT,
		corrects_client_id TEXT,
		status             TEXT NOT NULL DEFAULT 'pending',
		attempts           INTEGER NOT NULL DEFAULT 0,
		last_attempt_at    TEXT,
		last_error         TEXT,
		enqueued_at        TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(status);
	CREATE INDEX IF NOT EXISTS idx_entries_match ON entries(match_id);

	CREATE TABLE IF NOT EXISTS confirmations (
		client_event_id TEXT PRIMARY KEY,
		sequence        INTEGER NOT NULL,
		confirmed_at    TEXT NOT NULL
	);
	`
	_, err := o.db.Exec(schema)
	return err
}

// Enqueue journals one captured event. It never touches the network;
// capture must succeed whether or not the venue has coverage.
func (o *Outbox) Enqueue(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err = retryOnContention(func() error {
		_, err := o.db.ExecContext(ctx,
			`INSERT INTO entries
			 (client_event_id, match_id, event_type, team, actor_ref, minute,
			  payload, corrects_client_id, status, enqueued_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ClientEventID, e.MatchID, string(e.Type), string(e.Team),
			e.ActorRef, e.Minute, string(payload), e.CorrectsClientID,
			StatusPending, now,
		)
		return err
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicateEntry, e.ClientEventID)
		}
		return fmt.Errorf("enqueue: %w", err)
	}
	o.refreshPendingGauge(ctx)
	return nil
}

// Pending returns unsent entries in capture order.
func (o *Outbox) Pending(ctx context.Context) ([]Entry, error) {
	return o.byStatus(ctx, StatusPending)
}

// Failed returns permanently rejected entries in capture order. They
// stay journaled for the operator to review; nothing retries them.
func (o *Outbox) Failed(ctx context.Context) ([]Entry, error) {
	return o.byStatus(ctx, StatusFailed)
}

func (o *Outbox) byStatus(ctx context.Context, status string) ([]Entry, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT client_event_id, match_id, event_type, team, actor_ref, minute,
		        payload, corrects_client_id, status, attempts, last_error, enqueued_at
		 FROM entries WHERE status = ? ORDER BY rowid`, status)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var payload, actorRef, corrects, lastErr sql.NullString
	var enqueued string
	if err := rows.Scan(&e.ClientEventID, &e.MatchID, &e.Type, &e.Team,
		&actorRef, &e.Minute, &payload, &corrects, &e.Status,
		&e.Attempts, &lastErr, &enqueued); err != nil {
		return Entry{}, fmt.Errorf("scan entry: %w", err)
	}
	e.ActorRef = actorRef.String
	e.CorrectsClientID = corrects.String
	e.LastError = lastErr.String
	if payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
			return Entry{}, fmt.Errorf("decode payload: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, enqueued); err == nil {
		e.EnqueuedAt = t
	}
	return e, nil
}

// RecordAttempt bumps the attempt counter after a transient delivery
// failure. The entry stays pending.
func (o *Outbox) RecordAttempt(ctx context.Context, clientEventID, errMsg string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return retryOnContention(func() error {
		_, err := o.db.ExecContext(ctx,
			`UPDATE entries SET attempts = attempts + 1, last_attempt_at = ?, last_error = ?
			 WHERE client_event_id = ?`,
			now, errMsg, clientEventID,
		)
		return err
	})
}

// Confirm records the server-assigned sequence and retires the entry.
// Confirming twice is harmless.
func (o *Outbox) Confirm(ctx context.Context, clientEventID string, sequence uint64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := retryOnContention(func() error {
		tx, err := o.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO confirmations (client_event_id, sequence, confirmed_at)
			 VALUES (?, ?, ?)
			 ON CONFLICT(client_event_id) DO NOTHING`,
			clientEventID, sequence, now,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE entries SET status = ? WHERE client_event_id = ?`,
			StatusConfirmed, clientEventID,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("confirm: %w", err)
	}
	o.refreshPendingGauge(ctx)
	return nil
}

// MarkFailed marks an entry as permanently rejected. The journaled
// row survives for review.
func (o *Outbox) MarkFailed(ctx context.Context, clientEventID, reason string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := retryOnContention(func() error {
		_, err := o.db.ExecContext(ctx,
			`UPDATE entries SET status = ?, last_attempt_at = ?, last_error = ?
			 WHERE client_event_id = ?`,
			StatusFailed, now, reason, clientEventID,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	o.refreshPendingGauge(ctx)
	return nil
}

// SequenceFor resolves the server sequence a confirmed entry was
// assigned. Corrections use it to fill correction_of before upload.
func (o *Outbox) SequenceFor(ctx context.Context, clientEventID string) (uint64, error) {
	var seq uint64
	err := o.db.QueryRowContext(ctx,
		`SELECT sequence FROM confirmations WHERE client_event_id = ?`,
		clientEventID,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNotConfirmed, clientEventID)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup confirmation: %w", err)
	}
	return seq, nil
}

// PendingCount returns the number of entries awaiting upload.
func (o *Outbox) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := o.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE status = ?`, StatusPending,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

func (o *Outbox) refreshPendingGauge(ctx context.Context) {
	if n, err := o.PendingCount(ctx); err == nil {
		metrics.UpdateOutboxPending(n)
	}
}
