package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// EventKind is the type of a wake/sleep event.
type EventKind string

const (
	EventWake  EventKind = "wake"
	EventSleep EventKind = "sleep"
)

// Event is one entry of the append-only wake/sleep log.
type Event struct {
	ID    int64     `json:"id"`
	Kind  EventKind `json:"event_type"`
	Time  time.Time `json:"event_time"`
	Notes string    `json:"notes,omitempty"`
}

// InsertEvent appends an event to the log.
func (db *DB) InsertEvent(ctx context.Context, kind EventKind, at time.Time, notes string) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO wake_sleep_events (event_type, event_time, notes) VALUES (?, ?, ?)`,
		string(kind), formatTime(at), notes,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertSleepEvent appends a sleep event and, in the same transaction, marks every
// unsent reminder scheduled after at as sent (and followed up) so nothing fires
// while the user is asleep. It returns the event id and the number of suppressed reminders.
func (db *DB) InsertSleepEvent(ctx context.Context, at time.Time, notes string) (int64, int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO wake_sleep_events (event_type, event_time, notes) VALUES (?, ?, ?)`,
		string(EventSleep), formatTime(at), notes,
	)
	if err != nil {
		return 0, 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, 0, err
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE pending_reminders SET sent = 1, followup_sent = 1 WHERE scheduled_time > ? AND sent = 0`,
		formatTime(at),
	)
	if err != nil {
		return 0, 0, fmt.Errorf("suppressing reminders: %w", err)
	}
	suppressed, err := res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return id, suppressed, nil
}

// LastEvent returns the most recent event of kind regardless of date, or nil.
func (db *DB) LastEvent(ctx context.Context, kind EventKind) (*Event, error) {
	var e Event
	var k, at string
	err := db.QueryRowContext(ctx,
		`SELECT id, event_type, event_time, COALESCE(notes, '') FROM wake_sleep_events
		 WHERE event_type = ? ORDER BY event_time DESC, id DESC LIMIT 1`,
		string(kind),
	).Scan(&e.ID, &k, &at, &e.Notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Kind = EventKind(k)
	if e.Time, err = parseTime("wake_sleep_events.event_time", at); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEvents returns events at or after since, oldest first.
func (db *DB) ListEvents(ctx context.Context, since time.Time) ([]Event, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, event_type, event_time, COALESCE(notes, '') FROM wake_sleep_events
		 WHERE event_time >= ? ORDER BY event_time, id`,
		formatTime(since),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	var bad []error
	for rows.Next() {
		var e Event
		var k, at string
		if err := rows.Scan(&e.ID, &k, &at, &e.Notes); err != nil {
			return nil, err
		}
		e.Kind = EventKind(k)
		t, err := parseTime("wake_sleep_events.event_time", at)
		if err != nil {
			bad = append(bad, err)
			continue
		}
		e.Time = t
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, errors.Join(bad...)
}
