package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Reminder is a pending reminder row joined with its medication.
type Reminder struct {
	ID             int64     `json:"id"`
	MedicationID   int64     `json:"medication_id"`
	MedicationName string    `json:"medication_name"`
	Dosage         string    `json:"dosage,omitempty"`
	ScheduledTime  time.Time `json:"scheduled_time"`
	ReminderTime   time.Time `json:"reminder_time"`
	Sent           bool      `json:"sent"`
	FollowupSent   bool      `json:"followup_sent"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewReminder is a reminder to be inserted.
type NewReminder struct {
	MedicationID  int64
	ScheduledTime time.Time
	ReminderTime  time.Time
}

const reminderColumns = `r.id, r.medication_id, COALESCE(m.name, ''), COALESCE(m.dosage, ''),
	r.scheduled_time, r.reminder_time, r.sent, r.followup_sent, r.created_at`

// ReplaceReminders deletes reminders created at or after since and inserts batch, in one
// transaction. It returns the number of rows cleared.
func (db *DB) ReplaceReminders(ctx context.Context, since time.Time, batch []NewReminder, createdAt time.Time) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM pending_reminders WHERE created_at >= ?`, formatTime(since))
	if err != nil {
		return 0, fmt.Errorf("clearing reminders: %w", err)
	}
	cleared, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := insertReminders(ctx, tx, batch, createdAt); err != nil {
		return 0, err
	}
	return cleared, tx.Commit()
}

// InsertReminders adds reminders without clearing anything.
func (db *DB) InsertReminders(ctx context.Context, batch []NewReminder, createdAt time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := insertReminders(ctx, tx, batch, createdAt); err != nil {
		return err
	}
	return tx.Commit()
}

func insertReminders(ctx context.Context, tx *sql.Tx, batch []NewReminder, createdAt time.Time) error {
	for _, r := range batch {
		if r.ReminderTime.After(r.ScheduledTime) {
			return fmt.Errorf("reminder for medication %d fires after its dose", r.MedicationID)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pending_reminders (medication_id, scheduled_time, reminder_time, sent, followup_sent, created_at)
			 VALUES (?, ?, ?, 0, 0, ?)`,
			r.MedicationID, formatTime(r.ScheduledTime), formatTime(r.ReminderTime), formatTime(createdAt),
		); err != nil {
			return fmt.Errorf("inserting reminder: %w", err)
		}
	}
	return nil
}

// UnsentReminders returns reminders not yet sent, ordered by reminder time. Rows with
// unparseable times are left out and reported in the returned error.
func (db *DB) UnsentReminders(ctx context.Context) ([]Reminder, error) {
	return db.queryReminders(ctx,
		`SELECT `+reminderColumns+`
		 FROM pending_reminders r LEFT JOIN medications m ON m.id = r.medication_id
		 WHERE r.sent = 0
		 ORDER BY r.reminder_time, r.id`)
}

// UnfollowedReminders returns sent reminders without a follow-up whose dose was
// scheduled at or before cutoff, oldest first.
func (db *DB) UnfollowedReminders(ctx context.Context, cutoff time.Time) ([]Reminder, error) {
	return db.queryReminders(ctx,
		`SELECT `+reminderColumns+`
		 FROM pending_reminders r LEFT JOIN medications m ON m.id = r.medication_id
		 WHERE r.sent = 1 AND r.followup_sent = 0 AND r.scheduled_time <= ?
		 ORDER BY r.scheduled_time, r.id`,
		formatTime(cutoff))
}

// RemindersCreatedSince returns every reminder created at or after since.
func (db *DB) RemindersCreatedSince(ctx context.Context, since time.Time) ([]Reminder, error) {
	return db.queryReminders(ctx,
		`SELECT `+reminderColumns+`
		 FROM pending_reminders r LEFT JOIN medications m ON m.id = r.medication_id
		 WHERE r.created_at >= ?
		 ORDER BY r.scheduled_time, r.id`,
		formatTime(since))
}

// GetReminder returns a reminder by id, or nil.
func (db *DB) GetReminder(ctx context.Context, id int64) (*Reminder, error) {
	out, err := db.queryReminders(ctx,
		`SELECT `+reminderColumns+`
		 FROM pending_reminders r LEFT JOIN medications m ON m.id = r.medication_id
		 WHERE r.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// MarkReminderSent flips sent on an unsent reminder. It reports whether a row changed.
func (db *DB) MarkReminderSent(ctx context.Context, id int64) (bool, error) {
	res, err := db.ExecContext(ctx, `UPDATE pending_reminders SET sent = 1 WHERE id = ? AND sent = 0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkFollowupSent flips followup_sent. It reports whether a row changed.
func (db *DB) MarkFollowupSent(ctx context.Context, id int64) (bool, error) {
	res, err := db.ExecContext(ctx, `UPDATE pending_reminders SET followup_sent = 1 WHERE id = ? AND followup_sent = 0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *DB) queryReminders(ctx context.Context, query string, args ...any) ([]Reminder, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reminder
	var bad []error
	for rows.Next() {
		var r Reminder
		var scheduled, reminder, created string
		var sent, followup int
		if err := rows.Scan(&r.ID, &r.MedicationID, &r.MedicationName, &r.Dosage,
			&scheduled, &reminder, &sent, &followup, &created); err != nil {
			return nil, err
		}
		r.Sent = sent == 1
		r.FollowupSent = followup == 1
		var perr error
		if r.ScheduledTime, perr = parseTime("pending_reminders.scheduled_time", scheduled); perr == nil {
			if r.ReminderTime, perr = parseTime("pending_reminders.reminder_time", reminder); perr == nil {
				r.CreatedAt, perr = parseTime("pending_reminders.created_at", created)
			}
		}
		if perr != nil {
			bad = append(bad, fmt.Errorf("reminder %d: %w", r.ID, perr))
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, errors.Join(bad...)
}
