package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pdtracker/pdtracker/internal/schedule"
)

// Schedule is one version of a medication's schedule. At most one per medication is active.
type Schedule struct {
	ID               int64           `json:"id"`
	MedicationID     int64           `json:"medication_id"`
	MedicationName   string          `json:"medication_name,omitempty"`
	Dosage           string          `json:"dosage,omitempty"`
	Kind             schedule.Kind   `json:"schedule_type"`
	Params           schedule.Params `json:"times_data"`
	RemindersEnabled bool            `json:"reminders_enabled"`
	Active           bool            `json:"active"`
	CreatedAt        time.Time       `json:"created_at"`
}

const scheduleColumns = `s.id, s.medication_id, COALESCE(m.name, ''), COALESCE(m.dosage, ''),
	s.schedule_type, COALESCE(s.times, ''), s.reminders_enabled, s.active, s.created_at`

// SetSchedule validates params, deactivates the medication's current schedule and
// inserts a new active one. Invalid params are rejected before anything is written.
func (db *DB) SetSchedule(ctx context.Context, medicationID int64, params schedule.Params, remindersEnabled bool) (int64, error) {
	blob, err := schedule.Encode(params)
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE medication_schedules SET active = 0 WHERE medication_id = ? AND active = 1`,
		medicationID,
	); err != nil {
		return 0, fmt.Errorf("deactivating schedule: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO medication_schedules (medication_id, schedule_type, times, active, reminders_enabled, created_at)
		 VALUES (?, ?, ?, 1, ?, ?)`,
		medicationID, string(params.Kind()), string(blob), boolInt(remindersEnabled), formatTime(time.Now()),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// ActiveSchedule returns the active schedule for a medication, or nil.
func (db *DB) ActiveSchedule(ctx context.Context, medicationID int64) (*Schedule, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+`
		 FROM medication_schedules s LEFT JOIN medications m ON m.id = s.medication_id
		 WHERE s.medication_id = ? AND s.active = 1
		 ORDER BY s.created_at DESC, s.id DESC LIMIT 1`,
		medicationID,
	)
	s, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// ListActiveSchedules returns every active schedule of an active medication, ordered
// by medication name. Schedules whose stored parameters no longer decode are left out
// and reported in the returned error.
func (db *DB) ListActiveSchedules(ctx context.Context) ([]Schedule, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+scheduleColumns+`
		 FROM medication_schedules s JOIN medications m ON m.id = s.medication_id
		 WHERE s.active = 1 AND m.active = 1
		 ORDER BY m.name, s.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Schedule
	var bad []error
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			if errors.Is(err, schedule.ErrInvalidScheduleParameters) || errors.Is(err, ErrMalformedPersistedTime) {
				bad = append(bad, err)
				continue
			}
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, errors.Join(bad...)
}

// DeactivateSchedule soft-deletes the active schedule of a medication.
// It reports false when there was none.
func (db *DB) DeactivateSchedule(ctx context.Context, medicationID int64) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE medication_schedules SET active = 0 WHERE medication_id = ? AND active = 1`, medicationID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetRemindersEnabled toggles reminders on the active schedule of a medication.
func (db *DB) SetRemindersEnabled(ctx context.Context, medicationID int64, enabled bool) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE medication_schedules SET reminders_enabled = ? WHERE medication_id = ? AND active = 1`,
		boolInt(enabled), medicationID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateScheduleParams rewrites a schedule's parameters in place. The kind cannot change.
func (db *DB) UpdateScheduleParams(ctx context.Context, scheduleID int64, params schedule.Params) (bool, error) {
	blob, err := schedule.Encode(params)
	if err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx,
		`UPDATE medication_schedules SET times = ? WHERE id = ? AND schedule_type = ?`,
		string(blob), scheduleID, string(params.Kind()))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanSchedule(r rowScanner) (*Schedule, error) {
	var s Schedule
	var kind, blob, created string
	var enabled, active int
	if err := r.Scan(&s.ID, &s.MedicationID, &s.MedicationName, &s.Dosage, &kind, &blob, &enabled, &active, &created); err != nil {
		return nil, err
	}
	s.RemindersEnabled = enabled == 1
	s.Active = active == 1

	k, err := schedule.ParseKind(kind)
	if err != nil {
		return nil, fmt.Errorf("schedule %d: %w", s.ID, err)
	}
	s.Kind = k
	if s.Params, err = schedule.Decode(k, []byte(blob)); err != nil {
		return nil, fmt.Errorf("schedule %d: %w", s.ID, err)
	}
	if s.CreatedAt, err = parseTime("medication_schedules.created_at", created); err != nil {
		return nil, fmt.Errorf("schedule %d: %w", s.ID, err)
	}
	return &s, nil
}
