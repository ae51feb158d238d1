package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Dose is one logged intake (or explicit skip) of a medication.
type Dose struct {
	ID            int64      `json:"id"`
	MedicationID  int64      `json:"medication_id"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	TakenTime     time.Time  `json:"taken_time"`
	Skipped       bool       `json:"skipped"`
	Notes         string     `json:"notes,omitempty"`
}

// LogDose records that a medication was taken at takenTime.
func (db *DB) LogDose(ctx context.Context, medicationID int64, takenTime time.Time, scheduledTime *time.Time, notes string) (int64, error) {
	return db.insertDose(ctx, medicationID, takenTime, scheduledTime, false, notes)
}

// LogSkippedDose records that a scheduled dose was deliberately skipped.
func (db *DB) LogSkippedDose(ctx context.Context, medicationID int64, at time.Time, scheduledTime *time.Time, notes string) (int64, error) {
	return db.insertDose(ctx, medicationID, at, scheduledTime, true, notes)
}

func (db *DB) insertDose(ctx context.Context, medicationID int64, takenTime time.Time, scheduledTime *time.Time, skipped bool, notes string) (int64, error) {
	var sched sql.NullString
	if scheduledTime != nil {
		sched = sql.NullString{String: formatTime(*scheduledTime), Valid: true}
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO doses_taken (medication_id, scheduled_time, taken_time, skipped, notes) VALUES (?, ?, ?, ?, ?)`,
		medicationID, sched, formatTime(takenTime), boolInt(skipped), notes,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DosesBetween returns doses of a medication logged in [from, to], oldest first.
// Rows with unparseable times are left out and reported in the returned error.
func (db *DB) DosesBetween(ctx context.Context, medicationID int64, from, to time.Time) ([]Dose, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, medication_id, scheduled_time, taken_time, skipped, COALESCE(notes, '')
		 FROM doses_taken
		 WHERE medication_id = ? AND taken_time >= ? AND taken_time <= ?
		 ORDER BY taken_time`,
		medicationID, formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Dose
	var bad []error
	for rows.Next() {
		var d Dose
		var sched sql.NullString
		var taken string
		var skipped int
		if err := rows.Scan(&d.ID, &d.MedicationID, &sched, &taken, &skipped, &d.Notes); err != nil {
			return nil, err
		}
		d.Skipped = skipped == 1
		t, err := parseTime("doses_taken.taken_time", taken)
		if err != nil {
			bad = append(bad, err)
			continue
		}
		d.TakenTime = t
		if sched.Valid {
			st, err := parseTime("doses_taken.scheduled_time", sched.String)
			if err != nil {
				bad = append(bad, err)
				continue
			}
			d.ScheduledTime = &st
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, errors.Join(bad...)
}
