package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pdtracker/pdtracker/internal/store"
)

// DoseLog is the read side of the dose log used to suppress follow-ups.
type DoseLog interface {
	DosesBetween(ctx context.Context, medicationID int64, from, to time.Time) ([]store.Dose, error)
}

// Ledger answers which pending reminders need a send.
type Ledger struct {
	DB        *store.DB
	Doses     DoseLog
	Tolerance time.Duration
}

func NewLedger(db *store.DB, doses DoseLog, tolerance time.Duration) *Ledger {
	return &Ledger{DB: db, Doses: doses, Tolerance: tolerance}
}

// DueReminders returns unsent reminders whose reminder time is at or before now.
// Unreadable rows are left out and described by the returned error.
func (l *Ledger) DueReminders(ctx context.Context, now time.Time) ([]store.Reminder, error) {
	unsent, err := l.DB.UnsentReminders(ctx)
	var due []store.Reminder
	for _, r := range unsent {
		if !r.ReminderTime.After(now) {
			due = append(due, r)
		}
	}
	return due, err
}

// Upcoming returns unsent reminders that are not due yet, by reminder time.
func (l *Ledger) Upcoming(ctx context.Context, now time.Time) ([]store.Reminder, error) {
	unsent, err := l.DB.UnsentReminders(ctx)
	var out []store.Reminder
	for _, r := range unsent {
		if r.ReminderTime.After(now) {
			out = append(out, r)
		}
	}
	return out, err
}

// OverdueReminders returns sent reminders without a follow-up whose dose was due at
// least window ago and for which no dose was logged within Tolerance of the
// scheduled time. A medication whose doses cannot be read is left out this time.
func (l *Ledger) OverdueReminders(ctx context.Context, now time.Time, window time.Duration) ([]store.Reminder, error) {
	candidates, err := l.DB.UnfollowedReminders(ctx, now.Add(-window))
	if len(candidates) == 0 {
		return nil, err
	}
	errs := []error{err}

	byMed := map[int64][]store.Reminder{}
	var order []int64
	for _, r := range candidates {
		if _, ok := byMed[r.MedicationID]; !ok {
			order = append(order, r.MedicationID)
		}
		byMed[r.MedicationID] = append(byMed[r.MedicationID], r)
	}

	var out []store.Reminder
	for _, medID := range order {
		rs := byMed[medID]
		// rs is ordered by scheduled time
		from := rs[0].ScheduledTime.Add(-l.Tolerance)
		to := rs[len(rs)-1].ScheduledTime.Add(l.Tolerance)
		doses, derr := l.Doses.DosesBetween(ctx, medID, from, to)
		if derr != nil && len(doses) == 0 {
			errs = append(errs, fmt.Errorf("doses for medication %d: %w", medID, derr))
			continue
		}
		if derr != nil {
			errs = append(errs, derr)
		}
		for _, r := range rs {
			if !l.doseNear(doses, r.ScheduledTime) {
				out = append(out, r)
			}
		}
	}
	return out, errors.Join(errs...)
}

func (l *Ledger) doseNear(doses []store.Dose, scheduled time.Time) bool {
	for _, d := range doses {
		diff := d.TakenTime.Sub(scheduled)
		if diff < 0 {
			diff = -diff
		}
		if diff < l.Tolerance {
			return true
		}
	}
	return false
}

// MarkSent flags a reminder as sent. It reports false when it already was.
func (l *Ledger) MarkSent(ctx context.Context, id int64) (bool, error) {
	return l.DB.MarkReminderSent(ctx, id)
}

// MarkFollowupSent flags a reminder's follow-up as sent. It reports false when it already was.
func (l *Ledger) MarkFollowupSent(ctx context.Context, id int64) (bool, error) {
	return l.DB.MarkFollowupSent(ctx, id)
}
