package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pdtracker/pdtracker/internal/logging"
	"github.com/pdtracker/pdtracker/internal/schedule"
	"github.com/pdtracker/pdtracker/internal/store"
)

// Materializer turns active schedules into pending reminders.
type Materializer struct {
	DB     *store.DB
	Policy Policy
	Now    func() time.Time
	Log    logging.Logger
}

func NewMaterializer(db *store.DB, policy Policy, log logging.Logger) *Materializer {
	return &Materializer{
		DB:     db,
		Policy: policy,
		Now:    time.Now,
		Log:    log,
	}
}

// MaterializeForWake replaces today's pending reminders with the occurrences of every
// active, enabled schedule for a day that started at wake. It returns the number of
// reminders written.
func (m *Materializer) MaterializeForWake(ctx context.Context, wake time.Time) (int, error) {
	now := m.Now()
	schedules, err := m.activeSchedules(ctx)
	if err != nil {
		return 0, err
	}

	var batch []store.NewReminder
	for _, s := range schedules {
		if !s.RemindersEnabled {
			continue
		}
		for _, slot := range Occurrences(m.Policy, s.Params, wake, now) {
			batch = append(batch, store.NewReminder{
				MedicationID:  s.MedicationID,
				ScheduledTime: slot.Scheduled,
				ReminderTime:  slot.Reminder,
			})
		}
	}

	cleared, err := m.DB.ReplaceReminders(ctx, startOfDay(now), batch, now)
	if err != nil {
		return 0, fmt.Errorf("materialize reminders: %w", err)
	}
	m.Log.Infof("wake at %s: cleared %d, scheduled %d reminders", schedule.FormatTime(wake), cleared, len(batch))
	return len(batch), nil
}

// TriggerNightWake adds one immediate reminder for every active night-wake schedule
// with reminders enabled.
func (m *Materializer) TriggerNightWake(ctx context.Context) (int, error) {
	now := m.Now()
	schedules, err := m.activeSchedules(ctx)
	if err != nil {
		return 0, err
	}
	var batch []store.NewReminder
	for _, s := range schedules {
		if s.Kind != schedule.KindNightWake || !s.RemindersEnabled {
			continue
		}
		batch = append(batch, store.NewReminder{MedicationID: s.MedicationID, ScheduledTime: now, ReminderTime: now})
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := m.DB.InsertReminders(ctx, batch, now); err != nil {
		return 0, fmt.Errorf("night wake reminders: %w", err)
	}
	m.Log.Infof("night wake: scheduled %d reminders", len(batch))
	return len(batch), nil
}

// activeSchedules lists active schedules, logging and skipping rows that no longer decode.
func (m *Materializer) activeSchedules(ctx context.Context) ([]store.Schedule, error) {
	schedules, err := m.DB.ListActiveSchedules(ctx)
	if err != nil {
		if !isRowError(err) {
			return nil, fmt.Errorf("list schedules: %w", err)
		}
		m.Log.Warnf("skipping unreadable schedules: %v", err)
	}
	return schedules, nil
}

// NextInjectionDue returns when the next monthly injection is due: months*30 days after
// the last one, or today if none was recorded. It returns nil when the medication's
// active schedule is not a monthly injection.
func (m *Materializer) NextInjectionDue(ctx context.Context, medicationID int64) (*time.Time, error) {
	s, inj, err := m.injectionSchedule(ctx, medicationID)
	if err != nil || s == nil {
		return nil, err
	}
	now := m.Now()
	last, ok, err := inj.LastTakenDate(now.Location())
	if err != nil {
		return nil, err
	}
	due := startOfDay(now)
	if ok {
		due = last.AddDate(0, 0, inj.Months*30)
	}
	return &due, nil
}

// RecordInjectionTaken stores the date of the latest injection. A zero date means today.
// It reports false when the medication has no active monthly injection schedule.
func (m *Materializer) RecordInjectionTaken(ctx context.Context, medicationID int64, date time.Time) (bool, error) {
	s, inj, err := m.injectionSchedule(ctx, medicationID)
	if err != nil || s == nil {
		return false, err
	}
	if date.IsZero() {
		date = m.Now()
	}
	inj.LastTaken = date.Format(schedule.DateLayout)
	return m.DB.UpdateScheduleParams(ctx, s.ID, inj)
}

func (m *Materializer) injectionSchedule(ctx context.Context, medicationID int64) (*store.Schedule, schedule.MonthlyInjection, error) {
	s, err := m.DB.ActiveSchedule(ctx, medicationID)
	if err != nil || s == nil {
		return nil, schedule.MonthlyInjection{}, err
	}
	inj, ok := s.Params.(schedule.MonthlyInjection)
	if !ok {
		return nil, schedule.MonthlyInjection{}, nil
	}
	return s, inj, nil
}

// OccurrencesFor returns today's dose times for one medication, anchored on the last
// wake. Without a wake only fixed schedules produce times. A medication with no active
// schedule, or with reminders off, has no occurrences.
func (m *Materializer) OccurrencesFor(ctx context.Context, medicationID int64) ([]time.Time, error) {
	s, err := m.DB.ActiveSchedule(ctx, medicationID)
	if err != nil || s == nil || !s.RemindersEnabled {
		return nil, err
	}
	wake, err := m.DB.LastEvent(ctx, store.EventWake)
	if err != nil {
		return nil, err
	}

	var anchor time.Time
	switch {
	case wake != nil:
		anchor = wake.Time
	case s.Kind == schedule.KindFixed:
		// every clock time of today
	default:
		return nil, nil
	}

	var out []time.Time
	for _, slot := range Occurrences(m.Policy, s.Params, anchor, m.Now()) {
		out = append(out, slot.Scheduled)
	}
	return out, nil
}

// NextDose returns the first of today's occurrences after now, or nil.
func (m *Materializer) NextDose(ctx context.Context, medicationID int64) (*time.Time, error) {
	times, err := m.OccurrencesFor(ctx, medicationID)
	if err != nil {
		return nil, err
	}
	now := m.Now()
	for _, t := range times {
		if t.After(now) {
			return &t, nil
		}
	}
	return nil, nil
}

// DescribeStatus renders a medication's schedule with reminder state and next dose.
func (m *Materializer) DescribeStatus(ctx context.Context, medicationID int64) (string, error) {
	s, err := m.DB.ActiveSchedule(ctx, medicationID)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "No schedule", nil
	}
	status := schedule.Describe(s.Params)
	if !s.RemindersEnabled {
		status += " (reminders off)"
	}
	next, err := m.NextDose(ctx, medicationID)
	if err != nil {
		return "", err
	}
	if next != nil {
		status += "\nNext dose: " + schedule.FormatTime(*next)
	}
	return status, nil
}

// isRowError reports whether err only describes unreadable rows of a partial read.
func isRowError(err error) bool {
	return errors.Is(err, schedule.ErrInvalidScheduleParameters) || errors.Is(err, store.ErrMalformedPersistedTime)
}
