package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pdtracker/pdtracker/internal/logging"
	"github.com/pdtracker/pdtracker/internal/schedule"
	"github.com/pdtracker/pdtracker/internal/store"
)

// EventLog records wake and sleep events and derives the awake state from them.
type EventLog struct {
	DB           *store.DB
	Materializer *Materializer
	Now          func() time.Time
	Log          logging.Logger
}

func NewEventLog(db *store.DB, m *Materializer, log logging.Logger) *EventLog {
	return &EventLog{DB: db, Materializer: m, Now: time.Now, Log: log}
}

// RecordWake logs a wake event at t (zero means now) and materializes the day's
// reminders. The event stays logged even when materialization fails.
func (e *EventLog) RecordWake(ctx context.Context, t time.Time, notes string) (int64, error) {
	if t.IsZero() {
		t = e.Now()
	}
	id, err := e.DB.InsertEvent(ctx, store.EventWake, t, notes)
	if err != nil {
		return 0, fmt.Errorf("record wake: %w", err)
	}
	if _, err := e.Materializer.MaterializeForWake(ctx, t); err != nil {
		return id, err
	}
	return id, nil
}

// RecordSleep logs a sleep event at t (zero means now). Reminders for doses after t
// that were not sent yet are marked sent so they never fire.
func (e *EventLog) RecordSleep(ctx context.Context, t time.Time, notes string) (int64, error) {
	if t.IsZero() {
		t = e.Now()
	}
	id, suppressed, err := e.DB.InsertSleepEvent(ctx, t, notes)
	if err != nil {
		return 0, fmt.Errorf("record sleep: %w", err)
	}
	if suppressed > 0 {
		e.Log.Infof("sleep at %s: suppressed %d pending reminders", schedule.FormatTime(t), suppressed)
	}
	return id, nil
}

func (e *EventLog) LastWake(ctx context.Context) (*store.Event, error) {
	return e.DB.LastEvent(ctx, store.EventWake)
}

func (e *EventLog) LastSleep(ctx context.Context) (*store.Event, error) {
	return e.DB.LastEvent(ctx, store.EventSleep)
}

// IsAwake reports whether the latest wake is later than the latest sleep.
func (e *EventLog) IsAwake(ctx context.Context) (bool, error) {
	wake, err := e.LastWake(ctx)
	if err != nil || wake == nil {
		return false, err
	}
	sleep, err := e.LastSleep(ctx)
	if err != nil {
		return false, err
	}
	return sleep == nil || wake.Time.After(sleep.Time), nil
}

// WakeDuration returns how long the user has been awake; ok is false while asleep.
func (e *EventLog) WakeDuration(ctx context.Context, now time.Time) (d time.Duration, ok bool, err error) {
	awake, err := e.IsAwake(ctx)
	if err != nil || !awake {
		return 0, false, err
	}
	wake, err := e.LastWake(ctx)
	if err != nil || wake == nil {
		return 0, false, err
	}
	return now.Sub(wake.Time), true, nil
}

// FormatWakeTime renders a wake time relative to now: "7:30 AM", "11:00 PM (yesterday)"
// or "7:30 AM (Jan 02)".
func FormatWakeTime(wake, now time.Time) string {
	s := schedule.FormatTime(wake)
	day := startOfDay(wake)
	today := startOfDay(now)
	switch {
	case day.Equal(today):
		return s
	case day.Equal(today.AddDate(0, 0, -1)):
		return s + " (yesterday)"
	default:
		return s + " (" + wake.Format("Jan 02") + ")"
	}
}
