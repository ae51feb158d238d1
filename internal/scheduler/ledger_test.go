package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdtracker/pdtracker/internal/store"
)

func (f *fixture) reminder(t *testing.T, medID int64, scheduled, reminder time.Time) int64 {
	t.Helper()
	require.NoError(t, f.db.InsertReminders(f.ctx, []store.NewReminder{
		{MedicationID: medID, ScheduledTime: scheduled, ReminderTime: reminder},
	}, f.clock.Now()))
	rs, err := f.db.RemindersCreatedSince(f.ctx, time.Time{})
	require.NoError(t, err)
	for _, r := range rs {
		if r.MedicationID == medID && r.ScheduledTime.Equal(scheduled) {
			return r.ID
		}
	}
	t.Fatalf("reminder for %s not found", scheduled)
	return 0
}

func TestDueRemindersBoundary(t *testing.T) {
	f := newFixture(t)
	medID, _ := f.db.AddMedication(f.ctx, "Levodopa", "", "")
	f.reminder(t, medID, day(8, 5), day(8, 0))

	due, err := f.ledger.DueReminders(f.ctx, day(8, 0).Add(-time.Second))
	require.NoError(t, err)
	assert.Empty(t, due, "reminder one second in the future")

	due, err = f.ledger.DueReminders(f.ctx, day(8, 0))
	require.NoError(t, err)
	require.Len(t, due, 1)

	upcoming, err := f.ledger.Upcoming(f.ctx, day(7, 0))
	require.NoError(t, err)
	assert.Len(t, upcoming, 1)

	ok, err := f.ledger.MarkSent(f.ctx, due[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.ledger.MarkSent(f.ctx, due[0].ID)
	require.NoError(t, err)
	assert.False(t, ok)

	due, err = f.ledger.DueReminders(f.ctx, day(9, 0))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestOverdueDoseSuppression(t *testing.T) {
	for _, tc := range []struct {
		name     string
		taken    time.Time
		suppress bool
	}{
		{"dose three minutes late", day(11, 3), true},
		{"dose before reminder", day(10, 40), true},
		{"dose forty-five minutes late", day(11, 45), false},
		{"dose exactly at tolerance", day(11, 30), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			medID, _ := f.db.AddMedication(f.ctx, "Levodopa", "", "")
			id := f.reminder(t, medID, day(11, 0), day(10, 55))
			_, err := f.ledger.MarkSent(f.ctx, id)
			require.NoError(t, err)
			_, err = f.db.LogDose(f.ctx, medID, tc.taken, nil, "")
			require.NoError(t, err)

			overdue, err := f.ledger.OverdueReminders(f.ctx, day(12, 0), 15*time.Minute)
			require.NoError(t, err)
			if tc.suppress {
				assert.Empty(t, overdue)
			} else {
				require.Len(t, overdue, 1)
				assert.Equal(t, id, overdue[0].ID)
			}
		})
	}
}

func TestOverdueWindowAndFlags(t *testing.T) {
	f := newFixture(t)
	medID, _ := f.db.AddMedication(f.ctx, "Levodopa", "", "")
	id := f.reminder(t, medID, day(11, 0), day(10, 55))

	overdue, err := f.ledger.OverdueReminders(f.ctx, day(12, 0), 15*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, overdue, "unsent reminders never get follow-ups")

	_, err = f.ledger.MarkSent(f.ctx, id)
	require.NoError(t, err)
	overdue, err = f.ledger.OverdueReminders(f.ctx, day(11, 14), 15*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, overdue, "inside the follow-up window")

	overdue, err = f.ledger.OverdueReminders(f.ctx, day(11, 15), 15*time.Minute)
	require.NoError(t, err)
	require.Len(t, overdue, 1)

	ok, err := f.ledger.MarkFollowupSent(f.ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	overdue, err = f.ledger.OverdueReminders(f.ctx, day(13, 0), 15*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, overdue)
}

type brokenDoses struct{}

func (brokenDoses) DosesBetween(ctx context.Context, medicationID int64, from, to time.Time) ([]store.Dose, error) {
	return nil, errors.New("dose log offline")
}

func TestOverdueSkipsUnreadableDoseLog(t *testing.T) {
	f := newFixture(t)
	medID, _ := f.db.AddMedication(f.ctx, "Levodopa", "", "")
	id := f.reminder(t, medID, day(11, 0), day(10, 55))
	_, err := f.ledger.MarkSent(f.ctx, id)
	require.NoError(t, err)

	l := NewLedger(f.db, brokenDoses{}, 30*time.Minute)
	overdue, err := l.OverdueReminders(f.ctx, day(12, 0), 15*time.Minute)
	assert.Error(t, err)
	assert.Empty(t, overdue)
}
