package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdtracker/pdtracker/internal/gateway"
	"github.com/pdtracker/pdtracker/internal/lock"
	"github.com/pdtracker/pdtracker/internal/logging"
	"github.com/pdtracker/pdtracker/internal/schedule"
	"github.com/pdtracker/pdtracker/internal/store"
)

func (f *fixture) runner(n Notifier) *Runner {
	r := NewRunner(f.events, f.ledger, n, DefaultPolicy(), logging.Nop())
	r.Now = f.clock.Now
	return r
}

func TestTickSendsOnceAndMarks(t *testing.T) {
	f := newFixture(t)
	f.medication(t, "Levodopa", "100mg", schedule.IntervalFromWake{IntervalHours: 4})
	_, err := f.events.RecordWake(f.ctx, day(7, 0), "")
	require.NoError(t, err)

	notifier := &MockNotifier{}
	r := f.runner(notifier)

	rep, err := r.Tick(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	require.Len(t, notifier.Sent(), 1)
	assert.Equal(t, "Time to take: Levodopa (100mg) [Scheduled: 7:00 AM]", notifier.Sent()[0].Content)

	rep, err = r.Tick(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Sent, "already sent")
	assert.Len(t, notifier.Sent(), 1)

	f.clock.Set(day(10, 55))
	rep, err = r.Tick(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	assert.Contains(t, notifier.Sent()[1].Content, "[Scheduled: 11:00 AM]")
}

func TestTickRetriesFailedSends(t *testing.T) {
	f := newFixture(t)
	f.medication(t, "Levodopa", "", schedule.OnWake{})
	f.medication(t, "Amantadine", "", schedule.OnWake{})
	_, err := f.events.RecordWake(f.ctx, day(7, 0), "")
	require.NoError(t, err)

	notifier := &MockNotifier{fail: true}
	r := f.runner(notifier)
	attempts := store.NewAttemptLog(f.db)
	r.Attempts = attempts

	rep, err := r.Tick(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Failed, "one failure does not stop the others")
	assert.Zero(t, rep.Sent)

	failures, err := attempts.Failures(f.ctx, 10)
	require.NoError(t, err)
	assert.Len(t, failures, 2)

	notifier.SetFail(false)
	rep, err = r.Tick(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Sent)

	due, err := f.ledger.DueReminders(f.ctx, day(7, 0))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestTickSkipsWhileAsleep(t *testing.T) {
	f := newFixture(t)
	medID, _ := f.db.AddMedication(f.ctx, "Levodopa", "", "")
	f.reminder(t, medID, day(7, 0), day(7, 0))

	notifier := &MockNotifier{}
	r := f.runner(notifier)
	rep, err := r.Tick(f.ctx)
	require.NoError(t, err)
	assert.True(t, rep.Asleep)
	assert.Empty(t, notifier.Sent())

	// night wake delivers without a wake event
	rep, err = r.Flush(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
}

func TestTickSendsFollowupOnce(t *testing.T) {
	f := newFixture(t)
	medID := f.medication(t, "Levodopa", "", schedule.MidDay{})
	other := f.medication(t, "Amantadine", "", schedule.MidDay{})
	_, err := f.events.RecordWake(f.ctx, day(7, 0), "")
	require.NoError(t, err)

	notifier := &MockNotifier{}
	r := f.runner(notifier)

	f.clock.Set(day(12, 55))
	rep, err := r.Tick(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Sent)

	_, err = f.db.LogDose(f.ctx, other, day(13, 2), nil, "")
	require.NoError(t, err)

	f.clock.Set(day(13, 15))
	rep, err = r.Tick(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Followups)
	last := notifier.Sent()[len(notifier.Sent())-1]
	assert.Equal(t, "Did you take your Levodopa? It was scheduled for 1:00 PM.", last.Content)
	assert.Equal(t, "followup", last.Kind)

	rep, err = r.Tick(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Followups)

	rs := f.today(t)
	for _, rem := range rs {
		assert.Equal(t, rem.MedicationID == medID, rem.FollowupSent, "medication %d", rem.MedicationID)
	}
}

func TestTickReportsMalformedRowsAndContinues(t *testing.T) {
	f := newFixture(t)
	f.medication(t, "Levodopa", "", schedule.OnWake{})
	_, err := f.events.RecordWake(f.ctx, day(7, 0), "")
	require.NoError(t, err)
	_, err = f.db.ExecContext(f.ctx,
		`INSERT INTO pending_reminders (medication_id, scheduled_time, reminder_time, created_at) VALUES (1, 'garbage', '', 'x')`)
	require.NoError(t, err)

	notifier := &MockNotifier{}
	rep, err := f.runner(notifier).Tick(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	require.NotEmpty(t, rep.Errors)
	assert.ErrorIs(t, rep.Errors[0], store.ErrMalformedPersistedTime)
}

type heldLock struct{}

func (heldLock) WithLock(ctx context.Context, name string, fn func(context.Context) error) error {
	return lock.ErrNotAcquired
}

type downLock struct{}

func (downLock) WithLock(ctx context.Context, name string, fn func(context.Context) error) error {
	return fmt.Errorf("%w: acquire %s lock: dial tcp: connection refused", lock.ErrUnavailable, name)
}

type countingLock struct {
	mu    sync.Mutex
	names []string
}

func (c *countingLock) WithLock(ctx context.Context, name string, fn func(context.Context) error) error {
	c.mu.Lock()
	c.names = append(c.names, name)
	c.mu.Unlock()
	return fn(ctx)
}

func TestTickUnderLock(t *testing.T) {
	f := newFixture(t)
	f.medication(t, "Levodopa", "", schedule.OnWake{})
	_, err := f.events.RecordWake(f.ctx, day(7, 0), "")
	require.NoError(t, err)

	notifier := &MockNotifier{}
	r := f.runner(notifier)
	r.Lock = heldLock{}
	rep, err := r.Tick(f.ctx)
	require.NoError(t, err)
	assert.True(t, rep.Locked)
	assert.Empty(t, notifier.Sent())

	cl := &countingLock{}
	r.Lock = cl
	rep, err = r.Tick(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, []string{"delivery"}, cl.names)
}

func TestTickDeliversWhenLockBackendDown(t *testing.T) {
	f := newFixture(t)
	f.medication(t, "Levodopa", "", schedule.OnWake{})
	_, err := f.events.RecordWake(f.ctx, day(7, 0), "")
	require.NoError(t, err)

	notifier := &MockNotifier{}
	r := f.runner(notifier)
	r.Lock = downLock{}
	rep, err := r.Tick(f.ctx)
	require.NoError(t, err)
	assert.True(t, rep.Unlocked)
	assert.False(t, rep.Locked)
	assert.Equal(t, 1, rep.Sent)
	assert.Len(t, notifier.Sent(), 1)
}

type panicNotifier struct{}

func (panicNotifier) Send(ctx context.Context, msg gateway.Message) (gateway.Result, error) {
	panic("boom")
}

func TestSafeTickRecoversPanic(t *testing.T) {
	f := newFixture(t)
	f.medication(t, "Levodopa", "", schedule.OnWake{})
	_, err := f.events.RecordWake(f.ctx, day(7, 0), "")
	require.NoError(t, err)

	r := f.runner(panicNotifier{})
	assert.NotPanics(t, func() { r.safeTick(f.ctx) })
}

func TestStartTicksImmediatelyAndStops(t *testing.T) {
	f := newFixture(t)
	f.medication(t, "Levodopa", "", schedule.OnWake{})
	_, err := f.events.RecordWake(f.ctx, day(7, 0), "")
	require.NoError(t, err)

	notifier := &MockNotifier{calls: make(chan struct{}, 1)}
	r := f.runner(notifier)
	r.Interval = time.Hour
	r.Start()

	select {
	case <-notifier.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("first tick did not run at start")
	}
	r.Stop()
	r.Stop() // idempotent
	assert.Len(t, notifier.Sent(), 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	r := f.runner(&MockNotifier{})
	r.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(f.ctx)
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestGatewayErrorStaysInDetail(t *testing.T) {
	f := newFixture(t)
	f.medication(t, "Levodopa", "", schedule.OnWake{})
	_, err := f.events.RecordWake(f.ctx, day(7, 0), "")
	require.NoError(t, err)

	gw := gateway.New(logging.Nop()) // no channels
	r := f.runner(gw)
	attempts := store.NewAttemptLog(f.db)
	r.Attempts = attempts

	rep, err := r.Tick(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	failures, err := attempts.Failures(f.ctx, 1)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.True(t, strings.Contains(failures[0].Message, "no channels configured"))
	assert.Equal(t, "reminder", failures[0].Component)
}
