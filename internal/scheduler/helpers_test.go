package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pdtracker/pdtracker/internal/gateway"
	"github.com/pdtracker/pdtracker/internal/logging"
	"github.com/pdtracker/pdtracker/internal/schedule"
	"github.com/pdtracker/pdtracker/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fixture struct {
	ctx    context.Context
	db     *store.DB
	clock  *fakeClock
	mat    *Materializer
	events *EventLog
	ledger *Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := &fakeClock{t: day(7, 0)}
	log := logging.Nop()
	mat := NewMaterializer(db, DefaultPolicy(), log)
	mat.Now = clock.Now
	events := NewEventLog(db, mat, log)
	events.Now = clock.Now
	return &fixture{
		ctx:    ctx,
		db:     db,
		clock:  clock,
		mat:    mat,
		events: events,
		ledger: NewLedger(db, db, DefaultPolicy().DoseTolerance),
	}
}

// medication adds a medication with an active schedule and returns its id.
func (f *fixture) medication(t *testing.T, name, dosage string, p schedule.Params) int64 {
	t.Helper()
	id, err := f.db.AddMedication(f.ctx, name, dosage, "")
	require.NoError(t, err)
	_, err = f.db.SetSchedule(f.ctx, id, p, true)
	require.NoError(t, err)
	return id
}

func (f *fixture) today(t *testing.T) []store.Reminder {
	t.Helper()
	rs, err := f.db.RemindersCreatedSince(f.ctx, startOfDay(f.clock.Now()))
	require.NoError(t, err)
	return rs
}

// day returns 2024-01-01 at hour:min local time.
func day(hour, min int) time.Time {
	return time.Date(2024, 1, 1, hour, min, 0, 0, time.Local)
}

type MockNotifier struct {
	mu    sync.Mutex
	sent  []gateway.Message
	fail  bool
	calls chan struct{}
}

func (m *MockNotifier) Send(ctx context.Context, msg gateway.Message) (gateway.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls != nil {
		select {
		case m.calls <- struct{}{}:
		default:
		}
	}
	if m.fail {
		return gateway.Result{}, gateway.ErrGatewayFailure
	}
	m.sent = append(m.sent, msg)
	return gateway.Result{ID: "mock"}, nil
}

func (m *MockNotifier) Sent() []gateway.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]gateway.Message(nil), m.sent...)
}

func (m *MockNotifier) SetFail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}
