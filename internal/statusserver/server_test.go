package statusserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdtracker/pdtracker/internal/health"
	"github.com/pdtracker/pdtracker/internal/logging"
	"github.com/pdtracker/pdtracker/internal/schedule"
	"github.com/pdtracker/pdtracker/internal/scheduler"
	"github.com/pdtracker/pdtracker/internal/store"
)

func newServer(t *testing.T, now time.Time) (*Server, *store.DB) {
	t.Helper()
	db, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := func() time.Time { return now }
	mat := scheduler.NewMaterializer(db, scheduler.DefaultPolicy(), logging.Nop())
	mat.Now = clock
	events := scheduler.NewEventLog(db, mat, logging.Nop())
	events.Now = clock

	reg := health.NewRegistry()
	reg.Register("database", db)
	return &Server{
		Health:   reg,
		Events:   events,
		Ledger:   scheduler.NewLedger(db, db, 30*time.Minute),
		Failures: store.NewAttemptLog(db),
		Now:      clock,
		Log:      logging.Nop(),
	}, db
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	return rec.Code
}

func TestStatusAwakeWithUpcoming(t *testing.T) {
	ctx := context.Background()
	wake := time.Date(2024, 1, 1, 7, 0, 0, 0, time.Local)
	now := wake.Add(3 * time.Hour)
	srv, db := newServer(t, now)

	medID, err := db.AddMedication(ctx, "Levodopa", "100mg", "")
	require.NoError(t, err)
	_, err = db.SetSchedule(ctx, medID, schedule.IntervalFromWake{IntervalHours: 4}, true)
	require.NoError(t, err)
	_, err = srv.Events.RecordWake(ctx, wake, "")
	require.NoError(t, err)

	var resp statusResponse
	code := get(t, srv.Handler(), "/status", &resp)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Awake)
	assert.Equal(t, "7:00 AM", resp.AwakeSince)
	assert.Equal(t, "3 hours", resp.AwakeFor)

	// 07:00 is due (unsent), 11:00 onwards are upcoming
	require.Len(t, resp.Upcoming, 4)
	assert.Equal(t, "Levodopa", resp.Upcoming[0].Medication)
	assert.True(t, resp.Upcoming[0].ScheduledTime.Equal(wake.Add(4*time.Hour)))
	assert.Equal(t, "1 hour from now", resp.Upcoming[0].Due)
}

func TestStatusAsleep(t *testing.T) {
	srv, _ := newServer(t, time.Now())
	var resp statusResponse
	code := get(t, srv.Handler(), "/status", &resp)
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, resp.Awake)
	assert.Empty(t, resp.AwakeSince)
	assert.Empty(t, resp.Upcoming)
}

func TestHealthIncludesFailures(t *testing.T) {
	srv, db := newServer(t, time.Now())
	require.NoError(t, store.NewAttemptLog(db).Record(context.Background(), 1, "reminder", false, "twilio: 503"))

	var report health.HealthReport
	code := get(t, srv.Handler(), "/health", &report)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", report.Status)
	assert.Contains(t, report.Components, "database")
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "twilio: 503", report.Errors[0].Message)
}

func TestHealthUnavailableOnError(t *testing.T) {
	srv, _ := newServer(t, time.Now())
	srv.Health.Register("gateway", health.CheckerFunc(func() health.ComponentHealth {
		return health.ComponentHealth{Name: "gateway", Status: "error", Message: "no channels registered"}
	}))
	var report health.HealthReport
	code := get(t, srv.Handler(), "/health", &report)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "error", report.Status)
}
