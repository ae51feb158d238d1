package statusserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pdtracker/pdtracker/internal/health"
	"github.com/pdtracker/pdtracker/internal/logging"
	"github.com/pdtracker/pdtracker/internal/scheduler"
	"github.com/pdtracker/pdtracker/internal/store"
)

// FailureSource lists recent failed delivery attempts.
type FailureSource interface {
	Failures(ctx context.Context, limit int) ([]health.LogEntry, error)
}

// Server serves health and status endpoints for the reminder daemon.
type Server struct {
	Addr     string
	Health   *health.Registry
	Events   *scheduler.EventLog
	Ledger   *scheduler.Ledger
	Failures FailureSource // optional
	Now      func() time.Time
	Log      logging.Logger
}

type upcomingDose struct {
	ReminderID    int64     `json:"reminder_id"`
	Medication    string    `json:"medication"`
	Dosage        string    `json:"dosage,omitempty"`
	ScheduledTime time.Time `json:"scheduled_time"`
	ReminderTime  time.Time `json:"reminder_time"`
	Due           string    `json:"due"` // "2 hours from now"
}

type statusResponse struct {
	Awake       bool           `json:"awake"`
	AwakeSince  string         `json:"awake_since,omitempty"` // "7:30 AM (yesterday)"
	AwakeFor    string         `json:"awake_for,omitempty"`   // "3 hours"
	LastSleep   *time.Time     `json:"last_sleep,omitempty"`
	Upcoming    []upcomingDose `json:"upcoming"`
	ReadErrors  []string       `json:"read_errors,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	if s.Now == nil {
		s.Now = time.Now
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.Log.Infof("listening on %s", s.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.Health.Check()
	if s.Failures != nil {
		failures, err := s.Failures.Failures(r.Context(), 10)
		if err != nil {
			s.Log.Warnf("load recent failures: %v", err)
		}
		report.Errors = failures
	}
	code := http.StatusOK
	if report.Status == "error" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := s.Now()
	resp := statusResponse{GeneratedAt: now, Upcoming: []upcomingDose{}}

	awake, err := s.Events.IsAwake(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp.Awake = awake

	if awake {
		wake, err := s.Events.LastWake(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		resp.AwakeSince = scheduler.FormatWakeTime(wake.Time, now)
		resp.AwakeFor = strings.TrimSpace(humanize.RelTime(wake.Time, now, "", ""))
	}
	if sleep, err := s.Events.LastSleep(ctx); err == nil && sleep != nil {
		resp.LastSleep = &sleep.Time
	}

	upcoming, err := s.Ledger.Upcoming(ctx, now)
	if err != nil {
		if upcoming == nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		resp.ReadErrors = append(resp.ReadErrors, err.Error())
	}
	for _, rem := range upcoming {
		resp.Upcoming = append(resp.Upcoming, toUpcoming(rem, now))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toUpcoming(r store.Reminder, now time.Time) upcomingDose {
	return upcomingDose{
		ReminderID:    r.ID,
		Medication:    r.MedicationName,
		Dosage:        r.Dosage,
		ScheduledTime: r.ScheduledTime,
		ReminderTime:  r.ReminderTime,
		Due:           humanize.RelTime(r.ScheduledTime, now, "ago", "from now"),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
