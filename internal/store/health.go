package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pdtracker/pdtracker/internal/health"
)

// HealthCheck pings the database and reports the size of the pending queue.
// A queue that cannot be read is degraded; an unreachable database is an error.
func (db *DB) HealthCheck() health.ComponentHealth {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	h := health.ComponentHealth{Name: "database", Status: "ok"}
	if err := db.PingContext(ctx); err != nil {
		h.Status, h.Message, h.LastError = "error", err.Error(), time.Now()
		return h
	}

	var pending, followups int
	err := db.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(CASE WHEN sent = 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN sent = 1 AND followup_sent = 0 THEN 1 ELSE 0 END), 0)
		FROM pending_reminders`).Scan(&pending, &followups)
	if err != nil {
		h.Status, h.LastError = "degraded", time.Now()
		h.Message = "reading reminder queue: " + err.Error()
		return h
	}
	h.Message = fmt.Sprintf("%d unsent, %d awaiting follow-up", pending, followups)
	h.LastOK = time.Now()
	return h
}
