package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pdtracker/pdtracker/internal/health"
)

// AttemptLog records every notification attempt with automatic cleanup. It is an
// audit trail only; deduplication lives in the pending_reminders flags.
type AttemptLog struct {
	db         *DB
	mu         sync.Mutex
	maxEntries int // Max attempts to keep
	maxAgeDays int // Max age of attempts in days
}

// NewAttemptLog creates an attempt log with default limits.
func NewAttemptLog(db *DB) *AttemptLog {
	return &AttemptLog{
		db:         db,
		maxEntries: 10000,
		maxAgeDays: 30,
	}
}

// Record writes one attempt. kind is "reminder" or "followup".
func (s *AttemptLog) Record(ctx context.Context, reminderID int64, kind string, success bool, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO delivery_attempts (attempted_at, reminder_id, kind, success, detail) VALUES (?, ?, ?, ?, ?)",
		formatTime(time.Now()), reminderID, kind, boolInt(success), detail,
	)
	return err
}

// Failures returns the most recent failed attempts, newest first.
func (s *AttemptLog) Failures(ctx context.Context, limit int) ([]health.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, attempted_at, kind, COALESCE(detail, '') FROM delivery_attempts
		 WHERE success = 0 ORDER BY attempted_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []health.LogEntry
	for rows.Next() {
		var entry health.LogEntry
		var ts string
		if err := rows.Scan(&entry.ID, &ts, &entry.Component, &entry.Message); err != nil {
			return nil, err
		}
		entry.Level = "error"
		entry.Timestamp, _ = parseTime("delivery_attempts.attempted_at", ts)
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Count returns the number of recorded attempts.
func (s *AttemptLog) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM delivery_attempts").Scan(&count)
	return count, err
}

// Cleanup removes old attempts based on configured limits.
func (s *AttemptLog) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -s.maxAgeDays)
	if _, err := s.db.ExecContext(ctx, "DELETE FROM delivery_attempts WHERE attempted_at < ?", formatTime(cutoff)); err != nil {
		return fmt.Errorf("cleanup by age: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM delivery_attempts WHERE id NOT IN (
			SELECT id FROM delivery_attempts ORDER BY attempted_at DESC, id DESC LIMIT ?
		)
	`, s.maxEntries); err != nil {
		return fmt.Errorf("cleanup by count: %w", err)
	}
	return nil
}
