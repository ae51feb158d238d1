package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps *sql.DB for pdtracker storage. Schema is owned by the app.
type DB struct {
	*sql.DB
}

// Open opens the SQLite database at path and applies the schema. Creates file if missing.
// A single connection is used so ":memory:" databases and multi-statement
// transactions see one consistent database.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, err
	}

	// Older databases predate per-schedule reminder toggles.
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pragma_table_info('medication_schedules') WHERE name='reminders_enabled'").Scan(&count); err == nil && count == 0 {
		if _, err := db.ExecContext(ctx, "ALTER TABLE medication_schedules ADD COLUMN reminders_enabled INTEGER NOT NULL DEFAULT 1"); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating schema (medication_schedules.reminders_enabled): %w", err)
		}
	}

	for _, col := range []struct{ table, name, def string }{
		{"pending_reminders", "followup_sent", "INTEGER NOT NULL DEFAULT 0"},
		{"doses_taken", "skipped", "INTEGER NOT NULL DEFAULT 0"},
	} {
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name=?", col.table, col.name).Scan(&count); err == nil && count == 0 {
			if _, err := db.ExecContext(ctx, "ALTER TABLE "+col.table+" ADD COLUMN "+col.name+" "+col.def); err != nil {
				db.Close()
				return nil, fmt.Errorf("migrating schema (%s.%s): %w", col.table, col.name, err)
			}
		}
	}

	return &DB{db}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.DB.Close()
}

// The CLI, web front end and reminder daemon may share one file.
func dsn(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
