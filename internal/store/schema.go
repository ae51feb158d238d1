package store

// Timestamps are TEXT in timeLayout (UTC, fixed width) so they compare correctly as strings.
const schema = `
CREATE TABLE IF NOT EXISTS medications (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	dosage TEXT,
	instructions TEXT,
	active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS medication_schedules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	medication_id INTEGER NOT NULL,
	schedule_type TEXT NOT NULL, -- on_wake, interval_from_wake, mid_day, night_wake, monthly_injection, fixed, prn
	times TEXT, -- JSON parameters for schedule_type
	active INTEGER NOT NULL DEFAULT 1,
	reminders_enabled INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	FOREIGN KEY(medication_id) REFERENCES medications(id)
);
CREATE INDEX IF NOT EXISTS idx_schedules_medication_active ON medication_schedules(medication_id, active);

CREATE TABLE IF NOT EXISTS wake_sleep_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL, -- wake, sleep
	event_time TEXT NOT NULL,
	notes TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_type_time ON wake_sleep_events(event_type, event_time);

CREATE TABLE IF NOT EXISTS pending_reminders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	medication_id INTEGER NOT NULL,
	scheduled_time TEXT NOT NULL,
	reminder_time TEXT NOT NULL,
	sent INTEGER NOT NULL DEFAULT 0,
	followup_sent INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	FOREIGN KEY(medication_id) REFERENCES medications(id)
);
CREATE INDEX IF NOT EXISTS idx_reminders_sent_time ON pending_reminders(sent, reminder_time);
CREATE INDEX IF NOT EXISTS idx_reminders_followup ON pending_reminders(sent, followup_sent, scheduled_time);
CREATE INDEX IF NOT EXISTS idx_reminders_created_at ON pending_reminders(created_at);

CREATE TABLE IF NOT EXISTS doses_taken (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	medication_id INTEGER NOT NULL,
	scheduled_time TEXT,
	taken_time TEXT NOT NULL,
	skipped INTEGER NOT NULL DEFAULT 0,
	notes TEXT,
	FOREIGN KEY(medication_id) REFERENCES medications(id)
);
CREATE INDEX IF NOT EXISTS idx_doses_medication_time ON doses_taken(medication_id, taken_time);

CREATE TABLE IF NOT EXISTS delivery_attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	attempted_at TEXT NOT NULL,
	reminder_id INTEGER NOT NULL,
	kind TEXT NOT NULL, -- reminder, followup
	success INTEGER NOT NULL,
	detail TEXT
);
CREATE INDEX IF NOT EXISTS idx_attempts_attempted_at ON delivery_attempts(attempted_at);
`
