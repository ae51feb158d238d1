package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Medication is an entry in the medication directory.
type Medication struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Dosage       string    `json:"dosage,omitempty"`
	Instructions string    `json:"instructions,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AddMedication inserts a medication and returns its id.
func (db *DB) AddMedication(ctx context.Context, name, dosage, instructions string) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO medications (name, dosage, instructions, active, created_at) VALUES (?, ?, ?, 1, ?)`,
		name, dosage, instructions, formatTime(time.Now()),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetMedication returns the medication with id, or nil if it does not exist.
func (db *DB) GetMedication(ctx context.Context, id int64) (*Medication, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(dosage, ''), COALESCE(instructions, ''), active, created_at FROM medications WHERE id = ?`, id)
	return scanMedication(row)
}

// GetMedicationByName looks up an active medication, first by exact name
// (case-insensitive) and then by name prefix.
func (db *DB) GetMedicationByName(ctx context.Context, name string) (*Medication, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(dosage, ''), COALESCE(instructions, ''), active, created_at
		 FROM medications WHERE active = 1 AND LOWER(name) = LOWER(?) ORDER BY id LIMIT 1`, name)
	m, err := scanMedication(row)
	if err != nil || m != nil {
		return m, err
	}
	row = db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(dosage, ''), COALESCE(instructions, ''), active, created_at
		 FROM medications WHERE active = 1 AND LOWER(name) LIKE LOWER(?) || '%' ORDER BY name LIMIT 1`, name)
	return scanMedication(row)
}

// ListMedications returns medications ordered by name.
func (db *DB) ListMedications(ctx context.Context, activeOnly bool) ([]Medication, error) {
	query := `SELECT id, name, COALESCE(dosage, ''), COALESCE(instructions, ''), active, created_at FROM medications`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// DeactivateMedication hides a medication from the directory and its schedules.
func (db *DB) DeactivateMedication(ctx context.Context, id int64) (bool, error) {
	res, err := db.ExecContext(ctx, `UPDATE medications SET active = 0 WHERE id = ? AND active = 1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedication(r rowScanner) (*Medication, error) {
	var m Medication
	var active int
	var created string
	if err := r.Scan(&m.ID, &m.Name, &m.Dosage, &m.Instructions, &active, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	m.Active = active == 1
	t, err := parseTime("medications.created_at", created)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = t
	return &m, nil
}
