package directory

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresDirectory persists entities in the students and teachers tables.
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgres creates a directory backed by Postgres.
func NewPostgres(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// Resolve returns a single entity by kind and id.
func (d *PostgresDirectory) Resolve(ctx context.Context, kind Kind, id string) (Entity, error) {
	var e Entity
	var row *sql.Row
	switch kind {
	case KindTeacher:
		row = d.db.QueryRowContext(ctx, `
			SELECT id, school_id, name, qr_value, subject, phone_number, created_at
			FROM teachers WHERE id = $1
		`, id)
		e.Kind = KindTeacher
		if err := row.Scan(&e.ID, &e.SchoolID, &e.Name, &e.QRValue, &e.Subject, &e.Phone, &e.CreatedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return Entity{}, ErrNotFound
			}
			return Entity{}, err
		}
	default:
		row = d.db.QueryRowContext(ctx, `
			SELECT id, school_id, name, qr_value, class, roll_no, parent_phone, created_at
			FROM students WHERE id = $1
		`, id)
		e.Kind = KindStudent
		if err := row.Scan(&e.ID, &e.SchoolID, &e.Name, &e.QRValue, &e.Class, &e.RollNo, &e.ParentPhone, &e.CreatedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return Entity{}, ErrNotFound
			}
			return Entity{}, err
		}
	}
	return e, nil
}

// ListBySchool returns every entity of a kind scoped to one school.
func (d *PostgresDirectory) ListBySchool(ctx context.Context, schoolID string, kind Kind) ([]Entity, error) {
	var query string
	if kind == KindTeacher {
		query = `
			SELECT id, school_id, name, qr_value, subject, phone_number, created_at
			FROM teachers WHERE school_id = $1 ORDER BY name`
	} else {
		query = `
			SELECT id, school_id, name, qr_value, class, roll_no, parent_phone, created_at
			FROM students WHERE school_id = $1 ORDER BY name`
	}
	rows, err := d.db.QueryContext(ctx, query, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Entity
	for rows.Next() {
		e := Entity{Kind: kind}
		if kind == KindTeacher {
			if err := rows.Scan(&e.ID, &e.SchoolID, &e.Name, &e.QRValue, &e.Subject, &e.Phone, &e.CreatedAt); err != nil {
				return nil, err
			}
		} else {
			if err := rows.Scan(&e.ID, &e.SchoolID, &e.Name, &e.QRValue, &e.Class, &e.RollNo, &e.ParentPhone, &e.CreatedAt); err != nil {
				return nil, err
			}
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// Upsert creates or updates an entity record, filling in the canonical QR
// payload when the caller left it empty.
func (d *PostgresDirectory) Upsert(ctx context.Context, e Entity) error {
	if e.QRValue == "" {
		e.QRValue = QRValue(e.Kind, e.ID, e.SchoolID)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var err error
	if e.Kind == KindTeacher {
		_, err = d.db.ExecContext(ctx, `
			INSERT INTO teachers (id, school_id, name, qr_value, subject, phone_number, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO UPDATE SET
				school_id = EXCLUDED.school_id,
				name = EXCLUDED.name,
				qr_value = EXCLUDED.qr_value,
				subject = EXCLUDED.subject,
				phone_number = EXCLUDED.phone_number
		`, e.ID, e.SchoolID, e.Name, e.QRValue, e.Subject, e.Phone, e.CreatedAt)
	} else {
		_, err = d.db.ExecContext(ctx, `
			INSERT INTO students (id, school_id, name, qr_value, class, roll_no, parent_phone, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (id) DO UPDATE SET
				school_id = EXCLUDED.school_id,
				name = EXCLUDED.name,
				qr_value = EXCLUDED.qr_value,
				class = EXCLUDED.class,
				roll_no = EXCLUDED.roll_no,
				parent_phone = EXCLUDED.parent_phone
		`, e.ID, e.SchoolID, e.Name, e.QRValue, e.Class, e.RollNo, e.ParentPhone, e.CreatedAt)
	}
	return err
}

// Delete removes an entity record. The caller is responsible for cascading
// the entity's attendance logs.
func (d *PostgresDirectory) Delete(ctx context.Context, kind Kind, id string) error {
	table := "students"
	if kind == KindTeacher {
		table = "teachers"
	}
	_, err := d.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	return err
}
