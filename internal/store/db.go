package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Migrate creates the schema if it does not exist. The seq BIGSERIAL totally
// orders attendance logs even when occurred_at timestamps collide.
func (d *DB) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		id           TEXT PRIMARY KEY,
		school_id    TEXT NOT NULL,
		name         TEXT NOT NULL,
		qr_value     TEXT NOT NULL DEFAULT '',
		class        TEXT NOT NULL DEFAULT '',
		roll_no      TEXT NOT NULL DEFAULT '',
		parent_phone TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS teachers (
		id           TEXT PRIMARY KEY,
		school_id    TEXT NOT NULL,
		name         TEXT NOT NULL,
		qr_value     TEXT NOT NULL DEFAULT '',
		subject      TEXT NOT NULL DEFAULT '',
		phone_number TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS attendance_logs (
		log_id      TEXT PRIMARY KEY,
		seq         BIGSERIAL,
		entity_id   TEXT NOT NULL,
		entity_name TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		school_id   TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		status      TEXT NOT NULL,
		mode        TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_students_school  ON students(school_id);
	CREATE INDEX IF NOT EXISTS idx_teachers_school  ON teachers(school_id);
	CREATE INDEX IF NOT EXISTS idx_logs_entity_day  ON attendance_logs(entity_id, occurred_at);
	CREATE INDEX IF NOT EXISTS idx_logs_school_day  ON attendance_logs(school_id, occurred_at);
	`
	_, err := d.Client.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
