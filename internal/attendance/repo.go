package attendance

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Repository persists attendance logs in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const logColumns = `log_id, seq, entity_id, entity_name, entity_type, school_id, occurred_at, status, mode`

// Append writes a new log. The seq column is a BIGSERIAL, so ordering holds
// even for same-millisecond appends.
func (r *Repository) Append(ctx context.Context, log Log) (Log, error) {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_logs (log_id, entity_id, entity_name, entity_type, school_id, occurred_at, status, mode)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING seq
	`, log.ID, log.EntityID, log.EntityName, log.EntityType, log.SchoolID, log.Timestamp, log.Status, log.Mode)
	if err := row.Scan(&log.Seq); err != nil {
		return Log{}, err
	}
	return log, nil
}

// LogsForEntityOnDay returns one entity's logs for a UTC day, ascending.
func (r *Repository) LogsForEntityOnDay(ctx context.Context, entityID, day string) ([]Log, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+logColumns+`
		FROM attendance_logs
		WHERE entity_id = $1 AND (occurred_at AT TIME ZONE 'UTC')::date = $2::date
		ORDER BY occurred_at ASC, seq ASC
	`, entityID, day)
	if err != nil {
		return nil, err
	}
	return scanLogs(rows)
}

// LogsForSchoolOnDay returns a school's logs for a UTC day, descending.
func (r *Repository) LogsForSchoolOnDay(ctx context.Context, schoolID, day string) ([]Log, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+logColumns+`
		FROM attendance_logs
		WHERE school_id = $1 AND (occurred_at AT TIME ZONE 'UTC')::date = $2::date
		ORDER BY occurred_at DESC, seq DESC
	`, schoolID, day)
	if err != nil {
		return nil, err
	}
	return scanLogs(rows)
}

// HistoryForEntity returns an entity's full history, descending.
func (r *Repository) HistoryForEntity(ctx context.Context, entityID string, entityType EntityType) ([]Log, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+logColumns+`
		FROM attendance_logs
		WHERE entity_id = $1 AND entity_type = $2
		ORDER BY occurred_at DESC, seq DESC
	`, entityID, entityType)
	if err != nil {
		return nil, err
	}
	return scanLogs(rows)
}

// LogsForSchoolSince returns a school's logs at or after an instant.
func (r *Repository) LogsForSchoolSince(ctx context.Context, schoolID string, since time.Time) ([]Log, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+logColumns+`
		FROM attendance_logs
		WHERE school_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at DESC, seq DESC
	`, schoolID, since)
	if err != nil {
		return nil, err
	}
	return scanLogs(rows)
}

// DeleteAllForEntity removes an entity's logs when the entity is deleted.
func (r *Repository) DeleteAllForEntity(ctx context.Context, entityID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM attendance_logs WHERE entity_id = $1`, entityID)
	return err
}

func scanLogs(rows *sql.Rows) ([]Log, error) {
	defer rows.Close()
	var res []Log
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.Seq, &l.EntityID, &l.EntityName, &l.EntityType, &l.SchoolID, &l.Timestamp, &l.Status, &l.Mode); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}
