package attendance

import (
	"context"
	"time"
)

// LogStore owns the append-only collection of attendance logs. All writes
// pass through the Service's validation gate; nothing else appends.
type LogStore interface {
	// Append assigns a log id and sequence number, persists the log, and
	// returns the stored record.
	Append(ctx context.Context, log Log) (Log, error)

	// LogsForEntityOnDay returns one entity's logs for a UTC calendar day,
	// ordered ascending by (timestamp, seq).
	LogsForEntityOnDay(ctx context.Context, entityID, day string) ([]Log, error)

	// LogsForSchoolOnDay returns a school's logs for a day, most recent
	// first, as the dashboards consume them.
	LogsForSchoolOnDay(ctx context.Context, schoolID, day string) ([]Log, error)

	// HistoryForEntity returns every log for an entity of the given type,
	// most recent first.
	HistoryForEntity(ctx context.Context, entityID string, entityType EntityType) ([]Log, error)

	// LogsForSchoolSince returns a school's logs at or after the given
	// instant, used for monthly report views.
	LogsForSchoolSince(ctx context.Context, schoolID string, since time.Time) ([]Log, error)

	// DeleteAllForEntity cascades when an entity record is removed.
	DeleteAllForEntity(ctx context.Context, entityID string) error
}
