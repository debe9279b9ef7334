// Package notify carries attendance change events to listening sessions,
// e.g. a parent view watching one student. Delivery is best-effort and
// at-most-once; correctness never depends on it.
package notify

import (
	"context"
	"encoding/json"
	"log"

	"github.com/demartbuy-afk/notifyedu/internal/attendance"
	"github.com/demartbuy-afk/notifyedu/internal/queue"
)

// Update is the broadcast payload any session watching a student receives.
type Update struct {
	Type      string         `json:"type"` // always "ATTENDANCE_UPDATE"
	StudentID string         `json:"studentId"`
	Log       attendance.Log `json:"log"`
}

// NewUpdate wraps a student log for broadcast.
func NewUpdate(l attendance.Log) Update {
	return Update{Type: "ATTENDANCE_UPDATE", StudentID: l.EntityID, Log: l}
}

// Broadcaster fans an update out to sessions watching that student.
type Broadcaster interface {
	Publish(ctx context.Context, u Update) error
}

// QueueNotifier implements attendance.Notifier by handing appended student
// logs to the queue for the notification worker.
type QueueNotifier struct {
	q queue.Queue
}

// NewQueueNotifier creates a notifier publishing to q.
func NewQueueNotifier(q queue.Queue) *QueueNotifier {
	return &QueueNotifier{q: q}
}

// StudentMarked enqueues the log. Publish failures are logged and dropped;
// the append has already committed.
func (n *QueueNotifier) StudentMarked(ctx context.Context, l attendance.Log) {
	body, err := json.Marshal(l)
	if err != nil {
		log.Printf("notify: encode log %s failed: %v", l.ID, err)
		return
	}
	if err := n.q.Publish(ctx, queue.Message{Type: queue.TypeLogAppended, Body: body}); err != nil {
		log.Printf("notify: queue publish for log %s failed: %v", l.ID, err)
	}
}
