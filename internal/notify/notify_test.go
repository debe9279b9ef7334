package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demartbuy-afk/notifyedu/internal/attendance"
	"github.com/demartbuy-afk/notifyedu/internal/queue"
)

func sampleLog() attendance.Log {
	return attendance.Log{
		ID:         "log-1",
		EntityID:   "stu-a",
		EntityName: "Asha",
		EntityType: attendance.EntityStudent,
		SchoolID:   "sch-1",
		Timestamp:  time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		Status:     attendance.StatusIn,
		Mode:       attendance.ModeQR,
	}
}

func TestQueueNotifierPublishesLog(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemory(4)
	n := NewQueueNotifier(q)
	n.StudentMarked(ctx, sampleLog())

	messages, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case msg := <-messages:
		assert.Equal(t, queue.TypeLogAppended, msg.Type)
		var decoded attendance.Log
		require.NoError(t, json.Unmarshal(msg.Body, &decoded))
		want := sampleLog()
		assert.Equal(t, want.ID, decoded.ID)
		assert.Equal(t, want.EntityID, decoded.EntityID)
		assert.Equal(t, want.Status, decoded.Status)
		assert.True(t, want.Timestamp.Equal(decoded.Timestamp))
	case <-time.After(time.Second):
		t.Fatal("no message on queue")
	}
}

func TestMemoryBroadcaster(t *testing.T) {
	b := NewMemoryBroadcaster()
	ch := b.Subscribe("stu-a")
	other := b.Subscribe("stu-b")

	u := NewUpdate(sampleLog())
	assert.Equal(t, "ATTENDANCE_UPDATE", u.Type)
	assert.Equal(t, "stu-a", u.StudentID)

	require.NoError(t, b.Publish(context.Background(), u))

	select {
	case got := <-ch:
		assert.Equal(t, u, got)
	default:
		t.Fatal("subscriber did not receive update")
	}

	select {
	case <-other:
		t.Fatal("update leaked to another student's channel")
	default:
	}
}
