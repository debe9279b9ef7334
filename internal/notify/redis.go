package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix is the pub/sub channel prefix; the student id is
// appended so sessions subscribe per student.
const DefaultChannelPrefix = "notifyedu:attendance:updates:"

// RedisBroadcaster publishes updates over redis pub/sub.
type RedisBroadcaster struct {
	client *redis.Client
	prefix string
}

// NewRedisBroadcaster creates a broadcaster on the given channel prefix.
func NewRedisBroadcaster(client *redis.Client, prefix string) *RedisBroadcaster {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisBroadcaster{client: client, prefix: prefix}
}

// Publish sends the update to every subscriber of the student's channel.
func (b *RedisBroadcaster) Publish(ctx context.Context, u Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.prefix+u.StudentID, payload).Err()
}

// Subscribe returns a redis subscription for one student's updates; callers
// own closing it.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, studentID string) *redis.PubSub {
	return b.client.Subscribe(ctx, b.prefix+studentID)
}
