package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/demartbuy-afk/notifyedu/internal/attendance"
	"github.com/demartbuy-afk/notifyedu/internal/config"
	"github.com/demartbuy-afk/notifyedu/internal/notify"
	"github.com/demartbuy-afk/notifyedu/internal/queue"
	"github.com/demartbuy-afk/notifyedu/internal/store"
)

// The worker drains "log appended" messages from the queue and broadcasts
// ATTENDANCE_UPDATE events to sessions watching each student. Delivery is
// best-effort; a dropped broadcast never affects the stored log.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	broadcaster := notify.NewRedisBroadcaster(redisClient.Client, cfg.BroadcastPrefix)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeLogAppended {
			continue
		}

		var entry attendance.Log
		if err := json.Unmarshal(msg.Body, &entry); err != nil {
			log.Printf("decode log message failed: %v", err)
			continue
		}
		if entry.EntityType != attendance.EntityStudent {
			continue
		}

		if err := broadcaster.Publish(ctx, notify.NewUpdate(entry)); err != nil {
			log.Printf("broadcast for student %s failed: %v", entry.EntityID, err)
			continue
		}
		log.Printf("broadcast %s for student %s (log %s)", entry.Status, entry.EntityID, entry.ID)
	}

	log.Println("worker stopped")
}
