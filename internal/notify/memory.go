package notify

import (
	"context"
	"sync"
)

// MemoryBroadcaster fans updates out to in-process subscribers. Used in dev
// mode and tests; slow subscribers drop updates rather than block.
type MemoryBroadcaster struct {
	mu   sync.RWMutex
	subs map[string][]chan Update
}

// NewMemoryBroadcaster creates an empty broadcaster.
func NewMemoryBroadcaster() *MemoryBroadcaster {
	return &MemoryBroadcaster{subs: make(map[string][]chan Update)}
}

// Subscribe registers a listener for one student's updates.
func (b *MemoryBroadcaster) Subscribe(studentID string) <-chan Update {
	ch := make(chan Update, 8)
	b.mu.Lock()
	b.subs[studentID] = append(b.subs[studentID], ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers at most once per listener, dropping on full buffers.
func (b *MemoryBroadcaster) Publish(_ context.Context, u Update) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[u.StudentID] {
		select {
		case ch <- u:
		default:
		}
	}
	return nil
}
