package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a LogStore for tests and single-node dev. A monotonic
// counter stands in for the BIGSERIAL column.
type MemoryStore struct {
	mu   sync.RWMutex
	logs []Log
	seq  int64
}

// NewMemoryStore creates an empty in-memory log store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, log Log) (Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}
	s.seq++
	log.Seq = s.seq
	s.logs = append(s.logs, log)
	return log, nil
}

func (s *MemoryStore) LogsForEntityOnDay(_ context.Context, entityID, day string) ([]Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Log
	for _, l := range s.logs {
		if l.EntityID == entityID && l.Day() == day {
			res = append(res, l)
		}
	}
	sortAscending(res)
	return res, nil
}

func (s *MemoryStore) LogsForSchoolOnDay(_ context.Context, schoolID, day string) ([]Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Log
	for _, l := range s.logs {
		if l.SchoolID == schoolID && l.Day() == day {
			res = append(res, l)
		}
	}
	sortDescending(res)
	return res, nil
}

func (s *MemoryStore) HistoryForEntity(_ context.Context, entityID string, entityType EntityType) ([]Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Log
	for _, l := range s.logs {
		if l.EntityID == entityID && l.EntityType == entityType {
			res = append(res, l)
		}
	}
	sortDescending(res)
	return res, nil
}

func (s *MemoryStore) LogsForSchoolSince(_ context.Context, schoolID string, since time.Time) ([]Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Log
	for _, l := range s.logs {
		if l.SchoolID == schoolID && !l.Timestamp.Before(since) {
			res = append(res, l)
		}
	}
	sortDescending(res)
	return res, nil
}

func (s *MemoryStore) DeleteAllForEntity(_ context.Context, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.logs[:0]
	for _, l := range s.logs {
		if l.EntityID != entityID {
			kept = append(kept, l)
		}
	}
	s.logs = kept
	return nil
}

func sortAscending(logs []Log) {
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].Timestamp.Equal(logs[j].Timestamp) {
			return logs[i].Seq < logs[j].Seq
		}
		return logs[i].Timestamp.Before(logs[j].Timestamp)
	})
}

func sortDescending(logs []Log) {
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].Timestamp.Equal(logs[j].Timestamp) {
			return logs[i].Seq > logs[j].Seq
		}
		return logs[i].Timestamp.After(logs[j].Timestamp)
	})
}
