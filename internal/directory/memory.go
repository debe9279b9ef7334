package directory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryDirectory is a map-backed directory for tests and single-node dev.
type MemoryDirectory struct {
	mu       sync.RWMutex
	entities map[Kind]map[string]Entity
}

// NewMemory creates an empty in-memory directory.
func NewMemory() *MemoryDirectory {
	return &MemoryDirectory{entities: map[Kind]map[string]Entity{
		KindStudent: {},
		KindTeacher: {},
	}}
}

func (d *MemoryDirectory) Resolve(_ context.Context, kind Kind, id string) (Entity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entities[kind][id]
	if !ok {
		return Entity{}, ErrNotFound
	}
	return e, nil
}

func (d *MemoryDirectory) ListBySchool(_ context.Context, schoolID string, kind Kind) ([]Entity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var res []Entity
	for _, e := range d.entities[kind] {
		if e.SchoolID == schoolID {
			res = append(res, e)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (d *MemoryDirectory) Upsert(_ context.Context, e Entity) error {
	if e.Kind == "" {
		e.Kind = KindStudent
	}
	if e.QRValue == "" {
		e.QRValue = QRValue(e.Kind, e.ID, e.SchoolID)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entities[e.Kind][e.ID] = e
	return nil
}

func (d *MemoryDirectory) Delete(_ context.Context, kind Kind, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entities[kind], id)
	return nil
}
