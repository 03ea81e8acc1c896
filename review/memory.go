package review

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketflow/db"
)

// MemoryStore keeps review records in process.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record), now: time.Now}
}

func (m *MemoryStore) Open(ctx context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records {
		if existing.TransactionID == rec.TransactionID && existing.Reason == rec.Reason {
			return existing, nil
		}
	}
	now := m.now()
	rec.Status = StatusOpen
	rec.CreatedAt, rec.UpdatedAt = now, now
	rec.ResolvedAt, rec.ResolvedBy = nil, nil
	m.records[rec.ID] = rec
	db.OnRollback(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.records, rec.ID)
	})
	return rec, nil
}

func (m *MemoryStore) List(_ context.Context, status Status) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		if status == "" || rec.Status == status {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Resolve(_ context.Context, id, operatorID, note string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if rec.Status == StatusResolved {
		return Record{}, ErrBadStatus
	}
	now := m.now()
	rec.Status = StatusResolved
	rec.ResolvedBy = &operatorID
	rec.ResolvedAt = &now
	rec.UpdatedAt = now
	if note != "" {
		rec.Note = &note
	}
	m.records[id] = rec
	return rec, nil
}
