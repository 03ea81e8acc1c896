package asset

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marketflow/db"
)

// MemoryStore keeps assets in process. Its compare-and-set holds the same
// guarantees as the Postgres repository within one process.
type MemoryStore struct {
	mu      sync.Mutex
	assets  map[string]Asset
	metrics map[string]map[Metric]int64
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:  make(map[string]Asset),
		metrics: make(map[string]map[Metric]int64),
		now:     time.Now,
	}
}

// Put inserts or replaces an asset.
func (m *MemoryStore) Put(a Asset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.now()
	}
	a.UpdatedAt = m.now()
	m.assets[a.ID] = a
}

func (m *MemoryStore) Get(_ context.Context, id string) (Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		return Asset{}, ErrNotFound
	}
	return a, nil
}

func (m *MemoryStore) CompareAndSetStatus(ctx context.Context, id string, expected, next Status) (bool, error) {
	if !CanTransition(expected, next) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, expected, next)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok {
		return false, ErrNotFound
	}
	if a.Status != expected {
		return false, nil
	}
	prev := a
	a.Status = next
	a.UpdatedAt = m.now()
	m.assets[id] = a
	db.OnRollback(ctx, func() { m.restore(prev) })
	return true, nil
}

func (m *MemoryStore) restore(a Asset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[a.ID] = a
}

func (m *MemoryStore) IncrementMetric(_ context.Context, id string, metric Metric) (int64, error) {
	if _, ok := metric.column(); !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assets[id]; !ok {
		return 0, ErrNotFound
	}
	counters, ok := m.metrics[id]
	if !ok {
		counters = make(map[Metric]int64)
		m.metrics[id] = counters
	}
	counters[metric]++
	return counters[metric], nil
}
