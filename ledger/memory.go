package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"marketflow/db"
)

// MemoryStore keeps transactions in process with the same compare-and-set
// and uniqueness rules as the Postgres repository.
type MemoryStore struct {
	mu       sync.Mutex
	byID     map[string]Transaction
	byIntent map[string]string
	seq      map[string]int
	next     int
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]Transaction),
		byIntent: make(map[string]string),
		seq:      make(map[string]int),
		now:      time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, tx Transaction) (Transaction, error) {
	if err := Validate(tx); err != nil {
		return Transaction{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byIntent[tx.PaymentIntentID]; ok {
		return Transaction{}, fmt.Errorf("%w: %s", ErrDuplicateIntent, tx.PaymentIntentID)
	}
	if _, ok := m.byID[tx.ID]; ok {
		return Transaction{}, fmt.Errorf("%w: duplicate id %s", ErrInvalid, tx.ID)
	}
	now := m.now()
	tx.CreatedAt, tx.UpdatedAt = now, now
	tx.CompletedAt = nil
	m.byID[tx.ID] = tx
	m.byIntent[tx.PaymentIntentID] = tx.ID
	m.next++
	m.seq[tx.ID] = m.next
	return tx, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.byID[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return tx, nil
}

func (m *MemoryStore) FindByPaymentIntent(_ context.Context, intentID string) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byIntent[intentID]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return m.byID[id], nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id string, expected, next Status, upd Update) (bool, error) {
	if err := ValidateTransition(expected, next); err != nil {
		return false, err
	}
	completedAt, err := completionTime(next, upd)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if tx.Status != expected {
		return false, nil
	}
	prev := tx
	tx.Status = next
	tx.CompletedAt = completedAt
	if upd.PaymentMethod != "" {
		tx.Metadata.PaymentMethod = upd.PaymentMethod
	}
	tx.UpdatedAt = m.now()
	m.byID[id] = tx
	db.OnRollback(ctx, func() { m.restore(prev) })
	return true, nil
}

func (m *MemoryStore) SetFlag(ctx context.Context, id string, flag Flag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	prev := tx
	tx.Flag = flag
	tx.UpdatedAt = m.now()
	m.byID[id] = tx
	db.OnRollback(ctx, func() { m.restore(prev) })
	return nil
}

func (m *MemoryStore) restore(tx Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[tx.ID] = tx
}

func (m *MemoryStore) ListForParty(_ context.Context, partyID string, page, limit int) (HistoryPage, error) {
	page, limit = NormalizePage(page, limit)
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []Transaction
	for _, tx := range m.byID {
		if tx.BuyerID == partyID || tx.SellerID == partyID {
			all = append(all, tx)
		}
	}
	sort.Slice(all, func(i, j int) bool { return m.seq[all[i].ID] > m.seq[all[j].ID] })

	out := HistoryPage{Total: len(all), Page: page, Pages: (len(all) + limit - 1) / limit, Items: []Transaction{}}
	start := (page - 1) * limit
	if start < len(all) {
		end := min(start+limit, len(all))
		out.Items = append(out.Items, all[start:end]...)
	}
	return out, nil
}

func (m *MemoryStore) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Transaction
	for _, tx := range m.byID {
		if tx.Status == StatusPending && tx.CreatedAt.Before(cutoff) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.seq[out[i].ID] < m.seq[out[j].ID] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
