package db

import (
	"context"
	"sync"
)

type undoKey struct{}

type undoLog struct {
	steps []func()
}

// MemoryTx gives in-memory stores the unit-of-work semantics of Transactor.
// Units run one at a time, and a failed unit has its registered writes undone
// in reverse order. Store reads made outside a unit are not serialised.
type MemoryTx struct {
	mu sync.Mutex
}

func (m *MemoryTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	log := &undoLog{}
	if err := fn(context.WithValue(ctx, undoKey{}, log)); err != nil {
		for i := len(log.steps) - 1; i >= 0; i-- {
			log.steps[i]()
		}
		return err
	}
	return nil
}

// OnRollback registers undo to run if the MemoryTx unit carried by ctx fails.
// Outside a unit it does nothing.
func OnRollback(ctx context.Context, undo func()) {
	if log, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		log.steps = append(log.steps, undo)
	}
}
