package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryTx_UndoesInReverseOnError(t *testing.T) {
	var tr MemoryTx
	var order []int
	boom := errors.New("boom")

	err := tr.WithTx(context.Background(), func(ctx context.Context) error {
		OnRollback(ctx, func() { order = append(order, 1) })
		OnRollback(ctx, func() { order = append(order, 2) })
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("expected undo in reverse order, got %v", order)
	}
}

func TestMemoryTx_KeepsWritesOnSuccess(t *testing.T) {
	var tr MemoryTx
	undone := false
	err := tr.WithTx(context.Background(), func(ctx context.Context) error {
		OnRollback(ctx, func() { undone = true })
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if undone {
		t.Errorf("expected committed unit to keep its writes")
	}
}

func TestMemoryTx_NestedUnitJoinsOuter(t *testing.T) {
	var tr MemoryTx
	undone := 0
	_ = tr.WithTx(context.Background(), func(ctx context.Context) error {
		if err := tr.WithTx(ctx, func(inner context.Context) error {
			OnRollback(inner, func() { undone++ })
			return nil
		}); err != nil {
			return err
		}
		return errors.New("outer failed")
	})
	if undone != 1 {
		t.Fatalf("expected inner write to be undone with the outer unit, got %d", undone)
	}
}

func TestMemoryTx_SerialisesUnits(t *testing.T) {
	var tr MemoryTx
	var active, overlap atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.WithTx(context.Background(), func(context.Context) error {
				if active.Add(1) > 1 {
					overlap.Add(1)
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	if overlap.Load() != 0 {
		t.Fatalf("expected units to run one at a time, saw %d overlaps", overlap.Load())
	}
}

func TestOnRollback_OutsideUnitIsNoop(t *testing.T) {
	OnRollback(context.Background(), func() { t.Fatalf("undo must not run outside a unit") })
}
