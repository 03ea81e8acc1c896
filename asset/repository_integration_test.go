package asset_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"marketflow/asset"
	"marketflow/test/infra"
)

func TestCompareAndSetStatus_SingleWinner(t *testing.T) {
	pool := infra.NewTestPool(t)
	ctx := context.Background()
	repo := asset.NewRepository(pool)

	id, err := infra.InsertAsset(ctx, pool, infra.AssetSeed{OwnerID: "seller-1", Amount: 500000})
	if err != nil {
		t.Fatalf("seed asset: %v", err)
	}

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.CompareAndSetStatus(ctx, id, asset.StatusActive, asset.StatusSold)
			if err != nil {
				t.Errorf("compare and set: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}
	if got.Status != asset.StatusSold {
		t.Fatalf("expected sold, got %s", got.Status)
	}
}

func TestGet_NotFound(t *testing.T) {
	pool := infra.NewTestPool(t)
	repo := asset.NewRepository(pool)

	for _, id := range []string{"00000000-0000-0000-0000-000000000000", "not-a-uuid"} {
		if _, err := repo.Get(context.Background(), id); !errors.Is(err, asset.ErrNotFound) {
			t.Errorf("id %q: expected ErrNotFound, got %v", id, err)
		}
	}
	ok, err := repo.CompareAndSetStatus(context.Background(), "00000000-0000-0000-0000-000000000000", asset.StatusActive, asset.StatusSold)
	if ok || !errors.Is(err, asset.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on missing asset, got %v, %v", ok, err)
	}
}

func TestIncrementMetric(t *testing.T) {
	pool := infra.NewTestPool(t)
	ctx := context.Background()
	repo := asset.NewRepository(pool)

	id, err := infra.InsertAsset(ctx, pool, infra.AssetSeed{OwnerID: "seller-1", Amount: 500000})
	if err != nil {
		t.Fatalf("seed asset: %v", err)
	}
	for want := int64(1); want <= 3; want++ {
		got, err := repo.IncrementMetric(ctx, id, asset.MetricViews)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d views, got %d", want, got)
		}
	}
	if _, err := repo.IncrementMetric(ctx, id, asset.Metric("likes")); !errors.Is(err, asset.ErrUnknownMetric) {
		t.Fatalf("expected ErrUnknownMetric, got %v", err)
	}
}
