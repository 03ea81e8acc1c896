package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"marketflow/db"
)

func pendingTx(id, intent string) Transaction {
	return Transaction{
		ID: id, AssetID: "asset-1", BuyerID: "buyer-1", SellerID: "seller-1",
		Amount: 100000, Currency: "usd", Type: TypePurchase, Status: StatusPending,
		PaymentIntentID: intent, PlatformFee: 5000, NetAmount: 95000,
	}
}

func TestMemoryStore_CreateRejectsDuplicateIntent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Create(ctx, pendingTx("t1", "pi_1")); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if _, err := store.Create(ctx, pendingTx("t2", "pi_1")); !errors.Is(err, ErrDuplicateIntent) {
		t.Fatalf("expected ErrDuplicateIntent, got %v", err)
	}
}

func TestMemoryStore_CreateValidates(t *testing.T) {
	store := NewMemoryStore()
	bad := pendingTx("t1", "pi_1")
	bad.NetAmount = 1
	if _, err := store.Create(context.Background(), bad); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for broken fee split, got %v", err)
	}
	noIntent := pendingTx("t2", "")
	if _, err := store.Create(context.Background(), noIntent); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for missing intent, got %v", err)
	}
}

func TestMemoryStore_UpdateStatus(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Create(ctx, pendingTx("t1", "pi_1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now()
	ok, err := store.UpdateStatus(ctx, "t1", StatusPending, StatusCompleted, Update{CompletedAt: &now, PaymentMethod: "pm_1"})
	if err != nil || !ok {
		t.Fatalf("expected first update to win, got %v, %v", ok, err)
	}
	ok, err = store.UpdateStatus(ctx, "t1", StatusPending, StatusFailed, Update{})
	if err != nil || ok {
		t.Fatalf("expected stale update to lose quietly, got %v, %v", ok, err)
	}

	tx, _ := store.Get(ctx, "t1")
	if tx.Status != StatusCompleted || tx.CompletedAt == nil || tx.Metadata.PaymentMethod != "pm_1" {
		t.Fatalf("unexpected transaction %+v", tx)
	}

	ok, err = store.UpdateStatus(ctx, "t1", StatusCompleted, StatusRefunded, Update{})
	if err != nil || !ok {
		t.Fatalf("expected refund transition, got %v, %v", ok, err)
	}
	tx, _ = store.Get(ctx, "t1")
	if tx.CompletedAt != nil {
		t.Fatalf("expected completedAt to clear once no longer completed")
	}
}

func TestMemoryStore_ListForParty(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		tx := pendingTx(fmt.Sprintf("t%d", i), fmt.Sprintf("pi_%d", i))
		if i%2 == 0 {
			tx.BuyerID = "buyer-2"
		}
		if _, err := store.Create(ctx, tx); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, err := store.ListForParty(ctx, "seller-1", 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 5 || page.Pages != 3 || len(page.Items) != 2 || page.Items[0].ID != "t5" {
		t.Fatalf("unexpected page %+v", page)
	}

	buyer, _ := store.ListForParty(ctx, "buyer-2", 1, 10)
	if buyer.Total != 2 {
		t.Fatalf("expected 2 transactions for buyer-2, got %d", buyer.Total)
	}

	beyond, _ := store.ListForParty(ctx, "seller-1", 9, 2)
	if len(beyond.Items) != 0 {
		t.Fatalf("expected empty page past the end, got %d", len(beyond.Items))
	}

	huge, err := store.ListForParty(ctx, "seller-1", math.MaxInt/10+2, 10)
	if err != nil {
		t.Fatalf("list huge page: %v", err)
	}
	if len(huge.Items) != 0 || huge.Page != MaxPage || huge.Total != 5 {
		t.Fatalf("unexpected huge page %+v", huge)
	}
}

func TestMemoryStore_UndoesWritesOfFailedUnit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Create(ctx, pendingTx("t1", "pi_1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	var tr db.MemoryTx
	now := time.Now()
	err := tr.WithTx(ctx, func(ctx context.Context) error {
		if ok, err := store.UpdateStatus(ctx, "t1", StatusPending, StatusCompleted, Update{CompletedAt: &now}); !ok || err != nil {
			t.Fatalf("update: %v, %v", ok, err)
		}
		if err := store.SetFlag(ctx, "t1", FlagAssetAlreadySold); err != nil {
			t.Fatalf("flag: %v", err)
		}
		return errors.New("abort")
	})
	if err == nil {
		t.Fatalf("expected abort error")
	}

	got, _ := store.Get(ctx, "t1")
	if got.Status != StatusPending || got.Flag != FlagNone || got.CompletedAt != nil {
		t.Fatalf("expected transaction restored, got %+v", got)
	}
}
