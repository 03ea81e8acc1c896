package review_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"marketflow/ledger"
	"marketflow/review"
	"marketflow/test/infra"
)

func TestOpenAndResolve(t *testing.T) {
	pool := infra.NewTestPool(t)
	ctx := context.Background()
	repo := review.NewRepository(pool)

	assetID, err := infra.InsertAsset(ctx, pool, infra.AssetSeed{OwnerID: "seller-1", Amount: 500000})
	if err != nil {
		t.Fatalf("seed asset: %v", err)
	}
	tx, err := ledger.NewRepository(pool).Create(ctx, ledger.Transaction{
		ID: uuid.NewString(), AssetID: assetID, BuyerID: "buyer-1", SellerID: "seller-1",
		Amount: 500000, Currency: "usd", Type: ledger.TypePurchase, Status: ledger.StatusPending,
		PaymentIntentID: "pi_review", PlatformFee: 25000, NetAmount: 475000,
	})
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	rec := review.Record{ID: uuid.NewString(), TransactionID: tx.ID, AssetID: assetID, Reason: review.ReasonAssetAlreadySold}
	first, err := repo.Open(ctx, rec)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rec.ID = uuid.NewString()
	second, err := repo.Open(ctx, rec)
	if err != nil {
		t.Fatalf("re-open: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected re-open to return existing review %s, got %s", first.ID, second.ID)
	}

	open, err := repo.List(ctx, review.StatusOpen)
	if err != nil || len(open) != 1 {
		t.Fatalf("expected one open review, got %d (%v)", len(open), err)
	}

	resolved, err := repo.Resolve(ctx, first.ID, "admin-1", "refund issued")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != review.StatusResolved || resolved.ResolvedAt == nil {
		t.Fatalf("unexpected resolved record %+v", resolved)
	}
	if _, err := repo.Resolve(ctx, first.ID, "admin-1", ""); !errors.Is(err, review.ErrBadStatus) {
		t.Fatalf("expected ErrBadStatus on second resolve, got %v", err)
	}
	if _, err := repo.Resolve(ctx, uuid.NewString(), "admin-1", ""); !errors.Is(err, review.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
