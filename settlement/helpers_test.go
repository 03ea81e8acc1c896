package settlement

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"marketflow/asset"
	"marketflow/db"
	"marketflow/gateway"
	"marketflow/ledger"
	"marketflow/notify"
	"marketflow/review"
)

const (
	sellerID = "seller-1"
	buyerID  = "buyer-1"
)

type harness struct {
	assets  *asset.MemoryStore
	ledger  *ledger.MemoryStore
	reviews *review.MemoryStore
	gw      *gateway.Sandbox
	events  *recordingEmitter
	tx      *db.MemoryTx
	coord   *Coordinator
	clock   time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		assets:  asset.NewMemoryStore(),
		ledger:  ledger.NewMemoryStore(),
		reviews: review.NewMemoryStore(),
		gw:      gateway.NewSandbox(),
		events:  &recordingEmitter{},
		tx:      &db.MemoryTx{},
		clock:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.coord = h.build(h.ledger, h.gw)
	return h
}

func (h *harness) build(l LedgerStore, g gateway.Gateway) *Coordinator {
	var seq atomic.Int64
	return NewCoordinator(Dependencies{
		Assets:        h.assets,
		Ledger:        l,
		Reviews:       h.reviews,
		Tx:            h.tx,
		Gateway:       g,
		Events:        h.events,
		Fees:          DefaultFeeSchedule(),
		MinimumAmount: 100000,
		Currency:      "usd",
	}).WithIDGenerator(func() string {
		return fmt.Sprintf("id-%d", seq.Add(1))
	}).WithClock(func() time.Time { return h.clock })
}

func (h *harness) addAsset(id string, pricing asset.PricingType, amount int64) {
	h.assets.Put(asset.Asset{
		ID:      id,
		OwnerID: sellerID,
		Name:    "asset " + id,
		Status:  asset.StatusActive,
		Pricing: asset.Pricing{Type: pricing, Amount: amount, Currency: "usd"},
	})
}

func (h *harness) initiate(t *testing.T, assetID, buyer string, amount int64, typ ledger.Type) InitiateResult {
	t.Helper()
	res, err := h.coord.InitiateSettlement(context.Background(), InitiateParams{
		CallerID: buyer,
		AssetID:  assetID,
		Amount:   amount,
		Type:     typ,
	})
	if err != nil {
		t.Fatalf("initiate: expected nil error, got %v", err)
	}
	return res
}

func (h *harness) settle(t *testing.T, intentID string, status gateway.IntentStatus) {
	t.Helper()
	if err := h.gw.Settle(intentID, status, "pm_card_visa"); err != nil {
		t.Fatalf("settle: %v", err)
	}
}

func (h *harness) assetStatus(t *testing.T, id string) asset.Status {
	t.Helper()
	a, err := h.assets.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}
	return a.Status
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingEmitter) Emit(e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recordingEmitter) last() notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

// failingLedger lets a test break Create or SetFlag while keeping the rest of the store.
type failingLedger struct {
	*ledger.MemoryStore
	createErr error
	flagErr   error
}

func (f *failingLedger) SetFlag(ctx context.Context, id string, flag ledger.Flag) error {
	if f.flagErr != nil {
		return f.flagErr
	}
	return f.MemoryStore.SetFlag(ctx, id, flag)
}

func (f *failingLedger) Create(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	if f.createErr != nil {
		return ledger.Transaction{}, f.createErr
	}
	return f.MemoryStore.Create(ctx, tx)
}

// fixedIntentGateway hands out the same intent id for every create.
type fixedIntentGateway struct {
	*gateway.Sandbox
	id string
}

func (f *fixedIntentGateway) CreateIntent(ctx context.Context, p gateway.CreateIntentParams) (gateway.Intent, error) {
	f.Sandbox.Register(gateway.Intent{ID: f.id, ClientSecret: f.id + "_secret", Status: gateway.IntentPending, AmountMinor: p.AmountMinor, Currency: p.Currency})
	return f.Sandbox.RetrieveIntent(ctx, f.id)
}

type failingReviews struct {
	err error
}

func (f failingReviews) Open(context.Context, review.Record) (review.Record, error) {
	return review.Record{}, f.err
}
