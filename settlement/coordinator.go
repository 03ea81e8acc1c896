package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"marketflow/asset"
	"marketflow/auth"
	"marketflow/gateway"
	"marketflow/ledger"
	"marketflow/metrics"
	"marketflow/notify"
	"marketflow/review"
)

// SystemCaller identifies internal confirmations from webhooks and the sweeper.
// Bearer tokens can never carry it.
const SystemCaller = auth.SystemSubject

type AssetStore interface {
	Get(ctx context.Context, id string) (asset.Asset, error)
	CompareAndSetStatus(ctx context.Context, id string, expected, next asset.Status) (bool, error)
}

type LedgerStore interface {
	Create(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error)
	Get(ctx context.Context, id string) (ledger.Transaction, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (ledger.Transaction, error)
	UpdateStatus(ctx context.Context, id string, expected, next ledger.Status, upd ledger.Update) (bool, error)
	SetFlag(ctx context.Context, id string, flag ledger.Flag) error
	ListForParty(ctx context.Context, partyID string, page, limit int) (ledger.HistoryPage, error)
}

// ReviewQueue receives transactions that need a manual refund.
type ReviewQueue interface {
	Open(ctx context.Context, rec review.Record) (review.Record, error)
}

// TxRunner makes the stores' writes inside fn atomic.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Emitter interface {
	Emit(e notify.Event)
}

type Dependencies struct {
	Assets        AssetStore
	Ledger        LedgerStore
	Reviews       ReviewQueue
	Tx            TxRunner
	Gateway       gateway.Gateway
	Events        Emitter
	Fees          FeeSchedule
	MinimumAmount int64
	Currency      string
	Logger        *zap.Logger
}

// Coordinator owns every write to transaction status and to an asset's sold transition.
type Coordinator struct {
	assets      AssetStore
	ledger      LedgerStore
	reviews     ReviewQueue
	tx          TxRunner
	gateway     gateway.Gateway
	events      Emitter
	fees        FeeSchedule
	minAmount   int64
	currency    string
	logger      *zap.Logger
	tracer      trace.Tracer
	idGenerator func() string
	now         func() time.Time
}

type InitiateParams struct {
	CallerID       string
	AssetID        string
	Amount         int64
	Type           ledger.Type
	IdempotencyKey string
}

type InitiateResult struct {
	Transaction  ledger.Transaction
	ClientSecret string
}

func NewCoordinator(deps Dependencies) *Coordinator {
	c := &Coordinator{
		assets:      deps.Assets,
		ledger:      deps.Ledger,
		reviews:     deps.Reviews,
		tx:          deps.Tx,
		gateway:     deps.Gateway,
		events:      deps.Events,
		fees:        deps.Fees,
		minAmount:   deps.MinimumAmount,
		currency:    deps.Currency,
		logger:      deps.Logger,
		tracer:      otel.Tracer("marketflow/settlement"),
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.events == nil {
		c.events = discard{}
	}
	if c.fees == (FeeSchedule{}) {
		c.fees = DefaultFeeSchedule()
	}
	if c.currency == "" {
		c.currency = "usd"
	}
	return c
}

func (c *Coordinator) WithIDGenerator(gen func() string) *Coordinator {
	c.idGenerator = gen
	return c
}

func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// InitiateSettlement reserves funds for an asset with the processor and records
// a pending transaction against the returned intent.
func (c *Coordinator) InitiateSettlement(ctx context.Context, p InitiateParams) (res InitiateResult, err error) {
	ctx, span := c.tracer.Start(ctx, "settlement.InitiateSettlement", trace.WithAttributes(
		attribute.String("asset.id", p.AssetID),
		attribute.String("transaction.type", string(p.Type)),
	))
	defer func() {
		endSpan(span, err)
		metrics.SettlementsInitiated.WithLabelValues(string(p.Type), initiateOutcome(err)).Inc()
	}()

	if p.CallerID == "" {
		return InitiateResult{}, fmt.Errorf("%w: missing caller", ErrForbidden)
	}
	if !p.Type.Valid() {
		return InitiateResult{}, fmt.Errorf("%w: %q", ErrInvalidType, p.Type)
	}
	if p.Amount < c.minAmount {
		return InitiateResult{}, fmt.Errorf("%w: %d is below the minimum of %d", ErrInvalidAmount, p.Amount, c.minAmount)
	}

	a, err := c.assets.Get(ctx, p.AssetID)
	if err != nil {
		if errors.Is(err, asset.ErrNotFound) {
			return InitiateResult{}, fmt.Errorf("%w: %w", ErrAssetUnavailable, err)
		}
		return InitiateResult{}, fmt.Errorf("settlement: load asset: %w", err)
	}
	if a.Status != asset.StatusActive {
		return InitiateResult{}, fmt.Errorf("%w: asset %s is %s", ErrAssetUnavailable, a.ID, a.Status)
	}
	if a.OwnerID == p.CallerID {
		return InitiateResult{}, ErrSelfPurchase
	}
	if !typeMatchesPricing(p.Type, a.Pricing.Type) {
		return InitiateResult{}, fmt.Errorf("%w: %s against a %s listing", ErrInvalidType, p.Type, a.Pricing.Type)
	}

	fee, net, err := c.fees.Split(p.Amount, p.Type)
	if err != nil {
		return InitiateResult{}, err
	}
	currency := a.Pricing.Currency
	if currency == "" {
		currency = c.currency
	}

	intent, err := c.gateway.CreateIntent(ctx, gateway.CreateIntentParams{
		AmountMinor: p.Amount,
		Currency:    currency,
		Metadata: map[string]string{
			"asset_id":  a.ID,
			"buyer_id":  p.CallerID,
			"seller_id": a.OwnerID,
			"type":      string(p.Type),
		},
		IdempotencyKey: p.IdempotencyKey,
	})
	if err != nil {
		return InitiateResult{}, gatewayError(err)
	}

	created, err := c.ledger.Create(ctx, ledger.Transaction{
		ID:              c.idGenerator(),
		AssetID:         a.ID,
		BuyerID:         p.CallerID,
		SellerID:        a.OwnerID,
		Amount:          p.Amount,
		Currency:        currency,
		Type:            p.Type,
		Status:          ledger.StatusPending,
		PaymentIntentID: intent.ID,
		PlatformFee:     fee,
		NetAmount:       net,
		Metadata: ledger.Metadata{
			ProcessingFee:  fee,
			IdempotencyKey: p.IdempotencyKey,
		},
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateIntent) {
			return c.replayInitiate(ctx, p, intent, err)
		}
		metrics.SettlementAlerts.WithLabelValues("orphaned_intent").Inc()
		c.logger.Error("payment intent created without ledger record",
			zap.String("alert", "orphaned_intent"),
			zap.String("payment_intent_id", intent.ID),
			zap.String("asset_id", a.ID),
			zap.String("buyer_id", p.CallerID),
			zap.Error(err),
		)
		return InitiateResult{}, &OrphanedIntentError{IntentID: intent.ID, Err: err}
	}

	c.logger.Info("settlement initiated",
		zap.String("transaction_id", created.ID),
		zap.String("payment_intent_id", created.PaymentIntentID),
		zap.String("asset_id", created.AssetID),
		zap.Int64("amount", created.Amount),
		zap.Int64("platform_fee", created.PlatformFee),
	)
	return InitiateResult{Transaction: created, ClientSecret: intent.ClientSecret}, nil
}

// replayInitiate answers a retried initiation that reused its idempotency key:
// the processor handed back the same intent, so the existing record is returned.
func (c *Coordinator) replayInitiate(ctx context.Context, p InitiateParams, intent gateway.Intent, cause error) (InitiateResult, error) {
	if p.IdempotencyKey != "" {
		existing, err := c.ledger.FindByPaymentIntent(ctx, intent.ID)
		if err == nil && existing.BuyerID == p.CallerID && existing.AssetID == p.AssetID && existing.Amount == p.Amount {
			return InitiateResult{Transaction: existing, ClientSecret: intent.ClientSecret}, nil
		}
	}
	c.logger.Error("payment intent already recorded",
		zap.String("payment_intent_id", intent.ID),
		zap.String("asset_id", p.AssetID),
		zap.Error(cause),
	)
	return InitiateResult{}, fmt.Errorf("%w: %w", ErrDuplicateIntent, cause)
}

// History lists the caller's transactions as buyer or seller, newest first.
func (c *Coordinator) History(ctx context.Context, callerID string, page, limit int) (ledger.HistoryPage, error) {
	if callerID == "" {
		return ledger.HistoryPage{}, fmt.Errorf("%w: missing caller", ErrForbidden)
	}
	out, err := c.ledger.ListForParty(ctx, callerID, page, limit)
	if err != nil {
		return ledger.HistoryPage{}, fmt.Errorf("settlement: history: %w", err)
	}
	return out, nil
}

// Availability is the read-only purchase view used by the catalog.
func (c *Coordinator) Availability(ctx context.Context, assetID string) (asset.Availability, error) {
	a, err := c.assets.Get(ctx, assetID)
	if err != nil {
		return asset.Availability{}, fmt.Errorf("settlement: availability: %w", err)
	}
	return a.Availability(), nil
}

func typeMatchesPricing(t ledger.Type, p asset.PricingType) bool {
	switch t {
	case ledger.TypePurchase:
		return p == asset.PricingSale
	case ledger.TypeInvestment:
		return p == asset.PricingInvestment
	}
	return false
}

func gatewayError(err error) error {
	if errors.Is(err, gateway.ErrRejected) {
		return fmt.Errorf("%w: %w", ErrPaymentRejected, err)
	}
	return fmt.Errorf("%w: %w", ErrTransientGateway, err)
}

func initiateOutcome(err error) string {
	switch {
	case err == nil:
		return "pending"
	case errors.Is(err, ErrAssetUnavailable):
		return "asset_unavailable"
	case errors.Is(err, ErrPaymentRejected):
		return "rejected"
	case errors.Is(err, ErrTransientGateway):
		return "transient"
	default:
		return "error"
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type discard struct{}

func (discard) Emit(notify.Event) {}
