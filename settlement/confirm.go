package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"marketflow/asset"
	"marketflow/gateway"
	"marketflow/ledger"
	"marketflow/metrics"
	"marketflow/notify"
	"marketflow/review"
)

// Outcome describes what a confirmation did to the transaction.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomePending   Outcome = "pending"
	OutcomeFlagged   Outcome = "flagged"
	// OutcomeUnchanged means the transaction was already terminal.
	OutcomeUnchanged Outcome = "unchanged"
)

type ConfirmParams struct {
	CallerID        string
	PaymentIntentID string
}

type ConfirmResult struct {
	Transaction ledger.Transaction
	Outcome     Outcome
}

// ConfirmSettlement reconciles a transaction with the processor's view of its
// intent. Side effects apply at most once per intent; repeated calls return the
// settled state.
func (c *Coordinator) ConfirmSettlement(ctx context.Context, p ConfirmParams) (res ConfirmResult, err error) {
	ctx, span := c.tracer.Start(ctx, "settlement.ConfirmSettlement", trace.WithAttributes(
		attribute.String("payment_intent.id", p.PaymentIntentID),
	))
	defer func() {
		endSpan(span, err)
		metrics.SettlementsConfirmed.WithLabelValues(confirmOutcome(res, err)).Inc()
	}()

	if p.PaymentIntentID == "" {
		return ConfirmResult{}, fmt.Errorf("%w: empty payment intent id", ErrUnknownIntent)
	}
	// Loaded inside a unit of work so a completion in flight is never seen half applied.
	var tx ledger.Transaction
	err = c.tx.WithTx(ctx, func(ctx context.Context) error {
		var lerr error
		tx, lerr = c.ledger.FindByPaymentIntent(ctx, p.PaymentIntentID)
		return lerr
	})
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return ConfirmResult{}, fmt.Errorf("%w: %s", ErrUnknownIntent, p.PaymentIntentID)
		}
		return ConfirmResult{}, fmt.Errorf("settlement: load transaction: %w", err)
	}
	if !mayConfirm(p.CallerID, tx) {
		return ConfirmResult{}, ErrForbidden
	}
	if tx.Status.Terminal() {
		return settled(tx)
	}

	intent, err := c.gateway.RetrieveIntent(ctx, tx.PaymentIntentID)
	if err != nil {
		if errors.Is(err, gateway.ErrRejected) {
			res, ferr := c.fail(ctx, tx)
			if ferr != nil {
				return res, ferr
			}
			return res, fmt.Errorf("%w: %w", ErrPaymentRejected, err)
		}
		return ConfirmResult{Transaction: tx, Outcome: OutcomePending}, fmt.Errorf("%w: %w", ErrTransientGateway, err)
	}

	switch intent.Status {
	case gateway.IntentSucceeded:
		return c.complete(ctx, tx, intent)
	case gateway.IntentFailed:
		return c.fail(ctx, tx)
	default:
		return ConfirmResult{Transaction: tx, Outcome: OutcomePending}, nil
	}
}

// complete records a succeeded payment and, for purchases, marks the asset
// sold. Losing the asset race flags the transaction for a manual refund; a
// flagged completion is the only second completed purchase an asset can have.
// Status, asset, flag and review are written in one unit of work.
func (c *Coordinator) complete(ctx context.Context, tx ledger.Transaction, intent gateway.Intent) (ConfirmResult, error) {
	now := c.now().UTC()
	var (
		won         bool
		flagged     bool
		assetStatus asset.Status
	)
	err := c.tx.WithTx(ctx, func(ctx context.Context) error {
		ok, err := c.ledger.UpdateStatus(ctx, tx.ID, ledger.StatusPending, ledger.StatusCompleted, ledger.Update{
			CompletedAt:   &now,
			PaymentMethod: intent.PaymentMethod,
		})
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		won = true
		if tx.Type != ledger.TypePurchase {
			return nil
		}

		sold, err := c.assets.CompareAndSetStatus(ctx, tx.AssetID, asset.StatusActive, asset.StatusSold)
		if err != nil {
			return err
		}
		if sold {
			return nil
		}

		flagged = true
		if a, err := c.assets.Get(ctx, tx.AssetID); err == nil {
			assetStatus = a.Status
		}
		if err := c.ledger.SetFlag(ctx, tx.ID, ledger.FlagAssetAlreadySold); err != nil {
			return err
		}
		note := fmt.Sprintf("payment %s succeeded while asset was %s", intent.ID, assetStatus)
		_, err = c.reviews.Open(ctx, review.Record{
			ID:            c.idGenerator(),
			TransactionID: tx.ID,
			AssetID:       tx.AssetID,
			Reason:        review.ReasonAssetAlreadySold,
			Note:          &note,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			return ConfirmResult{}, fmt.Errorf("%w: %w", ErrInvalidTransition, err)
		}
		return ConfirmResult{}, fmt.Errorf("settlement: apply completion: %w", err)
	}
	if !won {
		return c.reread(ctx, tx)
	}

	tx.Status = ledger.StatusCompleted
	tx.CompletedAt = &now
	tx.UpdatedAt = now
	if intent.PaymentMethod != "" {
		tx.Metadata.PaymentMethod = intent.PaymentMethod
	}
	if flagged {
		tx.Flag = ledger.FlagAssetAlreadySold
	}
	c.emit(tx, ledger.StatusPending, now)

	if flagged {
		metrics.SettlementAlerts.WithLabelValues("asset_already_sold").Inc()
		c.logger.Error("purchase completed on an asset that was no longer active",
			zap.String("alert", "asset_already_sold"),
			zap.String("transaction_id", tx.ID),
			zap.String("payment_intent_id", tx.PaymentIntentID),
			zap.String("asset_id", tx.AssetID),
			zap.String("asset_status", string(assetStatus)),
			zap.Int64("amount", tx.Amount),
		)
		return ConfirmResult{Transaction: tx, Outcome: OutcomeFlagged}, ErrAssetAlreadySold
	}

	c.logger.Info("settlement completed",
		zap.String("transaction_id", tx.ID),
		zap.String("payment_intent_id", tx.PaymentIntentID),
		zap.String("asset_id", tx.AssetID),
		zap.String("type", string(tx.Type)),
	)
	return ConfirmResult{Transaction: tx, Outcome: OutcomeCompleted}, nil
}

func (c *Coordinator) fail(ctx context.Context, tx ledger.Transaction) (ConfirmResult, error) {
	ok, err := c.ledger.UpdateStatus(ctx, tx.ID, ledger.StatusPending, ledger.StatusFailed, ledger.Update{})
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			return ConfirmResult{}, fmt.Errorf("%w: %w", ErrInvalidTransition, err)
		}
		return ConfirmResult{}, fmt.Errorf("settlement: record failure: %w", err)
	}
	if !ok {
		return c.reread(ctx, tx)
	}

	now := c.now().UTC()
	tx.Status = ledger.StatusFailed
	tx.UpdatedAt = now
	c.emit(tx, ledger.StatusPending, now)
	c.logger.Info("settlement failed",
		zap.String("transaction_id", tx.ID),
		zap.String("payment_intent_id", tx.PaymentIntentID),
	)
	return ConfirmResult{Transaction: tx, Outcome: OutcomeFailed}, nil
}

// reread returns the state left by the confirmation that won the race.
func (c *Coordinator) reread(ctx context.Context, tx ledger.Transaction) (ConfirmResult, error) {
	current, err := c.ledger.Get(ctx, tx.ID)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("settlement: reload transaction: %w", err)
	}
	return settled(current)
}

func (c *Coordinator) emit(tx ledger.Transaction, from ledger.Status, at time.Time) {
	c.events.Emit(notify.Event{
		TransactionID: tx.ID,
		AssetID:       tx.AssetID,
		Type:          string(tx.Type),
		FromStatus:    string(from),
		ToStatus:      string(tx.Status),
		Flag:          string(tx.Flag),
		Timestamp:     at,
	})
}

func settled(tx ledger.Transaction) (ConfirmResult, error) {
	res := ConfirmResult{Transaction: tx, Outcome: OutcomeUnchanged}
	if tx.Status == ledger.StatusPending {
		res.Outcome = OutcomePending
	}
	if tx.Flag == ledger.FlagAssetAlreadySold {
		return res, ErrAssetAlreadySold
	}
	return res, nil
}

func mayConfirm(callerID string, tx ledger.Transaction) bool {
	return callerID != "" && (callerID == SystemCaller || callerID == tx.BuyerID || callerID == tx.SellerID)
}

func confirmOutcome(res ConfirmResult, err error) string {
	switch {
	case errors.Is(err, ErrAssetAlreadySold):
		return string(OutcomeFlagged)
	case errors.Is(err, ErrTransientGateway):
		return "transient"
	case errors.Is(err, ErrPaymentRejected):
		return "rejected"
	case err != nil:
		return "error"
	}
	return string(res.Outcome)
}
