package gateway

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrRejected marks an explicit processor refusal. The same request must not be retried.
	ErrRejected = errors.New("gateway: rejected")
	// ErrTransient marks network or server-side failures that are safe to retry with backoff.
	ErrTransient = errors.New("gateway: transient failure")
)

// IntentStatus is the processor's view of a payment intent, collapsed to what settlement needs.
type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentSucceeded IntentStatus = "succeeded"
	IntentFailed    IntentStatus = "failed"
)

type CreateIntentParams struct {
	AmountMinor    int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

type Intent struct {
	ID            string
	ClientSecret  string
	Status        IntentStatus
	PaymentMethod string
	AmountMinor   int64
	Currency      string
}

// Gateway is the payment processor. Implementations never retry internally.
type Gateway interface {
	CreateIntent(ctx context.Context, p CreateIntentParams) (Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (Intent, error)
}

func rejected(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRejected, op, err)
}

func transient(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransient, op, err)
}

func validateCreate(p CreateIntentParams) error {
	if p.AmountMinor <= 0 {
		return rejected("create intent", fmt.Errorf("amount must be positive, got %d", p.AmountMinor))
	}
	if len(p.Currency) != 3 {
		return rejected("create intent", fmt.Errorf("invalid currency %q", p.Currency))
	}
	return nil
}
