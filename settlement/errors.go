package settlement

import (
	"errors"
	"fmt"
)

var (
	ErrAssetUnavailable  = errors.New("settlement: asset unavailable")
	ErrSelfPurchase      = errors.New("settlement: buyer owns the asset")
	ErrInvalidAmount     = errors.New("settlement: invalid amount")
	ErrInvalidType       = errors.New("settlement: invalid transaction type")
	ErrPaymentRejected   = errors.New("settlement: payment rejected")
	ErrTransientGateway  = errors.New("settlement: transient gateway error")
	ErrDuplicateIntent   = errors.New("settlement: duplicate payment intent")
	ErrInvalidTransition = errors.New("settlement: invalid transition")
	ErrAssetAlreadySold  = errors.New("settlement: asset already sold")
	ErrUnknownIntent     = errors.New("settlement: unknown payment intent")
	ErrForbidden         = errors.New("settlement: forbidden")
)

// OrphanedIntentError reports a processor intent that exists without a ledger record.
type OrphanedIntentError struct {
	IntentID string
	Err      error
}

func (e *OrphanedIntentError) Error() string {
	return fmt.Sprintf("settlement: orphaned payment intent %s: %v", e.IntentID, e.Err)
}

func (e *OrphanedIntentError) Unwrap() error {
	return e.Err
}
