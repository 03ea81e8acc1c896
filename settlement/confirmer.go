package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var errStillPending = errors.New("settlement: intent still pending")

type confirmFunc interface {
	ConfirmSettlement(ctx context.Context, p ConfirmParams) (ConfirmResult, error)
}

// RetryPolicy bounds confirmation polling.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 5, InitialInterval: 500 * time.Millisecond, MaxInterval: 8 * time.Second}
}

// Confirmer polls ConfirmSettlement while the processor reports the intent as
// pending or fails transiently. When retries run out the pending result is returned.
type Confirmer struct {
	coord  confirmFunc
	policy RetryPolicy
	logger *zap.Logger
}

func NewConfirmer(coord confirmFunc, policy RetryPolicy, logger *zap.Logger) *Confirmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxRetries == 0 {
		policy = DefaultRetryPolicy()
	}
	return &Confirmer{coord: coord, policy: policy, logger: logger}
}

func (c *Confirmer) Confirm(ctx context.Context, p ConfirmParams) (ConfirmResult, error) {
	var last ConfirmResult
	op := func() error {
		res, err := c.coord.ConfirmSettlement(ctx, p)
		last = res
		switch {
		case errors.Is(err, ErrTransientGateway):
			return err
		case err != nil:
			return backoff.Permanent(err)
		case res.Outcome == OutcomePending:
			return errStillPending
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("confirmation retry scheduled",
			zap.String("payment_intent_id", p.PaymentIntentID),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.policy.MaxRetries), ctx), notify)
	if errors.Is(err, errStillPending) {
		return last, nil
	}
	return last, err
}

func (c *Confirmer) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.InitialInterval
	b.MaxInterval = c.policy.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
