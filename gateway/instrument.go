package gateway

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"marketflow/metrics"
)

type instrumented struct {
	next   Gateway
	logger *zap.Logger
}

// Instrument records latency and outcome of every call made through g.
func Instrument(g Gateway, logger *zap.Logger) Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumented{next: g, logger: logger}
}

func (i *instrumented) CreateIntent(ctx context.Context, p CreateIntentParams) (Intent, error) {
	start := time.Now()
	in, err := i.next.CreateIntent(ctx, p)
	i.observe("create_intent", start, err)
	return in, err
}

func (i *instrumented) RetrieveIntent(ctx context.Context, intentID string) (Intent, error) {
	start := time.Now()
	in, err := i.next.RetrieveIntent(ctx, intentID)
	i.observe("retrieve_intent", start, err)
	return in, err
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	outcome := Outcome(err)
	metrics.GatewayLatency.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		i.logger.Warn("gateway call failed", zap.String("op", op), zap.String("outcome", outcome), zap.Error(err))
	}
}

// Outcome names the error class of a gateway call for logs and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRejected):
		return "rejected"
	default:
		return "transient"
	}
}
