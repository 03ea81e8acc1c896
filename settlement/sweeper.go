package settlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"marketflow/ledger"
	"marketflow/metrics"
)

type StaleLister interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]ledger.Transaction, error)
}

type SweepConfig struct {
	Interval    time.Duration
	OlderThan   time.Duration
	BatchSize   int
	Concurrency int
}

// SweepReport counts what one sweep did.
type SweepReport struct {
	Scanned   int
	Completed int
	Failed    int
	Pending   int
	Flagged   int
	Errors    int
}

// Sweeper re-confirms pending transactions the buyer never came back for.
// It only applies what the processor reports and never voids an intent.
type Sweeper struct {
	lister  StaleLister
	confirm confirmFunc
	cfg     SweepConfig
	logger  *zap.Logger
	now     func() time.Time
}

func NewSweeper(lister StaleLister, confirm confirmFunc, cfg SweepConfig, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Sweeper{lister: lister, confirm: confirm, cfg: cfg, logger: logger, now: time.Now}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Run sweeps on every interval tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			report, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.Warn("stale pending sweep failed", zap.Error(err))
				continue
			}
			if report.Scanned > 0 {
				s.logger.Info("stale pending sweep",
					zap.Int("scanned", report.Scanned),
					zap.Int("completed", report.Completed),
					zap.Int("failed", report.Failed),
					zap.Int("pending", report.Pending),
					zap.Int("flagged", report.Flagged),
					zap.Int("errors", report.Errors),
				)
			}
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	stale, err := s.lister.ListStalePending(ctx, s.now().Add(-s.cfg.OlderThan), s.cfg.BatchSize)
	if err != nil {
		return SweepReport{}, err
	}

	var (
		mu     sync.Mutex
		report = SweepReport{Scanned: len(stale)}
		g      errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)
	for _, tx := range stale {
		g.Go(func() error {
			res, err := s.confirm.ConfirmSettlement(ctx, ConfirmParams{CallerID: SystemCaller, PaymentIntentID: tx.PaymentIntentID})
			outcome := sweepOutcome(res, err)
			metrics.SweepRuns.WithLabelValues(outcome).Inc()
			if outcome == "error" {
				s.logger.Warn("sweep confirmation failed",
					zap.String("transaction_id", tx.ID),
					zap.String("payment_intent_id", tx.PaymentIntentID),
					zap.Error(err),
				)
			}

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case "completed":
				report.Completed++
			case "failed":
				report.Failed++
			case "flagged":
				report.Flagged++
			case "pending":
				report.Pending++
			default:
				report.Errors++
			}
			return nil
		})
	}
	_ = g.Wait()
	return report, nil
}

func sweepOutcome(res ConfirmResult, err error) string {
	switch {
	case errors.Is(err, ErrAssetAlreadySold):
		return "flagged"
	case errors.Is(err, ErrPaymentRejected):
		return "failed"
	case err != nil:
		return "error"
	}
	switch res.Outcome {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeUnchanged:
		if res.Transaction.Status == ledger.StatusCompleted {
			return "completed"
		}
		return "failed"
	}
	return "pending"
}
