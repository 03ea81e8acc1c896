package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"marketflow/gateway"
	"marketflow/ledger"
	"marketflow/settlement"
)

// Catalog is the shared set of asset ids buyers race over.
type Catalog struct {
	mu  sync.RWMutex
	ids []string
}

func NewCatalog(ids ...string) *Catalog {
	return &Catalog{ids: append([]string(nil), ids...)}
}

func (c *Catalog) Add(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, id)
}

func (c *Catalog) Pick() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ids[rand.Intn(len(c.ids))]
}

// Stats counts outcomes across all actors.
type Stats struct {
	Initiated  atomic.Int64
	Completed  atomic.Int64
	Flagged    atomic.Int64
	Failed     atomic.Int64
	Rejected   atomic.Int64
	Infra      atomic.Int64
	Unexpected atomic.Int64
}

func (s *Stats) String() string {
	return fmt.Sprintf("initiated=%d completed=%d flagged=%d failed=%d rejected=%d infra=%d",
		s.Initiated.Load(), s.Completed.Load(), s.Flagged.Load(), s.Failed.Load(), s.Rejected.Load(), s.Infra.Load())
}

// Buyer keeps initiating purchases on random assets, settles them at the
// sandbox and confirms each one from two goroutines at once.
func Buyer(ctx context.Context, coord *settlement.Coordinator, gw *gateway.Sandbox, catalog *Catalog, buyerID string, stats *Stats, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		res, err := coord.InitiateSettlement(ctx, settlement.InitiateParams{
			CallerID: buyerID,
			AssetID:  catalog.Pick(),
			Amount:   int64(100000 + rand.Intn(5)*25000),
			Type:     ledger.TypePurchase,
		})
		if err != nil {
			if err := classify(err, stats); err != nil {
				return fmt.Errorf("buyer initiate: %w", err)
			}
			pause(10, 20)
			continue
		}
		stats.Initiated.Add(1)

		status := gateway.IntentSucceeded
		if rand.Intn(6) == 0 {
			status = gateway.IntentFailed
		}
		intentID := res.Transaction.PaymentIntentID
		if err := gw.Settle(intentID, status, "pm_card_visa"); err != nil {
			return fmt.Errorf("buyer settle: %w", err)
		}

		errs := make(chan error, 2)
		for _, caller := range []string{buyerID, settlement.SystemCaller} {
			go func() {
				res, err := coord.ConfirmSettlement(ctx, settlement.ConfirmParams{CallerID: caller, PaymentIntentID: intentID})
				if err == nil {
					switch res.Outcome {
					case settlement.OutcomeCompleted:
						stats.Completed.Add(1)
					case settlement.OutcomeFailed:
						stats.Failed.Add(1)
					}
				}
				errs <- classify(err, stats)
			}()
		}
		for range 2 {
			if err := <-errs; err != nil {
				return fmt.Errorf("buyer confirm: %w", err)
			}
		}
		pause(10, 30)
	}
}

// Sweeper runs stale pending sweeps in a loop, racing the buyers' confirmations.
func Sweeper(ctx context.Context, sw *settlement.Sweeper, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, _ = sw.SweepOnce(ctx)
		pause(50, 100)
	}
}

// Lister adds fresh active assets so buyers never run out of supply.
func Lister(ctx context.Context, insert func(context.Context) (string, error), catalog *Catalog, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if id, err := insert(ctx); err == nil {
			catalog.Add(id)
		}
		pause(200, 200)
	}
}

// classify returns err only when it is not an outcome the system is allowed
// to produce under contention or connection chaos.
func classify(err error, stats *Stats) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, settlement.ErrAssetAlreadySold):
		stats.Flagged.Add(1)
		return nil
	case errors.Is(err, settlement.ErrAssetUnavailable):
		stats.Rejected.Add(1)
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil
	case errors.Is(err, settlement.ErrDuplicateIntent),
		errors.Is(err, settlement.ErrInvalidTransition),
		errors.Is(err, settlement.ErrForbidden),
		errors.Is(err, settlement.ErrUnknownIntent),
		errors.Is(err, settlement.ErrInvalidAmount),
		errors.Is(err, settlement.ErrInvalidType):
		stats.Unexpected.Add(1)
		return err
	default:
		// dropped connections and orphaned intents from chaos
		stats.Infra.Add(1)
		return nil
	}
}

func pause(base, jitter int) {
	time.Sleep(time.Duration(base+rand.Intn(jitter)) * time.Millisecond)
}
