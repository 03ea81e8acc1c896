package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"marketflow/asset"
	"marketflow/auth"
	"marketflow/config"
	"marketflow/db"
	"marketflow/gateway"
	"marketflow/httpapi"
	"marketflow/ledger"
	"marketflow/metrics"
	"marketflow/migrations"
	"marketflow/notify"
	"marketflow/review"
	"marketflow/settlement"
)

type assetStore interface {
	settlement.AssetStore
	httpapi.MetricCounter
}

type ledgerStore interface {
	settlement.LedgerStore
	settlement.StaleLister
}

type reviewStore interface {
	settlement.ReviewQueue
	review.Store
}

type stores struct {
	assets  assetStore
	ledger  ledgerStore
	reviews reviewStore
	tx      settlement.TxRunner
}

type app struct {
	cfg        config.Config
	logger     *zap.Logger
	pool       *pgxpool.Pool
	stores     stores
	gateway    gateway.Gateway
	sandbox    *gateway.Sandbox
	dispatcher *notify.Dispatcher
	closers    []func() error
	coord      *settlement.Coordinator
	sweeper    *settlement.Sweeper
	router     *gin.Engine
	wg         sync.WaitGroup
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if err := a.openStores(ctx); err != nil {
		return nil, err
	}
	a.openGateway()
	a.openEvents()

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		a.close()
		return nil, err
	}

	a.coord = settlement.NewCoordinator(settlement.Dependencies{
		Assets:        a.stores.assets,
		Ledger:        a.stores.ledger,
		Reviews:       a.stores.reviews,
		Tx:            a.stores.tx,
		Gateway:       a.gateway,
		Events:        a.dispatcher,
		Fees:          settlement.FeeSchedule{Purchase: cfg.FeeRatePurchase, Investment: cfg.FeeRateInvestment},
		MinimumAmount: cfg.MinimumAmount,
		Currency:      cfg.Currency,
		Logger:        logger.Named("settlement"),
	})
	confirmer := settlement.NewConfirmer(a.coord, settlement.RetryPolicy{
		MaxRetries:      cfg.Confirm.MaxRetries,
		InitialInterval: cfg.Confirm.InitialInterval,
		MaxInterval:     cfg.Confirm.MaxInterval,
	}, logger.Named("confirmer"))
	a.sweeper = settlement.NewSweeper(a.stores.ledger, a.coord, settlement.SweepConfig{
		Interval:    cfg.Sweep.Interval,
		OlderThan:   cfg.Sweep.OlderThan,
		BatchSize:   cfg.Sweep.BatchSize,
		Concurrency: cfg.Sweep.Concurrency,
	}, logger.Named("sweeper"))

	a.router = httpapi.NewRouter(httpapi.Dependencies{
		Settlement:    a.coord,
		Confirmer:     confirmer,
		Metrics:       a.stores.assets,
		Reviews:       review.NewService(a.stores.reviews, logger.Named("review")),
		Verifier:      verifier,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Logger:        logger.Named("http"),
	})
	return a, nil
}

func (a *app) openStores(ctx context.Context) error {
	switch a.cfg.StoreDriver {
	case "memory":
		a.logger.Warn("using in-memory stores, data is lost on restart")
		a.stores = stores{
			assets:  asset.NewMemoryStore(),
			ledger:  ledger.NewMemoryStore(),
			reviews: review.NewMemoryStore(),
			tx:      &db.MemoryTx{},
		}
		return nil
	case "postgres":
		pool, err := db.NewPool(ctx, a.cfg.DatabaseURL, db.PoolOptions{MaxConns: a.cfg.DBMaxConns})
		if err != nil {
			return fmt.Errorf("bootstrap database pool: %w", err)
		}
		if err := migrations.Apply(ctx, pool); err != nil {
			pool.Close()
			return fmt.Errorf("apply migrations: %w", err)
		}
		a.pool = pool
		a.stores = stores{
			assets:  asset.NewRepository(pool),
			ledger:  ledger.NewRepository(pool),
			reviews: review.NewRepository(pool),
			tx:      db.NewTransactor(pool),
		}
		return nil
	}
	return fmt.Errorf("unknown store driver %q", a.cfg.StoreDriver)
}

func (a *app) openGateway() {
	var g gateway.Gateway
	if a.cfg.UseSandboxGateway() {
		a.logger.Warn("no processor key configured, using the sandbox gateway")
		a.sandbox = gateway.NewSandbox()
		g = a.sandbox
	} else {
		var opts []gateway.StripeOption
		if a.cfg.Stripe.APIURL != "" {
			opts = append(opts, gateway.WithAPIURL(a.cfg.Stripe.APIURL))
		}
		g = gateway.NewStripe(a.cfg.Stripe.SecretKey, opts...)
	}
	a.gateway = gateway.Instrument(g, a.logger.Named("gateway"))
}

func (a *app) openEvents() {
	sinks := []notify.Sink{notify.NewLogSink(a.logger.Named("events"))}
	if len(a.cfg.Kafka.Brokers) > 0 {
		k := notify.NewKafkaSink(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic)
		sinks = append(sinks, k)
		a.closers = append(a.closers, k.Close)
	}
	if a.cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: a.cfg.Redis.Addr})
		sinks = append(sinks, notify.NewRedisSink(client, a.cfg.Redis.Channel))
		a.closers = append(a.closers, client.Close)
	}
	a.dispatcher = notify.NewDispatcher(a.logger.Named("notify"), a.cfg.EventBuffer, sinks...)
}

// start launches the background workers. They stop when ctx is done.
func (a *app) start(ctx context.Context) {
	a.dispatcher.Start(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.sweeper.Run(ctx)
	}()

	if a.pool != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					metrics.RecordPoolStats(a.pool.Stat())
				}
			}
		}()
	}
}

func (a *app) close() {
	a.wg.Wait()
	if a.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.dispatcher.Close(ctx); err != nil {
			a.logger.Warn("event dispatcher did not drain", zap.Error(err))
		}
		cancel()
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close event sink", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
