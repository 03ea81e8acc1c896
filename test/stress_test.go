package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"marketflow/asset"
	"marketflow/db"
	"marketflow/gateway"
	"marketflow/ledger"
	"marketflow/review"
	"marketflow/settlement"
	"marketflow/test/actors"
	"marketflow/test/chaos"
	"marketflow/test/infra"
	"marketflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 20*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent buyers")
	flAssets      = flag.Int("assets", 4, "number of assets seeded up front")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
	flChaos       = flag.Bool("chaos", true, "terminate random backends while running")
)

const sellerID = "stress-seller"

func TestSettlementConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test skipped in -short mode")
	}
	seed := *flSeed
	rand.Seed(seed)

	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	dsn, shared, terminate := database(t, ctx)
	defer terminate()

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, shared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	insert := func(ctx context.Context) (string, error) {
		return infra.InsertAsset(ctx, pool, infra.AssetSeed{OwnerID: sellerID, Amount: 100000})
	}
	catalog := actors.NewCatalog()
	for range *flAssets {
		id, err := insert(ctx)
		if err != nil {
			t.Fatalf("seed asset: %v", err)
		}
		catalog.Add(id)
	}

	ledgerRepo := ledger.NewRepository(pool)
	sandbox := gateway.NewSandbox()
	coord := settlement.NewCoordinator(settlement.Dependencies{
		Assets:        asset.NewRepository(pool),
		Ledger:        ledgerRepo,
		Reviews:       review.NewRepository(pool),
		Tx:            db.NewTransactor(pool),
		Gateway:       sandbox,
		MinimumAmount: 100000,
	})
	sweeper := settlement.NewSweeper(ledgerRepo, coord, settlement.SweepConfig{OlderThan: 0, BatchSize: 25, Concurrency: 4}, nil)

	var stats actors.Stats
	g, gctx := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	for i := range *flConcurrency {
		buyer := fmt.Sprintf("stress-buyer-%d", i)
		g.Go(func() error { return actors.Buyer(gctx, coord, sandbox, catalog, buyer, &stats, stop) })
	}
	g.Go(func() error { return actors.Sweeper(gctx, sweeper, stop) })
	g.Go(func() error { return actors.Lister(gctx, insert, catalog, stop) })
	if *flChaos {
		go chaos.TerminateRandomBackend(gctx, pool, 2*time.Second, stop)
	}

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-gctx.Done():
			break loop
		case <-ticker.C:
			if checkOracles(t, gctx, pool, seed) {
				failed = true
				break loop
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v (seed=%d)", err, seed)
		}
	}
	if !failed {
		checkOracles(t, context.Background(), pool, seed)
	}
	t.Logf("stress done: %s (seed=%d)", &stats, seed)
	if stats.Completed.Load() == 0 {
		t.Errorf("expected at least one completed settlement")
	}
}

func checkOracles(t *testing.T, ctx context.Context, pool *pgxpool.Pool, seed int64) bool {
	t.Helper()
	name, row, err := oracles.Run(ctx, pool)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		// a chaos kill can land on the oracle connection
		t.Logf("oracle %s error: %v", name, err)
		return false
	}
	if name != "" {
		dumpRecent(t, ctx, pool)
		t.Errorf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
		return true
	}
	return false
}

// database returns a DSN from the flag, the environment, Docker or a local
// server, in that order. The test is skipped when none is reachable.
func database(t *testing.T, ctx context.Context) (dsn string, shared bool, terminate func()) {
	t.Helper()
	terminate = func() {}
	switch {
	case *flDSN != "":
		return *flDSN, true, terminate
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		return os.Getenv("STRESS_TEST_PG_DSN"), true, terminate
	case infra.DockerAvailable(ctx):
		pgC, dsn, err := infra.StartPostgres16(ctx, "")
		if err != nil {
			t.Fatalf("start postgres: %v", err)
		}
		return dsn, false, func() { _ = pgC.Terminate(context.Background()) }
	}
	dsn, err := infra.InitLocalDatabase(ctx)
	if err != nil {
		t.Skipf("no postgres available: %v", err)
	}
	return dsn, false, terminate
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"transactions", `SELECT id, asset_id, buyer_id, status, flag, completed_at FROM transactions ORDER BY updated_at DESC LIMIT 50`},
		{"assets", `SELECT id, status, updated_at FROM assets ORDER BY updated_at DESC LIMIT 20`},
		{"settlement_reviews", `SELECT id, transaction_id, status, created_at FROM settlement_reviews ORDER BY created_at DESC LIMIT 20`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
