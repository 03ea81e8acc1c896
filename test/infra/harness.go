package infra

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Harness owns the lifecycle of the Postgres test database and pgx pool.
type Harness struct {
	container *PGContainer
	pool      *pgxpool.Pool
	dsn       string
	teardown  func(context.Context) error
}

// NewHarness connects to TEST_DATABASE_URL in an isolated schema, or boots a
// Postgres 16 container, and applies the embedded migrations.
func NewHarness(ctx context.Context) (*Harness, error) {
	h := &Harness{container: &PGContainer{}}
	isolate := false

	switch dsn := os.Getenv("TEST_DATABASE_URL"); {
	case dsn != "":
		h.dsn = dsn
		isolate = true
	case DockerAvailable(ctx):
		c, dsn, err := StartPostgres16(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("start postgres container: %w", err)
		}
		h.container, h.dsn = c, dsn
	default:
		return nil, fmt.Errorf("no TEST_DATABASE_URL and docker is unavailable")
	}

	pool, teardown, err := ApplyMigrations(ctx, h.dsn, isolate)
	if err != nil {
		_ = h.container.Terminate(ctx)
		return nil, err
	}
	h.pool, h.teardown = pool, teardown
	return h, nil
}

// NewTestPool returns a migrated pool for an integration test, skipping the
// test when no database can be reached.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	h, err := NewHarness(ctx)
	if err != nil {
		t.Skipf("skipping Postgres integration tests: %v", err)
	}
	t.Cleanup(func() { h.Close(context.Background()) })
	return h.Pool()
}

// Pool exposes the configured pgx pool.
func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// Close tears down resources.
func (h *Harness) Close(ctx context.Context) {
	if h.pool != nil {
		h.pool.Close()
	}
	if h.teardown != nil {
		_ = h.teardown(ctx)
	}
	_ = h.container.Terminate(ctx)
}

// AssetSeed describes a listing inserted directly for tests.
type AssetSeed struct {
	OwnerID     string
	PricingType string
	Amount      int64
	Currency    string
	Status      string
}

// InsertAsset writes an asset row and returns its id.
func InsertAsset(ctx context.Context, pool *pgxpool.Pool, s AssetSeed) (string, error) {
	if s.PricingType == "" {
		s.PricingType = "sale"
	}
	if s.Currency == "" {
		s.Currency = "usd"
	}
	if s.Status == "" {
		s.Status = "active"
	}
	const query = `
INSERT INTO assets (owner_id, name, pricing_type, pricing_amount, pricing_currency, status)
VALUES ($1, 'test asset', $2, $3, $4, $5)
RETURNING id::text`
	var id string
	if err := pool.QueryRow(ctx, query, s.OwnerID, s.PricingType, s.Amount, s.Currency, s.Status).Scan(&id); err != nil {
		return "", fmt.Errorf("insert asset: %w", err)
	}
	return id, nil
}
