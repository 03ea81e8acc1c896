package asset

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketflow/db"
)

var (
	ErrNotFound          = errors.New("asset: not found")
	ErrInvalidTransition = errors.New("asset: invalid status transition")
	ErrUnknownMetric     = errors.New("asset: unknown metric")
)

// CanTransition reports whether an asset may move from one status to another
// through a compare-and-set. Only active listings can be sold.
func CanTransition(from, to Status) bool {
	if to == StatusSold {
		return from == StatusActive
	}
	return from != StatusSold && from != to
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Get(ctx context.Context, id string) (Asset, error) {
	const query = `
		SELECT id::text, owner_id, name, pricing_type, pricing_amount, pricing_currency, status, created_at, updated_at
		FROM assets
		WHERE id = $1
	`
	a, err := scanAsset(db.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsInvalidInput(err) {
			return Asset{}, ErrNotFound
		}
		return Asset{}, fmt.Errorf("asset: get: %w", err)
	}
	return a, nil
}

// CompareAndSetStatus moves the asset to next only if it is currently in
// expected. It reports false when another writer got there first.
func (r *PGRepository) CompareAndSetStatus(ctx context.Context, id string, expected, next Status) (bool, error) {
	if !CanTransition(expected, next) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, expected, next)
	}

	const query = `
		UPDATE assets
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	conn := db.Conn(ctx, r.pool)
	tag, err := conn.Exec(ctx, query, id, string(expected), string(next))
	if err != nil {
		if db.IsInvalidInput(err) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("asset: compare and set: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM assets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("asset: compare and set check: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// IncrementMetric bumps one engagement counter and returns its new value.
func (r *PGRepository) IncrementMetric(ctx context.Context, id string, m Metric) (int64, error) {
	col, ok := m.column()
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, m)
	}
	query := fmt.Sprintf(`UPDATE assets SET %[1]s = %[1]s + 1 WHERE id = $1 RETURNING %[1]s`, col)

	var value int64
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, query, id).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsInvalidInput(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("asset: increment %s: %w", col, err)
	}
	return value, nil
}

func scanAsset(row pgx.Row) (Asset, error) {
	var (
		a                   Asset
		pricingType, status string
	)
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &pricingType, &a.Pricing.Amount, &a.Pricing.Currency, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Asset{}, err
	}
	a.Pricing.Type = PricingType(pricingType)
	a.Status = Status(status)
	return a, nil
}
