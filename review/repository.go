package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketflow/db"
)

var (
	ErrNotFound  = errors.New("review: not found")
	ErrBadStatus = errors.New("review: invalid status transition")
)

const returning = `id::text, transaction_id::text, asset_id::text, reason, status, note, resolved_by, created_at, updated_at, resolved_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Open records a review for the transaction. Opening the same reason twice
// returns the existing record.
func (r *Repository) Open(ctx context.Context, rec Record) (Record, error) {
	conn := db.Conn(ctx, r.pool)

	query := `
		INSERT INTO settlement_reviews (id, transaction_id, asset_id, reason, status, note)
		VALUES ($1, $2, $3, $4, 'open', $5)
		ON CONFLICT (transaction_id, reason) DO NOTHING
		RETURNING ` + returning

	out, err := scanRecord(conn.QueryRow(ctx, query, rec.ID, rec.TransactionID, rec.AssetID, string(rec.Reason), rec.Note))
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("review: open: %w", err)
	}

	existing := `SELECT ` + returning + ` FROM settlement_reviews WHERE transaction_id = $1 AND reason = $2`
	out, err = scanRecord(conn.QueryRow(ctx, existing, rec.TransactionID, string(rec.Reason)))
	if err != nil {
		return Record{}, fmt.Errorf("review: open fetch: %w", err)
	}
	return out, nil
}

func (r *Repository) List(ctx context.Context, status Status) ([]Record, error) {
	query := `SELECT ` + returning + ` FROM settlement_reviews`
	args := []any{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("review: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("review: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("review: iterate: %w", err)
	}
	return out, nil
}

func (r *Repository) Resolve(ctx context.Context, id, operatorID, note string) (Record, error) {
	conn := db.Conn(ctx, r.pool)

	query := `
		UPDATE settlement_reviews
		SET status = 'resolved', resolved_by = $2, note = COALESCE(NULLIF($3, ''), note),
		    resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status <> 'resolved'
		RETURNING ` + returning

	rec, err := scanRecord(conn.QueryRow(ctx, query, id, operatorID, note))
	if err == nil {
		return rec, nil
	}
	if db.IsInvalidInput(err) {
		return Record{}, ErrNotFound
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("review: resolve: %w", err)
	}

	var status Status
	if err := conn.QueryRow(ctx, `SELECT status FROM settlement_reviews WHERE id = $1`, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("review: resolve fetch: %w", err)
	}
	return Record{}, ErrBadStatus
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec            Record
		reason, status string
	)
	if err := row.Scan(&rec.ID, &rec.TransactionID, &rec.AssetID, &reason, &status, &rec.Note, &rec.ResolvedBy,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.ResolvedAt); err != nil {
		return Record{}, err
	}
	rec.Reason, rec.Status = Reason(reason), Status(status)
	return rec, nil
}
