package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketflow/db"
)

var (
	ErrNotFound        = errors.New("ledger: transaction not found")
	ErrDuplicateIntent = errors.New("ledger: payment intent already recorded")
	ErrInvalid         = errors.New("ledger: invalid transaction")
)

const intentConstraint = "transactions_payment_intent_key"

const selectColumns = `
	id::text, asset_id::text, buyer_id, seller_id, amount, currency, type, status,
	payment_intent_id, platform_fee, net_amount, COALESCE(flag, ''), metadata,
	completed_at, created_at, updated_at`

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Validate rejects a transaction that is missing fields or has an inconsistent fee split.
func Validate(tx Transaction) error {
	switch {
	case tx.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalid)
	case tx.PaymentIntentID == "":
		return fmt.Errorf("%w: missing payment intent id", ErrInvalid)
	case tx.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalid)
	case tx.PlatformFee < 0 || tx.PlatformFee+tx.NetAmount != tx.Amount:
		return fmt.Errorf("%w: fee split %d + %d != %d", ErrInvalid, tx.PlatformFee, tx.NetAmount, tx.Amount)
	case !tx.Type.Valid():
		return fmt.Errorf("%w: type %q", ErrInvalid, tx.Type)
	case tx.Status != StatusPending:
		return fmt.Errorf("%w: new transactions start pending", ErrInvalid)
	}
	return nil
}

// Create inserts a pending transaction. A second row for the same payment
// intent yields ErrDuplicateIntent.
func (r *PGRepository) Create(ctx context.Context, tx Transaction) (Transaction, error) {
	if err := Validate(tx); err != nil {
		return Transaction{}, err
	}
	meta, err := json.Marshal(tx.Metadata)
	if err != nil {
		return Transaction{}, fmt.Errorf("ledger: encode metadata: %w", err)
	}

	query := `
		INSERT INTO transactions (id, asset_id, buyer_id, seller_id, amount, currency, type, status,
			payment_intent_id, platform_fee, net_amount, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + selectColumns

	out, err := scanTransaction(db.Conn(ctx, r.pool).QueryRow(ctx, query,
		tx.ID, tx.AssetID, tx.BuyerID, tx.SellerID, tx.Amount, tx.Currency, string(tx.Type), string(tx.Status),
		tx.PaymentIntentID, tx.PlatformFee, tx.NetAmount, meta,
	))
	if err != nil {
		if db.IsUniqueViolation(err, intentConstraint) {
			return Transaction{}, fmt.Errorf("%w: %s", ErrDuplicateIntent, tx.PaymentIntentID)
		}
		return Transaction{}, fmt.Errorf("ledger: create: %w", err)
	}
	return out, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Transaction, error) {
	query := `SELECT ` + selectColumns + ` FROM transactions WHERE id = $1`
	tx, err := scanTransaction(db.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsInvalidInput(err) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, fmt.Errorf("ledger: get: %w", err)
	}
	return tx, nil
}

func (r *PGRepository) FindByPaymentIntent(ctx context.Context, intentID string) (Transaction, error) {
	query := `SELECT ` + selectColumns + ` FROM transactions WHERE payment_intent_id = $1`
	tx, err := scanTransaction(db.Conn(ctx, r.pool).QueryRow(ctx, query, intentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, fmt.Errorf("ledger: find by intent: %w", err)
	}
	return tx, nil
}

// UpdateStatus moves a transaction from expected to next in one conditional
// write. It reports false when the row was no longer in expected.
func (r *PGRepository) UpdateStatus(ctx context.Context, id string, expected, next Status, upd Update) (bool, error) {
	if err := ValidateTransition(expected, next); err != nil {
		return false, err
	}
	completedAt, err := completionTime(next, upd)
	if err != nil {
		return false, err
	}

	const query = `
		UPDATE transactions
		SET status = $3,
		    completed_at = $4,
		    metadata = CASE WHEN $5::text = '' THEN metadata
		                    ELSE jsonb_set(metadata, '{paymentMethod}', to_jsonb($5::text)) END,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, query, id, string(expected), string(next), completedAt, upd.PaymentMethod)
	if err != nil {
		if db.IsInvalidInput(err) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("ledger: update status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PGRepository) SetFlag(ctx context.Context, id string, flag Flag) error {
	const query = `UPDATE transactions SET flag = NULLIF($2, ''), updated_at = NOW() WHERE id = $1`
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, query, id, string(flag))
	if err != nil {
		return fmt.Errorf("ledger: set flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForParty pages through transactions where partyID is buyer or seller.
func (r *PGRepository) ListForParty(ctx context.Context, partyID string, page, limit int) (HistoryPage, error) {
	page, limit = NormalizePage(page, limit)
	conn := db.Conn(ctx, r.pool)

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE buyer_id = $1 OR seller_id = $1`, partyID).Scan(&total); err != nil {
		return HistoryPage{}, fmt.Errorf("ledger: count history: %w", err)
	}

	query := `SELECT ` + selectColumns + `
		FROM transactions
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	items, err := r.list(ctx, conn, query, partyID, limit, (page-1)*limit)
	if err != nil {
		return HistoryPage{}, err
	}
	return HistoryPage{Items: items, Total: total, Page: page, Pages: (total + limit - 1) / limit}, nil
}

// ListStalePending returns pending transactions created before cutoff, oldest first.
func (r *PGRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]Transaction, error) {
	query := `SELECT ` + selectColumns + `
		FROM transactions
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`
	return r.list(ctx, db.Conn(ctx, r.pool), query, cutoff, limit)
}

func (r *PGRepository) list(ctx context.Context, conn db.Querier, query string, args ...any) ([]Transaction, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	defer rows.Close()

	out := make([]Transaction, 0, 8)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate: %w", err)
	}
	return out, nil
}

// completionTime enforces that completed_at is set exactly when the status is completed.
func completionTime(next Status, upd Update) (*time.Time, error) {
	if next != StatusCompleted {
		return nil, nil
	}
	if upd.CompletedAt == nil {
		return nil, fmt.Errorf("%w: completion requires a timestamp", ErrInvalid)
	}
	return upd.CompletedAt, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx                Transaction
		typ, status, flag string
		meta              []byte
	)
	err := row.Scan(&tx.ID, &tx.AssetID, &tx.BuyerID, &tx.SellerID, &tx.Amount, &tx.Currency, &typ, &status,
		&tx.PaymentIntentID, &tx.PlatformFee, &tx.NetAmount, &flag, &meta,
		&tx.CompletedAt, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return Transaction{}, err
	}
	tx.Type, tx.Status, tx.Flag = Type(typ), Status(status), Flag(flag)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &tx.Metadata); err != nil {
			return Transaction{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return tx, nil
}
