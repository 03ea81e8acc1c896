package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_sale_per_asset",
			SQL: `SELECT asset_id, COUNT(*) FROM transactions
                  WHERE type = 'purchase' AND status = 'completed' AND flag IS NULL
                  GROUP BY asset_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_fee_split",
			SQL: `SELECT id, amount, platform_fee, net_amount FROM transactions
                  WHERE platform_fee + net_amount <> amount
                     OR platform_fee <> ROUND(amount * 0.05)`,
		},
		{
			Name: "O3_completed_at_iff_completed",
			SQL: `SELECT id, status, completed_at FROM transactions
                  WHERE (status = 'completed') <> (completed_at IS NOT NULL)`,
		},
		{
			Name: "O4_sold_asset_has_buyer",
			SQL: `SELECT a.id FROM assets a
                  WHERE a.status = 'sold'
                    AND NOT EXISTS (
                        SELECT 1 FROM transactions t
                        WHERE t.asset_id = a.id AND t.type = 'purchase'
                          AND t.status = 'completed' AND t.flag IS NULL)`,
		},
		{
			Name: "O5_completed_purchase_sold_asset",
			SQL: `SELECT t.id, a.status FROM transactions t
                  JOIN assets a ON a.id = t.asset_id
                  WHERE t.type = 'purchase' AND t.status = 'completed' AND t.flag IS NULL
                    AND a.status <> 'sold'`,
		},
		{
			Name: "O6_flag_has_review",
			SQL: `SELECT t.id FROM transactions t
                  WHERE t.flag = 'asset_already_sold'
                    AND NOT EXISTS (
                        SELECT 1 FROM settlement_reviews r
                        WHERE r.transaction_id = t.id AND r.reason = 'asset_already_sold')`,
		},
		{
			Name: "O7_flag_only_on_completed_purchase",
			SQL: `SELECT id, type, status FROM transactions
                  WHERE flag IS NOT NULL AND (type <> 'purchase' OR status <> 'completed')`,
		},
		{
			Name: "O8_investment_never_sells",
			SQL: `SELECT a.id FROM assets a
                  WHERE a.pricing_type = 'investment' AND a.status = 'sold'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
