package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketflow/migrations"
)

// ApplyMigrations opens a pool against dsn and applies the embedded migrations.
// With isolate set, everything lands in a fresh schema that the returned
// teardown drops again, so runs can share one database.
func ApplyMigrations(ctx context.Context, dsn string, isolate bool) (*pgxpool.Pool, func(context.Context) error, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("infra: parse pool config: %w", err)
	}
	cfg.MaxConns = 32

	teardown := func(context.Context) error { return nil }
	if isolate {
		schema := pgx.Identifier{fmt.Sprintf("marketflow_run_%d", time.Now().UnixNano())}.Sanitize()
		if err := execOnce(ctx, dsn, "CREATE SCHEMA "+schema); err != nil {
			return nil, nil, fmt.Errorf("infra: create schema: %w", err)
		}
		searchPath := fmt.Sprintf("SET search_path TO %s, public", schema)
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, searchPath)
			return err
		}
		teardown = func(ctx context.Context) error {
			return execOnce(ctx, dsn, "DROP SCHEMA IF EXISTS "+schema+" CASCADE")
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		_ = teardown(ctx)
		return nil, nil, fmt.Errorf("infra: connect pool: %w", err)
	}
	if err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		_ = teardown(ctx)
		return nil, nil, err
	}
	return pool, teardown, nil
}

// execOnce runs one statement on a short-lived connection outside the pool.
func execOnce(ctx context.Context, dsn, stmt string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, stmt)
	return err
}
