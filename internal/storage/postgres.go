package storage

import (
	"context"
	"fmt"

	"github.com/KevinKickass/OpenRigCore/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, cfg config.DatabaseConfig) (*PostgresClient, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	// Connection testen
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	client := &PostgresClient{pool: pool}
	if err := client.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return client, nil
}

func (p *PostgresClient) migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rig_counters (
			id         TEXT PRIMARY KEY,
			value      BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create rig_counters: %w", err)
	}
	return nil
}

func (p *PostgresClient) LoadCounters(ctx context.Context) (map[string]int64, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, value FROM rig_counters`)
	if err != nil {
		return nil, fmt.Errorf("failed to query counters: %w", err)
	}

	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[CounterRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan counters: %w", err)
	}

	values := make(map[string]int64, len(list))
	for _, row := range list {
		values[row.ID] = row.Value
	}
	return values, nil
}

// SaveCounters upserts all values in one transaction.
func (p *PostgresClient) SaveCounters(ctx context.Context, values map[string]int64) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for id, v := range values {
		_, err := tx.Exec(ctx, `
			INSERT INTO rig_counters (id, value, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (id) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
		`, id, v)
		if err != nil {
			return fmt.Errorf("failed to save counter %s: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *PostgresClient) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresClient) Pool() *pgxpool.Pool {
	return p.pool
}
