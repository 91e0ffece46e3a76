package infra

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgresPool opens the pool used by the game store and the outbox relay.
// app is reported as application_name so each binary is visible in pg_stat_activity.
// Statements are capped server-side at LifecycleTimeout, matching the deadline
// the lifecycle service puts on every store call.
func NewPostgresPool(ctx context.Context, cfg *Config, app string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	poolCfg.MaxConns = cfg.PGMaxConns
	poolCfg.MinConns = min(2, cfg.PGMaxConns)
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second

	params := poolCfg.ConnConfig.RuntimeParams
	params["application_name"] = app
	if cfg.LifecycleTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.LifecycleTimeout.Milliseconds(), 10)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database %s: %w", cfg.PGDatabase, err)
	}

	return pool, nil
}

// PoolHealth returns a readiness probe that fails when the database is unreachable
// or every connection in the pool is checked out.
func PoolHealth(pool *pgxpool.Pool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		if st := pool.Stat(); st.MaxConns() > 0 && st.AcquiredConns() >= st.MaxConns() {
			return fmt.Errorf("connection pool exhausted (%d/%d)", st.AcquiredConns(), st.MaxConns())
		}
		return nil
	}
}
