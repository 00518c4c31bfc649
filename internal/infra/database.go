package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

// connectTimeout bounds how long startup keeps retrying an unreachable backend.
const connectTimeout = 30 * time.Second

// NewPostgresPool configures and returns a PostgreSQL connection pool. The
// first ping is retried with exponential backoff so the service survives a
// database that is still starting.
func NewPostgresPool(ctx context.Context, url string, logger *slog.Logger) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	ping := func() error { return pool.Ping(ctx) }
	if err := backoff.RetryNotify(ping, startupBackoff(ctx), notify(logger, "postgres")); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

func startupBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = connectTimeout
	return backoff.WithContext(b, ctx)
}

func notify(logger *slog.Logger, backend string) backoff.Notify {
	return func(err error, wait time.Duration) {
		logger.Warn("backend not ready, retrying", "backend", backend, "error", err, "wait", wait)
	}
}
