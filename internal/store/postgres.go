// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MemberGate Contributors

// Package store provides the PostgreSQL connection pool and schema
// migrations.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// NewPool opens a pgx connection pool and waits for the database to
// become reachable, retrying pings with fibonacci backoff. The database
// is often still starting when the app comes up.
func NewPool(ctx context.Context, databaseURL string, connectTimeout time.Duration, maxAttempts uint64) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_CONFIG_INVALID").
			With("operation", "parse database url").
			Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("STORE_POOL_FAILED").
			With("operation", "create connection pool").
			Wrap(err)
	}

	backoff := retry.WithMaxRetries(maxAttempts, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("STORE_UNREACHABLE").
			With("operation", "ping database").
			With("max_attempts", maxAttempts).
			Wrap(err)
	}

	return pool, nil
}
