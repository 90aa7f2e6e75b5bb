// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MemberGate Contributors

// Package postgres provides PostgreSQL-backed implementations of the
// auth repositories.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// poolIface is the subset of pgxpool.Pool the repositories use. Keeping
// it narrow lets tests substitute a pgxmock pool.
type poolIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ poolIface = (*pgxpool.Pool)(nil)
