// Package db is a small, hand-written query layer in the shape sqlc would
// generate: a DBTX interface satisfied by a pool, a pooled connection, or a
// transaction, and a Queries struct wrapping one of them. It exists because
// the retrieval pack's generated internal/db package was not itself part of
// the retrieved corpus — only its call sites were — so the row/params types
// below are reconstructed from those call sites rather than generated.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn, and pgx.Tx. Every query
// method below is defined against it so callers can run queries against a
// plain pool connection or within a transaction interchangeably.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries wraps a DBTX with the query methods used throughout the pipeline.
type Queries struct {
	db DBTX
}

// New creates a Queries backed by the given DBTX.
func New(dbtx DBTX) *Queries {
	return &Queries{db: dbtx}
}
