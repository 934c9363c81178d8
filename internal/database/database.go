// Package database is a hand-written data access layer over pgx. It keeps
// the Queries/DBTX shape so handlers and services depend on narrow
// interfaces and tests can substitute fakes.
//
// Single-row writes only: the workshop pipeline treats order, measurement,
// and invoice creation as independent writes that are retried or compensated
// individually, never wrapped in a multi-row transaction.
package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Queries bundles every query against the workshop schema.
type Queries struct {
	db DBTX
}

// New creates Queries backed by a pool, connection, or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns Queries bound to the given transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}
