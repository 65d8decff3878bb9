// Package storage runs multi-store writes inside one Postgres transaction.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/modules/invoice"
	"taxidispatch/internal/modules/trip"
)

type UnitOfWork struct {
	pool *pgxpool.Pool
}

func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// Within commits when fn returns nil and rolls back otherwise. fn's error is returned unwrapped
// so callers can match their own sentinels.
func (u *UnitOfWork) Within(ctx context.Context, fn func(tx trip.Tx) error) error {
	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// No-op after a successful commit.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(scope{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type scope struct {
	tx pgx.Tx
}

func (s scope) Trips() trip.Repository       { return trip.NewStore(s.tx) }
func (s scope) Drivers() trip.DriverWriter   { return driver.NewStore(s.tx) }
func (s scope) Invoices() trip.InvoiceWriter { return invoice.NewStore(s.tx) }
