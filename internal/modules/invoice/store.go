// README: Invoice store backed by PostgreSQL.
package invoice

import (
	"context"
	"database/sql"
	"fmt"

	"taxidispatch/internal/infra"
	"taxidispatch/internal/types"
)

const invoiceColumns = `id, trip_id, amount, currency, status, created_at, updated_at, paid_at`

type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, inv *Invoice) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(inv.ID), string(inv.TripID),
		inv.Amount.Amount, inv.Amount.Currency,
		string(inv.Status), inv.CreatedAt, inv.UpdatedAt, inv.PaidAt,
	)
	if constraint, ok := infra.UniqueViolation(err); ok && constraint == "invoices_trip_id_key" {
		return ErrAlreadyIssued
	}
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id types.ID) (*Invoice, error) {
	return s.findOne(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, string(id))
}

func (s *Store) FindByTripID(ctx context.Context, tripID types.ID) (*Invoice, error) {
	return s.findOne(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE trip_id = $1`, string(tripID))
}

// UpdateStatus moves the invoice from one status to another only if it is still in from.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE invoices
		SET status = $1,
		    updated_at = NOW(),
		    paid_at = CASE WHEN $1 = 'PAID' THEN NOW() ELSE paid_at END
		WHERE id = $2 AND status = $3`,
		string(to), string(id), string(from),
	)
	if err != nil {
		return false, fmt.Errorf("update invoice status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) List(ctx context.Context) ([]Invoice, error) {
	rows, err := s.db.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (s *Store) findOne(ctx context.Context, query string, arg any) (*Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRow(ctx, query, arg))
	if infra.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select invoice: %w", err)
	}
	return inv, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row scanner) (*Invoice, error) {
	var inv Invoice
	var id, tripID, status string
	var paidAt sql.NullTime
	if err := row.Scan(
		&id, &tripID, &inv.Amount.Amount, &inv.Amount.Currency,
		&status, &inv.CreatedAt, &inv.UpdatedAt, &paidAt,
	); err != nil {
		return nil, err
	}
	inv.ID = types.ID(id)
	inv.TripID = types.ID(tripID)
	inv.Status = Status(status)
	if paidAt.Valid {
		t := paidAt.Time
		inv.PaidAt = &t
	}
	return &inv, nil
}
