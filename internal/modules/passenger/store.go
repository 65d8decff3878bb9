// README: Passenger store backed by PostgreSQL.
package passenger

import (
	"context"
	"fmt"

	"taxidispatch/internal/infra"
	"taxidispatch/internal/types"
)

const passengerColumns = `id, name, email, phone, created_at, updated_at`

type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, p *Passenger) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO passengers (`+passengerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(p.ID), p.Name, p.Email, p.Phone, p.CreatedAt, p.UpdatedAt,
	)
	if constraint, ok := infra.UniqueViolation(err); ok && constraint == "passengers_email_key" {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert passenger: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id types.ID) (*Passenger, error) {
	return s.findOne(ctx, `SELECT `+passengerColumns+` FROM passengers WHERE id = $1`, string(id))
}

// FindByEmail expects an already normalised address.
func (s *Store) FindByEmail(ctx context.Context, email string) (*Passenger, error) {
	return s.findOne(ctx, `SELECT `+passengerColumns+` FROM passengers WHERE email = $1`, email)
}

func (s *Store) List(ctx context.Context) ([]Passenger, error) {
	rows, err := s.db.Query(ctx, `SELECT `+passengerColumns+` FROM passengers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query passengers: %w", err)
	}
	defer rows.Close()

	var out []Passenger
	for rows.Next() {
		var p Passenger
		var id string
		if err := rows.Scan(&id, &p.Name, &p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan passenger: %w", err)
		}
		p.ID = types.ID(id)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) findOne(ctx context.Context, sql string, arg any) (*Passenger, error) {
	var p Passenger
	var id string
	err := s.db.QueryRow(ctx, sql, arg).Scan(&id, &p.Name, &p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if infra.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select passenger: %w", err)
	}
	p.ID = types.ID(id)
	return &p, nil
}
