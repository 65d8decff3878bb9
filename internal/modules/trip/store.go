// README: Trip store backed by PostgreSQL.
package trip

import (
	"context"
	"database/sql"
	"fmt"

	"taxidispatch/internal/infra"
	"taxidispatch/internal/types"
)

const tripColumns = `id, driver_id, passenger_id, status,
	start_lat, start_lng, end_lat, end_lng,
	created_at, updated_at, completed_at`

type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

// Create maps violations of the one-ACTIVE-trip indexes to ErrDriverBusy / ErrPassengerBusy.
func (s *Store) Create(ctx context.Context, t *Trip) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO trips (`+tripColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		string(t.ID), string(t.DriverID), string(t.PassengerID), string(t.Status),
		t.Start.Lat, t.Start.Lng, t.End.Lat, t.End.Lng,
		t.CreatedAt, t.UpdatedAt, t.CompletedAt,
	)
	if constraint, ok := infra.UniqueViolation(err); ok {
		switch constraint {
		case "trips_active_driver_key":
			return ErrDriverBusy
		case "trips_active_passenger_key":
			return ErrPassengerBusy
		}
	}
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id types.ID) (*Trip, error) {
	return s.findOne(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, string(id))
}

func (s *Store) FindActiveByDriver(ctx context.Context, driverID types.ID) (*Trip, error) {
	return s.findActive(ctx, `SELECT `+tripColumns+` FROM trips WHERE driver_id = $1 AND status = 'ACTIVE' LIMIT 1`, string(driverID))
}

func (s *Store) FindActiveByPassenger(ctx context.Context, passengerID types.ID) (*Trip, error) {
	return s.findActive(ctx, `SELECT `+tripColumns+` FROM trips WHERE passenger_id = $1 AND status = 'ACTIVE' LIMIT 1`, string(passengerID))
}

// TripExists backs invoice lookups by trip.
func (s *Store) TripExists(ctx context.Context, id types.ID) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM trips WHERE id = $1)`, string(id)).Scan(&exists); err != nil {
		return false, fmt.Errorf("trip exists: %w", err)
	}
	return exists, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE trips
		SET status = $1,
		    updated_at = NOW(),
		    completed_at = CASE WHEN $1 = 'COMPLETED' THEN NOW() ELSE completed_at END
		WHERE id = $2 AND status = $3`,
		string(to), string(id), string(from),
	)
	if err != nil {
		return false, fmt.Errorf("update trip status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListByStatus(ctx context.Context, status Status) ([]Trip, error) {
	rows, err := s.db.Query(ctx, `SELECT `+tripColumns+` FROM trips WHERE status = $1 ORDER BY created_at, id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	var out []Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) findOne(ctx context.Context, query string, arg any) (*Trip, error) {
	t, err := scanTrip(s.db.QueryRow(ctx, query, arg))
	if infra.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select trip: %w", err)
	}
	return t, nil
}

// findActive returns (nil, nil) when there is no active trip.
func (s *Store) findActive(ctx context.Context, query string, arg any) (*Trip, error) {
	t, err := scanTrip(s.db.QueryRow(ctx, query, arg))
	if infra.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select active trip: %w", err)
	}
	return t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrip(row scanner) (*Trip, error) {
	var t Trip
	var id, driverID, passengerID, status string
	var completedAt sql.NullTime
	if err := row.Scan(
		&id, &driverID, &passengerID, &status,
		&t.Start.Lat, &t.Start.Lng, &t.End.Lat, &t.End.Lng,
		&t.CreatedAt, &t.UpdatedAt, &completedAt,
	); err != nil {
		return nil, err
	}
	t.ID = types.ID(id)
	t.DriverID = types.ID(driverID)
	t.PassengerID = types.ID(passengerID)
	t.Status = Status(status)
	if completedAt.Valid {
		c := completedAt.Time
		t.CompletedAt = &c
	}
	return &t, nil
}
