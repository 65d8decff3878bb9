// README: Driver store backed by PostgreSQL.
package driver

import (
	"context"
	"fmt"

	"taxidispatch/internal/infra"
	"taxidispatch/internal/modules/geo"
	"taxidispatch/internal/types"
)

const driverColumns = `id, name, license, available, latitude, longitude, geohash, created_at, updated_at`

type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, d *Driver) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO drivers (`+driverColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(d.ID), d.Name, d.License, d.Available,
		d.Latitude, d.Longitude, d.Geohash,
		d.CreatedAt, d.UpdatedAt,
	)
	if constraint, ok := infra.UniqueViolation(err); ok && constraint == "drivers_license_key" {
		return ErrLicenseTaken
	}
	if err != nil {
		return fmt.Errorf("insert driver: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, string(id))
	d, err := scanDriver(row)
	if infra.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select driver: %w", err)
	}
	return d, nil
}

// FindAvailable returns available drivers in registration order.
func (s *Store) FindAvailable(ctx context.Context) ([]Driver, error) {
	return s.query(ctx, `SELECT `+driverColumns+` FROM drivers WHERE available ORDER BY created_at, id`)
}

// FindNearby returns available drivers whose unrounded distance to p is at most radiusKm,
// in registration order. The bounding box only narrows the scan.
func (s *Store) FindNearby(ctx context.Context, p types.Point, radiusKm float64) ([]Driver, error) {
	box := geo.BoundingBox(p, radiusKm)
	rows, err := s.query(ctx, `
		SELECT `+driverColumns+`
		FROM drivers
		WHERE available
		  AND latitude BETWEEN $1 AND $2
		  AND ($5 OR longitude BETWEEN $3 AND $4)
		ORDER BY created_at, id`,
		box.MinLat, box.MaxLat, box.MinLng, box.MaxLng, box.AllLng,
	)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, d := range rows {
		if geo.Within(p, d.Position(), radiusKm) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) List(ctx context.Context) ([]Driver, error) {
	return s.query(ctx, `SELECT `+driverColumns+` FROM drivers ORDER BY created_at, id`)
}

// SetAvailable flips the availability flag only if it still equals from.
func (s *Store) SetAvailable(ctx context.Context, id types.ID, from, to bool) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers
		SET available = $1, updated_at = NOW()
		WHERE id = $2 AND available = $3`,
		to, string(id), from,
	)
	if err != nil {
		return false, fmt.Errorf("update driver availability: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) UpdateAvailability(ctx context.Context, id types.ID, available bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers SET available = $1, updated_at = NOW() WHERE id = $2`,
		available, string(id),
	)
	if err != nil {
		return fmt.Errorf("update driver availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]Driver, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query drivers: %w", err)
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDriver(row scanner) (*Driver, error) {
	var d Driver
	var id string
	if err := row.Scan(
		&id, &d.Name, &d.License, &d.Available,
		&d.Latitude, &d.Longitude, &d.Geohash,
		&d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.ID = types.ID(id)
	return &d, nil
}
