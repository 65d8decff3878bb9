// README: Driver aggregate and registry errors.
package driver

import (
	"time"

	"taxidispatch/internal/types"
)

type Driver struct {
	ID        types.ID  `json:"id"`
	Name      string    `json:"name"`
	License   string    `json:"license"`
	Available bool      `json:"available"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Geohash   string    `json:"geohash"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d Driver) Position() types.Point {
	return types.Point{Lat: d.Latitude, Lng: d.Longitude}
}

var (
	ErrNotFound     = types.NotFound("driver not found")
	ErrLicenseTaken = types.Conflict("license already registered")
	ErrInvalidInput = types.BadRequest("name, license and a valid position are required")
)
