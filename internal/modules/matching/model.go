// README: Matching defaults and the reservation contract.
package matching

import (
	"context"
	"time"

	"taxidispatch/internal/types"
)

const (
	// DefaultRadiusKm applies when a caller passes a radius <= 0.
	DefaultRadiusKm = 3.0
	// MaxRadiusKm bounds radius values accepted from clients.
	MaxRadiusKm = 100.0
	// defaultReservationTTL bounds how long a createTrip may hold a driver before booking it.
	defaultReservationTTL = 10 * time.Second
)

// Reserver guards a driver while one request attempts to book it. Reserve returns
// false when another token currently holds the driver.
type Reserver interface {
	Reserve(ctx context.Context, driverID types.ID, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, driverID types.ID, token string) error
}
