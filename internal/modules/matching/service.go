// README: Matching service finds candidate drivers around a pickup point and guards them with reservations.
package matching

import (
	"context"
	"time"

	"taxidispatch/internal/config"
	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/types"
)

// DriverSource returns available drivers within radiusKm of p, in registration order.
type DriverSource interface {
	FindNearby(ctx context.Context, p types.Point, radiusKm float64) ([]driver.Driver, error)
}

type Service struct {
	drivers  DriverSource
	reserver Reserver
	radiusKm float64
	ttl      time.Duration
}

// NewService uses an in-process reserver when reserver is nil.
func NewService(drivers DriverSource, reserver Reserver, cfg config.MatchingConfig) *Service {
	if reserver == nil {
		reserver = NewMemoryReserver()
	}
	radius := cfg.RadiusKm
	if radius <= 0 {
		radius = DefaultRadiusKm
	}
	ttl := cfg.ReservationTTL
	if ttl <= 0 {
		ttl = defaultReservationTTL
	}
	return &Service{drivers: drivers, reserver: reserver, radiusKm: radius, ttl: ttl}
}

// FindCandidates returns available drivers within radiusKm of origin. Order is the
// store's retrieval order, not distance. An empty result is not an error.
func (s *Service) FindCandidates(ctx context.Context, origin types.Point, radiusKm float64) ([]driver.Driver, error) {
	if radiusKm <= 0 {
		radiusKm = s.radiusKm
	}
	return s.drivers.FindNearby(ctx, origin, radiusKm)
}

func (s *Service) Reserve(ctx context.Context, driverID types.ID, token string) (bool, error) {
	return s.reserver.Reserve(ctx, driverID, token, s.ttl)
}

func (s *Service) Release(ctx context.Context, driverID types.ID, token string) error {
	return s.reserver.Release(ctx, driverID, token)
}
