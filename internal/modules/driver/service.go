// README: Driver registry: registration and read models.
package driver

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"taxidispatch/internal/modules/geo"
	"taxidispatch/internal/types"
)

// Repository is the persistence contract the registry needs.
type Repository interface {
	Create(ctx context.Context, d *Driver) error
	FindByID(ctx context.Context, id types.ID) (*Driver, error)
	FindAvailable(ctx context.Context) ([]Driver, error)
	List(ctx context.Context) ([]Driver, error)
}

type Service struct {
	store Repository
	log   logrus.FieldLogger
}

func NewService(store Repository, log logrus.FieldLogger) *Service {
	return &Service{store: store, log: log}
}

type RegisterCommand struct {
	Name      string
	License   string
	Latitude  float64
	Longitude float64
	// Available defaults to true when nil.
	Available *bool
}

func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*Driver, error) {
	name := strings.TrimSpace(cmd.Name)
	license := strings.TrimSpace(cmd.License)
	pos := types.Point{Lat: cmd.Latitude, Lng: cmd.Longitude}
	if name == "" || license == "" || !pos.Valid() {
		return nil, ErrInvalidInput
	}

	available := true
	if cmd.Available != nil {
		available = *cmd.Available
	}
	now := time.Now().UTC()
	d := &Driver{
		ID:        types.NewID(),
		Name:      name,
		License:   license,
		Available: available,
		Latitude:  pos.Lat,
		Longitude: pos.Lng,
		Geohash:   geo.Cell(pos),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"driver_id": d.ID, "geohash": d.Geohash}).Info("driver registered")
	return d, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.store.FindByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Driver, error) {
	return s.store.List(ctx)
}

func (s *Service) ListAvailable(ctx context.Context) ([]Driver, error) {
	return s.store.FindAvailable(ctx)
}
