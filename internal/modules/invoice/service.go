// README: Invoice service implements the payment state machine and invoice queries.
package invoice

import (
	"context"

	"github.com/sirupsen/logrus"

	"taxidispatch/internal/events"
	"taxidispatch/internal/types"
)

type Repository interface {
	FindByID(ctx context.Context, id types.ID) (*Invoice, error)
	FindByTripID(ctx context.Context, tripID types.ID) (*Invoice, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status) (bool, error)
	List(ctx context.Context) ([]Invoice, error)
}

// TripLookup answers whether a trip exists without this package depending on trips.
type TripLookup interface {
	TripExists(ctx context.Context, id types.ID) (bool, error)
}

type Service struct {
	store  Repository
	trips  TripLookup
	events events.Publisher
	log    logrus.FieldLogger
}

func NewService(store Repository, trips TripLookup, pub events.Publisher, log logrus.FieldLogger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{store: store, trips: trips, events: pub, log: log}
}

type PayCommand struct {
	InvoiceID types.ID
}

func (s *Service) Pay(ctx context.Context, cmd PayCommand) (*Invoice, error) {
	inv, err := s.store.FindByID(ctx, cmd.InvoiceID)
	if err != nil {
		return nil, err
	}
	if err := checkPayable(inv.Status); err != nil {
		return nil, err
	}

	ok, err := s.store.UpdateStatus(ctx, inv.ID, StatusPending, StatusPaid)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Someone else moved it first; report what it became.
		cur, err := s.store.FindByID(ctx, inv.ID)
		if err != nil {
			return nil, err
		}
		if err := checkPayable(cur.Status); err != nil {
			return nil, err
		}
		return nil, types.Conflict("invoice state changed concurrently")
	}

	paid, err := s.store.FindByID(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	log := s.log.WithFields(logrus.Fields{"invoice_id": paid.ID, "trip_id": paid.TripID})
	log.Info("invoice paid")
	if err := s.events.Publish(ctx, events.InvoicePaid, paid); err != nil {
		log.WithError(err).Warn("invoice.paid not published")
	}
	return paid, nil
}

func checkPayable(st Status) error {
	if st == StatusPaid {
		return ErrAlreadyPaid
	}
	if !CanTransition(st, StatusPaid) {
		return ErrNotPending
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Invoice, error) {
	return s.store.FindByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Invoice, error) {
	return s.store.List(ctx)
}

// GetByTrip fails with ErrTripNotFound before looking for the invoice.
func (s *Service) GetByTrip(ctx context.Context, tripID types.ID) (*Invoice, error) {
	exists, err := s.trips.TripExists(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrTripNotFound
	}
	return s.store.FindByTripID(ctx, tripID)
}
