// README: Trip service: matching a passenger to a driver, completing trips and issuing invoices.
package trip

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"taxidispatch/internal/events"
	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/modules/invoice"
	"taxidispatch/internal/modules/passenger"
	"taxidispatch/internal/types"
)

type Repository interface {
	Create(ctx context.Context, t *Trip) error
	FindByID(ctx context.Context, id types.ID) (*Trip, error)
	// FindActiveByDriver and FindActiveByPassenger return (nil, nil) when nothing is active.
	FindActiveByDriver(ctx context.Context, driverID types.ID) (*Trip, error)
	FindActiveByPassenger(ctx context.Context, passengerID types.ID) (*Trip, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status) (bool, error)
	ListByStatus(ctx context.Context, status Status) ([]Trip, error)
}

type DriverWriter interface {
	SetAvailable(ctx context.Context, id types.ID, from, to bool) (bool, error)
	UpdateAvailability(ctx context.Context, id types.ID, available bool) error
}

type InvoiceWriter interface {
	Create(ctx context.Context, inv *invoice.Invoice) error
}

// Tx exposes stores bound to one database transaction.
type Tx interface {
	Trips() Repository
	Drivers() DriverWriter
	Invoices() InvoiceWriter
}

// UnitOfWork commits when fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(tx Tx) error) error
}

type PassengerLookup interface {
	FindByID(ctx context.Context, id types.ID) (*passenger.Passenger, error)
}

type Matcher interface {
	FindCandidates(ctx context.Context, origin types.Point, radiusKm float64) ([]driver.Driver, error)
	Reserve(ctx context.Context, driverID types.ID, token string) (bool, error)
	Release(ctx context.Context, driverID types.ID, token string) error
}

type Pricer interface {
	Cost(start, end types.Point) types.Money
}

type Deps struct {
	Trips      Repository
	Passengers PassengerLookup
	Matcher    Matcher
	Pricing    Pricer
	UnitOfWork UnitOfWork
	Events     events.Publisher
	Log        logrus.FieldLogger
}

type Service struct {
	trips      Repository
	passengers PassengerLookup
	matcher    Matcher
	pricing    Pricer
	uow        UnitOfWork
	events     events.Publisher
	log        logrus.FieldLogger
	now        func() time.Time
}

func NewService(d Deps) *Service {
	pub := d.Events
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		trips:      d.Trips,
		passengers: d.Passengers,
		matcher:    d.Matcher,
		pricing:    d.Pricing,
		uow:        d.UnitOfWork,
		events:     pub,
		log:        d.Log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type CreateCommand struct {
	PassengerID types.ID
	Start       types.Point
	End         types.Point
}

type CompleteCommand struct {
	TripID types.ID
}

// errDriverTaken means the candidate was booked by someone else; try the next one.
var errDriverTaken = errors.New("driver taken")

// errTripMoved means the ACTIVE -> COMPLETED compare-and-swap lost.
var errTripMoved = errors.New("trip status moved")

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Trip, error) {
	if cmd.PassengerID == "" {
		return nil, ErrMissingPassenger
	}
	if !cmd.Start.Valid() || !cmd.End.Valid() {
		return nil, ErrInvalidCoordinate
	}

	p, err := s.passengers.FindByID(ctx, cmd.PassengerID)
	if err != nil {
		return nil, err
	}
	active, err := s.trips.FindActiveByPassenger(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrPassengerBusy
	}

	candidates, err := s.matcher.FindCandidates(ctx, cmd.Start, 0)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoDrivers
	}

	log := s.log.WithField("passenger_id", p.ID)
	for _, d := range candidates {
		busy, err := s.trips.FindActiveByDriver(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		if busy != nil {
			log.WithField("driver_id", d.ID).Debug("skipping driver with active trip")
			continue
		}

		t, err := s.assign(ctx, p.ID, d.ID, cmd)
		if errors.Is(err, errDriverTaken) {
			log.WithField("driver_id", d.ID).Debug("driver booked concurrently, trying next")
			continue
		}
		if err != nil {
			return nil, err
		}

		log.WithFields(logrus.Fields{"trip_id": t.ID, "driver_id": t.DriverID}).Info("trip created")
		if err := s.events.Publish(ctx, events.TripCreated, t); err != nil {
			log.WithError(err).Warn("trip.created not published")
		}
		return t, nil
	}
	return nil, ErrNoDrivers
}

// assign books driverID for the passenger: the trip insert and the availability
// compare-and-swap commit together or not at all.
func (s *Service) assign(ctx context.Context, passengerID, driverID types.ID, cmd CreateCommand) (*Trip, error) {
	token := uuid.NewString()
	ok, err := s.matcher.Reserve(ctx, driverID, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errDriverTaken
	}
	defer func() {
		if err := s.matcher.Release(context.WithoutCancel(ctx), driverID, token); err != nil {
			s.log.WithError(err).WithField("driver_id", driverID).Warn("release reservation")
		}
	}()

	now := s.now()
	t := &Trip{
		ID:          types.NewID(),
		DriverID:    driverID,
		PassengerID: passengerID,
		Status:      StatusActive,
		Start:       cmd.Start,
		End:         cmd.End,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.uow.Within(ctx, func(tx Tx) error {
		if err := tx.Trips().Create(ctx, t); err != nil {
			if errors.Is(err, ErrDriverBusy) {
				return errDriverTaken
			}
			return err
		}
		ok, err := tx.Drivers().SetAvailable(ctx, driverID, true, false)
		if err != nil {
			return err
		}
		if !ok {
			return errDriverTaken
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Complete bills an ACTIVE trip, marks it COMPLETED and frees its driver.
func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) (*Trip, *invoice.Invoice, error) {
	t, err := s.trips.FindByID(ctx, cmd.TripID)
	if err != nil {
		return nil, nil, err
	}
	if err := checkCompletable(t.Status); err != nil {
		return nil, nil, err
	}

	now := s.now()
	inv := &invoice.Invoice{
		ID:        types.NewID(),
		TripID:    t.ID,
		Amount:    s.pricing.Cost(t.Start, t.End),
		Status:    invoice.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.uow.Within(ctx, func(tx Tx) error {
		if err := tx.Invoices().Create(ctx, inv); err != nil {
			return err
		}
		ok, err := tx.Trips().UpdateStatus(ctx, t.ID, StatusActive, StatusCompleted)
		if err != nil {
			return err
		}
		if !ok {
			return errTripMoved
		}
		return tx.Drivers().UpdateAvailability(ctx, t.DriverID, true)
	})
	if errors.Is(err, errTripMoved) || errors.Is(err, invoice.ErrAlreadyIssued) {
		// Another request completed or cancelled it first.
		cur, ferr := s.trips.FindByID(ctx, t.ID)
		if ferr != nil {
			return nil, nil, ferr
		}
		if cerr := checkCompletable(cur.Status); cerr != nil {
			return nil, nil, cerr
		}
		return nil, nil, types.Conflict("trip state changed concurrently")
	}
	if err != nil {
		return nil, nil, err
	}

	done, err := s.trips.FindByID(ctx, t.ID)
	if err != nil {
		return nil, nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		"trip_id":    done.ID,
		"driver_id":  done.DriverID,
		"invoice_id": inv.ID,
		"amount":     inv.Amount.Amount,
	})
	log.Info("trip completed")
	if err := s.events.Publish(ctx, events.TripCompleted, done); err != nil {
		log.WithError(err).Warn("trip.completed not published")
	}
	if err := s.events.Publish(ctx, events.InvoiceIssued, inv); err != nil {
		log.WithError(err).Warn("invoice.issued not published")
	}
	return done, inv, nil
}

func checkCompletable(st Status) error {
	if st == StatusCompleted {
		return ErrAlreadyCompleted
	}
	if st != StatusActive {
		return ErrNotActive
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Trip, error) {
	return s.trips.FindByID(ctx, id)
}

func (s *Service) ListActive(ctx context.Context) ([]Trip, error) {
	return s.trips.ListByStatus(ctx, StatusActive)
}
