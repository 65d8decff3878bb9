package trip

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxidispatch/internal/config"
	"taxidispatch/internal/events"
	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/modules/geo"
	"taxidispatch/internal/modules/invoice"
	"taxidispatch/internal/modules/matching"
	"taxidispatch/internal/modules/passenger"
	"taxidispatch/internal/modules/pricing"
	"taxidispatch/internal/types"
)

var (
	pickup  = types.Point{Lat: 18.473147, Lng: -69.912835}
	dropoff = types.Point{Lat: 18.476247, Lng: -69.906135}
)

// world is an in-memory database. Within serialises transactions and undoes the
// writes of a failed one, which is enough to model commit/rollback.
type world struct {
	mu   sync.Mutex
	txMu sync.Mutex

	passengers map[types.ID]passenger.Passenger
	drivers    map[types.ID]driver.Driver
	driverSeq  []types.ID
	trips      map[types.ID]Trip
	invoices   map[types.ID]invoice.Invoice

	driverQueries int
	// hooks simulate a concurrent writer landing just before a compare-and-swap.
	beforeSetAvailable func(id types.ID)
	beforeTripUpdate   func(id types.ID)
}

func newWorld() *world {
	return &world{
		passengers: make(map[types.ID]passenger.Passenger),
		drivers:    make(map[types.ID]driver.Driver),
		trips:      make(map[types.ID]Trip),
		invoices:   make(map[types.ID]invoice.Invoice),
	}
}

func (w *world) addPassenger(id string) types.ID {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.passengers[types.ID(id)] = passenger.Passenger{ID: types.ID(id), Name: id, Email: id + "@example.com"}
	return types.ID(id)
}

func (w *world) addDriver(id string, p types.Point, available bool) types.ID {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.drivers[types.ID(id)] = driver.Driver{ID: types.ID(id), License: "LIC-" + id, Available: available, Latitude: p.Lat, Longitude: p.Lng}
	w.driverSeq = append(w.driverSeq, types.ID(id))
	return types.ID(id)
}

func (w *world) addTrip(t Trip) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trips[t.ID] = t
}

func (w *world) driver(id types.ID) driver.Driver {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drivers[id]
}

func (w *world) setDriverAvailable(id types.ID, v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	d := w.drivers[id]
	d.Available = v
	w.drivers[id] = d
}

func (w *world) setTripStatus(id types.ID, st Status) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := w.trips[id]
	t.Status = st
	w.trips[id] = t
}

func (w *world) tripCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.trips)
}

func (w *world) invoiceList() []invoice.Invoice {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []invoice.Invoice
	for _, inv := range w.invoices {
		out = append(out, inv)
	}
	return out
}

// undoLog records how to revert each write made inside a transaction.
// Entries run with w.mu held.
type undoLog []func()

func (u *undoLog) add(f func()) {
	if u != nil {
		*u = append(*u, f)
	}
}

func (w *world) Within(_ context.Context, fn func(tx Tx) error) error {
	w.txMu.Lock()
	defer w.txMu.Unlock()
	undo := &undoLog{}
	if err := fn(worldTx{w: w, undo: undo}); err != nil {
		w.mu.Lock()
		for i := len(*undo) - 1; i >= 0; i-- {
			(*undo)[i]()
		}
		w.mu.Unlock()
		return err
	}
	return nil
}

type worldTx struct {
	w    *world
	undo *undoLog
}

func (t worldTx) Trips() Repository       { return worldTrips{w: t.w, undo: t.undo} }
func (t worldTx) Drivers() DriverWriter   { return worldDrivers{w: t.w, undo: t.undo} }
func (t worldTx) Invoices() InvoiceWriter { return worldInvoices{w: t.w, undo: t.undo} }

// FindByID implements PassengerLookup.
func (w *world) FindByID(_ context.Context, id types.ID) (*passenger.Passenger, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.passengers[id]
	if !ok {
		return nil, passenger.ErrNotFound
	}
	return &p, nil
}

// FindNearby implements matching.DriverSource.
func (w *world) FindNearby(_ context.Context, origin types.Point, radiusKm float64) ([]driver.Driver, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.driverQueries++
	var out []driver.Driver
	for _, id := range w.driverSeq {
		d := w.drivers[id]
		if d.Available && geo.Within(origin, d.Position(), radiusKm) {
			out = append(out, d)
		}
	}
	return out, nil
}

type worldTrips struct {
	w    *world
	undo *undoLog
}

func (r worldTrips) Create(_ context.Context, t *Trip) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	for _, existing := range r.w.trips {
		if existing.Status != StatusActive || t.Status != StatusActive {
			continue
		}
		if existing.DriverID == t.DriverID {
			return ErrDriverBusy
		}
		if existing.PassengerID == t.PassengerID {
			return ErrPassengerBusy
		}
	}
	id := t.ID
	r.undo.add(func() { delete(r.w.trips, id) })
	r.w.trips[t.ID] = *t
	return nil
}

func (r worldTrips) FindByID(_ context.Context, id types.ID) (*Trip, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	t, ok := r.w.trips[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (r worldTrips) findActive(match func(Trip) bool) *Trip {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	for _, t := range r.w.trips {
		if t.Status == StatusActive && match(t) {
			cp := t
			return &cp
		}
	}
	return nil
}

func (r worldTrips) FindActiveByDriver(_ context.Context, id types.ID) (*Trip, error) {
	return r.findActive(func(t Trip) bool { return t.DriverID == id }), nil
}

func (r worldTrips) FindActiveByPassenger(_ context.Context, id types.ID) (*Trip, error) {
	return r.findActive(func(t Trip) bool { return t.PassengerID == id }), nil
}

func (r worldTrips) UpdateStatus(_ context.Context, id types.ID, from, to Status) (bool, error) {
	if r.w.beforeTripUpdate != nil {
		r.w.beforeTripUpdate(id)
	}
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	t, ok := r.w.trips[id]
	if !ok || t.Status != from {
		return false, nil
	}
	prev := t
	r.undo.add(func() { r.w.trips[id] = prev })
	now := time.Now().UTC()
	t.Status = to
	t.UpdatedAt = now
	if to == StatusCompleted {
		t.CompletedAt = &now
	}
	r.w.trips[id] = t
	return true, nil
}

func (r worldTrips) ListByStatus(_ context.Context, st Status) ([]Trip, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var out []Trip
	for _, t := range r.w.trips {
		if t.Status == st {
			out = append(out, t)
		}
	}
	return out, nil
}

type worldDrivers struct {
	w    *world
	undo *undoLog
}

func (r worldDrivers) SetAvailable(_ context.Context, id types.ID, from, to bool) (bool, error) {
	if r.w.beforeSetAvailable != nil {
		r.w.beforeSetAvailable(id)
	}
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	d, ok := r.w.drivers[id]
	if !ok || d.Available != from {
		return false, nil
	}
	prev := d
	r.undo.add(func() { r.w.drivers[id] = prev })
	d.Available = to
	r.w.drivers[id] = d
	return true, nil
}

func (r worldDrivers) UpdateAvailability(_ context.Context, id types.ID, available bool) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	d, ok := r.w.drivers[id]
	if !ok {
		return driver.ErrNotFound
	}
	prev := d
	r.undo.add(func() { r.w.drivers[id] = prev })
	d.Available = available
	r.w.drivers[id] = d
	return nil
}

type worldInvoices struct {
	w    *world
	undo *undoLog
}

func (r worldInvoices) Create(_ context.Context, inv *invoice.Invoice) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	for _, existing := range r.w.invoices {
		if existing.TripID == inv.TripID {
			return invoice.ErrAlreadyIssued
		}
	}
	id := inv.ID
	r.undo.add(func() { delete(r.w.invoices, id) })
	r.w.invoices[inv.ID] = *inv
	return nil
}

type fixture struct {
	w        *world
	svc      *Service
	events   *events.Recorder
	reserver *matching.MemoryReserver
}

func newFixture() *fixture {
	w := newWorld()
	log := logrus.New()
	log.SetOutput(io.Discard)
	rec := &events.Recorder{}
	reserver := matching.NewMemoryReserver()
	matcher := matching.NewService(w, reserver, config.MatchingConfig{RadiusKm: 3, ReservationTTL: time.Minute})
	svc := NewService(Deps{
		Trips:      worldTrips{w: w},
		Passengers: w,
		Matcher:    matcher,
		Pricing:    pricing.NewService(pricing.DefaultRate()),
		UnitOfWork: w,
		Events:     rec,
		Log:        log,
	})
	return &fixture{w: w, svc: svc, events: rec, reserver: reserver}
}

func activeTrip(id, driverID, passengerID string) Trip {
	now := time.Now().UTC()
	return Trip{
		ID: types.ID(id), DriverID: types.ID(driverID), PassengerID: types.ID(passengerID),
		Status: StatusActive, Start: pickup, End: dropoff, CreatedAt: now, UpdatedAt: now,
	}
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreate_AssignsFirstAvailableDriver(t *testing.T) {
	f := newFixture()
	p := f.w.addPassenger("p1")
	d1 := f.w.addDriver("d1", types.Point{Lat: 18.486647, Lng: -69.912835}, true) // ~1.5 km
	f.w.addDriver("d2", pickup, true)                                             // 0 km, registered later

	trip, err := f.svc.Create(context.Background(), CreateCommand{PassengerID: p, Start: pickup, End: dropoff})
	require.NoError(t, err)

	assert.Equal(t, d1, trip.DriverID, "first in retrieval order, not nearest")
	assert.Equal(t, p, trip.PassengerID)
	assert.Equal(t, StatusActive, trip.Status)
	assert.Equal(t, pickup, trip.Start)
	assert.Equal(t, dropoff, trip.End)
	assert.False(t, f.w.driver(d1).Available)
	assert.True(t, f.w.driver("d2").Available)
	assert.Equal(t, []string{events.TripCreated}, f.events.Types())

	// Reservation was released after booking.
	ok, err := f.reserver.Reserve(context.Background(), d1, "probe", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreate_PassengerNotFound(t *testing.T) {
	f := newFixture()
	f.w.addDriver("d1", pickup, true)

	_, err := f.svc.Create(context.Background(), CreateCommand{PassengerID: "ghost", Start: pickup, End: dropoff})
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, 0, f.w.tripCount())
	assert.True(t, f.w.driver("d1").Available)
}

func TestCreate_PassengerAlreadyActive(t *testing.T) {
	f := newFixture()
	p := f.w.addPassenger("p1")
	f.w.addDriver("d1", pickup, true)
	f.w.addTrip(activeTrip("t0", "d-other", "p1"))

	_, err := f.svc.Create(context.Background(), CreateCommand{PassengerID: p, Start: pickup, End: dropoff})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPassengerBusy))
	assert.True(t, errors.Is(err, types.ErrConflict))
	assert.Equal(t, "passenger already has an active trip", err.Error())

	assert.Equal(t, 0, f.w.driverQueries, "driver store must not be queried")
	assert.Equal(t, 1, f.w.tripCount())
	assert.True(t, f.w.driver("d1").Available)
	assert.Empty(t, f.events.Types())
}

func TestCreate_NoDriversInRadius(t *testing.T) {
	f := newFixture()
	p := f.w.addPassenger("p1")
	f.w.addDriver("south", types.Point{Lat: 18.446147, Lng: -69.912835}, true) // ~3.0023 km
	f.w.addDriver("off", pickup, false)

	_, err := f.svc.Create(context.Background(), CreateCommand{PassengerID: p, Start: pickup, End: dropoff})
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, "no drivers available", err.Error())
	assert.Equal(t, 0, f.w.tripCount())
}

func TestCreate_SkipsCandidateWithActiveTrip(t *testing.T) {
	f := newFixture()
	p := f.w.addPassenger("p1")
	f.w.addDriver("d1", pickup, true) // flag says available but a trip is ACTIVE
	d2 := f.w.addDriver("d2", pickup, true)
	f.w.addTrip(activeTrip("t0", "d1", "p-other"))

	trip, err := f.svc.Create(context.Background(), CreateCommand{PassengerID: p, Start: pickup, End: dropoff})
	require.NoError(t, err)
	assert.Equal(t, d2, trip.DriverID)
}

func TestCreate_AllCandidatesBusy(t *testing.T) {
	f := newFixture()
	p := f.w.addPassenger("p1")
	f.w.addDriver("d1", pickup, true)
	f.w.addTrip(activeTrip("t0", "d1", "p-other"))

	_, err := f.svc.Create(context.Background(), CreateCommand{PassengerID: p, Start: pickup, End: dropoff})
	assert.ErrorIs(t, err, ErrNoDrivers)
	assert.Equal(t, 1, f.w.tripCount())
}

func TestCreate_LostCASFallsThroughToNextCandidate(t *testing.T) {
	f := newFixture()
	p := f.w.addPassenger("p1")
	d1 := f.w.addDriver("d1", pickup, true)
	d2 := f.w.addDriver("d2", pickup, true)

	// Another request flips d1 between our active-trip check and the CAS.
	f.w.beforeSetAvailable = func(id types.ID) {
		if id == d1 {
			f.w.setDriverAvailable(d1, false)
		}
	}

	trip, err := f.svc.Create(context.Background(), CreateCommand{PassengerID: p, Start: pickup, End: dropoff})
	require.NoError(t, err)
	assert.Equal(t, d2, trip.DriverID)
	assert.Equal(t, 1, f.w.tripCount(), "the d1 insert must have been rolled back")
	assert.False(t, f.w.driver(d2).Available)
}

func TestCreate_SkipsReservedDriver(t *testing.T) {
	f := newFixture()
	p := f.w.addPassenger("p1")
	d1 := f.w.addDriver("d1", pickup, true)
	d2 := f.w.addDriver("d2", pickup, true)

	ok, err := f.reserver.Reserve(context.Background(), d1, "someone-else", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	trip, err := f.svc.Create(context.Background(), CreateCommand{PassengerID: p, Start: pickup, End: dropoff})
	require.NoError(t, err)
	assert.Equal(t, d2, trip.DriverID)
	assert.True(t, f.w.driver(d1).Available)
}

func TestCreate_ValidatesInput(t *testing.T) {
	f := newFixture()
	p := f.w.addPassenger("p1")
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateCommand{PassengerID: "", Start: pickup, End: dropoff})
	assert.ErrorIs(t, err, types.ErrBadRequest)

	_, err = f.svc.Create(ctx, CreateCommand{PassengerID: p, Start: types.Point{Lat: 95, Lng: 0}, End: dropoff})
	assert.ErrorIs(t, err, ErrInvalidCoordinate)

	_, err = f.svc.Create(ctx, CreateCommand{PassengerID: p, Start: pickup, End: types.Point{Lat: 0, Lng: 200}})
	assert.ErrorIs(t, err, ErrInvalidCoordinate)
}

// TestCreate_ConcurrentSingleDriver fires many passengers at one driver: exactly one wins.
func TestCreate_ConcurrentSingleDriver(t *testing.T) {
	f := newFixture()
	d1 := f.w.addDriver("d1", pickup, true)
	const n = 12
	pids := make([]types.ID, n)
	for i := range pids {
		pids[i] = f.w.addPassenger("p" + string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, pid := range pids {
		wg.Add(1)
		go func(pid types.ID) {
			defer wg.Done()
			_, err := f.svc.Create(context.Background(), CreateCommand{PassengerID: pid, Start: pickup, End: dropoff})
			errs <- err
		}(pid)
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		assert.ErrorIs(t, err, ErrNoDrivers)
	}
	assert.Equal(t, 1, success)
	assert.Equal(t, 1, f.w.tripCount())
	assert.False(t, f.w.driver(d1).Available)
}

// ---------------------------------------------------------------------------
// Complete
// ---------------------------------------------------------------------------

func TestComplete_IssuesInvoiceAndFreesDriver(t *testing.T) {
	f := newFixture()
	p := f.w.addPassenger("p1")
	d := f.w.addDriver("d1", pickup, true)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, CreateCommand{PassengerID: p, Start: pickup, End: dropoff})
	require.NoError(t, err)

	done, inv, err := f.svc.Complete(ctx, CompleteCommand{TripID: created.ID})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, created.ID, inv.TripID)
	assert.Equal(t, invoice.StatusPending, inv.Status)
	// 0.7862 km rounds to 0.79: 50 + 25 * 0.79 = 69.75
	assert.Equal(t, types.Money{Amount: 6975, Currency: "DOP"}, inv.Amount)
	assert.True(t, f.w.driver(d).Available)
	assert.Len(t, f.w.invoiceList(), 1)
	assert.Equal(t, []string{events.TripCreated, events.TripCompleted, events.InvoiceIssued}, f.events.Types())
}

func TestComplete_Twice(t *testing.T) {
	f := newFixture()
	p := f.w.addPassenger("p1")
	f.w.addDriver("d1", pickup, true)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, CreateCommand{PassengerID: p, Start: pickup, End: dropoff})
	require.NoError(t, err)
	_, _, err = f.svc.Complete(ctx, CompleteCommand{TripID: created.ID})
	require.NoError(t, err)

	_, _, err = f.svc.Complete(ctx, CompleteCommand{TripID: created.ID})
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	assert.Equal(t, "trip already completed", err.Error())
	assert.Len(t, f.w.invoiceList(), 1)
}

func TestComplete_NonActive(t *testing.T) {
	f := newFixture()
	tr := activeTrip("t1", "d1", "p1")
	tr.Status = StatusCancelled
	f.w.addTrip(tr)
	pending := activeTrip("t2", "d2", "p2")
	pending.Status = StatusPending
	f.w.addTrip(pending)

	for _, id := range []types.ID{"t1", "t2"} {
		_, _, err := f.svc.Complete(context.Background(), CompleteCommand{TripID: id})
		assert.ErrorIs(t, err, ErrNotActive)
		assert.Equal(t, "only active trips can be completed", err.Error())
	}
	assert.Empty(t, f.w.invoiceList())
}

func TestComplete_NotFound(t *testing.T) {
	f := newFixture()
	_, _, err := f.svc.Complete(context.Background(), CompleteCommand{TripID: "missing"})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestComplete_LostCASRollsBackInvoice(t *testing.T) {
	f := newFixture()
	f.w.addDriver("d1", pickup, false)
	f.w.addTrip(activeTrip("t1", "d1", "p1"))
	f.w.beforeTripUpdate = func(id types.ID) { f.w.setTripStatus(id, StatusCompleted) }

	_, _, err := f.svc.Complete(context.Background(), CompleteCommand{TripID: "t1"})
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	assert.Empty(t, f.w.invoiceList(), "invoice insert must be rolled back")
	assert.False(t, f.w.driver("d1").Available)
	assert.Empty(t, f.events.Types())
}

func TestListActive(t *testing.T) {
	f := newFixture()
	f.w.addTrip(activeTrip("t1", "d1", "p1"))
	done := activeTrip("t2", "d2", "p2")
	done.Status = StatusCompleted
	f.w.addTrip(done)

	list, err := f.svc.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, types.ID("t1"), list[0].ID)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusActive, true},
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusCancelled, true},
		{StatusActive, StatusCompleted, true},
		{StatusActive, StatusCancelled, true},
		{StatusActive, StatusPending, false},
		{StatusCompleted, StatusActive, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusActive, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}
