// README: Seeds demo drivers, passengers and sample trips; no-op when the registries already hold data.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"taxidispatch/internal/config"
	"taxidispatch/internal/events"
	"taxidispatch/internal/infra"
	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/modules/invoice"
	"taxidispatch/internal/modules/matching"
	"taxidispatch/internal/modules/passenger"
	"taxidispatch/internal/modules/pricing"
	"taxidispatch/internal/modules/trip"
	"taxidispatch/internal/storage"
	"taxidispatch/internal/types"
)

// Drivers sit around Torre Popular, Santo Domingo: origin, 1.5 km N, 2 km E, 3 km S, 4 km W.
var seedDrivers = []driver.RegisterCommand{
	{Name: "Juan Pérez", License: "LIC-001", Latitude: 18.473147, Longitude: -69.912835},
	{Name: "María García", License: "LIC-002", Latitude: 18.486647, Longitude: -69.912835},
	{Name: "Pedro Rodríguez", License: "LIC-003", Latitude: 18.473147, Longitude: -69.892835},
	{Name: "Ana Martínez", License: "LIC-004", Latitude: 18.446147, Longitude: -69.912835},
	{Name: "Carlos López", License: "LIC-005", Latitude: 18.473147, Longitude: -69.952835},
}

var seedPassengers = []passenger.RegisterCommand{
	{Name: "Carlos González", Email: "carlos@example.com", Phone: "+1234567890"},
	{Name: "Ana Silva", Email: "ana@example.com", Phone: "+1234567891"},
	{Name: "Luis Rodríguez", Email: "luis@example.com", Phone: "+1234567892"},
	{Name: "Diana Torres", Email: "diana@example.com", Phone: "+1234567893"},
	{Name: "Roberto Gómez", Email: "roberto@example.com", Phone: "+1234567894"},
}

func main() {
	withTrips := flag.Bool("trips", true, "also create one completed+paid trip and one active trip")
	adminToken := flag.Bool("admin-token", false, "print an admin bearer token (needs DISPATCH_JWT_SECRET)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := infra.NewLogger(cfg.Log.Level, "text")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := infra.Migrate(cfg.DB.DSN); err != nil {
		log.WithError(err).Fatal("migrate")
	}
	pool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer pool.Close()

	if err := seed(ctx, pool, cfg, log, *withTrips); err != nil {
		log.WithError(err).Fatal("seed")
	}

	if *adminToken {
		tok, err := infra.IssueToken(cfg.Auth.JWTSecret, "seed-admin", "admin", 24*time.Hour)
		if err != nil {
			log.WithError(err).Fatal("issue admin token")
		}
		fmt.Println(tok)
	}
}

func seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config, log *logrus.Logger, withTrips bool) error {
	driverStore := driver.NewStore(pool)
	drivers := driver.NewService(driverStore, log)
	passengerStore := passenger.NewStore(pool)
	passengers := passenger.NewService(passengerStore, log)

	existingDrivers, err := drivers.List(ctx)
	if err != nil {
		return err
	}
	existingPassengers, err := passengers.List(ctx)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"drivers":    len(existingDrivers),
		"passengers": len(existingPassengers),
	}).Info("current counts")
	if len(existingDrivers) > 0 || len(existingPassengers) > 0 {
		log.Info("database already has data; skipping seed")
		return nil
	}

	for _, cmd := range seedDrivers {
		if _, err := drivers.Register(ctx, cmd); err != nil {
			return fmt.Errorf("driver %s: %w", cmd.License, err)
		}
	}
	riders := make([]*passenger.Passenger, 0, len(seedPassengers))
	for _, cmd := range seedPassengers {
		p, err := passengers.Register(ctx, cmd)
		if err != nil {
			return fmt.Errorf("passenger %s: %w", cmd.Email, err)
		}
		riders = append(riders, p)
	}
	log.WithFields(logrus.Fields{
		"drivers":    len(seedDrivers),
		"passengers": len(riders),
	}).Info("registries seeded")

	if !withTrips {
		return nil
	}

	tripStore := trip.NewStore(pool)
	trips := trip.NewService(trip.Deps{
		Trips:      tripStore,
		Passengers: passengerStore,
		Matcher:    matching.NewService(driverStore, matching.NewMemoryReserver(), cfg.Matching),
		Pricing: pricing.NewService(pricing.Rate{
			BaseFare: cfg.Fare.BaseFare,
			PerKm:    cfg.Fare.PerKm,
			Currency: cfg.Fare.Currency,
		}),
		UnitOfWork: storage.NewUnitOfWork(pool),
		Events:     events.Nop{},
		Log:        log,
	})
	invoices := invoice.NewService(invoice.NewStore(pool), tripStore, events.Nop{}, log)

	done, err := trips.Create(ctx, trip.CreateCommand{
		PassengerID: riders[0].ID,
		Start:       types.Point{Lat: 18.473147, Lng: -69.912835},
		End:         types.Point{Lat: 18.476247, Lng: -69.906135},
	})
	if err != nil {
		return fmt.Errorf("create completed trip: %w", err)
	}
	_, inv, err := trips.Complete(ctx, trip.CompleteCommand{TripID: done.ID})
	if err != nil {
		return fmt.Errorf("complete trip: %w", err)
	}
	if _, err := invoices.Pay(ctx, invoice.PayCommand{InvoiceID: inv.ID}); err != nil {
		return fmt.Errorf("pay invoice: %w", err)
	}

	active, err := trips.Create(ctx, trip.CreateCommand{
		PassengerID: riders[1].ID,
		Start:       types.Point{Lat: 18.474247, Lng: -69.913935},
		End:         types.Point{Lat: 18.475347, Lng: -69.915035},
	})
	if err != nil {
		return fmt.Errorf("create active trip: %w", err)
	}
	log.WithFields(logrus.Fields{
		"completed_trip": done.ID,
		"invoice":        inv.ID,
		"active_trip":    active.ID,
		"active_driver":  active.DriverID,
	}).Info("sample trips seeded")
	return nil
}
