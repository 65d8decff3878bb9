// README: Entry point; loads config, migrates the schema, wires stores and services, starts the HTTP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"taxidispatch/internal/config"
	"taxidispatch/internal/events"
	httptransport "taxidispatch/internal/http"
	"taxidispatch/internal/infra"
	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/modules/invoice"
	"taxidispatch/internal/modules/matching"
	"taxidispatch/internal/modules/passenger"
	"taxidispatch/internal/modules/pricing"
	"taxidispatch/internal/modules/trip"
	"taxidispatch/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		infra.NewLogger("info", "json").WithError(err).Fatal("load config")
	}
	log := infra.NewLogger(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DB.Migrate {
		if err := infra.Migrate(cfg.DB.DSN); err != nil {
			log.WithError(err).Fatal("migrate")
		}
	}
	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer dbPool.Close()

	var reserver matching.Reserver = matching.NewMemoryReserver()
	if cfg.Redis.Addr != "" {
		redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			log.WithError(err).Fatal("connect redis")
		}
		defer redisClient.Close()
		reserver = matching.NewRedisReserver(redisClient)
	} else {
		log.Warn("DISPATCH_REDIS_ADDR not set; driver reservations are process-local")
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQP.URL != "" {
		conn, err := infra.NewAMQP(cfg.AMQP.URL)
		if err != nil {
			log.WithError(err).Fatal("connect amqp")
		}
		defer conn.Close()
		amqpPub, err := events.NewAMQPPublisher(conn, events.DefaultExchange, log)
		if err != nil {
			log.WithError(err).Fatal("amqp publisher")
		}
		defer amqpPub.Close()
		publisher = amqpPub
	}

	var verifier infra.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier, err = infra.NewJWTVerifier(cfg.Auth.JWTSecret)
		if err != nil {
			log.WithError(err).Fatal("jwt verifier")
		}
	} else {
		log.Warn("DISPATCH_JWT_SECRET not set; API is unauthenticated")
	}

	driverStore := driver.NewStore(dbPool)
	driverSvc := driver.NewService(driverStore, log)

	passengerStore := passenger.NewStore(dbPool)
	passengerSvc := passenger.NewService(passengerStore, log)

	matchingSvc := matching.NewService(driverStore, reserver, cfg.Matching)

	pricingSvc := pricing.NewService(pricing.Rate{
		BaseFare: cfg.Fare.BaseFare,
		PerKm:    cfg.Fare.PerKm,
		Currency: cfg.Fare.Currency,
	})

	tripStore := trip.NewStore(dbPool)
	tripSvc := trip.NewService(trip.Deps{
		Trips:      tripStore,
		Passengers: passengerStore,
		Matcher:    matchingSvc,
		Pricing:    pricingSvc,
		UnitOfWork: storage.NewUnitOfWork(dbPool),
		Events:     publisher,
		Log:        log,
	})

	invoiceSvc := invoice.NewService(invoice.NewStore(dbPool), tripStore, publisher, log)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Drivers:    driverSvc,
		Nearby:     matchingSvc,
		Passengers: passengerSvc,
		Trips:      tripSvc,
		Invoices:   invoiceSvc,
		Verifier:   verifier,
		Log:        log,
	})

	server := httptransport.NewServer(cfg.HTTP.Addr, router, cfg.HTTP.CORSOrigins, log)
	if err := server.Run(ctx); err != nil {
		log.WithError(err).Fatal("http server")
	}
}
