// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"taxidispatch/internal/http/handlers"
	"taxidispatch/internal/http/middleware"
	"taxidispatch/internal/infra"
)

type RouterDeps struct {
	Drivers    handlers.DriverService
	Nearby     handlers.NearbyFinder
	Passengers handlers.PassengerService
	Trips      handlers.TripService
	Invoices   handlers.InvoiceService
	// Verifier is optional; without it the API is unauthenticated.
	Verifier infra.TokenVerifier
	Log      logrus.FieldLogger
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(d.Log), middleware.Logging(d.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api")
	adminOnly := func(c *gin.Context) { c.Next() }
	if d.Verifier != nil {
		api.Use(middleware.Auth(d.Verifier))
		adminOnly = middleware.RequireRole("admin")
	}

	driverHandler := handlers.NewDriverHandler(d.Drivers, d.Nearby, d.Log)
	api.POST("/drivers", adminOnly, driverHandler.Register)
	api.GET("/drivers", driverHandler.List)
	api.GET("/drivers/available", driverHandler.ListAvailable)
	api.GET("/drivers/nearby", driverHandler.Nearby)
	api.GET("/drivers/:id", driverHandler.Get)

	passengerHandler := handlers.NewPassengerHandler(d.Passengers, d.Log)
	api.POST("/passengers", passengerHandler.Register)
	api.GET("/passengers", passengerHandler.List)
	api.GET("/passengers/:id", passengerHandler.Get)

	tripHandler := handlers.NewTripHandler(d.Trips, d.Log)
	api.POST("/trips", tripHandler.Create)
	api.GET("/trips/active", tripHandler.ListActive)
	api.GET("/trips/:id", tripHandler.Get)
	api.PUT("/trips/:id/complete", tripHandler.Complete)

	invoiceHandler := handlers.NewInvoiceHandler(d.Invoices, d.Log)
	api.GET("/invoices", invoiceHandler.List)
	api.GET("/invoices/trip/:tripId", invoiceHandler.GetByTrip)
	api.GET("/invoices/:id", invoiceHandler.Get)
	api.PATCH("/invoices/:id/pay", invoiceHandler.Pay)

	return r
}
