// README: Driver registry handlers plus the nearby-drivers search.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/modules/geo"
	"taxidispatch/internal/modules/matching"
	"taxidispatch/internal/types"
)

type DriverService interface {
	Register(ctx context.Context, cmd driver.RegisterCommand) (*driver.Driver, error)
	Get(ctx context.Context, id types.ID) (*driver.Driver, error)
	List(ctx context.Context) ([]driver.Driver, error)
	ListAvailable(ctx context.Context) ([]driver.Driver, error)
}

type NearbyFinder interface {
	FindCandidates(ctx context.Context, origin types.Point, radiusKm float64) ([]driver.Driver, error)
}

type DriverHandler struct {
	base
	drivers DriverService
	nearby  NearbyFinder
}

func NewDriverHandler(drivers DriverService, nearby NearbyFinder, log logrus.FieldLogger) *DriverHandler {
	return &DriverHandler{base: base{log: log}, drivers: drivers, nearby: nearby}
}

type registerDriverReq struct {
	Name      string   `json:"name" binding:"required"`
	License   string   `json:"license" binding:"required"`
	Latitude  *float64 `json:"latitude" binding:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" binding:"required,gte=-180,lte=180"`
	Available *bool    `json:"available"`
}

func (h *DriverHandler) Register(c *gin.Context) {
	var req registerDriverReq
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.drivers.Register(c.Request.Context(), driver.RegisterCommand{
		Name:      req.Name,
		License:   req.License,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Available: req.Available,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, d)
}

func (h *DriverHandler) List(c *gin.Context) {
	list, err := h.drivers.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newList(list))
}

func (h *DriverHandler) ListAvailable(c *gin.Context) {
	list, err := h.drivers.ListAvailable(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newList(list))
}

func (h *DriverHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	d, err := h.drivers.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

type nearbyDriver struct {
	driver.Driver
	DistanceKm float64 `json:"distance_km"`
}

// Nearby accepts latitude/longitude (or lat/lng) and an optional radius in km.
func (h *DriverHandler) Nearby(c *gin.Context) {
	lat, okLat := floatQuery(c, "latitude", "lat")
	lng, okLng := floatQuery(c, "longitude", "lng")
	origin := types.Point{Lat: lat, Lng: lng}
	if !okLat || !okLng || !origin.Valid() {
		writeError(c, http.StatusBadRequest, "latitude and longitude must be valid coordinates")
		return
	}

	radius := matching.DefaultRadiusKm
	if raw := c.Query("radius"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r <= 0 || r > matching.MaxRadiusKm {
			writeError(c, http.StatusBadRequest, "radius must be greater than 0 and at most 100")
			return
		}
		radius = r
	}

	list, err := h.nearby.FindCandidates(c.Request.Context(), origin, radius)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]nearbyDriver, 0, len(list))
	for _, d := range list {
		out = append(out, nearbyDriver{Driver: d, DistanceKm: geo.Round2(geo.Between(origin, d.Position()))})
	}
	writeJSON(c, http.StatusOK, newList(out))
}

// floatQuery returns the first of keys present in the query string.
func floatQuery(c *gin.Context, keys ...string) (float64, bool) {
	for _, k := range keys {
		if raw, ok := c.GetQuery(k); ok {
			v, err := strconv.ParseFloat(raw, 64)
			return v, err == nil
		}
	}
	return 0, false
}
