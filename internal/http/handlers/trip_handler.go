// README: Trip handlers for create/complete/get/active.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"taxidispatch/internal/modules/invoice"
	"taxidispatch/internal/modules/trip"
	"taxidispatch/internal/types"
)

type TripService interface {
	Create(ctx context.Context, cmd trip.CreateCommand) (*trip.Trip, error)
	Complete(ctx context.Context, cmd trip.CompleteCommand) (*trip.Trip, *invoice.Invoice, error)
	Get(ctx context.Context, id types.ID) (*trip.Trip, error)
	ListActive(ctx context.Context) ([]trip.Trip, error)
}

type TripHandler struct {
	base
	trips TripService
}

func NewTripHandler(svc TripService, log logrus.FieldLogger) *TripHandler {
	return &TripHandler{base: base{log: log}, trips: svc}
}

type createTripReq struct {
	PassengerID string   `json:"passenger_id" binding:"required,uuid"`
	StartLat    *float64 `json:"start_lat" binding:"required,gte=-90,lte=90"`
	StartLng    *float64 `json:"start_lng" binding:"required,gte=-180,lte=180"`
	EndLat      *float64 `json:"end_lat" binding:"required,gte=-90,lte=90"`
	EndLng      *float64 `json:"end_lng" binding:"required,gte=-180,lte=180"`
}

func (h *TripHandler) Create(c *gin.Context) {
	var req createTripReq
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.trips.Create(c.Request.Context(), trip.CreateCommand{
		PassengerID: types.ID(req.PassengerID),
		Start:       types.Point{Lat: *req.StartLat, Lng: *req.StartLng},
		End:         types.Point{Lat: *req.EndLat, Lng: *req.EndLng},
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, t)
}

type completeTripResp struct {
	Trip    *trip.Trip       `json:"trip"`
	Invoice *invoice.Invoice `json:"invoice"`
}

func (h *TripHandler) Complete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, inv, err := h.trips.Complete(c.Request.Context(), trip.CompleteCommand{TripID: id})
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, completeTripResp{Trip: t, Invoice: inv})
}

func (h *TripHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := h.trips.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, t)
}

func (h *TripHandler) ListActive(c *gin.Context) {
	list, err := h.trips.ListActive(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newList(list))
}
