// README: Passenger registry handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"taxidispatch/internal/modules/passenger"
	"taxidispatch/internal/types"
)

type PassengerService interface {
	Register(ctx context.Context, cmd passenger.RegisterCommand) (*passenger.Passenger, error)
	Get(ctx context.Context, id types.ID) (*passenger.Passenger, error)
	List(ctx context.Context) ([]passenger.Passenger, error)
}

type PassengerHandler struct {
	base
	passengers PassengerService
}

func NewPassengerHandler(svc PassengerService, log logrus.FieldLogger) *PassengerHandler {
	return &PassengerHandler{base: base{log: log}, passengers: svc}
}

type registerPassengerReq struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
	Phone string `json:"phone"`
}

func (h *PassengerHandler) Register(c *gin.Context) {
	var req registerPassengerReq
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.passengers.Register(c.Request.Context(), passenger.RegisterCommand{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, p)
}

func (h *PassengerHandler) List(c *gin.Context) {
	list, err := h.passengers.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newList(list))
}

func (h *PassengerHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := h.passengers.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}
