// README: Invoice handlers for list/get/by-trip/pay.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"taxidispatch/internal/modules/invoice"
	"taxidispatch/internal/types"
)

type InvoiceService interface {
	Pay(ctx context.Context, cmd invoice.PayCommand) (*invoice.Invoice, error)
	Get(ctx context.Context, id types.ID) (*invoice.Invoice, error)
	List(ctx context.Context) ([]invoice.Invoice, error)
	GetByTrip(ctx context.Context, tripID types.ID) (*invoice.Invoice, error)
}

type InvoiceHandler struct {
	base
	invoices InvoiceService
}

func NewInvoiceHandler(svc InvoiceService, log logrus.FieldLogger) *InvoiceHandler {
	return &InvoiceHandler{base: base{log: log}, invoices: svc}
}

func (h *InvoiceHandler) List(c *gin.Context) {
	list, err := h.invoices.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newList(list))
}

func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	inv, err := h.invoices.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, inv)
}

func (h *InvoiceHandler) GetByTrip(c *gin.Context) {
	id, ok := pathID(c, "tripId")
	if !ok {
		return
	}
	inv, err := h.invoices.GetByTrip(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, inv)
}

func (h *InvoiceHandler) Pay(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	inv, err := h.invoices.Pay(c.Request.Context(), invoice.PayCommand{InvoiceID: id})
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, inv)
}
