// README: Invoice aggregate and status definitions.
package invoice

import (
	"time"

	"taxidispatch/internal/types"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

type Invoice struct {
	ID        types.ID    `json:"id"`
	TripID    types.ID    `json:"trip_id"`
	Amount    types.Money `json:"amount"`
	Status    Status      `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	PaidAt    *time.Time  `json:"paid_at,omitempty"`
}

// AllowedTransitions: PAID and CANCELLED are terminal.
var AllowedTransitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var (
	ErrNotFound      = types.NotFound("invoice not found")
	ErrTripNotFound  = types.NotFound("trip not found")
	ErrAlreadyPaid   = types.Conflict("invoice already paid")
	ErrNotPending    = types.Conflict("only pending invoices can be paid")
	ErrAlreadyIssued = types.Conflict("invoice already issued for trip")
)
