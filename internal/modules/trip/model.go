// README: Trip aggregate and status definitions.
package trip

import (
	"time"

	"taxidispatch/internal/types"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

type Trip struct {
	ID          types.ID    `json:"id"`
	DriverID    types.ID    `json:"driver_id"`
	PassengerID types.ID    `json:"passenger_id"`
	Status      Status      `json:"status"`
	Start       types.Point `json:"start"`
	End         types.Point `json:"end"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// AllowedTransitions represents the trip state flow as code. COMPLETED and CANCELLED are terminal.
var AllowedTransitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusCompleted, StatusCancelled},
	StatusActive:  {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

var (
	ErrNotFound          = types.NotFound("trip not found")
	ErrNoDrivers         = types.NotFound("no drivers available")
	ErrPassengerBusy     = types.Conflict("passenger already has an active trip")
	ErrDriverBusy        = types.Conflict("driver already has an active trip")
	ErrAlreadyCompleted  = types.Conflict("trip already completed")
	ErrNotActive         = types.Conflict("only active trips can be completed")
	ErrInvalidCoordinate = types.BadRequest("start and end must be valid coordinates")
	ErrMissingPassenger  = types.BadRequest("passenger_id is required")
)
