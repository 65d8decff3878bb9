// README: Passenger aggregate and registry errors.
package passenger

import (
	"time"

	"taxidispatch/internal/types"
)

type Passenger struct {
	ID        types.ID  `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrNotFound     = types.NotFound("passenger not found")
	ErrEmailTaken   = types.Conflict("email already registered")
	ErrInvalidInput = types.BadRequest("name and email are required")
)
