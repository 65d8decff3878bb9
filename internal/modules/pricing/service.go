// README: Pricing service computes trip fares from geometry only.
package pricing

import (
	"taxidispatch/internal/modules/geo"
	"taxidispatch/internal/types"
)

type Service struct {
	rate Rate
}

// NewService falls back to the default rate for any zero field.
func NewService(rate Rate) *Service {
	def := DefaultRate()
	if rate.BaseFare <= 0 {
		rate.BaseFare = def.BaseFare
	}
	if rate.PerKm <= 0 {
		rate.PerKm = def.PerKm
	}
	if rate.Currency == "" {
		rate.Currency = def.Currency
	}
	return &Service{rate: rate}
}

func (s *Service) Rate() Rate {
	return s.rate
}

// Quote prices the straight-line distance between start and end.
func (s *Service) Quote(start, end types.Point) Quote {
	km := geo.Round2(geo.Between(start, end))
	base := types.MoneyFromFloat(s.rate.BaseFare, s.rate.Currency)
	total := types.MoneyFromFloat(s.rate.BaseFare+s.rate.PerKm*km, s.rate.Currency)
	return Quote{
		DistanceKm:     km,
		BaseFare:       base,
		DistanceCharge: types.Money{Amount: total.Amount - base.Amount, Currency: s.rate.Currency},
		Total:          total,
	}
}

// Cost is the amount billed for a trip from start to end.
func (s *Service) Cost(start, end types.Point) types.Money {
	return s.Quote(start, end).Total
}
