// README: Fare rate and quote definitions.
package pricing

import "taxidispatch/internal/types"

const (
	DefaultBaseFare = 50.0
	DefaultPerKm    = 25.0
	DefaultCurrency = "DOP"
)

type Rate struct {
	BaseFare float64
	PerKm    float64
	Currency string
}

func DefaultRate() Rate {
	return Rate{BaseFare: DefaultBaseFare, PerKm: DefaultPerKm, Currency: DefaultCurrency}
}

// Quote is the breakdown behind a fare. DistanceKm is already rounded to two decimals.
type Quote struct {
	DistanceKm     float64
	BaseFare       types.Money
	DistanceCharge types.Money
	Total          types.Money
}
