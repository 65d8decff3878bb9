// README: Common money value object used across modules.
package types

import (
	"encoding/json"
	"math"
)

// Money holds an amount in minor units (hundredths) so fares round-trip exactly.
type Money struct {
	Amount   int64
	Currency string
}

// MoneyFromFloat converts a major-unit value, rounding half away from zero to the nearest cent.
func MoneyFromFloat(v float64, currency string) Money {
	return Money{Amount: int64(math.Round(v * 100)), Currency: currency}
}

// Float returns the amount in major units.
func (m Money) Float() float64 {
	return float64(m.Amount) / 100
}

type moneyJSON struct {
	Amount      float64 `json:"amount"`
	AmountMinor int64   `json:"amount_minor"`
	Currency    string  `json:"currency"`
}

// MarshalJSON renders both the major-unit amount and the exact minor units.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.Float(), AmountMinor: m.Amount, Currency: m.Currency})
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var v moneyJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	m.Currency = v.Currency
	m.Amount = v.AmountMinor
	if m.Amount == 0 && v.Amount != 0 {
		m.Amount = int64(math.Round(v.Amount * 100))
	}
	return nil
}
