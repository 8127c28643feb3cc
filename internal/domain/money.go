package domain

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of decimal places every stored amount carries.
const MoneyPlaces = 2

// CheckMoney rejects amounts finer than MoneyPlaces so that totals computed in
// memory equal what NUMERIC(14,2) columns persist.
func CheckMoney(field string, amount decimal.Decimal) error {
	if !amount.Equal(amount.Round(MoneyPlaces)) {
		return Invalid("%s %s has more than %d decimal places", field, amount.String(), MoneyPlaces)
	}
	return nil
}
