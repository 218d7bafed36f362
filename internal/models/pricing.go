package models

import (
	"fmt"
	"strings"
)

// DefaultCurrency is used when the builder does not detect a region.
const DefaultCurrency = "inr"

// priceTable holds prices in the currency's minor unit.
var priceTable = map[string]map[ExperienceType]int64{
	"inr": {ExperienceCrush: 4900, ExperienceCouple: 9900},
	"usd": {ExperienceCrush: 199, ExperienceCouple: 299},
	"eur": {ExperienceCrush: 199, ExperienceCouple: 299},
	"gbp": {ExperienceCrush: 159, ExperienceCouple: 249},
}

var currencySymbols = map[string]string{
	"inr": "₹",
	"usd": "$",
	"eur": "€",
	"gbp": "£",
}

// NormalizeCurrency lowercases c and applies the default.
func NormalizeCurrency(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return DefaultCurrency
	}
	return c
}

// PriceFor returns the amount due for an experience type in currency.
func PriceFor(t ExperienceType, currency string) (int64, bool) {
	prices, ok := priceTable[NormalizeCurrency(currency)]
	if !ok {
		return 0, false
	}
	amount, ok := prices[t]
	return amount, ok
}

// FormatAmount renders minor units for display, e.g. ₹49 or $1.99.
func FormatAmount(amount int64, currency string) string {
	currency = NormalizeCurrency(currency)
	symbol, ok := currencySymbols[currency]
	if !ok {
		symbol = strings.ToUpper(currency) + " "
	}
	if amount%100 == 0 {
		return fmt.Sprintf("%s%d", symbol, amount/100)
	}
	return fmt.Sprintf("%s%d.%02d", symbol, amount/100, amount%100)
}
