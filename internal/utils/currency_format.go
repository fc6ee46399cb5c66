package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

const defaultCurrencyPrecision = 2

// currencyPrecision lists ISO 4217 codes whose minor unit is not two digits.
var currencyPrecision = map[string]int{
	"BHD": 3,
	"CLP": 0,
	"IQD": 3,
	"ISK": 0,
	"JOD": 3,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
	"UGX": 0,
	"VND": 0,
}

// CurrencyPrecision returns the number of minor-unit digits for a currency code.
// Unknown and empty codes use two.
func CurrencyPrecision(currency string) int {
	if p, ok := currencyPrecision[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return p
	}
	return defaultCurrencyPrecision
}

// FormatWithCurrencyPrecision formats an amount with the correct precision for a given currency
// Example: amount 12.3456 with USD returns "12.35"
// Example: amount 12.3456 with JPY returns "12"
func FormatWithCurrencyPrecision(amount decimal.Decimal, currency string) string {
	return FormatWithPrecision(amount, CurrencyPrecision(currency))
}

// FormatWithPrecision formats an amount with exactly precision decimal places.
func FormatWithPrecision(amount decimal.Decimal, precision int) string {
	return amount.StringFixed(int32(precision))
}
