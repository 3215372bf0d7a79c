package enums

import (
	"fmt"
	"slices"
	"strings"
)

// Currency is the ISO 4217 code a marketplace deployment settles in. All
// supported codes use two minor-unit digits.
type Currency string

const (
	CurrencyNGN Currency = "NGN"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
)

// CurrencyMinorDigits is the decimal scale of every supported currency.
const CurrencyMinorDigits = 2

var currencies = []Currency{CurrencyNGN, CurrencyUSD, CurrencyGBP}

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool {
	return slices.Contains(currencies, c)
}

// ParseCurrency accepts any casing and surrounding whitespace.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", fmt.Errorf("unsupported currency %q", value)
	}
	return c, nil
}
