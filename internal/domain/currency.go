package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is a named value unit with its own per-account balance.
// Two currencies are the same iff their identifiers match.
type Currency struct {
	ID           string `json:"id"`
	NameSingular string `json:"name_singular"`
	NamePlural   string `json:"name_plural"`
	// Format renders an amount for display. %amount% and %name% are
	// substituted; %name% picks singular or plural by value.
	Format       string `json:"format"`
	AllowDecimal bool   `json:"allow_decimal"`
	// RemoteID names the remote that owns this currency's balances.
	// Empty means the account's default remote applies.
	RemoteID string `json:"remote"`
}

// Equal compares currencies by identifier only.
func (c Currency) Equal(other Currency) bool {
	return c.ID == other.ID
}

// Clamp truncates an amount to the currency's precision. Currencies
// that disallow decimals are held in whole units.
func (c Currency) Clamp(v decimal.Decimal) decimal.Decimal {
	if c.AllowDecimal {
		return v.Truncate(2)
	}
	return v.Truncate(0)
}

// FormatAmount renders an amount using the currency's format string.
func (c Currency) FormatAmount(v decimal.Decimal) string {
	name := c.NamePlural
	if v.Equal(decimal.NewFromInt(1)) {
		name = c.NameSingular
	}

	format := c.Format
	if format == "" {
		format = "%amount% %name%"
	}

	out := strings.ReplaceAll(format, "%amount%", c.Clamp(v).String())
	return strings.ReplaceAll(out, "%name%", name)
}

// NewStorage creates an empty balance cell for this currency.
func (c Currency) NewStorage() *Storage {
	return &Storage{currency: c}
}
