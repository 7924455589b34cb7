package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the number of decimal places of every token and of the
// reserve asset.
const Decimals = 18

// ToDecimal converts base units to whole units.
func ToDecimal(x *big.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x, -Decimals)
}

// FormatUnits renders base units as whole units with at most places digits
// after the point, trailing zeros trimmed.
func FormatUnits(x *big.Int, places int32) string {
	return ToDecimal(x).Truncate(places).String()
}

// FormatPrice renders a WAD-scaled spot price as whole reserve units per
// whole token.
func FormatPrice(price *big.Int, places int32) string {
	if price == nil {
		return "0"
	}
	return decimal.NewFromBigInt(price, -2*Decimals).Truncate(places).String()
}

// ParseUnits converts a whole-unit decimal string such as "1.5" into base
// units. Digits beyond 18 decimals are truncated.
func ParseUnits(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return d.Shift(Decimals).Truncate(0).BigInt(), nil
}
