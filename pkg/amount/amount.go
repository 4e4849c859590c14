// Package amount converts between the decimal notation used by the indexer
// and exact integer balances.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNotInteger is returned when a balance has a fractional part.
var ErrNotInteger = errors.New("amount is not an integer")

// ErrNegative is returned when a balance is below zero.
var ErrNegative = errors.New("amount is negative")

// ParseBalance converts a decimal-notation string into an exact integer.
// Exponent notation ("1.23e+5", "4E21") is accepted; the conversion never
// goes through float64.
func ParseBalance(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("parse balance: empty value")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("parse balance %q: %w", s, ErrNegative)
	}
	if !d.IsInteger() {
		return nil, fmt.Errorf("parse balance %q: %w", s, ErrNotInteger)
	}
	return d.BigInt(), nil
}

// FormatUnits renders an integer amount with the given number of decimals,
// trimming trailing zeros ("1500000000000000000", 18 -> "1.5").
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	if decimals < 0 {
		decimals = 0
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

// ToDecimal returns v scaled down by decimals as a decimal value.
func ToDecimal(v *big.Int, decimals int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	if decimals < 0 {
		decimals = 0
	}
	return decimal.NewFromBigInt(v, -int32(decimals))
}
