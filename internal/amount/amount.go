// Package amount converts between smallest-unit integers and human decimal
// strings for a given token precision.
package amount

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Format renders value scaled down by decimals, without trailing zeros.
func Format(value *uint256.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value.ToBig(), -int32(decimals)).String()
}

// Parse reads a human decimal string ("900", "0.5") into smallest units.
// Inputs with more fractional digits than decimals are rejected.
func Parse(input string, decimals uint8) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(input)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", input, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %q", input)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d fractional digits", input, decimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %q overflows 256 bits", input)
	}
	return v, nil
}

// ParseRaw reads an integer amount already in smallest units.
func ParseRaw(input string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(input))
	if err != nil {
		return nil, fmt.Errorf("parse raw amount %q: %w", input, err)
	}
	return v, nil
}
