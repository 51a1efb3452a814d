// Package units converts between human-readable decimal amounts and the
// fixed-point integers stored in the ledger.
package units

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyAmount     = errors.New("units: amount must not be empty")
	ErrNegativeAmount  = errors.New("units: amount must not be negative")
	ErrTooManyDecimals = errors.New("units: amount has more fractional digits than the asset supports")
	ErrOverflow        = errors.New("units: amount exceeds 256 bits")
)

// ParseUnits parses a decimal string such as "1.5" into base units using the
// given number of decimals. Fractional digits beyond the scale are rejected
// rather than rounded.
func ParseUnits(value string, decimals uint8) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, ErrEmptyAmount
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("units: parse %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, ErrTooManyDecimals
	}
	out, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// MustParseUnits is ParseUnits for constants known to be valid.
func MustParseUnits(value string, decimals uint8) *uint256.Int {
	out, err := ParseUnits(value, decimals)
	if err != nil {
		panic(err)
	}
	return out
}

// FormatUnits renders base units as a decimal string without trailing zeros.
func FormatUnits(amount *uint256.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals)).String()
}

// ToFloat converts base units to a float64 for gauges and logs. Precision
// loss is acceptable there; never use the result for accounting.
func ToFloat(amount *uint256.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals)).InexactFloat64()
}
