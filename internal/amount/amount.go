// Package amount converts between on-chain fixed-point integers (smallest
// unit, 18 decimals) and the human decimal strings shown and typed in the
// console.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// Decimals is the fixed-point scale of every amount the contract handles.
	Decimals = 18
	// DisplayPlaces is the number of fractional digits rendered by Format.
	DisplayPlaces = 4

	// uint256 holds at most 78 decimal digits.
	maxShift = 78
)

// ErrInvalidAmount is returned for empty, non-numeric, negative or
// out-of-range input.
var ErrInvalidAmount = errors.New("invalid amount")

var zeroDisplay = decimal.Zero.StringFixed(DisplayPlaces)

// Parse converts a decimal string into the smallest-unit integer. Digits past
// the 18th fractional place are truncated. Zero is accepted; see
// ParsePositive for actions that disallow it.
func Parse(text string) (*big.Int, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, trimmed)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, trimmed)
	}
	v, err := scale(d)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ParsePositive is Parse with zero rejected.
func ParsePositive(text string) (*big.Int, error) {
	v, err := Parse(text)
	if err != nil {
		return nil, err
	}
	if v.Sign() == 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	return v, nil
}

// Format renders v scaled down by 10^18 with exactly four fractional digits.
// Excess precision is truncated so a balance is never overstated. A nil
// amount renders as zero.
func Format(v *big.Int) string {
	if v == nil {
		return zeroDisplay
	}
	return decimal.NewFromBigInt(v, -Decimals).Truncate(DisplayPlaces).StringFixed(DisplayPlaces)
}

// scale computes coefficient * 10^(exponent+18) without materialising huge
// intermediate powers for inputs like "1e-900000".
func scale(d decimal.Decimal) (*big.Int, error) {
	coef := new(big.Int).Set(d.Coefficient())
	shift := int64(d.Exponent()) + Decimals

	var v *big.Int
	switch {
	case coef.Sign() == 0:
		v = new(big.Int)
	case shift > maxShift:
		return nil, fmt.Errorf("%w: amount out of range", ErrInvalidAmount)
	case shift >= 0:
		v = coef.Mul(coef, pow10(shift))
	case -shift > int64(len(coef.String())):
		v = new(big.Int)
	default:
		v = coef.Quo(coef, pow10(-shift))
	}
	if v.BitLen() > 256 {
		return nil, fmt.Errorf("%w: amount out of range", ErrInvalidAmount)
	}
	return v, nil
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}
