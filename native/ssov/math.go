package ssov

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// FeePrecision scales fee rates: 1e10 is 100%.
	FeePrecision = 10_000_000_000
	// BasisPoints scales fee caps.
	BasisPoints = 10_000
	// PriceDecimals is the fixed scale of USD prices and strikes.
	PriceDecimals = 8
)

func zero() *uint256.Int { return new(uint256.Int) }

func clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func isZero(v *uint256.Int) bool { return v == nil || v.IsZero() }

func add(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(clone(a), clone(b))
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return out, nil
}

func sub(a, b *uint256.Int) (*uint256.Int, error) {
	a, b = clone(a), clone(b)
	if a.Lt(b) {
		return nil, fmt.Errorf("%w: %s - %s", ErrArithmeticUnderflow, a, b)
	}
	return new(uint256.Int).Sub(a, b), nil
}

func mul(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(clone(a), clone(b))
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return out, nil
}

// mulDiv returns a*b/d with truncation, failing on overflow or d == 0.
func mulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if isZero(d) {
		return nil, fmt.Errorf("%w: division by zero", ErrInvalidState)
	}
	out, overflow := new(uint256.Int).MulDivOverflow(clone(a), clone(b), d)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return out, nil
}

// addTo adds delta to *dst in place.
func addTo(dst **uint256.Int, delta *uint256.Int) error {
	sum, err := add(*dst, delta)
	if err != nil {
		return err
	}
	*dst = sum
	return nil
}

// subFrom subtracts delta from *dst in place.
func subFrom(dst **uint256.Int, delta *uint256.Int) error {
	diff, err := sub(*dst, delta)
	if err != nil {
		return err
	}
	*dst = diff
	return nil
}

func minInt(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return clone(a)
	}
	return clone(b)
}

// saturatingSub returns a-b, or zero when b exceeds a.
func saturatingSub(a, b *uint256.Int) *uint256.Int {
	if clone(a).Lt(clone(b)) {
		return zero()
	}
	return new(uint256.Int).Sub(clone(a), clone(b))
}
