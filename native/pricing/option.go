package pricing

import (
	"errors"

	"github.com/holiman/uint256"
)

var ErrPutsUnsupported = errors.New("pricing: put options are not priced")

// FixedPricer quotes every call at the same USD premium per unit (8 decimals).
type FixedPricer struct {
	Price *uint256.Int
}

// GetOptionPrice returns the configured premium. Strike, spot and volatility
// do not influence the quote.
func (p FixedPricer) GetOptionPrice(isPut bool, expiry int64, strike, spot, volatility *uint256.Int) (*uint256.Int, error) {
	if isPut {
		return nil, ErrPutsUnsupported
	}
	if p.Price == nil {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Set(p.Price), nil
}

// StaticVolatility reports a constant implied volatility for every strike.
type StaticVolatility struct {
	Value uint64
}

// GetVolatility returns the configured volatility.
func (v StaticVolatility) GetVolatility(strike *uint256.Int) (*uint256.Int, error) {
	return uint256.NewInt(v.Value), nil
}
