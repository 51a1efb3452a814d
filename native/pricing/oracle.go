// Package pricing supplies the price, option-premium and volatility
// collaborators the vault consults. The implementations here are static feeds
// suitable for operators that push prices in and for tests.
package pricing

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
)

var (
	ErrPriceUnavailable = errors.New("pricing: price unavailable")
	ErrPriceStale       = errors.New("pricing: price stale")
	ErrInvalidPrice     = errors.New("pricing: price must be positive")
)

type quote struct {
	price     *uint256.Int
	updatedAt time.Time
}

// StaticOracle serves operator-pushed USD prices (8 decimals). When maxAge is
// non-zero, quotes older than maxAge relative to the oracle clock are refused.
type StaticOracle struct {
	mu     sync.RWMutex
	quotes map[string]quote
	maxAge time.Duration
	nowFn  func() time.Time
	fault  error
}

// NewStaticOracle returns an empty oracle.
func NewStaticOracle(maxAge time.Duration) *StaticOracle {
	return &StaticOracle{
		quotes: make(map[string]quote),
		maxAge: maxAge,
		nowFn:  time.Now,
	}
}

// SetNowFunc overrides the clock used for staleness checks.
func (o *StaticOracle) SetNowFunc(now func() time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	o.nowFn = now
}

// SetPrice records the USD price for asset.
func (o *StaticOracle) SetPrice(asset string, price *uint256.Int) error {
	if price == nil || price.IsZero() {
		return ErrInvalidPrice
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quotes[strings.ToUpper(strings.TrimSpace(asset))] = quote{
		price:     new(uint256.Int).Set(price),
		updatedAt: o.nowFn(),
	}
	return nil
}

// SetFault forces every lookup to fail with err until cleared with nil.
func (o *StaticOracle) SetFault(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fault = err
}

// GetUsdPrice returns the last price pushed for asset.
func (o *StaticOracle) GetUsdPrice(asset string) (*uint256.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.fault != nil {
		return nil, o.fault
	}
	symbol := strings.ToUpper(strings.TrimSpace(asset))
	q, ok := o.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPriceUnavailable, symbol)
	}
	if o.maxAge > 0 && o.nowFn().Sub(q.updatedAt) > o.maxAge {
		return nil, fmt.Errorf("%w: %s updated %s", ErrPriceStale, symbol, q.updatedAt.UTC().Format(time.RFC3339))
	}
	return new(uint256.Int).Set(q.price), nil
}
