// Package collateral adapts the asset a vault writes calls against. Ledger
// amounts always equal the units the vault holds, whichever strategy is used.
package collateral

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	ssovstate "ssov/core/state"
	"ssov/native/bank"
)

var (
	ErrNilState       = errors.New("collateral: state not configured")
	ErrUnknownAsset   = errors.New("collateral: asset not registered")
	ErrNotNativeAsset = errors.New("collateral: underlying is not the native asset")
)

// Strategy moves collateral in and out of the vault and values it in USD.
type Strategy interface {
	// Asset is the symbol the vault holds and stakes.
	Asset() string
	Decimals() uint8
	DepositAsset(m *ssovstate.Manager, from, vault common.Address, amount *uint256.Int) error
	WithdrawAsset(m *ssovstate.Manager, vault, to common.Address, amount *uint256.Int) error
	// ValueInUSD converts amount to 8-decimal USD at the given 8-decimal price.
	ValueInUSD(amount, price *uint256.Int) (*uint256.Int, error)
}

func valueInUSD(amount, price *uint256.Int, decimals uint8) (*uint256.Int, error) {
	if amount == nil || price == nil {
		return new(uint256.Int), nil
	}
	product, overflow := new(uint256.Int).MulOverflow(amount, price)
	if overflow {
		return nil, fmt.Errorf("collateral: usd value overflow")
	}
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	return product.Div(product, scale), nil
}

// Token holds a plain registered asset directly.
type Token struct {
	symbol   string
	decimals uint8
}

// NewToken returns a strategy for a directly held asset.
func NewToken(symbol string, decimals uint8) *Token {
	return &Token{symbol: strings.ToUpper(strings.TrimSpace(symbol)), decimals: decimals}
}

func (t *Token) Asset() string   { return t.symbol }
func (t *Token) Decimals() uint8 { return t.decimals }

func (t *Token) DepositAsset(m *ssovstate.Manager, from, vault common.Address, amount *uint256.Int) error {
	if m == nil {
		return ErrNilState
	}
	if !m.TokenExists(t.symbol) {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, t.symbol)
	}
	return bank.Transfer(m, t.symbol, from, vault, amount)
}

func (t *Token) WithdrawAsset(m *ssovstate.Manager, vault, to common.Address, amount *uint256.Int) error {
	if m == nil {
		return ErrNilState
	}
	return bank.Transfer(m, t.symbol, vault, to, amount)
}

func (t *Token) ValueInUSD(amount, price *uint256.Int) (*uint256.Int, error) {
	return valueInUSD(amount, price, t.decimals)
}

// WrappedNative accepts the native asset from users, wraps it 1:1 into the
// vault-held wrapped asset, and unwraps on the way out.
type WrappedNative struct {
	native   string
	wrapped  string
	decimals uint8
	// custody holds the native units backing the wrapped supply.
	custody common.Address
}

// NewWrappedNative returns a strategy wrapping native into wrapped. custody is
// the account that escrows native units while they are wrapped.
func NewWrappedNative(native, wrapped string, decimals uint8, custody common.Address) *WrappedNative {
	return &WrappedNative{
		native:   strings.ToUpper(strings.TrimSpace(native)),
		wrapped:  strings.ToUpper(strings.TrimSpace(wrapped)),
		decimals: decimals,
		custody:  custody,
	}
}

func (w *WrappedNative) Asset() string   { return w.wrapped }
func (w *WrappedNative) Decimals() uint8 { return w.decimals }

// Underlying returns the native asset symbol users pay with.
func (w *WrappedNative) Underlying() string { return w.native }

func (w *WrappedNative) DepositAsset(m *ssovstate.Manager, from, vault common.Address, amount *uint256.Int) error {
	if m == nil {
		return ErrNilState
	}
	meta, err := m.Token(w.native)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, w.native)
	}
	if !meta.Native {
		return fmt.Errorf("%w: %s", ErrNotNativeAsset, w.native)
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	if err := bank.Transfer(m, w.native, from, w.custody, amount); err != nil {
		return err
	}
	return bank.Mint(m, w.wrapped, vault, amount)
}

func (w *WrappedNative) WithdrawAsset(m *ssovstate.Manager, vault, to common.Address, amount *uint256.Int) error {
	if m == nil {
		return ErrNilState
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	if err := bank.Burn(m, w.wrapped, vault, amount); err != nil {
		return err
	}
	return bank.Transfer(m, w.native, w.custody, to, amount)
}

func (w *WrappedNative) ValueInUSD(amount, price *uint256.Int) (*uint256.Int, error) {
	return valueInUSD(amount, price, w.decimals)
}
