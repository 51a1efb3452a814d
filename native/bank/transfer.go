package bank

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	ssovstate "ssov/core/state"
)

var (
	ErrNilState            = errors.New("bank: state manager required")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAmount       = errors.New("bank: amount required")
	ErrSupplyOverflow      = errors.New("bank: balance overflow")
)

// Transfer moves amount of asset between two accounts. A zero amount is a
// no-op so callers can forward computed fees without branching.
func Transfer(manager *ssovstate.Manager, asset string, from, to common.Address, amount *uint256.Int) error {
	if manager == nil {
		return ErrNilState
	}
	if amount == nil || amount.IsZero() || from == to {
		return nil
	}
	if err := debit(manager, asset, from, amount); err != nil {
		return err
	}
	return credit(manager, asset, to, amount)
}

// Mint credits newly created units of asset to the recipient.
func Mint(manager *ssovstate.Manager, asset string, to common.Address, amount *uint256.Int) error {
	if manager == nil {
		return ErrNilState
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return credit(manager, asset, to, amount)
}

// Burn destroys units of asset held by the account.
func Burn(manager *ssovstate.Manager, asset string, from common.Address, amount *uint256.Int) error {
	if manager == nil {
		return ErrNilState
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return debit(manager, asset, from, amount)
}

func debit(manager *ssovstate.Manager, asset string, addr common.Address, amount *uint256.Int) error {
	balance, err := manager.Balance(addr, asset)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance, addr.Hex(), balance, asset, amount)
	}
	return manager.SetBalance(addr, asset, new(uint256.Int).Sub(balance, amount))
}

func credit(manager *ssovstate.Manager, asset string, addr common.Address, amount *uint256.Int) error {
	balance, err := manager.Balance(addr, asset)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	return manager.SetBalance(addr, asset, next)
}
