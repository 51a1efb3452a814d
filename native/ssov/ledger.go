package ssov

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ssov/native/optiontoken"
)

// CurrentEpoch returns the most recently bootstrapped epoch, 0 before the
// first bootstrap.
func (e *Engine) CurrentEpoch() (uint64, error) {
	var n uint64
	err := e.view(func(tx *txn) error {
		var err error
		n, err = tx.store.currentEpoch()
		return err
	})
	return n, err
}

// Epoch returns a copy of epoch n's record.
func (e *Engine) Epoch(n uint64) (*Epoch, error) {
	var out *Epoch
	err := e.view(func(tx *txn) error {
		ep, err := tx.store.epoch(n)
		if err != nil {
			return err
		}
		out = ep.Clone()
		return nil
	})
	return out, err
}

// EpochTimes returns the start and end of epoch n.
func (e *Engine) EpochTimes(n uint64) (EpochTimes, error) {
	ep, err := e.Epoch(n)
	if err != nil {
		return EpochTimes{}, err
	}
	return EpochTimes{Start: ep.Start, End: ep.End}, nil
}

// StrikeState returns the aggregate for (epoch, strike).
func (e *Engine) StrikeState(epoch uint64, strike *uint256.Int) (*StrikeState, error) {
	var out *StrikeState
	err := e.view(func(tx *txn) error {
		st, err := tx.store.strike(epoch, strike)
		out = st
		return err
	})
	return out, err
}

// Position returns the user-strike record for hash in epoch.
func (e *Engine) Position(epoch uint64, hash common.Hash) (*Position, error) {
	var out *Position
	err := e.view(func(tx *txn) error {
		pos, err := tx.store.position(epoch, hash)
		out = pos
		return err
	})
	return out, err
}

func (e *Engine) TotalEpochDeposits(epoch uint64) (*uint256.Int, error) {
	ep, err := e.Epoch(epoch)
	if err != nil {
		return nil, err
	}
	return ep.TotalDeposits, nil
}

func (e *Engine) TotalEpochStrikeDeposits(epoch uint64, strike *uint256.Int) (*uint256.Int, error) {
	st, err := e.StrikeState(epoch, strike)
	if err != nil {
		return nil, err
	}
	return st.Deposits, nil
}

func (e *Engine) UserEpochDeposits(epoch uint64, hash common.Hash) (*uint256.Int, error) {
	pos, err := e.Position(epoch, hash)
	if err != nil {
		return nil, err
	}
	return pos.Deposits, nil
}

func (e *Engine) TotalEpochCallsPurchased(epoch uint64, strike *uint256.Int) (*uint256.Int, error) {
	st, err := e.StrikeState(epoch, strike)
	if err != nil {
		return nil, err
	}
	return st.CallsPurchased, nil
}

func (e *Engine) UserEpochCallsPurchased(epoch uint64, hash common.Hash) (*uint256.Int, error) {
	pos, err := e.Position(epoch, hash)
	if err != nil {
		return nil, err
	}
	return pos.CallsPurchased, nil
}

func (e *Engine) TotalEpochPremium(epoch uint64, strike *uint256.Int) (*uint256.Int, error) {
	st, err := e.StrikeState(epoch, strike)
	if err != nil {
		return nil, err
	}
	return st.Premium, nil
}

func (e *Engine) UserEpochPremium(epoch uint64, hash common.Hash) (*uint256.Int, error) {
	pos, err := e.Position(epoch, hash)
	if err != nil {
		return nil, err
	}
	return pos.Premium, nil
}

// Accumulators returns a copy of the protocol-wide running totals.
func (e *Engine) Accumulators() (Accumulators, error) {
	var out Accumulators
	err := e.view(func(tx *txn) error {
		acc, err := tx.store.accumulators()
		if err != nil {
			return err
		}
		out = *acc
		return nil
	})
	return out, err
}

// IsPaused reports whether guarded operations are currently blocked.
func (e *Engine) IsPaused() (bool, error) {
	var paused bool
	err := e.view(func(tx *txn) error {
		var err error
		paused, err = tx.store.paused()
		return err
	})
	return paused, err
}

// Address returns the address book entry for name.
func (e *Engine) Address(name string) (common.Address, error) {
	var out common.Address
	err := e.view(func(tx *txn) error {
		var err error
		out, err = tx.store.address(name)
		return err
	})
	return out, err
}

// TokenID returns the option token identifier for strikeIndex of epoch.
func (e *Engine) TokenID(epoch uint64, strikeIndex int, class optiontoken.Class) (optiontoken.ID, error) {
	ep, err := e.Epoch(epoch)
	if err != nil {
		return optiontoken.ID{}, err
	}
	strike, err := strikeAt(ep, strikeIndex)
	if err != nil {
		return optiontoken.ID{}, err
	}
	return tokenID(epoch, strike, class), nil
}

// TokenBalance returns holder's option token balance.
func (e *Engine) TokenBalance(id optiontoken.ID, holder common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.view(func(tx *txn) error {
		var err error
		out, err = tx.tokens.BalanceOf(id, holder)
		return err
	})
	return out, err
}

// TokenMetadata returns registered metadata for an option token.
func (e *Engine) TokenMetadata(id optiontoken.ID) (*optiontoken.Metadata, error) {
	var out *optiontoken.Metadata
	err := e.view(func(tx *txn) error {
		var err error
		out, err = tx.tokens.Metadata(id)
		return err
	})
	return out, err
}

// TransferCallRights moves call rights between holders. Deposit shares are
// bound to the depositor and cannot move.
func (e *Engine) TransferCallRights(caller, to common.Address, id optiontoken.ID, amount *uint256.Int) error {
	return e.execute("transfer", func(tx *txn) error {
		if err := e.guard(tx); err != nil {
			return err
		}
		return tx.tokens.Transfer(id, caller, to, amount)
	})
}

// ApproveCallRights lets spender move up to amount of caller's call rights.
func (e *Engine) ApproveCallRights(caller, spender common.Address, id optiontoken.ID, amount *uint256.Int) error {
	return e.execute("approve", func(tx *txn) error {
		if err := e.guard(tx); err != nil {
			return err
		}
		return tx.tokens.Approve(id, caller, spender, amount)
	})
}

// TransferCallRightsFrom moves owner's call rights to to, spending caller's
// allowance.
func (e *Engine) TransferCallRightsFrom(caller, owner, to common.Address, id optiontoken.ID, amount *uint256.Int) error {
	return e.execute("transfer_from", func(tx *txn) error {
		if err := e.guard(tx); err != nil {
			return err
		}
		return tx.tokens.TransferFrom(id, caller, owner, to, amount)
	})
}

// CallRightsAllowance returns what spender may still move on owner's behalf.
func (e *Engine) CallRightsAllowance(id optiontoken.ID, owner, spender common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.view(func(tx *txn) error {
		var err error
		out, err = tx.tokens.Allowance(id, owner, spender)
		return err
	})
	return out, err
}

// EpochValueUSD values an epoch's collateral in USD. Expired epochs report the
// total frozen at the settlement price; other epochs value deposits plus
// compounded rewards at the oracle spot.
func (e *Engine) EpochValueUSD(epoch uint64) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.view(func(tx *txn) error {
		ep, err := tx.store.epoch(epoch)
		if err != nil {
			return err
		}
		if ep.Expired {
			out = clone(ep.ValueAtExpiryUSD)
			return nil
		}
		held, err := add(ep.TotalDeposits, ep.CompoundedPrimary)
		if err != nil {
			return err
		}
		if held.IsZero() {
			out = zero()
			return nil
		}
		price, err := e.spot()
		if err != nil {
			return err
		}
		out, err = e.collateral.ValueInUSD(held, price)
		return err
	})
	return out, err
}

// AssetBalance returns an account's balance of a ledger asset.
func (e *Engine) AssetBalance(addr common.Address, asset string) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.view(func(tx *txn) error {
		var err error
		out, err = tx.state.Balance(addr, asset)
		return err
	})
	return out, err
}

// CalculatePurchaseFees quotes the fee strategy's purchase fee before the
// premium cap is applied.
func (e *Engine) CalculatePurchaseFees(spot, strike, amount *uint256.Int) (*uint256.Int, error) {
	e.mu.Lock()
	fees := e.fees
	e.mu.Unlock()
	return fees.CalculatePurchaseFees(spot, strike, amount)
}

// CalculatePremium quotes the collateral-denominated premium for amount calls
// at strike using the current oracle, volatility and pricing collaborators.
func (e *Engine) CalculatePremium(strike, amount *uint256.Int, expiry int64) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	spot, err := e.spot()
	if err != nil {
		return nil, err
	}
	return e.premium(strike, amount, spot, expiry)
}

// MonthlyExpiryFromTimestamp exposes the monthly schedule.
func MonthlyExpiryFromTimestamp(ts int64) int64 {
	return MonthlySchedule{}.NextExpiry(ts)
}
