package ssov

import (
	"fmt"

	"github.com/holiman/uint256"
)

// harvested splits one claim from the yield source between expired epochs
// that are owed rewards and the running epoch.
type harvested struct {
	primary        *uint256.Int
	secondary      *uint256.Int
	priorPrimary   *uint256.Int
	priorSecondary *uint256.Int
}

// harvest claims the vault's rewards. Claimed amounts first pay down the
// receivables of expired epochs, oldest first, and only the remainder is
// left for the running epoch.
func (e *Engine) harvest(tx *txn) (harvested, error) {
	primary, secondary, err := e.yield.Claim(tx.state, e.vault, tx.now)
	if err != nil {
		return harvested{}, err
	}
	out := harvested{
		primary:        clone(primary),
		secondary:      clone(secondary),
		priorPrimary:   zero(),
		priorSecondary: zero(),
	}

	acc, err := tx.store.accumulators()
	if err != nil {
		return harvested{}, err
	}
	if err := addTo(&acc.TotalCompoundedPrimary, primary); err != nil {
		return harvested{}, err
	}
	if err := addTo(&acc.TotalSecondaryRewards, secondary); err != nil {
		return harvested{}, err
	}
	if err := tx.store.putAccumulators(acc); err != nil {
		return harvested{}, err
	}

	list, err := tx.store.receivables()
	if err != nil {
		return harvested{}, err
	}
	if len(list) == 0 {
		return out, nil
	}
	remaining := make([]uint64, 0, len(list))
	for _, n := range list {
		ep, err := tx.store.epoch(n)
		if err != nil {
			return harvested{}, err
		}
		p := minInt(out.primary, ep.PrimaryReceivable)
		s := minInt(out.secondary, ep.SecondaryReceivable)
		if !p.IsZero() || !s.IsZero() {
			if err := e.creditLateYield(tx, ep, p, s); err != nil {
				return harvested{}, err
			}
			if err := subFrom(&out.primary, p); err != nil {
				return harvested{}, err
			}
			if err := subFrom(&out.secondary, s); err != nil {
				return harvested{}, err
			}
			if err := addTo(&out.priorPrimary, p); err != nil {
				return harvested{}, err
			}
			if err := addTo(&out.priorSecondary, s); err != nil {
				return harvested{}, err
			}
		}
		if ep.HasReceivable() {
			remaining = append(remaining, n)
		}
	}
	if len(remaining) != len(list) {
		if err := tx.store.setReceivables(remaining); err != nil {
			return harvested{}, err
		}
	}
	return out, nil
}

// creditLateYield books rewards collected for an expired epoch to its strikes
// pro-rata to deposits. Depositors draw them through Withdraw.
func (e *Engine) creditLateYield(tx *txn, ep *Epoch, primary, secondary *uint256.Int) error {
	if err := subFrom(&ep.PrimaryReceivable, primary); err != nil {
		return err
	}
	if err := subFrom(&ep.SecondaryReceivable, secondary); err != nil {
		return err
	}
	allocated, secAllocated := zero(), zero()
	for _, strike := range ep.Strikes {
		st, err := tx.store.strike(ep.Number, strike)
		if err != nil {
			return err
		}
		if isZero(st.Deposits) {
			continue
		}
		share, err := mulDiv(primary, st.Deposits, ep.TotalDeposits)
		if err != nil {
			return err
		}
		secShare, err := mulDiv(secondary, st.Deposits, ep.TotalDeposits)
		if err != nil {
			return err
		}
		if err := addTo(&st.LateCollateral, share); err != nil {
			return err
		}
		if err := addTo(&st.LateSecondary, secShare); err != nil {
			return err
		}
		if err := addTo(&allocated, share); err != nil {
			return err
		}
		if err := addTo(&secAllocated, secShare); err != nil {
			return err
		}
		if err := tx.store.putStrike(ep.Number, strike, st); err != nil {
			return err
		}
	}
	if err := tx.store.putEpoch(ep); err != nil {
		return err
	}

	dust, err := sub(primary, allocated)
	if err != nil {
		return err
	}
	secDust, err := sub(secondary, secAllocated)
	if err != nil {
		return err
	}
	if !dust.IsZero() || !secDust.IsZero() {
		acc, err := tx.store.accumulators()
		if err != nil {
			return err
		}
		if err := addTo(&acc.RoundingDust, dust); err != nil {
			return err
		}
		if err := addTo(&acc.RoundingDust, secDust); err != nil {
			return err
		}
		if err := tx.store.putAccumulators(acc); err != nil {
			return err
		}
	}

	tx.emit(newEvent(EventTypeLateYield, e.params.Name, attrs{}.
		uint("epoch", ep.Number).amount("primary", primary).amount("secondary", secondary).
		amount("primaryReceivable", ep.PrimaryReceivable).amount("secondaryReceivable", ep.SecondaryReceivable)))
	return nil
}

// recordReceivable stores what the yield source still owes ep after its
// final claim. Older epochs' receivables are part of the same pool balance
// and are subtracted first.
func (e *Engine) recordReceivable(tx *txn, ep *Epoch) error {
	owedPrimary, owedSecondary, err := e.yield.Earned(tx.state, e.vault, tx.now)
	if err != nil {
		return fmt.Errorf("ssov engine: read unpaid rewards: %w", err)
	}
	priorPrimary, priorSecondary, err := outstanding(tx)
	if err != nil {
		return err
	}
	ep.PrimaryReceivable = saturatingSub(owedPrimary, priorPrimary)
	ep.SecondaryReceivable = saturatingSub(owedSecondary, priorSecondary)
	if !ep.HasReceivable() {
		return nil
	}
	list, err := tx.store.receivables()
	if err != nil {
		return err
	}
	return tx.store.setReceivables(append(list, ep.Number))
}

// outstanding sums the receivables of all expired epochs.
func outstanding(tx *txn) (*uint256.Int, *uint256.Int, error) {
	list, err := tx.store.receivables()
	if err != nil {
		return nil, nil, err
	}
	primary, secondary := zero(), zero()
	for _, n := range list {
		ep, err := tx.store.epoch(n)
		if err != nil {
			return nil, nil, err
		}
		if err := addTo(&primary, ep.PrimaryReceivable); err != nil {
			return nil, nil, err
		}
		if err := addTo(&secondary, ep.SecondaryReceivable); err != nil {
			return nil, nil, err
		}
	}
	return primary, secondary, nil
}

// lateShare returns what pos may still draw from rewards collected for its
// strike after expiry.
func lateShare(pos *Position, st *StrikeState) (*uint256.Int, *uint256.Int, error) {
	basis, err := add(pos.Deposits, pos.Redeemed)
	if err != nil {
		return nil, nil, err
	}
	if basis.IsZero() || isZero(st.Deposits) {
		return zero(), zero(), nil
	}
	collateral, err := mulDiv(basis, st.LateCollateral, st.Deposits)
	if err != nil {
		return nil, nil, err
	}
	secondary, err := mulDiv(basis, st.LateSecondary, st.Deposits)
	if err != nil {
		return nil, nil, err
	}
	if collateral, err = sub(collateral, pos.LateCollateralPaid); err != nil {
		return nil, nil, err
	}
	if secondary, err = sub(secondary, pos.LateSecondaryPaid); err != nil {
		return nil, nil, err
	}
	return collateral, secondary, nil
}

// PendingRewards reports the rewards the yield source currently owes the
// vault and the part of them already owed to expired epochs.
func (e *Engine) PendingRewards() (PendingRewards, error) {
	var out PendingRewards
	err := e.view(func(tx *txn) error {
		if e.yield == nil {
			return errNilYield
		}
		primary, secondary, err := e.yield.Earned(tx.state, e.vault, tx.now)
		if err != nil {
			return err
		}
		priorPrimary, priorSecondary, err := outstanding(tx)
		if err != nil {
			return err
		}
		out = PendingRewards{
			Primary:             clone(primary),
			Secondary:           clone(secondary),
			PrimaryReceivable:   priorPrimary,
			SecondaryReceivable: priorSecondary,
		}
		return nil
	})
	return out, err
}
