package ssov

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"ssov/native/bank"
)

// Pause halts every guarded operation until Unpause.
func (e *Engine) Pause(caller common.Address) error {
	return e.setPaused(caller, true)
}

// Unpause resumes a paused vault.
func (e *Engine) Unpause(caller common.Address) error {
	return e.setPaused(caller, false)
}

func (e *Engine) setPaused(caller common.Address, paused bool) error {
	op, eventType := "unpause", EventTypeUnpaused
	if paused {
		op, eventType = "pause", EventTypePaused
	}
	return e.execute(op, func(tx *txn) error {
		if err := e.requireRole(tx, AddressGovernance, caller); err != nil {
			return err
		}
		current, err := tx.store.paused()
		if err != nil {
			return err
		}
		switch {
		case paused && current:
			return ErrAlreadyPaused
		case !paused && !current:
			return ErrNotPaused
		}
		if err := tx.store.setPaused(paused); err != nil {
			return err
		}
		tx.emit(newEvent(eventType, e.params.Name, attrs{}.addr("caller", caller)))
		tx.onCommit(func() {
			e.logger.Warn("ssov: pause state changed", slog.String("vault", e.params.Name),
				slog.Bool("paused", paused), slog.String("caller", caller.Hex()))
		})
		return nil
	})
}

// EmergencyWithdraw unwinds the yield position and sweeps every asset the
// vault holds to the caller. Only governance may call it and only while
// paused.
func (e *Engine) EmergencyWithdraw(caller common.Address) error {
	return e.execute("emergency_withdraw", func(tx *txn) error {
		if err := e.requireRole(tx, AddressGovernance, caller); err != nil {
			return err
		}
		paused, err := tx.store.paused()
		if err != nil {
			return err
		}
		if !paused {
			return ErrNotPaused
		}

		if e.yield != nil {
			staked, err := e.yield.Staked(tx.state, e.vault)
			if err != nil {
				return err
			}
			if _, _, err := e.yield.Claim(tx.state, e.vault, tx.now); err != nil {
				return fmt.Errorf("ssov engine: claim rewards: %w", err)
			}
			if !staked.IsZero() {
				if err := e.yield.Unstake(tx.state, e.vault, staked, tx.now); err != nil {
					return fmt.Errorf("ssov engine: unstake: %w", err)
				}
			}
			current, err := tx.store.currentEpoch()
			if err != nil {
				return err
			}
			if current != 0 {
				ep, err := tx.store.epoch(current)
				if err != nil {
					return err
				}
				ep.StakedPrincipal = zero()
				if err := tx.store.putEpoch(ep); err != nil {
					return err
				}
			}
			// The sweep takes whatever was collected, so nothing is owed to
			// expired epochs any more.
			if err := tx.store.setReceivables(nil); err != nil {
				return err
			}
		}

		collateralOut, err := tx.state.Balance(e.vault, e.collateral.Asset())
		if err != nil {
			return err
		}
		if !collateralOut.IsZero() {
			if err := e.collateral.WithdrawAsset(tx.state, e.vault, caller, collateralOut); err != nil {
				return fmt.Errorf("ssov engine: sweep collateral: %w", err)
			}
		}
		rewardsOut := zero()
		if e.yield != nil && e.yield.SecondaryAsset() != e.collateral.Asset() {
			if rewardsOut, err = tx.state.Balance(e.vault, e.yield.SecondaryAsset()); err != nil {
				return err
			}
			if !rewardsOut.IsZero() {
				if err := bank.Transfer(tx.state, e.yield.SecondaryAsset(), e.vault, caller, rewardsOut); err != nil {
					return fmt.Errorf("ssov engine: sweep rewards: %w", err)
				}
			}
		}

		tx.emit(newEvent(EventTypeEmergencyWithdraw, e.params.Name, attrs{}.
			addr("caller", caller).amount("collateral", collateralOut).amount("rewards", rewardsOut)))
		tx.onCommit(func() {
			e.logger.Warn("ssov: emergency withdraw", slog.String("vault", e.params.Name),
				slog.String("caller", caller.Hex()), slog.String("collateral", collateralOut.Dec()),
				slog.String("rewards", rewardsOut.Dec()))
		})
		return nil
	})
}

// SetAddresses updates the address book. names and addrs are paired by index.
func (e *Engine) SetAddresses(caller common.Address, names []string, addrs []common.Address) error {
	if len(names) == 0 || len(names) != len(addrs) {
		return fmt.Errorf("%w: %d names for %d addresses", ErrInvalidInput, len(names), len(addrs))
	}
	for i, name := range names {
		if !knownAddressName(name) {
			return fmt.Errorf("%w: unknown address name %q", ErrInvalidInput, name)
		}
		if addrs[i] == (common.Address{}) {
			return fmt.Errorf("%w: %s cannot be the zero address", ErrInvalidInput, name)
		}
	}
	return e.execute("set_addresses", func(tx *txn) error {
		if err := e.requireRole(tx, AddressOwner, caller); err != nil {
			return err
		}
		for i, name := range names {
			if err := tx.store.setAddress(name, addrs[i]); err != nil {
				return err
			}
			tx.emit(newEvent(EventTypeAddressSet, e.params.Name, attrs{"name": name}.addr("address", addrs[i])))
		}
		return nil
	})
}

func knownAddressName(name string) bool {
	for _, known := range addressNames {
		if known == name {
			return true
		}
	}
	return false
}
