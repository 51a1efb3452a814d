package ssov

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Bootstrap opens the next epoch with its staged strikes. The previous epoch
// must have expired. Deposits collected for the epoch are staked into the
// yield source when one is configured.
func (e *Engine) Bootstrap(caller common.Address) (uint64, error) {
	var opened uint64
	err := e.execute("bootstrap", func(tx *txn) error {
		if err := e.guard(tx); err != nil {
			return err
		}
		if err := e.requireRole(tx, AddressOwner, caller); err != nil {
			return err
		}
		current, err := tx.store.currentEpoch()
		if err != nil {
			return err
		}
		if current != 0 {
			prev, err := tx.store.epoch(current)
			if err != nil {
				return err
			}
			if !prev.Expired {
				return fmt.Errorf("%w: epoch %d", ErrEpochAlreadyOpen, current)
			}
		}
		ep, err := tx.store.epoch(current + 1)
		if err != nil {
			return err
		}
		if len(ep.Strikes) == 0 {
			return ErrNoStrikesSet
		}

		ep.Start = uint64(tx.now)
		end := e.schedule.NextExpiry(tx.now)
		if end <= tx.now {
			return fmt.Errorf("%w: expiry %d not after bootstrap %d", ErrInvalidState, end, tx.now)
		}
		ep.End = uint64(end)
		ep.Bootstrapped = true
		for _, strike := range ep.Strikes {
			if err := e.registerTokens(tx, ep, strike); err != nil {
				return err
			}
		}
		if e.yield != nil && !isZero(ep.TotalDeposits) {
			if err := e.yield.Stake(tx.state, e.vault, ep.TotalDeposits, tx.now); err != nil {
				return fmt.Errorf("ssov engine: stake epoch deposits: %w", err)
			}
			ep.StakedPrincipal = clone(ep.TotalDeposits)
		}
		if err := tx.store.putEpoch(ep); err != nil {
			return err
		}
		if err := tx.store.setCurrentEpoch(ep.Number); err != nil {
			return err
		}
		opened = ep.Number

		tx.emit(newEvent(EventTypeBootstrap, e.params.Name, attrs{}.
			uint("epoch", ep.Number).uint("start", ep.Start).uint("end", ep.End).
			amount("totalDeposits", ep.TotalDeposits)))
		tx.onCommit(func() {
			e.telemetry.SetCurrentEpoch(e.params.Name, ep.Number)
			e.logger.Info("ssov: epoch bootstrapped", slog.String("vault", e.params.Name),
				slog.Uint64("epoch", ep.Number), slog.Uint64("end", ep.End),
				slog.String("deposits", ep.TotalDeposits.Dec()))
		})
		return nil
	})
	return opened, err
}

// Compound harvests rewards for the running epoch: any unstaked principal is
// staked, primary rewards are restaked and secondary rewards are booked to
// the epoch.
func (e *Engine) Compound(caller common.Address) (CompoundResult, error) {
	var result CompoundResult
	err := e.execute("compound", func(tx *txn) error {
		if err := e.guard(tx); err != nil {
			return err
		}
		if e.yield == nil {
			return errNilYield
		}
		current, err := tx.store.currentEpoch()
		if err != nil {
			return err
		}
		ep, err := tx.store.epoch(current)
		if err != nil {
			return err
		}
		if current == 0 || !ep.Open() || tx.now >= int64(ep.End) {
			return ErrEpochExpiredOrNotBootstrapped
		}

		owned, err := add(ep.TotalDeposits, ep.CompoundedPrimary)
		if err != nil {
			return err
		}
		idle, err := sub(owned, ep.StakedPrincipal)
		if err != nil {
			return err
		}
		got, err := e.harvest(tx)
		if err != nil {
			return fmt.Errorf("ssov engine: claim rewards: %w", err)
		}
		primary, secondary := got.primary, got.secondary
		toStake, err := add(idle, primary)
		if err != nil {
			return err
		}
		if !toStake.IsZero() {
			if err := e.yield.Stake(tx.state, e.vault, toStake, tx.now); err != nil {
				return fmt.Errorf("ssov engine: restake: %w", err)
			}
		}
		if err := addTo(&ep.StakedPrincipal, toStake); err != nil {
			return err
		}
		if err := addTo(&ep.CompoundedPrimary, primary); err != nil {
			return err
		}
		if err := addTo(&ep.SecondaryRewards, secondary); err != nil {
			return err
		}
		if err := tx.store.putEpoch(ep); err != nil {
			return err
		}

		acc, err := tx.store.accumulators()
		if err != nil {
			return err
		}
		acc.CompoundCount++
		if err := tx.store.putAccumulators(acc); err != nil {
			return err
		}

		result = CompoundResult{
			Epoch:          ep.Number,
			Primary:        primary,
			Secondary:      secondary,
			PriorPrimary:   got.priorPrimary,
			PriorSecondary: got.priorSecondary,
			Staked:         clone(ep.StakedPrincipal),
		}
		tx.emit(newEvent(EventTypeCompound, e.params.Name, attrs{}.
			uint("epoch", ep.Number).addr("caller", caller).
			amount("primary", primary).amount("secondary", secondary).
			amount("priorPrimary", got.priorPrimary).amount("priorSecondary", got.priorSecondary).
			amount("staked", ep.StakedPrincipal)))
		tx.onCommit(func() {
			e.telemetry.AddCompound(e.params.Name, e.amountFloat(primary), e.amountFloat(secondary))
		})
		return nil
	})
	return result, err
}

// ExpireEpoch closes the running epoch at its end time using the oracle spot.
// Anyone may call it once the end time has passed.
func (e *Engine) ExpireEpoch(caller common.Address) error {
	return e.execute("expire", func(tx *txn) error {
		if err := e.guard(tx); err != nil {
			return err
		}
		ep, err := e.expirable(tx)
		if err != nil {
			return err
		}
		price, err := e.spot()
		if err != nil {
			return err
		}
		return e.finalize(tx, ep, price, caller)
	})
}

// ExpireEpochWithPrice closes the running epoch at an owner-supplied price,
// for use when the oracle cannot serve the settlement price.
func (e *Engine) ExpireEpochWithPrice(caller common.Address, price *uint256.Int) error {
	if isZero(price) {
		return fmt.Errorf("%w: settlement price must be positive", ErrInvalidInput)
	}
	return e.execute("expire_with_price", func(tx *txn) error {
		if err := e.guard(tx); err != nil {
			return err
		}
		if err := e.requireRole(tx, AddressOwner, caller); err != nil {
			return err
		}
		ep, err := e.expirable(tx)
		if err != nil {
			return err
		}
		return e.finalize(tx, ep, clone(price), caller)
	})
}

func (e *Engine) expirable(tx *txn) (*Epoch, error) {
	current, err := tx.store.currentEpoch()
	if err != nil {
		return nil, err
	}
	if current == 0 {
		return nil, ErrEpochNotBootstrapped
	}
	ep, err := tx.store.epoch(current)
	if err != nil {
		return nil, err
	}
	if ep.Expired {
		return nil, fmt.Errorf("%w: epoch %d", ErrEpochAlreadyExpired, current)
	}
	if tx.now < int64(ep.End) {
		return nil, fmt.Errorf("%w: epoch %d ends at %d", ErrEpochNotYetExpired, current, ep.End)
	}
	return ep, nil
}

// finalize unstakes the epoch, freezes its collateral totals and splits them
// across strikes pro-rata to deposits. Rewards the yield source could not pay
// yet are kept as the epoch's receivable. Each strike reserves the in-the-money
// payoff of its sold calls; the rest plus premium becomes its withdraw pool.
func (e *Engine) finalize(tx *txn, ep *Epoch, price *uint256.Int, caller common.Address) error {
	collateral := clone(ep.TotalDeposits)
	secondary := clone(ep.SecondaryRewards)
	if e.yield != nil && !isZero(ep.StakedPrincipal) {
		got, err := e.harvest(tx)
		if err != nil {
			return fmt.Errorf("ssov engine: claim rewards at expiry: %w", err)
		}
		if err := e.yield.Unstake(tx.state, e.vault, ep.StakedPrincipal, tx.now); err != nil {
			return fmt.Errorf("ssov engine: unstake at expiry: %w", err)
		}
		if err := addTo(&collateral, ep.CompoundedPrimary); err != nil {
			return err
		}
		if err := addTo(&collateral, got.primary); err != nil {
			return err
		}
		if err := addTo(&secondary, got.secondary); err != nil {
			return err
		}
		if err := e.recordReceivable(tx, ep); err != nil {
			return err
		}
		ep.StakedPrincipal = zero()
	} else if err := addTo(&collateral, ep.CompoundedPrimary); err != nil {
		return err
	}

	allocated, secAllocated := zero(), zero()
	for _, strike := range ep.Strikes {
		st, err := tx.store.strike(ep.Number, strike)
		if err != nil {
			return err
		}
		if !isZero(st.Deposits) {
			if st.CollateralShare, err = mulDiv(collateral, st.Deposits, ep.TotalDeposits); err != nil {
				return err
			}
			if st.SecondaryShare, err = mulDiv(secondary, st.Deposits, ep.TotalDeposits); err != nil {
				return err
			}
		}
		st.SettlementReserve = zero()
		if price.Gt(strike) && !isZero(st.CallsPurchased) {
			diff := new(uint256.Int).Sub(price, strike)
			if st.SettlementReserve, err = mulDiv(st.CallsPurchased, diff, price); err != nil {
				return err
			}
		}
		pool, err := add(st.CollateralShare, st.Premium)
		if err != nil {
			return err
		}
		if st.WithdrawPool, err = sub(pool, st.SettlementReserve); err != nil {
			return err
		}
		if err := addTo(&allocated, st.CollateralShare); err != nil {
			return err
		}
		if err := addTo(&secAllocated, st.SecondaryShare); err != nil {
			return err
		}
		if err := tx.store.putStrike(ep.Number, strike, st); err != nil {
			return err
		}
	}

	dust, err := sub(collateral, allocated)
	if err != nil {
		return err
	}
	secDust, err := sub(secondary, secAllocated)
	if err != nil {
		return err
	}
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

	ep.Expired = true
	ep.SettlementPrice = clone(price)
	ep.CollateralAtExpiry = collateral
	ep.SecondaryAtExpiry = secondary
	if ep.ValueAtExpiryUSD, err = e.collateral.ValueInUSD(collateral, price); err != nil {
		return err
	}
	if err := tx.store.putEpoch(ep); err != nil {
		return err
	}

	tx.emit(newEvent(EventTypeEpochExpired, e.params.Name, attrs{}.
		uint("epoch", ep.Number).addr("caller", caller).amount("settlementPrice", price).
		amount("collateral", collateral).amount("secondary", secondary).
		amount("primaryReceivable", ep.PrimaryReceivable).amount("secondaryReceivable", ep.SecondaryReceivable)))
	totalDust := clone(acc.RoundingDust)
	tx.onCommit(func() {
		e.telemetry.ObserveExpiry(e.params.Name, ep.Number, priceFloat(price), e.amountFloat(totalDust))
		e.logger.Info("ssov: epoch expired", slog.String("vault", e.params.Name),
			slog.Uint64("epoch", ep.Number), slog.String("settlementPrice", price.Dec()),
			slog.String("collateral", collateral.Dec()), slog.String("secondary", secondary.Dec()))
	})
	return nil
}
