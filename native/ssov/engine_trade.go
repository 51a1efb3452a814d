package ssov

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ssov/native/bank"
	"ssov/native/optiontoken"
)

// Deposit writes calls at the strike for the next epoch. Collateral is pulled
// from caller; the position and deposit shares belong to beneficiary, which
// defaults to caller. The returned value is the epoch that received the
// deposit.
func (e *Engine) Deposit(caller common.Address, strikeIndex int, amount *uint256.Int, beneficiary common.Address) (uint64, error) {
	return e.DepositMultiple(caller, []int{strikeIndex}, []*uint256.Int{amount}, beneficiary)
}

// DepositMultiple applies several deposits as one operation.
func (e *Engine) DepositMultiple(caller common.Address, indices []int, amounts []*uint256.Int, beneficiary common.Address) (uint64, error) {
	if len(indices) == 0 || len(indices) != len(amounts) {
		return 0, fmt.Errorf("%w: %d strike indices for %d amounts", ErrInvalidInput, len(indices), len(amounts))
	}
	if beneficiary == (common.Address{}) {
		beneficiary = caller
	}
	var target uint64
	err := e.execute("deposit", func(tx *txn) error {
		if err := e.guard(tx); err != nil {
			return err
		}
		current, err := tx.store.currentEpoch()
		if err != nil {
			return err
		}
		if current != 0 {
			running, err := tx.store.epoch(current)
			if err != nil {
				return err
			}
			if !running.Expired {
				return fmt.Errorf("%w: epoch %d", ErrDepositsClosed, current)
			}
		}
		ep, err := tx.store.epoch(current + 1)
		if err != nil {
			return err
		}
		for i, idx := range indices {
			if err := e.depositInto(tx, ep, caller, idx, amounts[i], beneficiary); err != nil {
				return err
			}
		}
		if err := tx.store.putEpoch(ep); err != nil {
			return err
		}
		target = ep.Number
		return nil
	})
	return target, err
}

func (e *Engine) depositInto(tx *txn, ep *Epoch, caller common.Address, strikeIndex int, amount *uint256.Int, beneficiary common.Address) error {
	if isZero(amount) {
		return ErrInvalidAmount
	}
	strike, err := strikeAt(ep, strikeIndex)
	if err != nil {
		return err
	}
	amount = clone(amount)
	if err := e.collateral.DepositAsset(tx.state, caller, e.vault, amount); err != nil {
		return fmt.Errorf("ssov engine: pull collateral: %w", err)
	}
	if err := addTo(&ep.TotalDeposits, amount); err != nil {
		return err
	}
	st, err := tx.store.strike(ep.Number, strike)
	if err != nil {
		return err
	}
	if err := addTo(&st.Deposits, amount); err != nil {
		return err
	}
	if err := tx.store.putStrike(ep.Number, strike, st); err != nil {
		return err
	}
	hash := UserStrikeHash(beneficiary, strike)
	pos, err := tx.store.position(ep.Number, hash)
	if err != nil {
		return err
	}
	if err := addTo(&pos.Deposits, amount); err != nil {
		return err
	}
	pos.Withdrawn = false
	if err := tx.store.putPosition(ep.Number, hash, pos); err != nil {
		return err
	}
	if err := e.registerTokens(tx, ep, strike); err != nil {
		return err
	}
	if err := tx.tokens.Mint(tokenID(ep.Number, strike, optiontoken.ClassDepositShare), beneficiary, amount); err != nil {
		return err
	}

	tx.emit(newEvent(EventTypeDeposit, e.params.Name, attrs{}.
		uint("epoch", ep.Number).amount("strike", strike).amount("amount", amount).
		addr("caller", caller).addr("beneficiary", beneficiary)))
	epochTotal := clone(ep.TotalDeposits)
	tx.onCommit(func() {
		e.telemetry.AddDeposit(e.params.Name, ep.Number, e.amountFloat(amount), e.amountFloat(epochTotal))
		e.logger.Debug("ssov: deposit", slog.String("vault", e.params.Name), slog.Uint64("epoch", ep.Number),
			slog.String("strike", strike.Dec()), slog.String("amount", amount.Dec()),
			slog.String("beneficiary", beneficiary.Hex()))
	})
	return nil
}

// premium prices amount calls at strike in collateral units.
func (e *Engine) premium(strike, amount, spot *uint256.Int, expiry int64) (*uint256.Int, error) {
	if e.pricing == nil {
		return nil, errNilPricing
	}
	if e.volatility == nil {
		return nil, errNilVolatility
	}
	vol, err := e.volatility.GetVolatility(strike)
	if err != nil {
		return nil, fmt.Errorf("ssov engine: volatility: %w", err)
	}
	price, err := e.pricing.GetOptionPrice(false, expiry, strike, spot, vol)
	if err != nil {
		return nil, fmt.Errorf("ssov engine: option price: %w", err)
	}
	return mulDiv(amount, price, spot)
}

// Purchase buys amount calls at the strike of the running epoch. The buyer
// pays premium to the vault and the protocol fee to the fee distributor.
func (e *Engine) Purchase(caller common.Address, strikeIndex int, amount *uint256.Int, beneficiary common.Address) (PurchaseReceipt, error) {
	if beneficiary == (common.Address{}) {
		beneficiary = caller
	}
	var receipt PurchaseReceipt
	err := e.execute("purchase", func(tx *txn) error {
		if err := e.guard(tx); err != nil {
			return err
		}
		current, err := tx.store.currentEpoch()
		if err != nil {
			return err
		}
		if current == 0 {
			return ErrEpochNotBootstrapped
		}
		ep, err := tx.store.epoch(current)
		if err != nil {
			return err
		}
		if !ep.Bootstrapped {
			return ErrEpochNotBootstrapped
		}
		if ep.Expired || tx.now >= int64(ep.End) {
			return fmt.Errorf("%w: epoch %d", ErrEpochAlreadyExpired, current)
		}
		strike, err := strikeAt(ep, strikeIndex)
		if err != nil {
			return err
		}
		if isZero(amount) {
			return ErrInvalidAmount
		}
		amount := clone(amount)
		st, err := tx.store.strike(ep.Number, strike)
		if err != nil {
			return err
		}
		available, err := st.Available()
		if err != nil {
			return err
		}
		if available.Lt(amount) {
			return fmt.Errorf("%w: %s available, %s requested", ErrInsufficientLiquidity, available.Dec(), amount.Dec())
		}

		spot, err := e.spot()
		if err != nil {
			return err
		}
		premium, err := e.premium(strike, amount, spot, int64(ep.End))
		if err != nil {
			return err
		}
		fee, err := e.fees.CalculatePurchaseFees(spot, strike, amount)
		if err != nil {
			return fmt.Errorf("ssov engine: purchase fee: %w", err)
		}
		if fee, err = capFee(fee, premium, e.params.PurchaseFeeCapBps); err != nil {
			return err
		}
		total, err := add(premium, fee)
		if err != nil {
			return err
		}
		if !total.IsZero() {
			if err := e.collateral.DepositAsset(tx.state, caller, e.vault, total); err != nil {
				return fmt.Errorf("ssov engine: collect premium: %w", err)
			}
		}
		if !fee.IsZero() {
			distributor, err := tx.store.address(AddressFeeDistributor)
			if err != nil {
				return err
			}
			if err := bank.Transfer(tx.state, e.collateral.Asset(), e.vault, distributor, fee); err != nil {
				return fmt.Errorf("ssov engine: forward purchase fee: %w", err)
			}
		}

		if err := addTo(&st.CallsPurchased, amount); err != nil {
			return err
		}
		if err := addTo(&st.Premium, premium); err != nil {
			return err
		}
		if err := addTo(&st.PurchaseFees, fee); err != nil {
			return err
		}
		if err := tx.store.putStrike(ep.Number, strike, st); err != nil {
			return err
		}
		hash := UserStrikeHash(beneficiary, strike)
		pos, err := tx.store.position(ep.Number, hash)
		if err != nil {
			return err
		}
		if err := addTo(&pos.CallsPurchased, amount); err != nil {
			return err
		}
		if err := addTo(&pos.Premium, premium); err != nil {
			return err
		}
		if err := tx.store.putPosition(ep.Number, hash, pos); err != nil {
			return err
		}
		acc, err := tx.store.accumulators()
		if err != nil {
			return err
		}
		if err := addTo(&acc.TotalPurchaseFees, fee); err != nil {
			return err
		}
		if err := tx.store.putAccumulators(acc); err != nil {
			return err
		}
		if err := e.registerTokens(tx, ep, strike); err != nil {
			return err
		}
		if err := tx.tokens.Mint(tokenID(ep.Number, strike, optiontoken.ClassCallRight), beneficiary, amount); err != nil {
			return err
		}

		receipt = PurchaseReceipt{Epoch: ep.Number, Strike: strike, Amount: amount, Spot: spot, Premium: premium, Fee: fee}
		tx.emit(newEvent(EventTypePurchase, e.params.Name, attrs{}.
			uint("epoch", ep.Number).amount("strike", strike).amount("amount", amount).
			amount("premium", premium).amount("fee", fee).
			addr("caller", caller).addr("beneficiary", beneficiary)))
		tx.onCommit(func() {
			e.telemetry.AddPurchase(e.params.Name, e.amountFloat(premium), e.amountFloat(fee))
			e.logger.Debug("ssov: purchase", slog.String("vault", e.params.Name), slog.Uint64("epoch", ep.Number),
				slog.String("strike", strike.Dec()), slog.String("amount", amount.Dec()),
				slog.String("premium", premium.Dec()), slog.String("fee", fee.Dec()))
		})
		return nil
	})
	return receipt, err
}

// Settle exercises amount in-the-money calls of an expired epoch. The payout
// comes out of the strike's settlement reserve less the settlement fee.
func (e *Engine) Settle(caller common.Address, strikeIndex int, amount *uint256.Int, epoch uint64) (SettleResult, error) {
	var result SettleResult
	err := e.execute("settle", func(tx *txn) error {
		if err := e.guard(tx); err != nil {
			return err
		}
		if isZero(amount) {
			return ErrInvalidAmount
		}
		amount := clone(amount)
		ep, err := tx.store.epoch(epoch)
		if err != nil {
			return err
		}
		if !ep.Expired {
			return fmt.Errorf("%w: epoch %d", ErrEpochNotYetExpired, epoch)
		}
		strike, err := strikeAt(ep, strikeIndex)
		if err != nil {
			return err
		}
		price := ep.SettlementPrice
		if !price.Gt(strike) {
			return fmt.Errorf("%w: settled at %s, strike %s", ErrNotInTheMoney, price.Dec(), strike.Dec())
		}
		id := tokenID(epoch, strike, optiontoken.ClassCallRight)
		held, err := tx.tokens.BalanceOf(id, caller)
		if err != nil {
			return err
		}
		if held.Lt(amount) {
			return fmt.Errorf("%w: holds %s, settling %s", ErrInsufficientOptions, held.Dec(), amount.Dec())
		}

		pnl, err := mulDiv(amount, new(uint256.Int).Sub(price, strike), price)
		if err != nil {
			return err
		}
		fee, err := e.fees.CalculateSettlementFees(price, pnl, amount)
		if err != nil {
			return fmt.Errorf("ssov engine: settlement fee: %w", err)
		}
		if fee, err = capFee(fee, pnl, e.params.SettlementFeeCapBps); err != nil {
			return err
		}
		fee = minInt(fee, pnl)
		payout, err := sub(pnl, fee)
		if err != nil {
			return err
		}

		st, err := tx.store.strike(epoch, strike)
		if err != nil {
			return err
		}
		paid, err := add(st.SettlementPaid, pnl)
		if err != nil {
			return err
		}
		if paid.Gt(st.SettlementReserve) {
			return fmt.Errorf("%w: settlement reserve exhausted", ErrInsufficientLiquidity)
		}
		if err := tx.tokens.Burn(id, caller, amount); err != nil {
			return err
		}
		if !payout.IsZero() {
			if err := e.collateral.WithdrawAsset(tx.state, e.vault, caller, payout); err != nil {
				return fmt.Errorf("ssov engine: pay settlement: %w", err)
			}
		}
		if !fee.IsZero() {
			distributor, err := tx.store.address(AddressFeeDistributor)
			if err != nil {
				return err
			}
			if err := bank.Transfer(tx.state, e.collateral.Asset(), e.vault, distributor, fee); err != nil {
				return fmt.Errorf("ssov engine: forward settlement fee: %w", err)
			}
		}
		st.SettlementPaid = paid
		if err := addTo(&st.SettlementFees, fee); err != nil {
			return err
		}
		if err := tx.store.putStrike(epoch, strike, st); err != nil {
			return err
		}
		acc, err := tx.store.accumulators()
		if err != nil {
			return err
		}
		if err := addTo(&acc.TotalSettlementFees, fee); err != nil {
			return err
		}
		if err := tx.store.putAccumulators(acc); err != nil {
			return err
		}

		result = SettleResult{Epoch: epoch, Strike: strike, Amount: amount, PnL: pnl, Fee: fee, Payout: payout}
		tx.emit(newEvent(EventTypeSettle, e.params.Name, attrs{}.
			uint("epoch", epoch).amount("strike", strike).amount("amount", amount).
			amount("pnl", pnl).amount("fee", fee).addr("caller", caller)))
		tx.onCommit(func() {
			e.telemetry.AddSettlement(e.params.Name, e.amountFloat(payout), e.amountFloat(fee))
		})
		return nil
	})
	return result, err
}

// Withdraw returns a depositor's share of an expired strike: collateral from
// the withdraw pool and the matching share of secondary rewards. Rewards the
// yield source paid after expiry are included, and a depositor who already
// withdrew may call again to collect them.
func (e *Engine) Withdraw(caller common.Address, epoch uint64, strikeIndex int) (WithdrawResult, error) {
	var result WithdrawResult
	err := e.execute("withdraw", func(tx *txn) error {
		if err := e.guard(tx); err != nil {
			return err
		}
		ep, err := tx.store.epoch(epoch)
		if err != nil {
			return err
		}
		if !ep.Expired {
			return fmt.Errorf("%w: epoch %d", ErrEpochNotYetExpired, epoch)
		}
		strike, err := strikeAt(ep, strikeIndex)
		if err != nil {
			return err
		}
		hash := UserStrikeHash(caller, strike)
		pos, err := tx.store.position(epoch, hash)
		if err != nil {
			return err
		}
		if pos.Deposits.IsZero() && isZero(pos.Redeemed) {
			return ErrZeroBalance
		}
		st, err := tx.store.strike(epoch, strike)
		if err != nil {
			return err
		}
		lateCollateral, lateSecondary, err := lateShare(pos, st)
		if err != nil {
			return err
		}
		if pos.Deposits.IsZero() && lateCollateral.IsZero() && lateSecondary.IsZero() {
			return ErrZeroBalance
		}

		deposit := clone(pos.Deposits)
		out, secondary := zero(), zero()
		if !deposit.IsZero() {
			if out, err = mulDiv(deposit, st.WithdrawPool, st.Deposits); err != nil {
				return err
			}
			if secondary, err = mulDiv(deposit, st.SecondaryShare, st.Deposits); err != nil {
				return err
			}
		}
		if err := addTo(&out, lateCollateral); err != nil {
			return err
		}
		if err := addTo(&secondary, lateSecondary); err != nil {
			return err
		}

		if !out.IsZero() {
			if err := e.collateral.WithdrawAsset(tx.state, e.vault, caller, out); err != nil {
				return fmt.Errorf("ssov engine: pay withdrawal: %w", err)
			}
		}
		if !secondary.IsZero() {
			if e.yield == nil {
				return errNilYield
			}
			if err := bank.Transfer(tx.state, e.yield.SecondaryAsset(), e.vault, caller, secondary); err != nil {
				return fmt.Errorf("ssov engine: pay secondary rewards: %w", err)
			}
		}
		if !deposit.IsZero() {
			if err := tx.tokens.Burn(tokenID(epoch, strike, optiontoken.ClassDepositShare), caller, deposit); err != nil {
				return err
			}
			if err := addTo(&pos.Redeemed, deposit); err != nil {
				return err
			}
		}
		pos.Deposits = zero()
		pos.Withdrawn = true
		if err := addTo(&pos.LateCollateralPaid, lateCollateral); err != nil {
			return err
		}
		if err := addTo(&pos.LateSecondaryPaid, lateSecondary); err != nil {
			return err
		}
		if err := tx.store.putPosition(epoch, hash, pos); err != nil {
			return err
		}
		if err := addTo(&st.CollateralWithdrawn, out); err != nil {
			return err
		}
		if err := addTo(&st.SecondaryWithdrawn, secondary); err != nil {
			return err
		}
		if err := tx.store.putStrike(epoch, strike, st); err != nil {
			return err
		}

		result = WithdrawResult{Epoch: epoch, Strike: strike, Deposit: deposit, Collateral: out, Secondary: secondary}
		tx.emit(newEvent(EventTypeWithdraw, e.params.Name, attrs{}.
			uint("epoch", epoch).amount("strike", strike).amount("deposit", deposit).
			amount("collateral", out).amount("secondary", secondary).
			amount("lateCollateral", lateCollateral).amount("lateSecondary", lateSecondary).addr("caller", caller)))
		tx.onCommit(func() {
			e.telemetry.AddWithdrawal(e.params.Name, e.amountFloat(out))
		})
		return nil
	})
	return result, err
}
