package ssov

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func (e *Engine) validateStrikes(prices []*uint256.Int) error {
	if len(prices) == 0 {
		return fmt.Errorf("%w: strike list is empty", ErrInvalidInput)
	}
	if len(prices) > e.params.MaxStrikes {
		return fmt.Errorf("%w: %d strikes exceeds maximum %d", ErrInvalidInput, len(prices), e.params.MaxStrikes)
	}
	seen := make(map[uint256.Int]struct{}, len(prices))
	for i, p := range prices {
		if isZero(p) {
			return fmt.Errorf("%w: strike %d is zero", ErrInvalidInput, i)
		}
		if _, dup := seen[*p]; dup {
			return fmt.Errorf("%w: duplicate strike %s", ErrInvalidInput, p.Dec())
		}
		seen[*p] = struct{}{}
	}
	return nil
}

// SetStrikes replaces the strike list of the next epoch. It is only allowed
// between epochs, and only while the pending epoch holds no deposits.
func (e *Engine) SetStrikes(caller common.Address, prices []*uint256.Int) error {
	if err := e.validateStrikes(prices); err != nil {
		return err
	}
	return e.execute("set_strikes", func(tx *txn) error {
		if err := e.requireRole(tx, AddressOwner, caller); err != nil {
			return err
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
			if !ep.Expired {
				return fmt.Errorf("%w: epoch %d has not expired", ErrInvalidState, current)
			}
		}
		pending, err := tx.store.epoch(current + 1)
		if err != nil {
			return err
		}
		if !isZero(pending.TotalDeposits) {
			return fmt.Errorf("%w: epoch %d already holds deposits", ErrInvalidState, pending.Number)
		}
		pending.Strikes = make([]*uint256.Int, len(prices))
		for i, p := range prices {
			pending.Strikes[i] = clone(p)
		}
		if err := tx.store.putEpoch(pending); err != nil {
			return err
		}
		tx.emit(newEvent(EventTypeStrikesSet, e.params.Name, attrs{"strikes": strikeList(pending.Strikes)}.
			uint("epoch", pending.Number)))
		tx.onCommit(func() {
			e.logger.Info("ssov: strikes set", slog.String("vault", e.params.Name),
				slog.Uint64("epoch", pending.Number), slog.String("strikes", strikeList(pending.Strikes)))
		})
		return nil
	})
}

// PendingStrikes returns the strike list staged for the next epoch.
func (e *Engine) PendingStrikes() ([]*uint256.Int, error) {
	var out []*uint256.Int
	err := e.view(func(tx *txn) error {
		current, err := tx.store.currentEpoch()
		if err != nil {
			return err
		}
		ep, err := tx.store.epoch(current + 1)
		if err != nil {
			return err
		}
		out = ep.Clone().Strikes
		return nil
	})
	return out, err
}

// EpochStrikes returns the strike list of epoch n.
func (e *Engine) EpochStrikes(n uint64) ([]*uint256.Int, error) {
	ep, err := e.Epoch(n)
	if err != nil {
		return nil, err
	}
	return ep.Strikes, nil
}
