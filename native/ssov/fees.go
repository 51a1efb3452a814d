package ssov

import (
	"fmt"

	"github.com/holiman/uint256"
)

// FeeStrategy prices the protocol fee charged on purchases and settlements.
type FeeStrategy interface {
	CalculatePurchaseFees(spot, strike, amount *uint256.Int) (*uint256.Int, error)
	CalculateSettlementFees(spot, pnl, amount *uint256.Int) (*uint256.Int, error)
}

// DefaultFeeStrategy charges a rate scaled by FeePrecision. Purchase fees
// scale with strike/spot so deep out-of-the-money calls pay proportionally
// more per unit of collateral.
type DefaultFeeStrategy struct {
	PurchaseFeeRate   uint64
	SettlementFeeRate uint64
}

// CalculatePurchaseFees returns amount*strike*rate/spot/FeePrecision.
func (s DefaultFeeStrategy) CalculatePurchaseFees(spot, strike, amount *uint256.Int) (*uint256.Int, error) {
	if isZero(spot) {
		return nil, fmt.Errorf("%w: spot price is zero", ErrInvalidInput)
	}
	if s.PurchaseFeeRate == 0 || isZero(amount) {
		return zero(), nil
	}
	scaled, err := mul(amount, strike)
	if err != nil {
		return nil, err
	}
	scaled, err = mul(scaled, uint256.NewInt(s.PurchaseFeeRate))
	if err != nil {
		return nil, err
	}
	scaled.Div(scaled, spot)
	return scaled.Div(scaled, uint256.NewInt(FeePrecision)), nil
}

// CalculateSettlementFees returns amount*rate/FeePrecision.
func (s DefaultFeeStrategy) CalculateSettlementFees(spot, pnl, amount *uint256.Int) (*uint256.Int, error) {
	if s.SettlementFeeRate == 0 || isZero(amount) {
		return zero(), nil
	}
	return mulDiv(amount, uint256.NewInt(s.SettlementFeeRate), uint256.NewInt(FeePrecision))
}

// capFee bounds fee to capBps of base. A zero cap disables the bound.
func capFee(fee, base *uint256.Int, capBps uint64) (*uint256.Int, error) {
	if capBps == 0 {
		return clone(fee), nil
	}
	limit, err := mulDiv(base, uint256.NewInt(capBps), uint256.NewInt(BasisPoints))
	if err != nil {
		return nil, err
	}
	return minInt(fee, limit), nil
}
