package ssov

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"ssov/core/units"
)

func TestPurchaseFeeFixture(t *testing.T) {
	strategy := DefaultFeeStrategy{PurchaseFeeRate: 12_500_000}
	fee, err := strategy.CalculatePurchaseFees(
		units.MustParseUnits("4000", PriceDecimals),
		units.MustParseUnits("8000", PriceDecimals),
		units.MustParseUnits("1000", 18),
	)
	require.NoError(t, err)
	require.Equal(t, "2500000000000000000", fee.Dec())
}

func TestPurchaseFeeRejectsZeroSpot(t *testing.T) {
	strategy := DefaultFeeStrategy{PurchaseFeeRate: 1}
	_, err := strategy.CalculatePurchaseFees(new(uint256.Int), uint256.NewInt(1), uint256.NewInt(1))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestSettlementFee(t *testing.T) {
	strategy := DefaultFeeStrategy{SettlementFeeRate: 100_000_000} // 1%
	fee, err := strategy.CalculateSettlementFees(uint256.NewInt(1), uint256.NewInt(1), units.MustParseUnits("50", 18))
	require.NoError(t, err)
	require.Equal(t, units.MustParseUnits("0.5", 18).Dec(), fee.Dec())

	none, err := DefaultFeeStrategy{}.CalculateSettlementFees(nil, nil, uint256.NewInt(10))
	require.NoError(t, err)
	require.True(t, none.IsZero())
}

func TestCapFee(t *testing.T) {
	capped, err := capFee(uint256.NewInt(500), uint256.NewInt(1_000), 1_250)
	require.NoError(t, err)
	require.Equal(t, uint64(125), capped.Uint64())

	uncapped, err := capFee(uint256.NewInt(500), uint256.NewInt(1_000), 0)
	require.NoError(t, err)
	require.Equal(t, uint64(500), uncapped.Uint64())
}
