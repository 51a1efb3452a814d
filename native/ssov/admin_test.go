package ssov

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestPauseGuardsOperations(t *testing.T) {
	h := newHarness(t)
	h.setStrikes("90")
	h.deposit(aliceAddr, 0, "1")

	require.ErrorIs(t, h.engine.Pause(aliceAddr), ErrUnauthorized)
	require.ErrorIs(t, h.engine.Unpause(governanceAddr), ErrNotPaused)
	require.NoError(t, h.engine.Pause(governanceAddr))
	require.ErrorIs(t, h.engine.Pause(governanceAddr), ErrAlreadyPaused)
	paused, err := h.engine.IsPaused()
	require.NoError(t, err)
	require.True(t, paused)

	h.fund(bobAddr, testCollateral, tokens("1"))
	_, err = h.engine.Deposit(bobAddr, 0, tokens("1"), bobAddr)
	require.ErrorIs(t, err, ErrPaused, "deposit")
	_, err = h.engine.Bootstrap(ownerAddr)
	require.ErrorIs(t, err, ErrPaused, "bootstrap")
	require.Equal(t, "paused", ErrorCode(ErrPaused))

	require.NoError(t, h.engine.Unpause(governanceAddr))
	_, err = h.engine.Deposit(bobAddr, 0, tokens("1"), bobAddr)
	require.NoError(t, err, "deposit after unpause")
}

func TestPauseBlocksBothExpiryPaths(t *testing.T) {
	h := newHarness(t)
	h.setStrikes("90")
	h.deposit(aliceAddr, 0, "1")
	h.bootstrap()
	ep, err := h.engine.Epoch(1)
	require.NoError(t, err)
	h.now = int64(ep.End)

	require.NoError(t, h.engine.Pause(governanceAddr))
	require.ErrorIs(t, h.engine.ExpireEpoch(ownerAddr), ErrPaused)
	require.ErrorIs(t, h.engine.ExpireEpochWithPrice(ownerAddr, usd("120")), ErrPaused)

	require.NoError(t, h.engine.Unpause(governanceAddr))
	require.ErrorIs(t, h.engine.ExpireEpochWithPrice(aliceAddr, usd("120")), ErrUnauthorized)
	require.NoError(t, h.engine.ExpireEpochWithPrice(ownerAddr, usd("120")))
	ep, err = h.engine.Epoch(1)
	require.NoError(t, err)
	require.True(t, ep.Expired)
	mustEqualAmount(t, "settlement price", usd("120"), ep.SettlementPrice)
}

func TestEmergencyWithdrawSweepsVault(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.SetYieldAdapter(newTestPool(t, testCollateral)))
	h.fund(reserveAddr, testCollateral, tokens("100"))
	h.fund(reserveAddr, testReward, tokens("100"))
	h.setStrikes("90")
	h.deposit(aliceAddr, 0, "10")
	h.bootstrap()
	h.fund(buyerAddr, testCollateral, tokens("1"))
	_, err := h.engine.Purchase(buyerAddr, 0, tokens("2"), buyerAddr)
	require.NoError(t, err, "purchase")
	h.now += 3600

	require.ErrorIs(t, h.engine.EmergencyWithdraw(governanceAddr), ErrNotPaused)
	require.NoError(t, h.engine.Pause(governanceAddr))
	require.ErrorIs(t, h.engine.EmergencyWithdraw(ownerAddr), ErrUnauthorized)
	require.NoError(t, h.engine.EmergencyWithdraw(governanceAddr))

	vault := h.engine.VaultAddress()
	for _, asset := range []string{testCollateral, testReward} {
		require.True(t, h.balance(vault, asset).IsZero(), "vault still holds %s", asset)
	}
	require.True(t, h.balance(custodyAddr, testCollateral).IsZero(), "custody not drained")
	// Deposits plus 0.1 premium plus an hour of rewards.
	swept := h.balance(governanceAddr, testCollateral)
	require.True(t, swept.Gt(tokens("10.1")), "expected more than 10.1 swept, got %s", swept.Dec())
	require.False(t, h.balance(governanceAddr, testReward).IsZero(), "expected secondary rewards swept")
	ep, err := h.engine.Epoch(1)
	require.NoError(t, err)
	require.True(t, ep.StakedPrincipal.IsZero(), "staked principal %s", ep.StakedPrincipal.Dec())
}

func TestSetAddresses(t *testing.T) {
	h := newHarness(t)
	next := newTestAddress(0x44)

	cases := []struct {
		caller common.Address
		names  []string
		addrs  []common.Address
		want   error
	}{
		{aliceAddr, []string{AddressFeeDistributor}, []common.Address{next}, ErrUnauthorized},
		{ownerAddr, []string{"Treasury"}, []common.Address{next}, ErrInvalidInput},
		{ownerAddr, []string{AddressFeeDistributor, AddressGovernance}, []common.Address{next}, ErrInvalidInput},
		{ownerAddr, []string{AddressGovernance}, []common.Address{{}}, ErrInvalidInput},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprintf("case%d", i), func(t *testing.T) {
			require.ErrorIs(t, h.engine.SetAddresses(tc.caller, tc.names, tc.addrs), tc.want)
		})
	}

	require.NoError(t, h.engine.SetAddresses(ownerAddr, []string{AddressFeeDistributor}, []common.Address{next}))
	got, err := h.engine.Address(AddressFeeDistributor)
	require.NoError(t, err)
	require.Equal(t, next, got)

	// Fees now route to the new distributor.
	h.setStrikes("100")
	h.deposit(aliceAddr, 0, "10")
	h.bootstrap()
	h.fund(buyerAddr, testCollateral, tokens("1"))
	receipt, err := h.engine.Purchase(buyerAddr, 0, tokens("10"), buyerAddr)
	require.NoError(t, err, "purchase")
	mustEqualAmount(t, "new distributor", receipt.Fee, h.balance(next, testCollateral))
	require.True(t, h.balance(distributorAddr, testCollateral).IsZero(), "old distributor received fees")
}

func TestErrorCodes(t *testing.T) {
	wrapped := fmt.Errorf("ssov engine: purchase: %w", ErrInsufficientLiquidity)
	require.Equal(t, "insufficient_liquidity", ErrorCode(wrapped))
	require.True(t, IsUserError(wrapped))
	require.Equal(t, "internal", ErrorCode(errors.New("disk full")))
	require.False(t, IsUserError(nil))
	_, err := mulDiv(new(uint256.Int).SetAllOne(), uint256.NewInt(2), uint256.NewInt(1))
	require.ErrorIs(t, err, ErrArithmeticOverflow)
	_, err = sub(uint256.NewInt(1), uint256.NewInt(2))
	require.ErrorIs(t, err, ErrArithmeticUnderflow)
}
