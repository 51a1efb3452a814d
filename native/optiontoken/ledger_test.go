package optiontoken

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	ssovstate "ssov/core/state"
	"ssov/storage"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(ssovstate.NewManager(storage.NewMemDB()))
}

func callID(strike uint64) ID {
	return ID{Epoch: 1, Strike: uint256.NewInt(strike), Class: ClassCallRight}
}

func TestRegisterIsIdempotent(t *testing.T) {
	l := newTestLedger(t)
	id := callID(50)
	meta := Metadata{Name: TokenName("DPX", id.Strike, 1), Symbol: "DPX-CALL"}

	require.NoError(t, l.Register(id, meta))
	require.NoError(t, l.Register(id, meta))

	meta.Expiry = 1_700_000_000
	require.NoError(t, l.Register(id, meta), "expiry may be filled in once")

	meta.Name = "OTHER"
	require.True(t, errors.Is(l.Register(id, meta), ErrMetadataMismatch))

	stored, err := l.Metadata(id)
	require.NoError(t, err)
	require.Equal(t, "DPX-CALL50-EPOCH-1", stored.Name)
	require.Equal(t, uint64(1_700_000_000), stored.Expiry)

	keys, err := l.Registered(1)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	require.True(t, errors.Is(l.Register(ID{Epoch: 1, Strike: uint256.NewInt(1)}, meta), ErrInvalidClass))
}

func TestMintBurnTracksSupply(t *testing.T) {
	l := newTestLedger(t)
	id := callID(10)
	holder := common.HexToAddress("0x01")

	require.True(t, errors.Is(l.Mint(id, holder, uint256.NewInt(1)), ErrUnknownToken))
	require.NoError(t, l.Register(id, Metadata{Name: "x"}))
	require.NoError(t, l.Mint(id, holder, uint256.NewInt(10)))
	require.NoError(t, l.Burn(id, holder, uint256.NewInt(4)))

	bal, err := l.BalanceOf(id, holder)
	require.NoError(t, err)
	require.Equal(t, uint64(6), bal.Uint64())
	supply, err := l.TotalSupply(id)
	require.NoError(t, err)
	require.Equal(t, uint64(6), supply.Uint64())

	require.True(t, errors.Is(l.Burn(id, holder, uint256.NewInt(7)), ErrInsufficientFunds))
}

func TestClassesAreIsolated(t *testing.T) {
	l := newTestLedger(t)
	holder := common.HexToAddress("0x01")
	other := common.HexToAddress("0x02")
	share := ID{Epoch: 1, Strike: uint256.NewInt(10), Class: ClassDepositShare}
	call := ID{Epoch: 1, Strike: uint256.NewInt(10), Class: ClassCallRight}
	require.NoError(t, l.Register(share, Metadata{Name: "share"}))
	require.NoError(t, l.Register(call, Metadata{Name: "call"}))

	require.NoError(t, l.Mint(share, holder, uint256.NewInt(5)))
	bal, err := l.BalanceOf(call, holder)
	require.NoError(t, err)
	require.True(t, bal.IsZero())

	require.True(t, errors.Is(l.Transfer(share, holder, other, uint256.NewInt(1)), ErrNonTransferable))
	require.True(t, errors.Is(l.Approve(share, holder, other, uint256.NewInt(1)), ErrNonTransferable))
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	l := newTestLedger(t)
	id := callID(80)
	owner := common.HexToAddress("0x01")
	spender := common.HexToAddress("0x02")
	dest := common.HexToAddress("0x03")
	require.NoError(t, l.Register(id, Metadata{Name: "call"}))
	require.NoError(t, l.Mint(id, owner, uint256.NewInt(10)))

	require.True(t, errors.Is(l.TransferFrom(id, spender, owner, dest, uint256.NewInt(1)), ErrInsufficientAllow))
	require.NoError(t, l.Approve(id, owner, spender, uint256.NewInt(6)))
	require.NoError(t, l.TransferFrom(id, spender, owner, dest, uint256.NewInt(4)))

	left, err := l.Allowance(id, owner, spender)
	require.NoError(t, err)
	require.Equal(t, uint64(2), left.Uint64())
	got, err := l.BalanceOf(id, dest)
	require.NoError(t, err)
	require.Equal(t, uint64(4), got.Uint64())
}
