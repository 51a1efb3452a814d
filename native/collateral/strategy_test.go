package collateral

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	ssovstate "ssov/core/state"
	"ssov/native/bank"
	"ssov/storage"
)

var (
	user    = common.HexToAddress("0x0a")
	vault   = common.HexToAddress("0x0b")
	custody = common.HexToAddress("0x0c")
)

func TestWrappedNativeRoundTrip(t *testing.T) {
	mgr := ssovstate.NewManager(storage.NewMemDB())
	if err := mgr.RegisterToken("ETH", "Ether", 18, true); err != nil {
		t.Fatalf("register eth: %v", err)
	}
	if err := mgr.RegisterToken("WETH", "Wrapped Ether", 18, false); err != nil {
		t.Fatalf("register weth: %v", err)
	}
	if err := bank.Mint(mgr, "ETH", user, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	s := NewWrappedNative("eth", "weth", 18, custody)

	if err := s.DepositAsset(mgr, user, vault, uint256.NewInt(60)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	wrapped, _ := mgr.Balance(vault, "WETH")
	held, _ := mgr.Balance(custody, "ETH")
	if wrapped.Uint64() != 60 || held.Uint64() != 60 {
		t.Fatalf("unexpected wrap state wrapped=%s custody=%s", wrapped, held)
	}

	if err := s.WithdrawAsset(mgr, vault, user, uint256.NewInt(25)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	back, _ := mgr.Balance(user, "ETH")
	if back.Uint64() != 65 {
		t.Fatalf("unexpected user balance: %s", back)
	}
	wrapped, _ = mgr.Balance(vault, "WETH")
	if wrapped.Uint64() != 35 {
		t.Fatalf("unexpected wrapped balance: %s", wrapped)
	}
}

func TestWrappedNativeRejectsNonNativeUnderlying(t *testing.T) {
	mgr := ssovstate.NewManager(storage.NewMemDB())
	if err := mgr.RegisterToken("DPX", "Dopex", 18, false); err != nil {
		t.Fatalf("register: %v", err)
	}
	s := NewWrappedNative("DPX", "WDPX", 18, custody)
	err := s.DepositAsset(mgr, user, vault, uint256.NewInt(1))
	if !errors.Is(err, ErrNotNativeAsset) {
		t.Fatalf("expected ErrNotNativeAsset, got %v", err)
	}
}

func TestTokenValueInUSD(t *testing.T) {
	s := NewToken("dpx", 18)
	amount := new(uint256.Int).Mul(uint256.NewInt(3), uint256.NewInt(1e18))
	price := uint256.NewInt(100e8)
	value, err := s.ValueInUSD(amount, price)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if value.Uint64() != 300e8 {
		t.Fatalf("unexpected value: %s", value)
	}

	bnb := NewToken("BNB", 8)
	value, err = bnb.ValueInUSD(uint256.NewInt(2e8), uint256.NewInt(250e8))
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if value.Uint64() != 500e8 {
		t.Fatalf("unexpected bnb value: %s", value)
	}
}
