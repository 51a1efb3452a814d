package bank

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	ssovstate "ssov/core/state"
	"ssov/storage"
)

func newTestState(t *testing.T) *ssovstate.Manager {
	t.Helper()
	mgr := ssovstate.NewManager(storage.NewMemDB())
	if err := mgr.RegisterToken("DPX", "Dopex", 18, false); err != nil {
		t.Fatalf("register: %v", err)
	}
	return mgr
}

func TestTransferMovesBalance(t *testing.T) {
	mgr := newTestState(t)
	alice := common.HexToAddress("0xa1")
	bob := common.HexToAddress("0xb0")

	if err := Mint(mgr, "DPX", alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := Transfer(mgr, "DPX", alice, bob, uint256.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	a, _ := mgr.Balance(alice, "DPX")
	b, _ := mgr.Balance(bob, "DPX")
	if a.Uint64() != 70 || b.Uint64() != 30 {
		t.Fatalf("unexpected balances alice=%s bob=%s", a, b)
	}

	err := Transfer(mgr, "DPX", bob, alice, uint256.NewInt(31))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := Transfer(mgr, "DPX", bob, alice, nil); err != nil {
		t.Fatalf("zero transfer should be a no-op: %v", err)
	}
}

func TestBurnRequiresBalance(t *testing.T) {
	mgr := newTestState(t)
	alice := common.HexToAddress("0xa1")

	if err := Burn(mgr, "DPX", alice, uint256.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := Mint(mgr, "DPX", alice, uint256.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := Burn(mgr, "DPX", alice, uint256.NewInt(5)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	bal, _ := mgr.Balance(alice, "DPX")
	if !bal.IsZero() {
		t.Fatalf("expected zero balance after burn, got %s", bal)
	}
	if err := Mint(mgr, "DPX", alice, new(uint256.Int)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}
