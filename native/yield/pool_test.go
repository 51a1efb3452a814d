package yield

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
	staker  = common.HexToAddress("0x51")
	custody = common.HexToAddress("0xc0")
	reserve = common.HexToAddress("0xe5")
)

func newTestPool(t *testing.T, primaryBps, secondaryBps uint64) (*Pool, *ssovstate.Manager) {
	t.Helper()
	mgr := ssovstate.NewManager(storage.NewMemDB())
	for _, sym := range []string{"DPX", "RDPX"} {
		if err := mgr.RegisterToken(sym, sym, 18, false); err != nil {
			t.Fatalf("register %s: %v", sym, err)
		}
	}
	pool, err := NewPool(Config{
		Name:            "dpx-farm",
		StakeAsset:      "dpx",
		SecondaryAsset:  "rdpx",
		PrimaryAPRBps:   primaryBps,
		SecondaryAPRBps: secondaryBps,
		Custody:         custody,
		Reserve:         reserve,
	})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return pool, mgr
}

func TestPoolAccruesAndClaims(t *testing.T) {
	pool, mgr := newTestPool(t, 1_000, 500)
	if err := bank.Mint(mgr, "DPX", staker, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := bank.Mint(mgr, "DPX", reserve, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund reserve: %v", err)
	}
	if err := bank.Mint(mgr, "RDPX", reserve, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund reserve: %v", err)
	}

	start := int64(1_000)
	if err := pool.Stake(mgr, staker, uint256.NewInt(1_000_000), start); err != nil {
		t.Fatalf("stake: %v", err)
	}
	// one full year at 10% / 5%
	end := start + secondsPerYear
	primary, secondary, err := pool.Earned(mgr, staker, end)
	if err != nil {
		t.Fatalf("earned: %v", err)
	}
	if primary.Uint64() != 100_000 || secondary.Uint64() != 50_000 {
		t.Fatalf("unexpected earned primary=%s secondary=%s", primary, secondary)
	}

	primary, secondary, err = pool.Claim(mgr, staker, end)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if primary.Uint64() != 100_000 || secondary.Uint64() != 50_000 {
		t.Fatalf("unexpected claim primary=%s secondary=%s", primary, secondary)
	}
	bal, _ := mgr.Balance(staker, "RDPX")
	if bal.Uint64() != 50_000 {
		t.Fatalf("unexpected secondary balance: %s", bal)
	}

	if err := pool.Unstake(mgr, staker, uint256.NewInt(1_000_000), end); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	bal, _ = mgr.Balance(staker, "DPX")
	if bal.Uint64() != 1_100_000 {
		t.Fatalf("unexpected principal+reward balance: %s", bal)
	}
	staked, _ := pool.Staked(mgr, staker)
	if !staked.IsZero() {
		t.Fatalf("expected empty stake, got %s", staked)
	}
}

func TestPoolClaimBoundedByReserve(t *testing.T) {
	pool, mgr := newTestPool(t, 10_000, 0)
	if err := bank.Mint(mgr, "DPX", staker, uint256.NewInt(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := bank.Mint(mgr, "DPX", reserve, uint256.NewInt(400)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := pool.Stake(mgr, staker, uint256.NewInt(1_000), 1); err != nil {
		t.Fatalf("stake: %v", err)
	}
	primary, _, err := pool.Claim(mgr, staker, 1+secondsPerYear)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if primary.Uint64() != 400 {
		t.Fatalf("expected claim capped at reserve, got %s", primary)
	}
	owed, _, err := pool.Earned(mgr, staker, 1+secondsPerYear)
	if err != nil {
		t.Fatalf("earned: %v", err)
	}
	if owed.Uint64() != 600 {
		t.Fatalf("expected remainder to stay accrued, got %s", owed)
	}
}

func TestPoolRejectsOverUnstake(t *testing.T) {
	pool, mgr := newTestPool(t, 0, 0)
	err := pool.Unstake(mgr, staker, uint256.NewInt(1), 10)
	if !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake, got %v", err)
	}
	if _, err := NewPool(Config{Name: "x", StakeAsset: "A", SecondaryAsset: "B", Custody: custody, Reserve: custody}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
