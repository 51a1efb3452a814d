package state

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ssov/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db)
}

func TestRegisterTokenAndBalances(t *testing.T) {
	mgr := newTestManager(t)
	addr := common.HexToAddress("0x01")

	if err := mgr.RegisterToken("dpx", "Dopex", 18, false); err != nil {
		t.Fatalf("register token: %v", err)
	}
	if err := mgr.RegisterToken("DPX", "Dopex", 18, false); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if !mgr.TokenExists("Dpx") {
		t.Fatalf("expected token to exist")
	}

	if err := mgr.SetBalance(addr, "dpx", uint256.NewInt(42)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	bal, err := mgr.Balance(addr, "DPX")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Uint64() != 42 {
		t.Fatalf("unexpected balance: %s", bal)
	}

	if err := mgr.SetBalance(addr, "UNKNOWN", uint256.NewInt(1)); err == nil {
		t.Fatalf("expected unregistered token to be rejected")
	}

	if err := mgr.SetBalance(addr, "DPX", new(uint256.Int)); err != nil {
		t.Fatalf("zero balance: %v", err)
	}
	bal, err = mgr.Balance(addr, "DPX")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !bal.IsZero() {
		t.Fatalf("expected zero balance, got %s", bal)
	}
}

func TestRoleMembership(t *testing.T) {
	mgr := newTestManager(t)
	a := common.HexToAddress("0xaa")
	b := common.HexToAddress("0xbb")

	if err := mgr.SetRole("owner", b); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := mgr.SetRole("owner", a); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := mgr.SetRole("owner", a); err != nil {
		t.Fatalf("duplicate set role: %v", err)
	}
	members, err := mgr.RoleMembers("owner")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 || members[0] != a || members[1] != b {
		t.Fatalf("unexpected members: %v", members)
	}

	if err := mgr.RemoveRole("owner", a); err != nil {
		t.Fatalf("remove role: %v", err)
	}
	if mgr.HasRole("owner", a) {
		t.Fatalf("expected role removed")
	}
	if !mgr.HasRole("owner", b) {
		t.Fatalf("expected remaining member")
	}
	if mgr.HasRole("owner", common.Address{}) {
		t.Fatalf("zero address must never hold a role")
	}
}

type kvRecord struct {
	Counter uint64
	Amount  *uint256.Int
	Flag    bool
}

func TestKVRoundTrip(t *testing.T) {
	mgr := newTestManager(t)

	var out kvRecord
	ok, err := mgr.KVGet([]byte("missing"), &out)
	if err != nil || ok {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}

	in := kvRecord{Counter: 7, Amount: uint256.NewInt(1_000), Flag: true}
	if err := mgr.KVPut([]byte("rec"), in); err != nil {
		t.Fatalf("kv put: %v", err)
	}
	ok, err = mgr.KVGet([]byte("rec"), &out)
	if err != nil || !ok {
		t.Fatalf("kv get: ok=%v err=%v", ok, err)
	}
	if out.Counter != 7 || out.Amount.Uint64() != 1_000 || !out.Flag {
		t.Fatalf("unexpected record: %+v", out)
	}

	if err := mgr.KVAppend([]byte("list"), []byte{1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mgr.KVAppend([]byte("list"), []byte{1}); err != nil {
		t.Fatalf("append duplicate: %v", err)
	}
	if err := mgr.KVAppend([]byte("list"), []byte{2}); err != nil {
		t.Fatalf("append: %v", err)
	}
	var list [][]byte
	if err := mgr.KVGetList([]byte("list"), &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}

	var empty [][]byte
	if err := mgr.KVGetList([]byte("nothing"), &empty); err != nil {
		t.Fatalf("get empty list: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected initialised empty slice")
	}

	if err := mgr.KVDelete([]byte("rec")); err != nil {
		t.Fatalf("kv delete: %v", err)
	}
	ok, err = mgr.KVGet([]byte("rec"), nil)
	if err != nil || ok {
		t.Fatalf("expected deleted key, ok=%v err=%v", ok, err)
	}
}

func TestManagerOverOverlayDiscard(t *testing.T) {
	db := storage.NewMemDB()
	ov := storage.NewOverlay(db)
	mgr := NewManager(ov)
	if err := mgr.RegisterToken("ETH", "Ether", 18, true); err != nil {
		t.Fatalf("register: %v", err)
	}
	ov.Discard()

	if NewManager(db).TokenExists("ETH") {
		t.Fatalf("discarded registration leaked into base store")
	}
}
