package ssov

import (
	"bytes"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"ssov/core/events"
	ssovstate "ssov/core/state"
	"ssov/core/units"
	"ssov/native/bank"
	"ssov/native/collateral"
	"ssov/native/pricing"
	"ssov/storage"
)

const (
	testCollateral = "WETH"
	testReward     = "RWD"
	testUnderlying = "ETH"
)

var (
	ownerAddr       = newTestAddress(0x01)
	governanceAddr  = newTestAddress(0x02)
	distributorAddr = newTestAddress(0x03)
	aliceAddr       = newTestAddress(0x10)
	bobAddr         = newTestAddress(0x11)
	carolAddr       = newTestAddress(0x12)
	buyerAddr       = newTestAddress(0x20)
	custodyAddr     = newTestAddress(0xC0)
	reserveAddr     = newTestAddress(0xC1)
)

func newTestAddress(fill byte) common.Address {
	return common.BytesToAddress(bytes.Repeat([]byte{fill}, common.AddressLength))
}

func usd(v string) *uint256.Int { return units.MustParseUnits(v, PriceDecimals) }

func tokens(v string) *uint256.Int { return units.MustParseUnits(v, 18) }

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func (c *capturingEmitter) types() []string {
	out := make([]string, len(c.events))
	for i, evt := range c.events {
		out[i] = evt.EventType()
	}
	return out
}

type harness struct {
	t       *testing.T
	db      *storage.MemDB
	engine  *Engine
	oracle  *pricing.StaticOracle
	emitter *capturingEmitter
	now     int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		db:      storage.NewMemDB(),
		oracle:  pricing.NewStaticOracle(0),
		emitter: &capturingEmitter{},
		now:     unix(2024, time.March, 1, 0),
	}
	h.mutate(func(m *ssovstate.Manager) error {
		if err := m.RegisterToken(testCollateral, "Wrapped Ether", 18, false); err != nil {
			return err
		}
		return m.RegisterToken(testReward, "Reward Token", 18, false)
	})
	engine, err := NewEngine(h.db, Params{
		Name:              "eth-monthly",
		Asset:             testUnderlying,
		PurchaseFeeCapBps: DefaultPurchaseFeeCapBps,
		Owner:             ownerAddr,
		Governance:        governanceAddr,
		FeeDistributor:    distributorAddr,
	}, collateral.NewToken(testCollateral, 18))
	require.NoError(t, err, "new engine")
	engine.SetNowFunc(func() int64 { return h.now })
	engine.SetPriceOracle(h.oracle)
	engine.SetOptionPricing(pricing.FixedPricer{Price: usd("5")})
	engine.SetVolatilityOracle(pricing.StaticVolatility{Value: 100})
	engine.SetFeeStrategy(DefaultFeeStrategy{PurchaseFeeRate: 12_500_000})
	engine.SetEmitter(h.emitter)
	h.engine = engine
	h.setSpot("100")
	return h
}

// mutate applies fn directly to the backing database, outside the engine.
func (h *harness) mutate(fn func(m *ssovstate.Manager) error) {
	h.t.Helper()
	require.NoError(h.t, fn(ssovstate.NewManager(h.db)), "mutate state")
}

func (h *harness) fund(addr common.Address, asset string, amount *uint256.Int) {
	h.t.Helper()
	h.mutate(func(m *ssovstate.Manager) error { return bank.Mint(m, asset, addr, amount) })
}

func (h *harness) balance(addr common.Address, asset string) *uint256.Int {
	h.t.Helper()
	bal, err := h.engine.AssetBalance(addr, asset)
	require.NoError(h.t, err, "balance")
	return bal
}

func (h *harness) setSpot(price string) {
	h.t.Helper()
	require.NoError(h.t, h.oracle.SetPrice(testUnderlying, usd(price)), "set price")
}

func (h *harness) setStrikes(prices ...string) {
	h.t.Helper()
	strikes := make([]*uint256.Int, len(prices))
	for i, p := range prices {
		strikes[i] = usd(p)
	}
	require.NoError(h.t, h.engine.SetStrikes(ownerAddr, strikes), "set strikes")
}

func (h *harness) deposit(user common.Address, idx int, amount string) uint64 {
	h.t.Helper()
	amt := tokens(amount)
	h.fund(user, testCollateral, amt)
	epoch, err := h.engine.Deposit(user, idx, amt, user)
	require.NoError(h.t, err, "deposit")
	return epoch
}

func (h *harness) bootstrap() uint64 {
	h.t.Helper()
	epoch, err := h.engine.Bootstrap(ownerAddr)
	require.NoError(h.t, err, "bootstrap")
	return epoch
}

// expire advances the clock to the running epoch's end and expires it at
// the current oracle price.
func (h *harness) expire() *Epoch {
	h.t.Helper()
	current, err := h.engine.CurrentEpoch()
	require.NoError(h.t, err, "current epoch")
	ep, err := h.engine.Epoch(current)
	require.NoError(h.t, err, "epoch")
	if h.now < int64(ep.End) {
		h.now = int64(ep.End)
	}
	require.NoError(h.t, h.engine.ExpireEpoch(ownerAddr), "expire")
	ep, err = h.engine.Epoch(current)
	require.NoError(h.t, err, "epoch")
	return ep
}

func mustEqualAmount(t *testing.T, label string, want, got *uint256.Int) {
	t.Helper()
	require.NotNil(t, got, label)
	require.Zero(t, want.Cmp(got), "%s: want %s, got %s", label, want.Dec(), got.Dec())
}
