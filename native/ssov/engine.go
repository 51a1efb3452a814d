package ssov

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ssov/core/events"
	ssovstate "ssov/core/state"
	"ssov/core/types"
	"ssov/core/units"
	"ssov/native/collateral"
	nativecommon "ssov/native/common"
	"ssov/native/optiontoken"
	"ssov/observability/metrics"
	"ssov/storage"
)

var (
	errNilEngine     = errors.New("ssov engine: not initialised")
	errNilCollateral = errors.New("ssov engine: collateral strategy not configured")
	errNilOracle     = errors.New("ssov engine: price oracle not configured")
	errNilPricing    = errors.New("ssov engine: option pricing not configured")
	errNilVolatility = errors.New("ssov engine: volatility oracle not configured")
	errNilYield      = errors.New("ssov engine: yield adapter not configured")
)

// PriceOracle returns the USD price of an asset with PriceDecimals decimals.
type PriceOracle interface {
	GetUsdPrice(asset string) (*uint256.Int, error)
}

// OptionPricing returns the USD premium per unit of collateral.
type OptionPricing interface {
	GetOptionPrice(isPut bool, expiry int64, strike, spot, volatility *uint256.Int) (*uint256.Int, error)
}

// VolatilityOracle returns implied volatility for a strike.
type VolatilityOracle interface {
	GetVolatility(strike *uint256.Int) (*uint256.Int, error)
}

// YieldAdapter stakes idle collateral and harvests its rewards. It operates on
// the transaction's state view so its effects commit or roll back with the
// vault operation.
type YieldAdapter interface {
	StakeAsset() string
	SecondaryAsset() string
	Stake(m *ssovstate.Manager, owner common.Address, amount *uint256.Int, now int64) error
	Unstake(m *ssovstate.Manager, owner common.Address, amount *uint256.Int, now int64) error
	Claim(m *ssovstate.Manager, owner common.Address, now int64) (*uint256.Int, *uint256.Int, error)
	Earned(m *ssovstate.Manager, owner common.Address, now int64) (*uint256.Int, *uint256.Int, error)
	Staked(m *ssovstate.Manager, owner common.Address) (*uint256.Int, error)
}

// Engine is the epoch state machine for one vault. Every public operation is
// serialised by a single mutex and applied through a storage overlay, so an
// operation either commits all of its writes or none of them.
type Engine struct {
	mu sync.Mutex

	db         storage.Database
	params     Params
	vault      common.Address
	collateral collateral.Strategy
	yield      YieldAdapter
	oracle     PriceOracle
	pricing    OptionPricing
	volatility VolatilityOracle
	fees       FeeStrategy
	schedule   ExpirySchedule

	emitter   events.Emitter
	telemetry *metrics.SSOVMetrics
	logger    *slog.Logger
	nowFn     func() int64
}

// NewEngine constructs a vault over db. The address book is seeded from
// params the first time the vault is opened; later opens keep stored values.
func NewEngine(db storage.Database, params Params, strategy collateral.Strategy) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("ssov engine: database required")
	}
	if strategy == nil {
		return nil, errNilCollateral
	}
	params.normalize()
	if err := params.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		db:         db,
		params:     params,
		vault:      VaultAddress(params.Name),
		collateral: strategy,
		fees:       DefaultFeeStrategy{},
		schedule:   MonthlySchedule{},
		emitter:    events.NoopEmitter{},
		telemetry:  metrics.SSOV(),
		logger:     slog.Default(),
		nowFn:      func() int64 { return time.Now().Unix() },
	}
	if err := e.execute("init", func(tx *txn) error {
		for name, addr := range map[string]common.Address{
			AddressOwner:          params.Owner,
			AddressGovernance:     params.Governance,
			AddressFeeDistributor: params.FeeDistributor,
		} {
			current, err := tx.store.address(name)
			if err != nil {
				return err
			}
			if current == (common.Address{}) {
				if err := tx.store.setAddress(name, addr); err != nil {
					return err
				}
			}
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("ssov engine: init address book: %w", err)
	}
	return e, nil
}

// SetYieldAdapter configures the staking source. Its stake asset must be the
// collateral asset so harvested primary rewards can be restaked.
func (e *Engine) SetYieldAdapter(adapter YieldAdapter) error {
	if e == nil {
		return errNilEngine
	}
	if adapter != nil && adapter.StakeAsset() != e.collateral.Asset() {
		return fmt.Errorf("%w: yield stakes %s, vault holds %s", ErrInvalidInput, adapter.StakeAsset(), e.collateral.Asset())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.yield = adapter
	return nil
}

// SetPriceOracle configures the spot price source.
func (e *Engine) SetPriceOracle(oracle PriceOracle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.oracle = oracle
}

// SetOptionPricing configures the premium model.
func (e *Engine) SetOptionPricing(pricing OptionPricing) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pricing = pricing
}

// SetVolatilityOracle configures the implied volatility source.
func (e *Engine) SetVolatilityOracle(v VolatilityOracle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volatility = v
}

// SetFeeStrategy overrides the fee policy. Nil restores a zero-fee default.
func (e *Engine) SetFeeStrategy(fees FeeStrategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fees == nil {
		fees = DefaultFeeStrategy{}
	}
	e.fees = fees
}

// SetExpirySchedule overrides how bootstrap derives the epoch end.
func (e *Engine) SetExpirySchedule(schedule ExpirySchedule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if schedule == nil {
		schedule = MonthlySchedule{}
	}
	e.schedule = schedule
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger replaces the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// VaultAddress returns the account holding the vault's collateral.
func (e *Engine) VaultAddress() common.Address { return e.vault }

// Params returns the vault configuration.
func (e *Engine) Params() Params { return e.params }

// CollateralAsset returns the symbol the vault holds.
func (e *Engine) CollateralAsset() string { return e.collateral.Asset() }

// txn carries the state of one in-flight operation.
type txn struct {
	state  *ssovstate.Manager
	store  *store
	tokens *optiontoken.Ledger
	now    int64
	events []*types.Event
	after  []func()
}

// IsPaused lets a transaction act as the pause view for its own guard checks.
func (tx *txn) IsPaused(string) bool {
	paused, err := tx.store.paused()
	return err == nil && paused
}

func (tx *txn) emit(evt *types.Event) { tx.events = append(tx.events, evt) }

func (tx *txn) onCommit(fn func()) { tx.after = append(tx.after, fn) }

func (e *Engine) begin(overlay *storage.Overlay) *txn {
	st := ssovstate.NewManager(overlay)
	now := time.Now().Unix()
	if e.nowFn != nil {
		now = e.nowFn()
	}
	return &txn{
		state:  st,
		store:  newStore(st, e.params.Name),
		tokens: optiontoken.NewLedger(st),
		now:    now,
	}
}

// execute runs fn as one atomic operation. Events and metrics are published
// only after the overlay commits.
func (e *Engine) execute(op string, fn func(tx *txn) error) error {
	if e == nil {
		return errNilEngine
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	overlay := storage.NewOverlay(e.db)
	tx := e.begin(overlay)
	if err := fn(tx); err != nil {
		overlay.Discard()
		e.telemetry.ObserveOperation(e.params.Name, op, err)
		if !IsUserError(err) {
			e.logger.Error("ssov: operation failed", slog.String("vault", e.params.Name),
				slog.String("operation", op), slog.Any("error", err))
		}
		return err
	}
	if err := overlay.Commit(); err != nil {
		e.telemetry.ObserveOperation(e.params.Name, op, err)
		return fmt.Errorf("ssov engine: commit %s: %w", op, err)
	}
	for _, evt := range tx.events {
		e.emitter.Emit(vaultEvent{evt: evt})
	}
	for _, fn := range tx.after {
		fn()
	}
	e.telemetry.ObserveOperation(e.params.Name, op, nil)
	return nil
}

// view runs fn against a throwaway overlay. Nothing it writes persists.
func (e *Engine) view(fn func(tx *txn) error) error {
	if e == nil {
		return errNilEngine
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	overlay := storage.NewOverlay(e.db)
	defer overlay.Discard()
	return fn(e.begin(overlay))
}

func (e *Engine) guard(tx *txn) error {
	return nativecommon.Guard(tx, ModuleName(e.params.Name))
}

func (e *Engine) requireRole(tx *txn, name string, caller common.Address) error {
	if !tx.store.hasRole(name, caller) {
		return fmt.Errorf("%w: %s is not %s", ErrUnauthorized, caller.Hex(), name)
	}
	return nil
}

func (e *Engine) spot() (*uint256.Int, error) {
	if e.oracle == nil {
		return nil, errNilOracle
	}
	price, err := e.oracle.GetUsdPrice(e.params.Asset)
	if err != nil {
		return nil, fmt.Errorf("ssov engine: oracle: %w", err)
	}
	if isZero(price) {
		return nil, fmt.Errorf("%w: oracle returned zero price", ErrInvalidState)
	}
	return price, nil
}

func (e *Engine) amountFloat(v *uint256.Int) float64 {
	return units.ToFloat(v, e.collateral.Decimals())
}

func tokenID(epoch uint64, strike *uint256.Int, class optiontoken.Class) optiontoken.ID {
	return optiontoken.ID{Epoch: epoch, Strike: clone(strike), Class: class}
}

func (e *Engine) registerTokens(tx *txn, ep *Epoch, strike *uint256.Int) error {
	name := optiontoken.TokenName(e.params.Asset, strike, ep.Number)
	for _, class := range []optiontoken.Class{optiontoken.ClassDepositShare, optiontoken.ClassCallRight} {
		meta := optiontoken.Metadata{
			Name:   name,
			Symbol: fmt.Sprintf("%s-%s", name, class),
			Expiry: ep.End,
		}
		if err := tx.tokens.Register(tokenID(ep.Number, strike, class), meta); err != nil {
			return err
		}
	}
	return nil
}

// strikeAt resolves strikeIndex within ep.
func strikeAt(ep *Epoch, strikeIndex int) (*uint256.Int, error) {
	if strikeIndex < 0 || strikeIndex >= len(ep.Strikes) {
		return nil, fmt.Errorf("%w: index %d, epoch %d has %d strikes", ErrInvalidStrikeIndex, strikeIndex, ep.Number, len(ep.Strikes))
	}
	strike := ep.Strikes[strikeIndex]
	if isZero(strike) {
		return nil, ErrInvalidStrike
	}
	return clone(strike), nil
}

func priceFloat(v *uint256.Int) float64 {
	return units.ToFloat(v, PriceDecimals)
}
