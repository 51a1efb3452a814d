// Package yield implements a deterministic dual-reward staking pool. Staked
// balances accrue a primary reward in the staked asset and a secondary reward
// in a separate asset, both at a fixed annual rate paid from a funded reserve.
package yield

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	ssovstate "ssov/core/state"
	"ssov/native/bank"
)

const (
	basisPoints    = 10_000
	secondsPerYear = 31_536_000
)

var (
	ErrNilState          = errors.New("yield: state not configured")
	ErrInvalidAmount     = errors.New("yield: amount must be positive")
	ErrInsufficientStake = errors.New("yield: unstake exceeds staked balance")
	ErrInvalidConfig     = errors.New("yield: invalid pool configuration")
	ErrClockRegression   = errors.New("yield: timestamp before last accrual")
)

// Config describes a pool.
type Config struct {
	Name            string
	StakeAsset      string
	SecondaryAsset  string
	PrimaryAPRBps   uint64
	SecondaryAPRBps uint64
	// Custody holds staked principal; Reserve funds both reward streams.
	Custody common.Address
	Reserve common.Address
}

// Position is the persisted per-staker record.
type Position struct {
	Staked           *uint256.Int
	AccruedPrimary   *uint256.Int
	AccruedSecondary *uint256.Int
	LastUpdate       uint64
}

func (p *Position) normalize() {
	if p.Staked == nil {
		p.Staked = new(uint256.Int)
	}
	if p.AccruedPrimary == nil {
		p.AccruedPrimary = new(uint256.Int)
	}
	if p.AccruedSecondary == nil {
		p.AccruedSecondary = new(uint256.Int)
	}
}

// Pool operates on whatever state view it is handed, so its effects share the
// caller's transaction.
type Pool struct {
	cfg Config
}

// NewPool validates cfg and returns a pool.
func NewPool(cfg Config) (*Pool, error) {
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.StakeAsset = strings.ToUpper(strings.TrimSpace(cfg.StakeAsset))
	cfg.SecondaryAsset = strings.ToUpper(strings.TrimSpace(cfg.SecondaryAsset))
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: name required", ErrInvalidConfig)
	}
	if cfg.StakeAsset == "" {
		return nil, fmt.Errorf("%w: stake asset required", ErrInvalidConfig)
	}
	if cfg.SecondaryAsset == "" {
		return nil, fmt.Errorf("%w: secondary asset required", ErrInvalidConfig)
	}
	if cfg.Custody == (common.Address{}) || cfg.Reserve == (common.Address{}) {
		return nil, fmt.Errorf("%w: custody and reserve addresses required", ErrInvalidConfig)
	}
	if cfg.Custody == cfg.Reserve {
		return nil, fmt.Errorf("%w: custody and reserve must differ", ErrInvalidConfig)
	}
	return &Pool{cfg: cfg}, nil
}

// StakeAsset is the asset accepted for staking and paid as primary reward.
func (p *Pool) StakeAsset() string { return p.cfg.StakeAsset }

// SecondaryAsset is the asset paid as secondary reward.
func (p *Pool) SecondaryAsset() string { return p.cfg.SecondaryAsset }

// Config returns a copy of the pool configuration.
func (p *Pool) Config() Config { return p.cfg }

func (p *Pool) positionKey(owner common.Address) []byte {
	return []byte("yield/" + p.cfg.Name + "/position/" + owner.Hex())
}

func (p *Pool) load(m *ssovstate.Manager, owner common.Address) (*Position, error) {
	pos := new(Position)
	if _, err := m.KVGet(p.positionKey(owner), pos); err != nil {
		return nil, err
	}
	pos.normalize()
	return pos, nil
}

func (p *Pool) store(m *ssovstate.Manager, owner common.Address, pos *Position) error {
	return m.KVPut(p.positionKey(owner), pos)
}

func accrue(staked *uint256.Int, aprBps, elapsed uint64) *uint256.Int {
	if staked.IsZero() || aprBps == 0 || elapsed == 0 {
		return new(uint256.Int)
	}
	out := new(uint256.Int).Mul(staked, uint256.NewInt(aprBps))
	out.Mul(out, uint256.NewInt(elapsed))
	return out.Div(out, uint256.NewInt(basisPoints*secondsPerYear))
}

func (p *Pool) settle(pos *Position, now int64) error {
	if now < 0 {
		return ErrClockRegression
	}
	ts := uint64(now)
	if pos.LastUpdate == 0 || pos.Staked.IsZero() {
		pos.LastUpdate = ts
		return nil
	}
	if ts < pos.LastUpdate {
		return ErrClockRegression
	}
	elapsed := ts - pos.LastUpdate
	pos.AccruedPrimary.Add(pos.AccruedPrimary, accrue(pos.Staked, p.cfg.PrimaryAPRBps, elapsed))
	pos.AccruedSecondary.Add(pos.AccruedSecondary, accrue(pos.Staked, p.cfg.SecondaryAPRBps, elapsed))
	pos.LastUpdate = ts
	return nil
}

// Stake moves amount from owner into custody and starts accruing on it.
func (p *Pool) Stake(m *ssovstate.Manager, owner common.Address, amount *uint256.Int, now int64) error {
	if m == nil {
		return ErrNilState
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	pos, err := p.load(m, owner)
	if err != nil {
		return err
	}
	if err := p.settle(pos, now); err != nil {
		return err
	}
	if err := bank.Transfer(m, p.cfg.StakeAsset, owner, p.cfg.Custody, amount); err != nil {
		return fmt.Errorf("yield: stake: %w", err)
	}
	pos.Staked.Add(pos.Staked, amount)
	return p.store(m, owner, pos)
}

// Unstake returns amount of principal to owner. Accrued rewards stay claimable.
func (p *Pool) Unstake(m *ssovstate.Manager, owner common.Address, amount *uint256.Int, now int64) error {
	if m == nil {
		return ErrNilState
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	pos, err := p.load(m, owner)
	if err != nil {
		return err
	}
	if pos.Staked.Lt(amount) {
		return ErrInsufficientStake
	}
	if err := p.settle(pos, now); err != nil {
		return err
	}
	if err := bank.Transfer(m, p.cfg.StakeAsset, p.cfg.Custody, owner, amount); err != nil {
		return fmt.Errorf("yield: unstake: %w", err)
	}
	pos.Staked.Sub(pos.Staked, amount)
	return p.store(m, owner, pos)
}

// Claim pays out accrued rewards, bounded by what the reserve holds. Any
// shortfall stays accrued for a later claim.
func (p *Pool) Claim(m *ssovstate.Manager, owner common.Address, now int64) (*uint256.Int, *uint256.Int, error) {
	if m == nil {
		return nil, nil, ErrNilState
	}
	pos, err := p.load(m, owner)
	if err != nil {
		return nil, nil, err
	}
	if err := p.settle(pos, now); err != nil {
		return nil, nil, err
	}
	primary, err := p.payFromReserve(m, p.cfg.StakeAsset, owner, pos.AccruedPrimary)
	if err != nil {
		return nil, nil, err
	}
	secondary, err := p.payFromReserve(m, p.cfg.SecondaryAsset, owner, pos.AccruedSecondary)
	if err != nil {
		return nil, nil, err
	}
	pos.AccruedPrimary.Sub(pos.AccruedPrimary, primary)
	pos.AccruedSecondary.Sub(pos.AccruedSecondary, secondary)
	if err := p.store(m, owner, pos); err != nil {
		return nil, nil, err
	}
	return primary, secondary, nil
}

func (p *Pool) payFromReserve(m *ssovstate.Manager, asset string, to common.Address, owed *uint256.Int) (*uint256.Int, error) {
	if owed.IsZero() {
		return new(uint256.Int), nil
	}
	available, err := m.Balance(p.cfg.Reserve, asset)
	if err != nil {
		return nil, err
	}
	pay := new(uint256.Int).Set(owed)
	if available.Lt(pay) {
		pay.Set(available)
	}
	if err := bank.Transfer(m, asset, p.cfg.Reserve, to, pay); err != nil {
		return nil, fmt.Errorf("yield: claim %s: %w", asset, err)
	}
	return pay, nil
}

// Earned reports rewards owed to owner as of now without mutating state.
func (p *Pool) Earned(m *ssovstate.Manager, owner common.Address, now int64) (*uint256.Int, *uint256.Int, error) {
	if m == nil {
		return nil, nil, ErrNilState
	}
	pos, err := p.load(m, owner)
	if err != nil {
		return nil, nil, err
	}
	if err := p.settle(pos, now); err != nil {
		return nil, nil, err
	}
	return pos.AccruedPrimary, pos.AccruedSecondary, nil
}

// Staked returns owner's staked principal.
func (p *Pool) Staked(m *ssovstate.Manager, owner common.Address) (*uint256.Int, error) {
	if m == nil {
		return nil, ErrNilState
	}
	pos, err := p.load(m, owner)
	if err != nil {
		return nil, err
	}
	return pos.Staked, nil
}
