package optiontoken

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	ssovstate "ssov/core/state"
)

var (
	ErrNilState           = errors.New("optiontoken: state not configured")
	ErrUnknownToken       = errors.New("optiontoken: token not registered")
	ErrInvalidClass       = errors.New("optiontoken: invalid class")
	ErrInvalidAmount      = errors.New("optiontoken: amount must be positive")
	ErrInsufficientFunds  = errors.New("optiontoken: insufficient balance")
	ErrInsufficientAllow  = errors.New("optiontoken: insufficient allowance")
	ErrNonTransferable    = errors.New("optiontoken: class is not transferable")
	ErrMetadataMismatch   = errors.New("optiontoken: token already registered with different metadata")
	ErrArithmeticOverflow = errors.New("optiontoken: arithmetic overflow")
)

const keyPrefix = "optiontoken/"

func metaKey(id ID) []byte { return []byte(keyPrefix + "meta/" + id.Key()) }

func supplyKey(id ID) []byte { return []byte(keyPrefix + "supply/" + id.Key()) }

func balanceKey(id ID, holder common.Address) []byte {
	return []byte(keyPrefix + "balance/" + id.Key() + "/" + holder.Hex())
}

func allowanceKey(id ID, owner, spender common.Address) []byte {
	return []byte(keyPrefix + "allowance/" + id.Key() + "/" + owner.Hex() + "/" + spender.Hex())
}

func epochIndexKey(epoch uint64) []byte {
	return []byte(fmt.Sprintf("%sepoch/%d", keyPrefix, epoch))
}

// Ledger is the arena of option token balances. Every (epoch, strike, class)
// triple is one entry; an epoch index lists the entries registered for it.
// A Ledger is bound to one state view and inherits its transaction scope.
type Ledger struct {
	state *ssovstate.Manager
}

// NewLedger binds a ledger to the provided state manager.
func NewLedger(state *ssovstate.Manager) *Ledger {
	return &Ledger{state: state}
}

// Register records metadata for id. Registering identical metadata again is a
// no-op so callers may register lazily.
func (l *Ledger) Register(id ID, meta Metadata) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if !id.Class.Valid() {
		return ErrInvalidClass
	}
	meta.Epoch = id.Epoch
	meta.Strike = new(uint256.Int)
	if id.Strike != nil {
		meta.Strike.Set(id.Strike)
	}
	meta.Class = uint8(id.Class)

	var existing Metadata
	ok, err := l.state.KVGet(metaKey(id), &existing)
	if err != nil {
		return err
	}
	if ok {
		if existing.Name != meta.Name || existing.Symbol != meta.Symbol || existing.Expiry != meta.Expiry {
			// Expiry is only known once the epoch bootstraps.
			if existing.Expiry == 0 && existing.Name == meta.Name && existing.Symbol == meta.Symbol {
				return l.state.KVPut(metaKey(id), meta)
			}
			return fmt.Errorf("%w: %s", ErrMetadataMismatch, id)
		}
		return nil
	}
	if err := l.state.KVPut(metaKey(id), meta); err != nil {
		return err
	}
	return l.state.KVAppend(epochIndexKey(id.Epoch), []byte(id.Key()))
}

// Metadata returns the registered metadata for id.
func (l *Ledger) Metadata(id ID) (*Metadata, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	meta := new(Metadata)
	ok, err := l.state.KVGet(metaKey(id), meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, id)
	}
	return meta, nil
}

// Registered returns the storage keys of every token registered for epoch.
func (l *Ledger) Registered(epoch uint64) ([]string, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	var raw [][]byte
	if err := l.state.KVGetList(epochIndexKey(epoch), &raw); err != nil {
		return nil, err
	}
	out := make([]string, len(raw))
	for i, k := range raw {
		out[i] = string(k)
	}
	return out, nil
}

func (l *Ledger) requireRegistered(id ID) error {
	ok, err := l.state.KVGet(metaKey(id), nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, id)
	}
	return nil
}

func (l *Ledger) load(key []byte) (*uint256.Int, error) {
	out := new(uint256.Int)
	ok, err := l.state.KVGet(key, out)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return out, nil
}

func (l *Ledger) store(key []byte, v *uint256.Int) error {
	if v.IsZero() {
		return l.state.KVDelete(key)
	}
	return l.state.KVPut(key, v)
}

// BalanceOf returns the holder's balance of id.
func (l *Ledger) BalanceOf(id ID, holder common.Address) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	return l.load(balanceKey(id, holder))
}

// TotalSupply returns the outstanding supply of id.
func (l *Ledger) TotalSupply(id ID) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	return l.load(supplyKey(id))
}

// Allowance returns how much spender may move from owner's balance of id.
func (l *Ledger) Allowance(id ID, owner, spender common.Address) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	return l.load(allowanceKey(id, owner, spender))
}

// Mint creates amount units of id for the recipient.
func (l *Ledger) Mint(id ID, to common.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if err := l.requireRegistered(id); err != nil {
		return err
	}
	supply, err := l.load(supplyKey(id))
	if err != nil {
		return err
	}
	if _, overflow := supply.AddOverflow(supply, amount); overflow {
		return ErrArithmeticOverflow
	}
	bal, err := l.load(balanceKey(id, to))
	if err != nil {
		return err
	}
	bal.Add(bal, amount)
	if err := l.store(supplyKey(id), supply); err != nil {
		return err
	}
	return l.store(balanceKey(id, to), bal)
}

// Burn destroys amount units of id held by from.
func (l *Ledger) Burn(id ID, from common.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	bal, err := l.load(balanceKey(id, from))
	if err != nil {
		return err
	}
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s", ErrInsufficientFunds, from.Hex(), bal, id)
	}
	supply, err := l.load(supplyKey(id))
	if err != nil {
		return err
	}
	bal.Sub(bal, amount)
	supply.Sub(supply, amount)
	if err := l.store(balanceKey(id, from), bal); err != nil {
		return err
	}
	return l.store(supplyKey(id), supply)
}

// Transfer moves amount of id between holders. Only transferable classes move.
func (l *Ledger) Transfer(id ID, from, to common.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if !id.Class.Transferable() {
		return ErrNonTransferable
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if from == to {
		return nil
	}
	src, err := l.load(balanceKey(id, from))
	if err != nil {
		return err
	}
	if src.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s", ErrInsufficientFunds, from.Hex(), src, id)
	}
	dst, err := l.load(balanceKey(id, to))
	if err != nil {
		return err
	}
	src.Sub(src, amount)
	dst.Add(dst, amount)
	if err := l.store(balanceKey(id, from), src); err != nil {
		return err
	}
	return l.store(balanceKey(id, to), dst)
}

// Approve sets the allowance spender may draw from owner's balance of id.
func (l *Ledger) Approve(id ID, owner, spender common.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if !id.Class.Transferable() {
		return ErrNonTransferable
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	return l.store(allowanceKey(id, owner, spender), new(uint256.Int).Set(amount))
}

// TransferFrom moves owner's tokens on behalf of spender, consuming allowance.
func (l *Ledger) TransferFrom(id ID, spender, owner, to common.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	allowance, err := l.load(allowanceKey(id, owner, spender))
	if err != nil {
		return err
	}
	if allowance.Lt(amount) {
		return ErrInsufficientAllow
	}
	if err := l.Transfer(id, owner, to, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	return l.store(allowanceKey(id, owner, spender), allowance)
}
