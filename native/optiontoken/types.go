package optiontoken

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Class separates the two balance kinds minted per (epoch, strike). Balances
// of different classes never mix.
type Class uint8

const (
	// ClassDepositShare tracks a writer's claim on the strike's withdraw pool.
	ClassDepositShare Class = iota + 1
	// ClassCallRight is the transferable right to exercise the call.
	ClassCallRight
)

func (c Class) String() string {
	switch c {
	case ClassDepositShare:
		return "deposit-share"
	case ClassCallRight:
		return "call-right"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Valid reports whether c is a known class.
func (c Class) Valid() bool {
	return c == ClassDepositShare || c == ClassCallRight
}

// Transferable reports whether holders may move balances of this class.
func (c Class) Transferable() bool { return c == ClassCallRight }

// ID addresses one fungible balance class in the arena.
type ID struct {
	Epoch  uint64
	Strike *uint256.Int
	Class  Class
}

// Key renders the canonical storage key fragment for the identifier.
func (id ID) Key() string {
	strike := "0"
	if id.Strike != nil {
		strike = id.Strike.Hex()
	}
	return fmt.Sprintf("%d/%s/%d", id.Epoch, strike, uint8(id.Class))
}

func (id ID) String() string {
	strike := "0"
	if id.Strike != nil {
		strike = id.Strike.Dec()
	}
	return fmt.Sprintf("epoch=%d strike=%s class=%s", id.Epoch, strike, id.Class)
}

// Metadata describes a registered option token.
type Metadata struct {
	Epoch  uint64
	Strike *uint256.Int
	Class  uint8
	Name   string
	Symbol string
	Expiry uint64
}

// TokenName builds the display name used for option tokens, for example
// "DPX-CALL50-EPOCH-1".
func TokenName(asset string, strike *uint256.Int, epoch uint64) string {
	s := "0"
	if strike != nil {
		s = strike.Dec()
	}
	return fmt.Sprintf("%s-CALL%s-EPOCH-%d", asset, s, epoch)
}
