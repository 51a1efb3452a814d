package ssov

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ssov/core/types"
)

const (
	EventTypeStrikesSet        = "ssov.strikes_set"
	EventTypeBootstrap         = "ssov.bootstrap"
	EventTypeDeposit           = "ssov.deposit"
	EventTypePurchase          = "ssov.purchase"
	EventTypeCompound          = "ssov.compound"
	EventTypeEpochExpired      = "ssov.epoch_expired"
	EventTypeSettle            = "ssov.settle"
	EventTypeWithdraw          = "ssov.withdraw"
	EventTypePaused            = "ssov.paused"
	EventTypeUnpaused          = "ssov.unpaused"
	EventTypeEmergencyWithdraw = "ssov.emergency_withdraw"
	EventTypeAddressSet        = "ssov.address_set"
	EventTypeLateYield         = "ssov.late_yield"
)

// vaultEvent adapts a types.Event to the events.Emitter contract.
type vaultEvent struct {
	evt *types.Event
}

func (e vaultEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e vaultEvent) Event() *types.Event { return e.evt }

type attrs map[string]string

func (a attrs) amount(key string, v *uint256.Int) attrs {
	a[key] = clone(v).Dec()
	return a
}

func (a attrs) addr(key string, v common.Address) attrs {
	a[key] = v.Hex()
	return a
}

func (a attrs) uint(key string, v uint64) attrs {
	a[key] = strconv.FormatUint(v, 10)
	return a
}

func newEvent(eventType, vault string, a attrs) *types.Event {
	if a == nil {
		a = attrs{}
	}
	a["vault"] = vault
	return &types.Event{Type: eventType, Attributes: a}
}

func strikeList(strikes []*uint256.Int) string {
	parts := make([]string, len(strikes))
	for i, s := range strikes {
		parts[i] = clone(s).Dec()
	}
	return strings.Join(parts, ",")
}
