package ssov

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	nativecommon "ssov/native/common"
)

const (
	// DefaultMaxStrikes bounds the strike list per epoch.
	DefaultMaxStrikes = 5
	// DefaultPurchaseFeeCapBps caps the purchase fee at 12.5% of premium.
	DefaultPurchaseFeeCapBps = 1_250
)

// Address book entries settable through SetAddresses.
const (
	AddressOwner          = "Owner"
	AddressGovernance     = "Governance"
	AddressFeeDistributor = "FeeDistributor"
)

var addressNames = []string{AddressOwner, AddressGovernance, AddressFeeDistributor}

// Params configures one vault.
type Params struct {
	// Name identifies the vault; it seeds the vault account and storage keys.
	Name string
	// Asset is the symbol quoted by the price oracle and used in token names.
	Asset               string
	MaxStrikes          int
	PurchaseFeeCapBps   uint64
	SettlementFeeCapBps uint64
	Owner               common.Address
	Governance          common.Address
	FeeDistributor      common.Address
}

func (p *Params) normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Asset = strings.ToUpper(strings.TrimSpace(p.Asset))
	if p.MaxStrikes <= 0 {
		p.MaxStrikes = DefaultMaxStrikes
	}
}

func (p Params) validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: vault name required", ErrInvalidInput)
	}
	if p.Asset == "" {
		return fmt.Errorf("%w: vault asset required", ErrInvalidInput)
	}
	if p.PurchaseFeeCapBps > BasisPoints || p.SettlementFeeCapBps > BasisPoints {
		return fmt.Errorf("%w: fee caps must not exceed 10000 bps", ErrInvalidInput)
	}
	if p.Owner == (common.Address{}) {
		return fmt.Errorf("%w: owner address required", ErrInvalidInput)
	}
	if p.Governance == (common.Address{}) {
		return fmt.Errorf("%w: governance address required", ErrInvalidInput)
	}
	if p.FeeDistributor == (common.Address{}) {
		return fmt.Errorf("%w: fee distributor address required", ErrInvalidInput)
	}
	return nil
}

// VaultAddress derives the account that custodies a vault's collateral.
func VaultAddress(name string) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte("ssov:vault:" + strings.TrimSpace(name))))
}

// ModuleName is the pause-guard key for the vault.
func ModuleName(name string) string { return nativecommon.ModuleKey("ssov", name) }
