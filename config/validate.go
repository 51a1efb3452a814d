package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"ssov/core/units"
)

const (
	CollateralToken         = "token"
	CollateralWrappedNative = "wrapped-native"
)

var (
	// MaxFeeRate is 100% in fee-precision units.
	MaxFeeRate = uint64(10_000_000_000)

	ErrInvalidConfig = errors.New("config: invalid configuration")
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// ValidateConfig checks the decoded configuration for internal consistency.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return invalid("config required")
	}
	v := cfg.Vault
	if strings.TrimSpace(v.Name) == "" {
		return invalid("vault.Name required")
	}
	if strings.TrimSpace(v.Asset) == "" {
		return invalid("vault.Asset required")
	}
	if strings.TrimSpace(v.CollateralSymbol) == "" {
		return invalid("vault.CollateralSymbol required")
	}
	switch v.Collateral {
	case CollateralToken:
	case CollateralWrappedNative:
		if strings.TrimSpace(v.NativeSymbol) == "" {
			return invalid("vault.NativeSymbol required for wrapped-native collateral")
		}
		if strings.EqualFold(v.NativeSymbol, v.CollateralSymbol) {
			return invalid("vault.NativeSymbol must differ from vault.CollateralSymbol")
		}
	default:
		return invalid("vault.Collateral %q not one of %s, %s", v.Collateral, CollateralToken, CollateralWrappedNative)
	}
	if v.Decimals > 36 {
		return invalid("vault.Decimals %d too large", v.Decimals)
	}
	switch strings.ToLower(v.Expiry) {
	case "monthly", "weekly":
	case "fixed":
		if v.FixedExpirySeconds == 0 {
			return invalid("vault.FixedExpirySeconds required for fixed expiry")
		}
	default:
		return invalid("vault.Expiry %q unknown", v.Expiry)
	}
	if v.MaxStrikes < 0 {
		return invalid("vault.MaxStrikes must not be negative")
	}

	if cfg.Fees.PurchaseFeeRate > MaxFeeRate || cfg.Fees.SettlementFeeRate > MaxFeeRate {
		return invalid("fee rates must not exceed %d", MaxFeeRate)
	}
	if cfg.Fees.PurchaseFeeCapBps > 10_000 || cfg.Fees.SettlementFeeCapBps > 10_000 {
		return invalid("fee caps must not exceed 10000 bps")
	}

	for name, value := range map[string]string{
		"roles.Owner":          cfg.Roles.Owner,
		"roles.Governance":     cfg.Roles.Governance,
		"roles.FeeDistributor": cfg.Roles.FeeDistributor,
	} {
		if err := validateAddress(name, value); err != nil {
			return err
		}
	}

	if cfg.Yield.Enabled {
		if strings.TrimSpace(cfg.Yield.SecondaryAsset) == "" {
			return invalid("yield.SecondaryAsset required")
		}
		if strings.EqualFold(cfg.Yield.SecondaryAsset, v.CollateralSymbol) {
			return invalid("yield.SecondaryAsset must differ from the collateral")
		}
		for name, value := range map[string]string{"yield.Custody": cfg.Yield.Custody, "yield.Reserve": cfg.Yield.Reserve} {
			if value == "" {
				continue
			}
			if err := validateAddress(name, value); err != nil {
				return err
			}
		}
	}

	for asset, price := range cfg.Oracle.Prices {
		if _, err := units.ParseUnits(price, 8); err != nil {
			return invalid("oracle.Prices[%s]: %v", asset, err)
		}
	}
	if cfg.Oracle.OptionPrice != "" {
		if _, err := units.ParseUnits(cfg.Oracle.OptionPrice, 8); err != nil {
			return invalid("oracle.OptionPrice: %v", err)
		}
	}

	for i, alloc := range cfg.Genesis {
		if err := validateAddress(fmt.Sprintf("genesis[%d].Address", i), alloc.Address); err != nil {
			return err
		}
		if strings.TrimSpace(alloc.Asset) == "" {
			return invalid("genesis[%d].Asset required", i)
		}
		if _, err := units.ParseUnits(alloc.Amount, v.Decimals); err != nil {
			return invalid("genesis[%d].Amount: %v", i, err)
		}
	}
	return nil
}

func validateAddress(name, value string) error {
	if !common.IsHexAddress(value) {
		return invalid("%s %q is not a hex address", name, value)
	}
	if common.HexToAddress(value) == (common.Address{}) {
		return invalid("%s must not be the zero address", name)
	}
	return nil
}
