package config

import "time"

// Vault identifies the vault and the asset it writes calls against.
type Vault struct {
	Name string `toml:"Name"`
	// Asset is the symbol quoted by the price oracle.
	Asset string `toml:"Asset"`
	// Collateral is "token" or "wrapped-native".
	Collateral       string `toml:"Collateral"`
	CollateralSymbol string `toml:"CollateralSymbol"`
	NativeSymbol     string `toml:"NativeSymbol,omitempty"`
	Decimals         uint8  `toml:"Decimals"`
	// Expiry is "monthly", "weekly" or "fixed".
	Expiry             string `toml:"Expiry"`
	FixedExpirySeconds uint64 `toml:"FixedExpirySeconds,omitempty"`
	MaxStrikes         int    `toml:"MaxStrikes"`
}

// Fees are expressed in fee-precision units (1e10 = 100%) and caps in bps.
type Fees struct {
	PurchaseFeeRate     uint64 `toml:"PurchaseFeeRate"`
	SettlementFeeRate   uint64 `toml:"SettlementFeeRate"`
	PurchaseFeeCapBps   uint64 `toml:"PurchaseFeeCapBps"`
	SettlementFeeCapBps uint64 `toml:"SettlementFeeCapBps"`
}

// Roles seeds the vault address book on first start.
type Roles struct {
	Owner          string `toml:"Owner"`
	Governance     string `toml:"Governance"`
	FeeDistributor string `toml:"FeeDistributor"`
}

// Yield configures the optional staking pool.
type Yield struct {
	Enabled         bool   `toml:"Enabled"`
	Name            string `toml:"Name"`
	SecondaryAsset  string `toml:"SecondaryAsset"`
	PrimaryAPRBps   uint64 `toml:"PrimaryAPRBps"`
	SecondaryAPRBps uint64 `toml:"SecondaryAPRBps"`
	Custody         string `toml:"Custody"`
	Reserve         string `toml:"Reserve"`
}

// Oracle seeds the static price feed. Prices are decimal USD strings.
type Oracle struct {
	MaxAgeSeconds uint64            `toml:"MaxAgeSeconds"`
	Prices        map[string]string `toml:"Prices"`
	OptionPrice   string            `toml:"OptionPrice"`
	Volatility    uint64            `toml:"Volatility"`
}

// Allocation credits an account when the ledger is first created. Amount is
// a decimal string scaled by the vault decimals.
type Allocation struct {
	Address string `toml:"Address"`
	Asset   string `toml:"Asset"`
	Amount  string `toml:"Amount"`
}

// FixedExpiry returns the fixed epoch length as a duration.
func (v Vault) FixedExpiry() time.Duration {
	return time.Duration(v.FixedExpirySeconds) * time.Second
}

// MaxAge returns the oracle staleness bound. Zero disables the check.
func (o Oracle) MaxAge() time.Duration {
	return time.Duration(o.MaxAgeSeconds) * time.Second
}
