package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	testOwner       = "0x1111111111111111111111111111111111111111"
	testGovernance  = "0x2222222222222222222222222222222222222222"
	testDistributor = "0x3333333333333333333333333333333333333333"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const baseConfig = `DataDir = "./data"

[vault]
Name = "bnb-weekly"
Asset = "BNB"
Collateral = "wrapped-native"
CollateralSymbol = "WBNB"
NativeSymbol = "BNB"
Decimals = 8
Expiry = "weekly"
MaxStrikes = 4

[fees]
PurchaseFeeRate = 12500000
SettlementFeeRate = 100000000
PurchaseFeeCapBps = 1250

[roles]
Owner = "` + testOwner + `"
Governance = "` + testGovernance + `"
FeeDistributor = "` + testDistributor + `"

[yield]
Enabled = true
Name = "bnb-staking"
SecondaryAsset = "CAKE"
PrimaryAPRBps = 500
SecondaryAPRBps = 250

[oracle]
MaxAgeSeconds = 90
OptionPrice = "12.5"
Volatility = 80

[oracle.Prices]
BNB = "600.25"

[[genesis]]
Address = "` + testOwner + `"
Asset = "BNB"
Amount = "10.5"
`

func TestLoadParsesVaultSettings(t *testing.T) {
	cfg, err := Load(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Vault.Name != "bnb-weekly" || cfg.Vault.Collateral != CollateralWrappedNative {
		t.Fatalf("unexpected vault: %+v", cfg.Vault)
	}
	if cfg.Vault.Decimals != 8 || cfg.Vault.MaxStrikes != 4 {
		t.Fatalf("unexpected vault sizing: %+v", cfg.Vault)
	}
	if cfg.Fees.PurchaseFeeRate != 12_500_000 || cfg.Fees.PurchaseFeeCapBps != 1_250 {
		t.Fatalf("unexpected fees: %+v", cfg.Fees)
	}
	if !cfg.Yield.Enabled || cfg.Yield.SecondaryAsset != "CAKE" {
		t.Fatalf("unexpected yield: %+v", cfg.Yield)
	}
	if got := cfg.Oracle.Prices["BNB"]; got != "600.25" {
		t.Fatalf("unexpected oracle price %q", got)
	}
	if cfg.Oracle.MaxAge() != 90*time.Second {
		t.Fatalf("unexpected max age %s", cfg.Oracle.MaxAge())
	}
	if len(cfg.Genesis) != 1 || cfg.Genesis[0].Amount != "10.5" {
		t.Fatalf("unexpected genesis: %+v", cfg.Genesis)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, baseConfig+"\nListenAddress = \":6001\"\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	key, err := ethcrypto.LoadECDSA(cfg.OperatorKeyPath)
	if err != nil {
		t.Fatalf("load operator key: %v", err)
	}
	operator := ethcrypto.PubkeyToAddress(key.PublicKey)
	if common.HexToAddress(cfg.Roles.Owner) != operator {
		t.Fatalf("owner %s does not match operator %s", cfg.Roles.Owner, operator.Hex())
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Roles != cfg.Roles || reloaded.Vault != cfg.Vault {
		t.Fatalf("reloaded config differs: %+v vs %+v", reloaded, cfg)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := map[string]func(c *Config){
		"missing name":        func(c *Config) { c.Vault.Name = "" },
		"unknown collateral":  func(c *Config) { c.Vault.Collateral = "indexed" },
		"wrapped same symbol": func(c *Config) { c.Vault.NativeSymbol = c.Vault.CollateralSymbol },
		"unknown expiry":      func(c *Config) { c.Vault.Expiry = "daily" },
		"fixed without len":   func(c *Config) { c.Vault.Expiry = "fixed" },
		"fee rate":            func(c *Config) { c.Fees.PurchaseFeeRate = MaxFeeRate + 1 },
		"fee cap":             func(c *Config) { c.Fees.SettlementFeeCapBps = 10_001 },
		"bad owner":           func(c *Config) { c.Roles.Owner = "alice" },
		"zero governance":     func(c *Config) { c.Roles.Governance = common.Address{}.Hex() },
		"bad price":           func(c *Config) { c.Oracle.Prices["ETH"] = "-1" },
		"reward is collateral": func(c *Config) {
			c.Yield.Enabled = true
			c.Yield.SecondaryAsset = c.Vault.CollateralSymbol
		},
		"genesis amount": func(c *Config) {
			c.Genesis = []Allocation{{Address: testOwner, Asset: "ETH", Amount: "0.1234567890123456789"}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default(testOwner)
			mutate(cfg)
			if err := ValidateConfig(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	cfg := Default(testOwner)
	cfg.Vault.Expiry = "fixed"
	cfg.Vault.FixedExpirySeconds = 86_400
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if cfg.Vault.FixedExpiry() != 24*time.Hour {
		t.Fatalf("unexpected fixed expiry %s", cfg.Vault.FixedExpiry())
	}
}
