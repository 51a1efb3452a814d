package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

type Config struct {
	DataDir         string       `toml:"DataDir"`
	OperatorKeyPath string       `toml:"OperatorKeyPath"`
	Vault           Vault        `toml:"vault"`
	Fees            Fees         `toml:"fees"`
	Roles           Roles        `toml:"roles"`
	Yield           Yield        `toml:"yield"`
	Oracle          Oracle       `toml:"oracle"`
	Genesis         []Allocation `toml:"genesis"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by a default configuration whose roles are held by a freshly
// generated operator key.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown field %s", path, undecoded[0].String())
	}

	applyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./ssov-data"
	}
	if strings.TrimSpace(cfg.Vault.Collateral) == "" {
		cfg.Vault.Collateral = CollateralToken
	}
	if strings.TrimSpace(cfg.Vault.Expiry) == "" {
		cfg.Vault.Expiry = "monthly"
	}
	if cfg.Vault.Decimals == 0 {
		cfg.Vault.Decimals = 18
	}
	if cfg.Oracle.Prices == nil {
		cfg.Oracle.Prices = map[string]string{}
	}
}

// Default returns the configuration written by createDefault, with every role
// held by operator.
func Default(operator string) *Config {
	return &Config{
		DataDir: "./ssov-data",
		Vault: Vault{
			Name:             "eth-monthly",
			Asset:            "ETH",
			Collateral:       CollateralWrappedNative,
			CollateralSymbol: "WETH",
			NativeSymbol:     "ETH",
			Decimals:         18,
			Expiry:           "monthly",
			MaxStrikes:       5,
		},
		Fees: Fees{
			PurchaseFeeRate:   12_500_000,
			PurchaseFeeCapBps: 1_250,
		},
		Roles: Roles{
			Owner:          operator,
			Governance:     operator,
			FeeDistributor: operator,
		},
		Yield: Yield{
			Name:            "eth-staking",
			SecondaryAsset:  "RWD",
			PrimaryAPRBps:   400,
			SecondaryAPRBps: 200,
		},
		Oracle: Oracle{
			MaxAgeSeconds: 3600,
			Prices:        map[string]string{"ETH": "3000"},
			OptionPrice:   "150",
			Volatility:    100,
		},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	keyPath := defaultKeyPath(path)
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, err
	}
	if err := ethcrypto.SaveECDSA(keyPath, key); err != nil {
		return nil, err
	}

	cfg := Default(ethcrypto.PubkeyToAddress(key.PublicKey).Hex())
	cfg.OperatorKeyPath = keyPath
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeyPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "operator.key")
}
