package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"ssov/config"
	"ssov/core/events"
	ssovstate "ssov/core/state"
	"ssov/core/types"
	"ssov/core/units"
	"ssov/native/bank"
	"ssov/native/collateral"
	"ssov/native/pricing"
	"ssov/native/ssov"
	"ssov/native/yield"
	"ssov/storage"
)

var genesisKey = []byte("ssovd/genesis-applied")

// eventHistory bounds the in-memory event history served by /v1/events.
const eventHistory = 256

// Vault bundles an engine with the collaborators the daemon owns.
type Vault struct {
	Engine   *ssov.Engine
	Oracle   *pricing.StaticOracle
	Events   *events.Ring
	Decimals uint8
	Yield    bool
	// Assets lists every ledger asset the vault touches, collateral first.
	Assets []string
}

// derivedAddress returns a deterministic service account for role.
func derivedAddress(vault, role string) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte("ssovd:" + role + ":" + vault)))
}

func resolveAddress(value, vault, role string) common.Address {
	if strings.TrimSpace(value) == "" {
		return derivedAddress(vault, role)
	}
	return common.HexToAddress(value)
}

// OpenVault registers the vault's assets, applies the genesis allocation once
// and wires an engine with the configured collaborators.
func OpenVault(cfg *config.Config, db storage.Database, logger *slog.Logger) (*Vault, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("ssovd: config and database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	v := cfg.Vault
	decimals := v.Decimals

	var strategy collateral.Strategy
	assets := []string{strings.ToUpper(v.CollateralSymbol)}
	native := map[string]bool{}
	switch v.Collateral {
	case config.CollateralWrappedNative:
		strategy = collateral.NewWrappedNative(v.NativeSymbol, v.CollateralSymbol, decimals, derivedAddress(v.Name, "wrap-custody"))
		assets = append(assets, strings.ToUpper(v.NativeSymbol))
		native[strings.ToUpper(v.NativeSymbol)] = true
	default:
		strategy = collateral.NewToken(v.CollateralSymbol, decimals)
	}
	if cfg.Yield.Enabled {
		assets = append(assets, strings.ToUpper(cfg.Yield.SecondaryAsset))
	}

	if err := seedLedger(cfg, db, assets, native); err != nil {
		return nil, err
	}

	engine, err := ssov.NewEngine(db, ssov.Params{
		Name:                v.Name,
		Asset:               v.Asset,
		MaxStrikes:          v.MaxStrikes,
		PurchaseFeeCapBps:   cfg.Fees.PurchaseFeeCapBps,
		SettlementFeeCapBps: cfg.Fees.SettlementFeeCapBps,
		Owner:               common.HexToAddress(cfg.Roles.Owner),
		Governance:          common.HexToAddress(cfg.Roles.Governance),
		FeeDistributor:      common.HexToAddress(cfg.Roles.FeeDistributor),
	}, strategy)
	if err != nil {
		return nil, err
	}
	schedule, err := ssov.ParseSchedule(v.Expiry, v.FixedExpiry())
	if err != nil {
		return nil, err
	}
	engine.SetExpirySchedule(schedule)
	engine.SetFeeStrategy(ssov.DefaultFeeStrategy{
		PurchaseFeeRate:   cfg.Fees.PurchaseFeeRate,
		SettlementFeeRate: cfg.Fees.SettlementFeeRate,
	})
	engine.SetLogger(logger)
	recent := events.NewRing(eventHistory)
	engine.SetEmitter(events.Multi(logEmitter{logger: logger}, recent))

	oracle := pricing.NewStaticOracle(cfg.Oracle.MaxAge())
	for asset, price := range cfg.Oracle.Prices {
		parsed, err := units.ParseUnits(price, ssov.PriceDecimals)
		if err != nil {
			return nil, fmt.Errorf("oracle price %s: %w", asset, err)
		}
		if err := oracle.SetPrice(asset, parsed); err != nil {
			return nil, fmt.Errorf("oracle price %s: %w", asset, err)
		}
	}
	engine.SetPriceOracle(oracle)

	optionPrice := new(uint256.Int)
	if cfg.Oracle.OptionPrice != "" {
		if optionPrice, err = units.ParseUnits(cfg.Oracle.OptionPrice, ssov.PriceDecimals); err != nil {
			return nil, fmt.Errorf("option price: %w", err)
		}
	}
	engine.SetOptionPricing(pricing.FixedPricer{Price: optionPrice})
	engine.SetVolatilityOracle(pricing.StaticVolatility{Value: cfg.Oracle.Volatility})

	if cfg.Yield.Enabled {
		name := cfg.Yield.Name
		if name == "" {
			name = v.Name + "-yield"
		}
		pool, err := yield.NewPool(yield.Config{
			Name:            name,
			StakeAsset:      strategy.Asset(),
			SecondaryAsset:  cfg.Yield.SecondaryAsset,
			PrimaryAPRBps:   cfg.Yield.PrimaryAPRBps,
			SecondaryAPRBps: cfg.Yield.SecondaryAPRBps,
			Custody:         resolveAddress(cfg.Yield.Custody, v.Name, "yield-custody"),
			Reserve:         resolveAddress(cfg.Yield.Reserve, v.Name, "yield-reserve"),
		})
		if err != nil {
			return nil, err
		}
		if err := engine.SetYieldAdapter(pool); err != nil {
			return nil, err
		}
	}

	logger.Info("ssovd: vault opened",
		slog.String("vault", v.Name),
		slog.String("collateral", strategy.Asset()),
		slog.String("expiry", v.Expiry),
		slog.Bool("yield", cfg.Yield.Enabled))
	return &Vault{Engine: engine, Oracle: oracle, Events: recent, Decimals: decimals, Yield: cfg.Yield.Enabled, Assets: assets}, nil
}

// seedLedger registers assets that are missing and applies the genesis
// allocation the first time the database is opened.
func seedLedger(cfg *config.Config, db storage.Database, assets []string, native map[string]bool) error {
	overlay := storage.NewOverlay(db)
	m := ssovstate.NewManager(overlay)
	for _, asset := range assets {
		if m.TokenExists(asset) {
			continue
		}
		if err := m.RegisterToken(asset, asset, cfg.Vault.Decimals, native[asset]); err != nil {
			overlay.Discard()
			return fmt.Errorf("register %s: %w", asset, err)
		}
	}
	var applied bool
	if _, err := m.KVGet(genesisKey, &applied); err != nil {
		overlay.Discard()
		return err
	}
	if !applied {
		for i, alloc := range cfg.Genesis {
			amount, err := units.ParseUnits(alloc.Amount, cfg.Vault.Decimals)
			if err != nil {
				overlay.Discard()
				return fmt.Errorf("genesis[%d]: %w", i, err)
			}
			if err := bank.Mint(m, alloc.Asset, common.HexToAddress(alloc.Address), amount); err != nil {
				overlay.Discard()
				return fmt.Errorf("genesis[%d]: %w", i, err)
			}
		}
		if err := m.KVPut(genesisKey, true); err != nil {
			overlay.Discard()
			return err
		}
	}
	return overlay.Commit()
}

// logEmitter records committed vault events in the daemon log.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	attrs := []any{slog.String("type", evt.EventType())}
	if typed, ok := evt.(interface{ Event() *types.Event }); ok {
		record := typed.Event()
		for _, k := range record.Keys() {
			attrs = append(attrs, slog.String(k, record.Attr(k)))
		}
	}
	l.logger.Debug("ssovd: event", attrs...)
}
