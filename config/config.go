package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"lendvault/native/lending"
)

// MarketConfig declares one asset listing. Rate coefficients and caps are
// decimal strings so WAD-scale values survive TOML round trips without
// float truncation.
type MarketConfig struct {
	Symbol                  string `toml:"Symbol"`
	Address                 string `toml:"Address"`
	CollateralFactorBps     uint64 `toml:"CollateralFactorBps"`
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps"`
	LiquidationBonusBps     uint64 `toml:"LiquidationBonusBps"`
	ReserveFactorBps        uint64 `toml:"ReserveFactorBps"`
	BaseRateWad             string `toml:"BaseRateWad"`
	Slope1Wad               string `toml:"Slope1Wad"`
	Slope2Wad               string `toml:"Slope2Wad"`
	OptimalUtilizationBps   uint64 `toml:"OptimalUtilizationBps"`
	SupplyCap               string `toml:"SupplyCap,omitempty"`
	BorrowCap               string `toml:"BorrowCap,omitempty"`
	BorrowEnabled           bool   `toml:"BorrowEnabled"`
	DepositsFrozen          bool   `toml:"DepositsFrozen,omitempty"`
	InitialPrice            string `toml:"InitialPrice,omitempty"`
}

type Config struct {
	RPCAddress          string         `toml:"RPCAddress"`
	DataDir             string         `toml:"DataDir"`
	Env                 string         `toml:"Env"`
	LogFile             string         `toml:"LogFile,omitempty"`
	StepIntervalSeconds uint64         `toml:"StepIntervalSeconds"`
	VaultAddress        string         `toml:"VaultAddress"`
	Markets             []MarketConfig `toml:"Markets"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./lendvault-data"
	}
	if cfg.StepIntervalSeconds == 0 {
		cfg.StepIntervalSeconds = 60
	}
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "local"
	}
}

// Validate checks the addresses and numeric strings before any listing is
// attempted; the engine re-validates risk bounds on ListAsset.
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.VaultAddress) {
		return fmt.Errorf("config: VaultAddress %q is not a hex address", c.VaultAddress)
	}
	seen := make(map[common.Address]string, len(c.Markets))
	for i := range c.Markets {
		market := &c.Markets[i]
		label := market.Symbol
		if label == "" {
			label = fmt.Sprintf("market %d", i)
		}
		if !common.IsHexAddress(market.Address) {
			return fmt.Errorf("config: %s: Address %q is not a hex address", label, market.Address)
		}
		addr := common.HexToAddress(market.Address)
		if prev, dup := seen[addr]; dup {
			return fmt.Errorf("config: %s: address already used by %s", label, prev)
		}
		seen[addr] = label
		if _, err := market.EngineConfig(); err != nil {
			return fmt.Errorf("config: %s: %w", label, err)
		}
		if market.InitialPrice != "" {
			if _, err := parseAmount(market.InitialPrice); err != nil {
				return fmt.Errorf("config: %s: InitialPrice: %w", label, err)
			}
		}
	}
	return nil
}

// EngineConfig converts the TOML record into the engine's asset parameters.
func (m *MarketConfig) EngineConfig() (lending.AssetConfig, error) {
	cfg := lending.AssetConfig{
		CollateralFactorBps:     m.CollateralFactorBps,
		LiquidationThresholdBps: m.LiquidationThresholdBps,
		LiquidationBonusBps:     m.LiquidationBonusBps,
		ReserveFactorBps:        m.ReserveFactorBps,
		OptimalUtilizationBps:   m.OptimalUtilizationBps,
		BorrowEnabled:           m.BorrowEnabled,
		DepositsFrozen:          m.DepositsFrozen,
	}
	var err error
	if cfg.BaseRateWad, err = parseAmount(m.BaseRateWad); err != nil {
		return cfg, fmt.Errorf("BaseRateWad: %w", err)
	}
	if cfg.Slope1Wad, err = parseAmount(m.Slope1Wad); err != nil {
		return cfg, fmt.Errorf("Slope1Wad: %w", err)
	}
	if cfg.Slope2Wad, err = parseAmount(m.Slope2Wad); err != nil {
		return cfg, fmt.Errorf("Slope2Wad: %w", err)
	}
	if m.SupplyCap != "" {
		if cfg.SupplyCap, err = parseAmount(m.SupplyCap); err != nil {
			return cfg, fmt.Errorf("SupplyCap: %w", err)
		}
	}
	if m.BorrowCap != "" {
		if cfg.BorrowCap, err = parseAmount(m.BorrowCap); err != nil {
			return cfg, fmt.Errorf("BorrowCap: %w", err)
		}
	}
	(&cfg).EnsureDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Price parses the optional initial oracle price, nil when unset.
func (m *MarketConfig) Price() (*big.Int, error) {
	if m.InitialPrice == "" {
		return nil, nil
	}
	return parseAmount(m.InitialPrice)
}

// AssetAddress returns the parsed market address.
func (m *MarketConfig) AssetAddress() common.Address {
	return common.HexToAddress(m.Address)
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a base-10 integer", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("%q must not be negative", value)
	}
	return parsed, nil
}

// createDefault creates and saves a default configuration file with a single
// illustrative market.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:          ":8080",
		DataDir:             "./lendvault-data",
		Env:                 "local",
		StepIntervalSeconds: 60,
		VaultAddress:        "0x00000000000000000000000000000000000000ff",
		Markets: []MarketConfig{{
			Symbol:                  "DEMO",
			Address:                 "0x00000000000000000000000000000000000000a1",
			CollateralFactorBps:     7_500,
			LiquidationThresholdBps: 8_000,
			LiquidationBonusBps:     500,
			ReserveFactorBps:        500,
			BaseRateWad:             "0",
			Slope1Wad:               "100000000000000000",
			Slope2Wad:               "1000000000000000000",
			OptimalUtilizationBps:   8_000,
			BorrowEnabled:           true,
			InitialPrice:            "1000000000000000000",
		}},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}
