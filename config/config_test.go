package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleConfig = `RPCAddress = "0.0.0.0:9090"
DataDir = "./data"
Env = "staging"
StepIntervalSeconds = 30
VaultAddress = "0x00000000000000000000000000000000000000ff"

[[Markets]]
Symbol = "USDV"
Address = "0x00000000000000000000000000000000000000a1"
CollateralFactorBps = 7500
LiquidationThresholdBps = 8000
LiquidationBonusBps = 500
ReserveFactorBps = 500
BaseRateWad = "0"
Slope1Wad = "100000000000000000"
Slope2Wad = "1000000000000000000"
OptimalUtilizationBps = 8000
SupplyCap = "1000000000000000000000000"
BorrowEnabled = true
InitialPrice = "1000000000000000000"

[[Markets]]
Symbol = "WETV"
Address = "0x00000000000000000000000000000000000000a2"
CollateralFactorBps = 7000
LiquidationThresholdBps = 7500
LiquidationBonusBps = 800
ReserveFactorBps = 300
BaseRateWad = "10000000000000000"
Slope1Wad = "40000000000000000"
Slope2Wad = "600000000000000000"
OptimalUtilizationBps = 9000
BorrowEnabled = false
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesMarkets(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != "0.0.0.0:9090" {
		t.Fatalf("rpc address: got %q", cfg.RPCAddress)
	}
	if cfg.StepIntervalSeconds != 30 {
		t.Fatalf("step interval: got %d", cfg.StepIntervalSeconds)
	}
	if len(cfg.Markets) != 2 {
		t.Fatalf("markets: got %d want 2", len(cfg.Markets))
	}

	engineCfg, err := cfg.Markets[0].EngineConfig()
	if err != nil {
		t.Fatalf("engine config: %v", err)
	}
	if engineCfg.CollateralFactorBps != 7500 {
		t.Fatalf("collateral factor: got %d", engineCfg.CollateralFactorBps)
	}
	wantSlope := new(big.Int).SetInt64(1e17)
	if engineCfg.Slope1Wad.Cmp(wantSlope) != 0 {
		t.Fatalf("slope1: got %v want %v", engineCfg.Slope1Wad, wantSlope)
	}
	wantCap, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	if engineCfg.SupplyCap.Cmp(wantCap) != 0 {
		t.Fatalf("supply cap: got %v", engineCfg.SupplyCap)
	}
	if !engineCfg.BorrowEnabled {
		t.Fatalf("borrow flag lost")
	}

	price, err := cfg.Markets[0].Price()
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	wantPrice := new(big.Int).SetInt64(1e18)
	if price.Cmp(wantPrice) != 0 {
		t.Fatalf("price: got %v want %v", price, wantPrice)
	}
	if p, err := cfg.Markets[1].Price(); err != nil || p != nil {
		t.Fatalf("unset price: got %v, %v", p, err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	minimal := `VaultAddress = "0x00000000000000000000000000000000000000ff"` + "\n"
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8080" {
		t.Fatalf("default rpc address: got %q", cfg.RPCAddress)
	}
	if cfg.StepIntervalSeconds != 60 {
		t.Fatalf("default step interval: got %d", cfg.StepIntervalSeconds)
	}
	if cfg.Env != "local" {
		t.Fatalf("default env: got %q", cfg.Env)
	}
}

func TestLoadRejectsBadMarket(t *testing.T) {
	cases := []struct {
		name string
		edit func(string) string
	}{
		{"bad address", func(s string) string {
			return strings.Replace(s, `Address = "0x00000000000000000000000000000000000000a1"`, `Address = "not-an-address"`, 1)
		}},
		{"duplicate address", func(s string) string {
			return strings.Replace(s, "0x00000000000000000000000000000000000000a2", "0x00000000000000000000000000000000000000a1", 1)
		}},
		{"negative rate", func(s string) string {
			return strings.Replace(s, `BaseRateWad = "0"`, `BaseRateWad = "-5"`, 1)
		}},
		{"risk bounds", func(s string) string {
			return strings.Replace(s, "CollateralFactorBps = 7500", "CollateralFactorBps = 100", 1)
		}},
	}
	for _, tc := range cases {
		if _, err := Load(writeConfig(t, tc.edit(sampleConfig))); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.VaultAddress != cfg.VaultAddress {
		t.Fatalf("reload mismatch: %q vs %q", reloaded.VaultAddress, cfg.VaultAddress)
	}
}
