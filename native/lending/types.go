package lending

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Listing-time bounds for risk parameters, in basis points.
const (
	minCollateralFactorBps     = 5_000
	maxCollateralFactorBps     = 9_500
	minLiquidationThresholdBps = 5_500
	maxLiquidationThresholdBps = 9_800
	minLiquidationBonusBps     = 100
	maxLiquidationBonusBps     = 1_500
	maxReserveFactorBps        = 500
)

// AssetConfig carries the per-asset risk and rate parameters fixed at listing
// time and mutated only through the governance boundary. Fractions are basis
// points; rate coefficients are WAD-scaled per-step rates.
//
// CollateralFactorBps <= LiquidationThresholdBps is NOT guaranteed by the
// bounds below; nothing in the engine may assume it.
type AssetConfig struct {
	CollateralFactorBps     uint64
	LiquidationThresholdBps uint64
	LiquidationBonusBps     uint64
	ReserveFactorBps        uint64

	BaseRateWad           *big.Int
	Slope1Wad             *big.Int
	Slope2Wad             *big.Int
	OptimalUtilizationBps uint64

	// Zero caps mean uncapped.
	SupplyCap *big.Int
	BorrowCap *big.Int

	BorrowEnabled  bool
	DepositsFrozen bool
}

// Clone returns a deep copy of the config.
func (c AssetConfig) Clone() AssetConfig {
	clone := c
	clone.BaseRateWad = cloneBig(c.BaseRateWad)
	clone.Slope1Wad = cloneBig(c.Slope1Wad)
	clone.Slope2Wad = cloneBig(c.Slope2Wad)
	clone.SupplyCap = cloneBig(c.SupplyCap)
	clone.BorrowCap = cloneBig(c.BorrowCap)
	return clone
}

// EnsureDefaults populates nil big.Int fields so serialization is safe.
func (c *AssetConfig) EnsureDefaults() {
	if c.BaseRateWad == nil {
		c.BaseRateWad = big.NewInt(0)
	}
	if c.Slope1Wad == nil {
		c.Slope1Wad = big.NewInt(0)
	}
	if c.Slope2Wad == nil {
		c.Slope2Wad = big.NewInt(0)
	}
	if c.SupplyCap == nil {
		c.SupplyCap = big.NewInt(0)
	}
	if c.BorrowCap == nil {
		c.BorrowCap = big.NewInt(0)
	}
}

// Validate range-checks the listing parameters. The optimal-utilization bound
// excludes zero so the rate model's first-branch divisor is always positive;
// 100% is allowed because utilization cannot exceed the optimal point then.
func (c AssetConfig) Validate() error {
	if c.CollateralFactorBps < minCollateralFactorBps || c.CollateralFactorBps > maxCollateralFactorBps {
		return fmt.Errorf("lending config: collateral factor %d bps outside [%d, %d]", c.CollateralFactorBps, minCollateralFactorBps, maxCollateralFactorBps)
	}
	if c.LiquidationThresholdBps < minLiquidationThresholdBps || c.LiquidationThresholdBps > maxLiquidationThresholdBps {
		return fmt.Errorf("lending config: liquidation threshold %d bps outside [%d, %d]", c.LiquidationThresholdBps, minLiquidationThresholdBps, maxLiquidationThresholdBps)
	}
	if c.LiquidationBonusBps < minLiquidationBonusBps || c.LiquidationBonusBps > maxLiquidationBonusBps {
		return fmt.Errorf("lending config: liquidation bonus %d bps outside [%d, %d]", c.LiquidationBonusBps, minLiquidationBonusBps, maxLiquidationBonusBps)
	}
	if c.ReserveFactorBps > maxReserveFactorBps {
		return fmt.Errorf("lending config: reserve factor %d bps above %d", c.ReserveFactorBps, maxReserveFactorBps)
	}
	if c.OptimalUtilizationBps == 0 || c.OptimalUtilizationBps > 10_000 {
		return fmt.Errorf("lending config: optimal utilization %d bps outside (0, 10000]", c.OptimalUtilizationBps)
	}
	if c.BaseRateWad != nil && c.BaseRateWad.Sign() < 0 {
		return fmt.Errorf("lending config: base rate must not be negative")
	}
	if c.Slope1Wad != nil && c.Slope1Wad.Sign() < 0 {
		return fmt.Errorf("lending config: slope1 must not be negative")
	}
	if c.Slope2Wad != nil && c.Slope2Wad.Sign() < 0 {
		return fmt.Errorf("lending config: slope2 must not be negative")
	}
	if c.SupplyCap != nil && c.SupplyCap.Sign() < 0 {
		return fmt.Errorf("lending config: supply cap must not be negative")
	}
	if c.BorrowCap != nil && c.BorrowCap.Sign() < 0 {
		return fmt.Errorf("lending config: borrow cap must not be negative")
	}
	return nil
}

// Market is the mutable accounting state of a listed asset. TotalSupply and
// TotalBorrows are post-interest underlying amounts; Index is the cumulative
// WAD interest scale factor and never decreases.
type Market struct {
	Asset           common.Address
	Config          AssetConfig
	TotalSupply     *big.Int
	TotalBorrows    *big.Int
	Index           *big.Int
	LastAccrualStep uint64
}

// NewMarket returns a freshly listed market with a unit index.
func NewMarket(asset common.Address, cfg AssetConfig) *Market {
	cfg = cfg.Clone()
	(&cfg).EnsureDefaults()
	return &Market{
		Asset:        asset,
		Config:       cfg,
		TotalSupply:  big.NewInt(0),
		TotalBorrows: big.NewInt(0),
		Index:        cloneBig(wad),
	}
}

// EnsureDefaults populates nil fields after decoding.
func (m *Market) EnsureDefaults() {
	if m == nil {
		return
	}
	(&m.Config).EnsureDefaults()
	if m.TotalSupply == nil {
		m.TotalSupply = big.NewInt(0)
	}
	if m.TotalBorrows == nil {
		m.TotalBorrows = big.NewInt(0)
	}
	if m.Index == nil || m.Index.Sign() == 0 {
		m.Index = cloneBig(wad)
	}
}

// Clone returns a deep copy of the market.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	return &Market{
		Asset:           m.Asset,
		Config:          m.Config.Clone(),
		TotalSupply:     cloneBig(m.TotalSupply),
		TotalBorrows:    cloneBig(m.TotalBorrows),
		Index:           cloneBig(m.Index),
		LastAccrualStep: m.LastAccrualStep,
	}
}

// Position is the per-(user, asset) ledger record. Principals are stored "as
// of last snapshot": the current borrow balance is
// BorrowedPrincipal * market.Index / IndexSnapshot. Positions are never
// deleted, only zeroed.
type Position struct {
	User              common.Address
	Asset             common.Address
	SuppliedPrincipal *big.Int
	BorrowedPrincipal *big.Int
	IndexSnapshot     *big.Int
	CollateralEnabled bool
}

// EnsureDefaults populates nil fields after decoding.
func (p *Position) EnsureDefaults() {
	if p == nil {
		return
	}
	if p.SuppliedPrincipal == nil {
		p.SuppliedPrincipal = big.NewInt(0)
	}
	if p.BorrowedPrincipal == nil {
		p.BorrowedPrincipal = big.NewInt(0)
	}
	if p.IndexSnapshot == nil || p.IndexSnapshot.Sign() == 0 {
		p.IndexSnapshot = cloneBig(wad)
	}
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	return &Position{
		User:              p.User,
		Asset:             p.Asset,
		SuppliedPrincipal: cloneBig(p.SuppliedPrincipal),
		BorrowedPrincipal: cloneBig(p.BorrowedPrincipal),
		IndexSnapshot:     cloneBig(p.IndexSnapshot),
		CollateralEnabled: p.CollateralEnabled,
	}
}

// Globals holds the scalar protocol-wide counters. ProtocolFees is the
// reserve share of accrued interest; it is earmarked inside TotalSupply, not
// deducted from it. LiquidationVolume sums seized collateral amounts.
type Globals struct {
	ProtocolFees      *big.Int
	LiquidationVolume *big.Int
}

// EnsureDefaults populates nil fields after decoding.
func (g *Globals) EnsureDefaults() {
	if g == nil {
		return
	}
	if g.ProtocolFees == nil {
		g.ProtocolFees = big.NewInt(0)
	}
	if g.LiquidationVolume == nil {
		g.LiquidationVolume = big.NewInt(0)
	}
}

// Clone returns a deep copy of the globals.
func (g *Globals) Clone() *Globals {
	if g == nil {
		return nil
	}
	return &Globals{
		ProtocolFees:      cloneBig(g.ProtocolFees),
		LiquidationVolume: cloneBig(g.LiquidationVolume),
	}
}
