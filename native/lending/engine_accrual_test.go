package lending

import (
	"math/big"
	"testing"
)

func referenceRateConfig() AssetConfig {
	return AssetConfig{
		CollateralFactorBps:     7_500,
		LiquidationThresholdBps: 8_000,
		LiquidationBonusBps:     500,
		ReserveFactorBps:        500,
		BaseRateWad:             big.NewInt(0),
		Slope1Wad:               big.NewInt(1e17),
		Slope2Wad:               big.NewInt(1e18),
		OptimalUtilizationBps:   8_000,
		BorrowEnabled:           true,
	}
}

func TestAccrualSingleStep(t *testing.T) {
	env := newTestEnv(t)
	token := env.listAsset(assetX, referenceRateConfig(), wad)
	token.Mint(userA, wadAmount(2000))
	env.mustSupply(userA, assetX, wadAmount(1000))
	env.mustEnableCollateral(userA, assetX)
	env.mustBorrow(userA, assetX, wadAmount(400))

	env.engine.SetStep(1)
	if err := env.engine.Accrue(assetX); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	// Utilization 40% against an 80% kink yields a 5% per-step rate, so one
	// step accrues 20 units of interest on the 400 borrowed.
	market, err := env.engine.Market(assetX)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	requireBig(t, market.TotalBorrows, wadAmount(420), "total borrows")
	requireBig(t, market.TotalSupply, wadAmount(1020), "total supply")
	requireBig(t, market.Index, big.NewInt(105e16), "index")
	if market.LastAccrualStep != 1 {
		t.Fatalf("last accrual step: got %d want 1", market.LastAccrualStep)
	}

	balance, err := env.engine.BorrowBalance(userA, assetX)
	if err != nil {
		t.Fatalf("borrow balance: %v", err)
	}
	requireBig(t, balance, wadAmount(420), "borrow balance")

	globals, err := env.engine.ProtocolFees()
	if err != nil {
		t.Fatalf("globals: %v", err)
	}
	requireBig(t, globals.ProtocolFees, wadAmount(1), "protocol fees")
}

func TestAccrualIdempotentWithinStep(t *testing.T) {
	env := newTestEnv(t)
	token := env.listAsset(assetX, referenceRateConfig(), wad)
	token.Mint(userA, wadAmount(2000))
	env.mustSupply(userA, assetX, wadAmount(1000))
	env.mustEnableCollateral(userA, assetX)
	env.mustBorrow(userA, assetX, wadAmount(400))

	env.engine.SetStep(1)
	if err := env.engine.Accrue(assetX); err != nil {
		t.Fatalf("first accrue: %v", err)
	}
	first, err := env.engine.Market(assetX)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if err := env.engine.Accrue(assetX); err != nil {
		t.Fatalf("second accrue: %v", err)
	}
	second, err := env.engine.Market(assetX)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	requireBig(t, second.TotalBorrows, first.TotalBorrows, "total borrows unchanged")
	requireBig(t, second.TotalSupply, first.TotalSupply, "total supply unchanged")
	requireBig(t, second.Index, first.Index, "index unchanged")
}

func TestAccrualNoOpWithoutBorrows(t *testing.T) {
	env := newTestEnv(t)
	token := env.listAsset(assetX, referenceRateConfig(), wad)
	token.Mint(userA, wadAmount(100))
	env.mustSupply(userA, assetX, wadAmount(100))

	env.engine.SetStep(5)
	if err := env.engine.Accrue(assetX); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	market, err := env.engine.Market(assetX)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	requireBig(t, market.Index, cloneBig(wad), "index unchanged")
	requireBig(t, market.TotalSupply, wadAmount(100), "total supply unchanged")
	if market.LastAccrualStep != 5 {
		t.Fatalf("last accrual step must advance even without interest: got %d", market.LastAccrualStep)
	}
}

func TestAccrualIndexMonotonic(t *testing.T) {
	env := newTestEnv(t)
	token := env.listAsset(assetX, referenceRateConfig(), wad)
	token.Mint(userA, wadAmount(2000))
	env.mustSupply(userA, assetX, wadAmount(1000))
	env.mustEnableCollateral(userA, assetX)
	env.mustBorrow(userA, assetX, wadAmount(400))

	previous := cloneBig(wad)
	for step := uint64(1); step <= 6; step++ {
		env.engine.SetStep(step)
		if err := env.engine.Accrue(assetX); err != nil {
			t.Fatalf("accrue step %d: %v", step, err)
		}
		market, err := env.engine.Market(assetX)
		if err != nil {
			t.Fatalf("market: %v", err)
		}
		if market.Index.Cmp(previous) < 0 {
			t.Fatalf("index decreased at step %d: %v -> %v", step, previous, market.Index)
		}
		previous = market.Index
	}
}

func TestAccrualConservesBorrowBalances(t *testing.T) {
	env := newTestEnv(t)
	token := env.listAsset(assetX, referenceRateConfig(), wad)
	token.Mint(userA, wadAmount(2000))
	token.Mint(userB, wadAmount(2000))
	env.mustSupply(userA, assetX, wadAmount(1000))
	env.mustEnableCollateral(userA, assetX)
	env.mustSupply(userB, assetX, wadAmount(1000))
	env.mustEnableCollateral(userB, assetX)
	env.mustBorrow(userA, assetX, wadAmount(300))
	env.mustBorrow(userB, assetX, wadAmount(500))

	for step := uint64(1); step <= 4; step++ {
		env.engine.SetStep(step)
		if err := env.engine.Accrue(assetX); err != nil {
			t.Fatalf("accrue step %d: %v", step, err)
		}
	}
	market, err := env.engine.Market(assetX)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	balanceA, err := env.engine.BorrowBalance(userA, assetX)
	if err != nil {
		t.Fatalf("balance A: %v", err)
	}
	balanceB, err := env.engine.BorrowBalance(userB, assetX)
	if err != nil {
		t.Fatalf("balance B: %v", err)
	}
	sum := new(big.Int).Add(balanceA, balanceB)
	if sum.Cmp(market.TotalBorrows) > 0 {
		t.Fatalf("derived balances exceed total borrows: total %v sum %v", market.TotalBorrows, sum)
	}
	diff := new(big.Int).Sub(market.TotalBorrows, sum)
	// Index truncation sheds under a wei of index per step, which scales by
	// the 800 whole units of principal: at most 3200 wei over four steps.
	if diff.Cmp(big.NewInt(3200)) > 0 {
		t.Fatalf("aggregate drift too large: total %v sum %v", market.TotalBorrows, sum)
	}
}

func TestRepayAfterAccrualClearsDebt(t *testing.T) {
	env := newTestEnv(t)
	token := env.listAsset(assetX, referenceRateConfig(), wad)
	token.Mint(userA, wadAmount(2000))
	env.mustSupply(userA, assetX, wadAmount(1000))
	env.mustEnableCollateral(userA, assetX)
	env.mustBorrow(userA, assetX, wadAmount(400))

	env.engine.SetStep(1)
	repaid, err := env.engine.Repay(userA, assetX, wadAmount(9999))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	requireBig(t, repaid, wadAmount(420), "repaid balance includes interest")
	position, err := env.engine.Position(userA, assetX)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	requireBig(t, position.BorrowedPrincipal, big.NewInt(0), "debt cleared")
	market, err := env.engine.Market(assetX)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	requireBig(t, market.TotalBorrows, big.NewInt(0), "total borrows cleared")
	requireBig(t, position.IndexSnapshot, big.NewInt(105e16), "snapshot refreshed")
}
