package lending

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// Liquidation fixture: borrower holds 200 X as collateral and owes 70 Y
// priced at 2.0, funded by a third-party supplier. Healthy until the
// collateral price drops.
func liquidationFixture(t *testing.T) (*testEnv, *LedgerToken, *LedgerToken) {
	t.Helper()
	env := newTestEnv(t)
	tokenX := env.listAsset(assetX, defaultConfig(), wad)
	tokenY := env.listAsset(assetY, defaultConfig(), big.NewInt(2e18))
	tokenX.Mint(userA, wadAmount(200))
	tokenY.Mint(userB, wadAmount(100))
	tokenY.Mint(userC, wadAmount(50))
	env.mustSupply(userA, assetX, wadAmount(200))
	env.mustEnableCollateral(userA, assetX)
	env.mustSupply(userB, assetY, wadAmount(100))
	env.mustBorrow(userA, assetY, wadAmount(70))
	return env, tokenX, tokenY
}

func TestLiquidateSeizesCollateralWithBonus(t *testing.T) {
	env, tokenX, tokenY := liquidationFixture(t)
	if err := env.oracle.SetPrice(assetX, big.NewInt(8e17)); err != nil {
		t.Fatalf("set price: %v", err)
	}

	cover, seize, err := env.engine.Liquidate(userC, userA, assetX, assetY, wadAmount(42))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	requireBig(t, cover, wadAmount(42), "covered debt")
	// 42 units of debt at price 2.0 converts to 105 units of collateral at
	// price 0.8; the 5% bonus lifts the seizure to 110.25.
	wantSeize, _ := new(big.Int).SetString("110250000000000000000", 10)
	requireBig(t, seize, wantSeize, "seized collateral")

	debtPosition, err := env.engine.Position(userA, assetY)
	if err != nil {
		t.Fatalf("debt position: %v", err)
	}
	requireBig(t, debtPosition.BorrowedPrincipal, wadAmount(28), "remaining debt")
	collPosition, err := env.engine.Position(userA, assetX)
	if err != nil {
		t.Fatalf("collateral position: %v", err)
	}
	wantRemaining := new(big.Int).Sub(wadAmount(200), wantSeize)
	requireBig(t, collPosition.SuppliedPrincipal, wantRemaining, "remaining collateral")

	marketY, err := env.engine.Market(assetY)
	if err != nil {
		t.Fatalf("market Y: %v", err)
	}
	requireBig(t, marketY.TotalBorrows, wadAmount(28), "total borrows")
	marketX, err := env.engine.Market(assetX)
	if err != nil {
		t.Fatalf("market X: %v", err)
	}
	requireBig(t, marketX.TotalSupply, wantRemaining, "total supply")

	globals, err := env.engine.ProtocolFees()
	if err != nil {
		t.Fatalf("globals: %v", err)
	}
	requireBig(t, globals.LiquidationVolume, wantSeize, "liquidation volume")

	requireBig(t, tokenY.BalanceOf(userC), wadAmount(8), "liquidator debt asset")
	requireBig(t, tokenX.BalanceOf(userC), wantSeize, "liquidator collateral asset")
}

func TestLiquidateClampsCoverToOwed(t *testing.T) {
	env, _, _ := liquidationFixture(t)
	if err := env.oracle.SetPrice(assetX, big.NewInt(8e17)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	env.tokens[assetY].Mint(userC, wadAmount(200))

	cover, seize, err := env.engine.Liquidate(userC, userA, assetX, assetY, wadAmount(9999))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	requireBig(t, cover, wadAmount(70), "cover clamped to owed")
	// 70 * 2.0 / 0.8 * 1.05 = 183.75, inside the 200 supplied.
	wantSeize, _ := new(big.Int).SetString("183750000000000000000", 10)
	requireBig(t, seize, wantSeize, "seized collateral")
}

func TestLiquidateClampsSeizureToSupplied(t *testing.T) {
	env, tokenX, _ := liquidationFixture(t)
	// Deep crash: the bonus formula asks for 367.5 against 200 supplied.
	if err := env.oracle.SetPrice(assetX, big.NewInt(4e17)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	env.tokens[assetY].Mint(userC, wadAmount(200))

	cover, seize, err := env.engine.Liquidate(userC, userA, assetX, assetY, wadAmount(70))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	requireBig(t, cover, wadAmount(70), "covered debt")
	requireBig(t, seize, wadAmount(200), "seizure clamped to supplied")

	collPosition, err := env.engine.Position(userA, assetX)
	if err != nil {
		t.Fatalf("collateral position: %v", err)
	}
	requireBig(t, collPosition.SuppliedPrincipal, big.NewInt(0), "collateral wiped")
	marketX, err := env.engine.Market(assetX)
	if err != nil {
		t.Fatalf("market X: %v", err)
	}
	requireBig(t, marketX.TotalSupply, big.NewInt(0), "supply wiped")
	requireBig(t, tokenX.BalanceOf(userC), wadAmount(200), "liquidator received all collateral")
}

func TestLiquidateRejectsHealthyBorrower(t *testing.T) {
	env, _, _ := liquidationFixture(t)
	if _, _, err := env.engine.Liquidate(userC, userA, assetX, assetY, wadAmount(10)); !errors.Is(err, ErrNotLiquidatable) {
		t.Fatalf("healthy borrower: got %v", err)
	}
}

func TestLiquidateRejectsSelf(t *testing.T) {
	env, _, _ := liquidationFixture(t)
	if _, _, err := env.engine.Liquidate(userA, userA, assetX, assetY, wadAmount(10)); !errors.Is(err, ErrSelfLiquidation) {
		t.Fatalf("self liquidation: got %v", err)
	}
}

func TestLiquidateRejectsUnpricedCollateral(t *testing.T) {
	env, _, _ := liquidationFixture(t)
	if err := env.oracle.SetPrice(assetX, big.NewInt(0)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if _, _, err := env.engine.Liquidate(userC, userA, assetX, assetY, wadAmount(10)); !errors.Is(err, ErrAssetUnpriced) {
		t.Fatalf("unpriced collateral: got %v", err)
	}
}

func TestLiquidateSameAssetAfterAccrual(t *testing.T) {
	env := newTestEnv(t)
	token := env.listAsset(assetX, defaultConfig(), wad)
	token.Mint(userA, wadAmount(100))
	token.Mint(userC, wadAmount(50))
	env.mustSupply(userA, assetX, wadAmount(100))
	env.mustEnableCollateral(userA, assetX)
	env.mustBorrow(userA, assetX, wadAmount(75))

	// A same-asset position cannot go under water on price alone; interest
	// growth over two steps pushes the debt past the threshold.
	env.engine.SetStep(2)
	if err := env.engine.Accrue(assetX); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	health, err := env.engine.HealthFactor(userA, assetX)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if health.Cmp(wad) >= 0 {
		t.Fatalf("expected unhealthy account, health %v", health)
	}

	before, err := env.engine.Market(assetX)
	if err != nil {
		t.Fatalf("market before: %v", err)
	}
	cover, seize, err := env.engine.Liquidate(userC, userA, assetX, assetX, wadAmount(10))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	requireBig(t, cover, wadAmount(10), "covered debt")
	// Same-asset seizure at equal prices is the cover plus the 5% bonus.
	wantSeize, _ := new(big.Int).SetString("10500000000000000000", 10)
	requireBig(t, seize, wantSeize, "seized collateral")

	after, err := env.engine.Market(assetX)
	if err != nil {
		t.Fatalf("market after: %v", err)
	}
	borrowDelta := new(big.Int).Sub(before.TotalBorrows, after.TotalBorrows)
	requireBig(t, borrowDelta, cover, "borrow total delta")
	supplyDelta := new(big.Int).Sub(before.TotalSupply, after.TotalSupply)
	requireBig(t, supplyDelta, seize, "supply total delta")
}

// failPayoutToken accepts pulls but refuses every outbound transfer.
type failPayoutToken struct {
	*LedgerToken
}

func (t *failPayoutToken) Transfer(to common.Address, amount *big.Int) bool {
	return false
}

func TestLiquidateRefundsWhenPayoutFails(t *testing.T) {
	env := newTestEnv(t)
	collToken := &failPayoutToken{NewLedgerToken(vaultAddr)}
	if err := env.engine.ListAsset(assetX, defaultConfig(), collToken); err != nil {
		t.Fatalf("list collateral asset: %v", err)
	}
	if err := env.oracle.SetPrice(assetX, cloneBig(wad)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	tokenY := env.listAsset(assetY, defaultConfig(), big.NewInt(2e18))
	collToken.Mint(userA, wadAmount(200))
	tokenY.Mint(userB, wadAmount(100))
	tokenY.Mint(userC, wadAmount(50))
	env.mustSupply(userA, assetX, wadAmount(200))
	env.mustEnableCollateral(userA, assetX)
	env.mustSupply(userB, assetY, wadAmount(100))
	env.mustBorrow(userA, assetY, wadAmount(70))
	if err := env.oracle.SetPrice(assetX, big.NewInt(8e17)); err != nil {
		t.Fatalf("set price: %v", err)
	}

	_, _, err := env.engine.Liquidate(userC, userA, assetX, assetY, wadAmount(42))
	if !errors.Is(err, ErrTokenTransfer) {
		t.Fatalf("failed payout: got %v", err)
	}
	// The pulled repayment is handed back and the ledger is untouched.
	requireBig(t, tokenY.BalanceOf(userC), wadAmount(50), "liquidator refunded")
	position, perr := env.engine.Position(userA, assetY)
	if perr != nil {
		t.Fatalf("position: %v", perr)
	}
	requireBig(t, position.BorrowedPrincipal, wadAmount(70), "debt unchanged")
	marketX, merr := env.engine.Market(assetX)
	if merr != nil {
		t.Fatalf("market: %v", merr)
	}
	requireBig(t, marketX.TotalSupply, wadAmount(200), "collateral supply unchanged")
	globals, gerr := env.engine.ProtocolFees()
	if gerr != nil {
		t.Fatalf("globals: %v", gerr)
	}
	requireBig(t, globals.LiquidationVolume, big.NewInt(0), "no volume recorded")
}
