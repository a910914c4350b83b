package lending

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "lendvault/native/common"
)

func TestPausedModuleRejectsMutations(t *testing.T) {
	env := newTestEnv(t)
	token := env.listAsset(assetX, defaultConfig(), wad)
	token.Mint(userA, wadAmount(100))
	env.mustSupply(userA, assetX, wadAmount(50))

	env.pauses.SetPaused("lending", true)
	if err := env.engine.Supply(userA, assetX, wadAmount(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("paused supply: got %v", err)
	}
	if err := env.engine.Withdraw(userA, assetX, wadAmount(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("paused withdraw: got %v", err)
	}
	if err := env.engine.Borrow(userA, assetX, wadAmount(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("paused borrow: got %v", err)
	}
	if _, err := env.engine.Repay(userA, assetX, wadAmount(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("paused repay: got %v", err)
	}
	if _, _, err := env.engine.Liquidate(userB, userA, assetX, assetX, wadAmount(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("paused liquidate: got %v", err)
	}
	if err := env.engine.SetCollateralEnabled(userA, assetX, true); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("paused toggle: got %v", err)
	}

	// Queries and accrual keep working while paused.
	if _, err := env.engine.Market(assetX); err != nil {
		t.Fatalf("paused query: %v", err)
	}
	if err := env.engine.Accrue(assetX); err != nil {
		t.Fatalf("paused accrue: %v", err)
	}

	env.pauses.SetPaused("lending", false)
	if err := env.engine.Supply(userA, assetX, wadAmount(1)); err != nil {
		t.Fatalf("resumed supply: %v", err)
	}
}

// reentrantToken calls back into the engine from inside a pull, then
// performs the real transfer so the outer operation can proceed.
type reentrantToken struct {
	*LedgerToken
	engine *Engine
	inner  error
	fired  bool
}

func (t *reentrantToken) TransferFrom(from, to common.Address, amount *big.Int) bool {
	if !t.fired {
		t.fired = true
		t.inner = t.engine.Supply(from, assetX, big.NewInt(1))
	}
	return t.LedgerToken.TransferFrom(from, to, amount)
}

func TestReentrantCallRejected(t *testing.T) {
	env := newTestEnv(t)
	token := &reentrantToken{LedgerToken: NewLedgerToken(vaultAddr), engine: env.engine}
	if err := env.engine.ListAsset(assetX, defaultConfig(), token); err != nil {
		t.Fatalf("list asset: %v", err)
	}
	if err := env.oracle.SetPrice(assetX, cloneBig(wad)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	token.Mint(userA, wadAmount(100))

	if err := env.engine.Supply(userA, assetX, wadAmount(50)); err != nil {
		t.Fatalf("outer supply: %v", err)
	}
	if !token.fired {
		t.Fatalf("reentrant callback never ran")
	}
	if !errors.Is(token.inner, ErrReentrancy) {
		t.Fatalf("inner call: got %v", token.inner)
	}
	position, err := env.engine.Position(userA, assetX)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	requireBig(t, position.SuppliedPrincipal, wadAmount(50), "only the outer supply landed")
}

// feeToken skims one unit off every pull, mimicking a fee-on-transfer token.
type feeToken struct {
	*LedgerToken
}

func (t *feeToken) TransferFrom(from, to common.Address, amount *big.Int) bool {
	received := new(big.Int).Sub(amount, big.NewInt(1))
	if received.Sign() < 0 {
		received = big.NewInt(0)
	}
	return t.LedgerToken.TransferFrom(from, to, received)
}

func TestSupplyRejectsShortTransfer(t *testing.T) {
	env := newTestEnv(t)
	token := &feeToken{NewLedgerToken(vaultAddr)}
	if err := env.engine.ListAsset(assetX, defaultConfig(), token); err != nil {
		t.Fatalf("list asset: %v", err)
	}
	if err := env.oracle.SetPrice(assetX, cloneBig(wad)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	token.Mint(userA, wadAmount(100))

	if err := env.engine.Supply(userA, assetX, wadAmount(50)); !errors.Is(err, ErrTransferMismatch) {
		t.Fatalf("short transfer: got %v", err)
	}
	// The partial pull is refunded and nothing is credited.
	requireBig(t, token.BalanceOf(userA), wadAmount(100), "user refunded")
	requireBig(t, token.BalanceOf(vaultAddr), big.NewInt(0), "vault balance")
	position, err := env.engine.Position(userA, assetX)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if position != nil && position.SuppliedPrincipal.Sign() != 0 {
		t.Fatalf("principal credited on failed pull: %v", position.SuppliedPrincipal)
	}
	market, err := env.engine.Market(assetX)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	requireBig(t, market.TotalSupply, big.NewInt(0), "total supply")
}
