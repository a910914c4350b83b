package lending

import (
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "lendvault/native/common"
)

const moduleName = "lending"

// Engine orchestrates the vault's state transitions: supply, withdraw,
// collateral toggling, borrow, repay and liquidation. Every mutating entry
// point brings the touched markets' indices current first, then validates,
// mutates in-memory copies, reconciles token movement, and persists last, so
// a failure anywhere leaves the stored state untouched.
//
// Callers are expected to serialize mutating calls (the RPC module layer
// does); the engine's own guard exists to reject reentrant calls made by a
// token collaborator while an operation is mid-flight.
type Engine struct {
	state  engineState
	oracle PriceView
	pauses nativecommon.PauseView
	vault  common.Address

	step    atomic.Uint64
	entered atomic.Bool

	tokensMu sync.RWMutex
	tokens   map[common.Address]Token
}

// NewEngine constructs an engine holding assets under the given vault
// address.
func NewEngine(vault common.Address) *Engine {
	return &Engine{
		vault:  vault,
		tokens: make(map[common.Address]Token),
	}
}

// SetState wires the engine to its persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOracle wires the engine to the price source.
func (e *Engine) SetOracle(oracle PriceView) { e.oracle = oracle }

// SetPauses wires the module pause switches consulted on every entry point.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetStep records the discrete time step used for accrual deltas.
func (e *Engine) SetStep(step uint64) { e.step.Store(step) }

// Step returns the engine's current time step.
func (e *Engine) Step() uint64 { return e.step.Load() }

// Vault returns the address holding the vault's token balances.
func (e *Engine) Vault() common.Address { return e.vault }

// enter acquires the global reentrancy guard. A token collaborator calling
// back into the engine mid-operation trips the flag and fails fast instead
// of observing partially-updated state.
func (e *Engine) enter() (func(), error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if !e.entered.CompareAndSwap(false, true) {
		return nil, ErrReentrancy
	}
	return func() { e.entered.Store(false) }, nil
}

// ListAsset registers a new market with its token binding. Config bounds are
// enforced here; the engine assumes nothing about them afterwards.
func (e *Engine) ListAsset(asset common.Address, cfg AssetConfig, token Token) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if token == nil {
		return ErrTokenNotRegistered
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	existing, err := e.state.GetMarket(asset)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAssetAlreadyListed
	}
	market := NewMarket(asset, cfg)
	market.LastAccrualStep = e.Step()
	if err := e.state.PutMarket(market); err != nil {
		return err
	}
	e.tokensMu.Lock()
	e.tokens[asset] = token
	e.tokensMu.Unlock()
	return nil
}

// BindToken attaches a token adapter for an already listed asset, used when
// rehydrating markets from storage at startup.
func (e *Engine) BindToken(asset common.Address, token Token) {
	if e == nil || token == nil {
		return
	}
	e.tokensMu.Lock()
	e.tokens[asset] = token
	e.tokensMu.Unlock()
}

func (e *Engine) token(asset common.Address) (Token, error) {
	e.tokensMu.RLock()
	defer e.tokensMu.RUnlock()
	token, ok := e.tokens[asset]
	if !ok || token == nil {
		return nil, ErrTokenNotRegistered
	}
	return token, nil
}

// accrue advances a market's index and totals to the current step. Interest
// is charged to borrowers and credited to suppliers by growing both totals;
// the reserve share is earmarked in the global fee accumulator without being
// deducted from circulating supply. The last-accrual step always advances so
// the elapsed delta can never be replayed.
func (e *Engine) accrue(market *Market, globals *Globals) {
	step := e.Step()
	if step <= market.LastAccrualStep {
		return
	}
	if market.TotalBorrows.Sign() > 0 && market.TotalSupply.Sign() > 0 {
		elapsed := new(big.Int).SetUint64(step - market.LastAccrualStep)
		utilization := wadDiv(market.TotalBorrows, market.TotalSupply)
		rate := RatePerStep(market.Config, utilization)
		if rate.Sign() > 0 {
			rateElapsed := new(big.Int).Mul(rate, elapsed)
			interest := mulDiv(market.TotalBorrows, rateElapsed, wad)
			if interest.Sign() > 0 {
				market.TotalBorrows = new(big.Int).Add(market.TotalBorrows, interest)
				market.TotalSupply = new(big.Int).Add(market.TotalSupply, interest)
				globals.ProtocolFees = new(big.Int).Add(globals.ProtocolFees, bpsMul(interest, market.Config.ReserveFactorBps))
			}
			factor := new(big.Int).Add(cloneBig(wad), rateElapsed)
			market.Index = mulDiv(market.Index, factor, wad)
		}
	}
	market.LastAccrualStep = step
}

// syncPosition re-bases the stored borrow principal onto the market's
// current index, so the principal is always "principal as of last snapshot".
func syncPosition(position *Position, market *Market) {
	if position.IndexSnapshot == nil || position.IndexSnapshot.Sign() == 0 {
		position.IndexSnapshot = cloneBig(wad)
	}
	if position.BorrowedPrincipal.Sign() > 0 && position.IndexSnapshot.Cmp(market.Index) != 0 {
		position.BorrowedPrincipal = mulDiv(position.BorrowedPrincipal, market.Index, position.IndexSnapshot)
	}
	position.IndexSnapshot = cloneBig(market.Index)
}

func (e *Engine) ensureMarket(asset common.Address) (*Market, error) {
	market, err := e.state.GetMarket(asset)
	if err != nil {
		return nil, err
	}
	if market == nil {
		return nil, ErrAssetNotListed
	}
	market.EnsureDefaults()
	return market, nil
}

func (e *Engine) ensurePosition(user, asset common.Address, market *Market) (*Position, error) {
	position, err := e.state.GetPosition(user, asset)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &Position{
			User:          user,
			Asset:         asset,
			IndexSnapshot: cloneBig(market.Index),
		}
	}
	position.EnsureDefaults()
	return position, nil
}

func (e *Engine) ensureGlobals() (*Globals, error) {
	globals, err := e.state.GetGlobals()
	if err != nil {
		return nil, err
	}
	globals.EnsureDefaults()
	return globals, nil
}

// pullExact pulls amount into the vault and reconciles the observed balance
// delta against the request. Fee-on-transfer or short-transfer tokens make
// the delta diverge; the pull is then refunded best-effort and the operation
// aborts.
func (e *Engine) pullExact(token Token, from common.Address, amount *big.Int) error {
	before := nonNil(token.BalanceOf(e.vault))
	if !token.TransferFrom(from, e.vault, amount) {
		return ErrTokenTransfer
	}
	after := nonNil(token.BalanceOf(e.vault))
	delta := new(big.Int).Sub(after, before)
	if delta.Cmp(amount) != 0 {
		if delta.Sign() > 0 {
			token.Transfer(from, delta)
		}
		return ErrTransferMismatch
	}
	return nil
}

func (e *Engine) persist(markets []*Market, positions []*Position, globals *Globals) error {
	for _, market := range markets {
		if err := e.state.PutMarket(market); err != nil {
			return err
		}
	}
	for _, position := range positions {
		if err := e.state.PutPosition(position); err != nil {
			return err
		}
	}
	if globals != nil {
		if err := e.state.PutGlobals(globals); err != nil {
			return err
		}
	}
	return nil
}

// Accrue brings a single market's index and totals current. It runs even
// while the module is paused: elapsed steps represent time, and time passes
// regardless of the pause switch.
func (e *Engine) Accrue(asset common.Address) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	market, err := e.ensureMarket(asset)
	if err != nil {
		return err
	}
	globals, err := e.ensureGlobals()
	if err != nil {
		return err
	}
	e.accrue(market, globals)
	return e.persist([]*Market{market}, nil, globals)
}

// AccrueAll brings every listed market current.
func (e *Engine) AccrueAll() error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	assets, err := e.state.ListedAssets()
	if err != nil {
		return err
	}
	globals, err := e.ensureGlobals()
	if err != nil {
		return err
	}
	markets := make([]*Market, 0, len(assets))
	for _, asset := range assets {
		market, err := e.ensureMarket(asset)
		if err != nil {
			return err
		}
		e.accrue(market, globals)
		markets = append(markets, market)
	}
	return e.persist(markets, nil, globals)
}

// Supply deposits amount of the asset into the vault as interest-bearing
// principal. The tokens are pulled from the supplier and reconciled against
// the observed balance delta before any ledger credit.
func (e *Engine) Supply(user, asset common.Address, amount *big.Int) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	market, err := e.ensureMarket(asset)
	if err != nil {
		return err
	}
	if market.Config.DepositsFrozen {
		return ErrDepositsFrozen
	}
	globals, err := e.ensureGlobals()
	if err != nil {
		return err
	}
	e.accrue(market, globals)
	if cap := market.Config.SupplyCap; cap != nil && cap.Sign() > 0 {
		next := new(big.Int).Add(market.TotalSupply, amount)
		if next.Cmp(cap) > 0 {
			return ErrSupplyCapExceeded
		}
	}
	position, err := e.ensurePosition(user, asset, market)
	if err != nil {
		return err
	}
	syncPosition(position, market)

	token, err := e.token(asset)
	if err != nil {
		return err
	}
	if err := e.pullExact(token, user, amount); err != nil {
		return err
	}

	position.SuppliedPrincipal = new(big.Int).Add(position.SuppliedPrincipal, amount)
	market.TotalSupply = new(big.Int).Add(market.TotalSupply, amount)
	return e.persist([]*Market{market}, []*Position{position}, globals)
}

// Withdraw releases supplied principal back to the user. When the position
// backs outstanding debt, the post-withdrawal state must stay above the
// liquidation boundary.
func (e *Engine) Withdraw(user, asset common.Address, amount *big.Int) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	market, err := e.ensureMarket(asset)
	if err != nil {
		return err
	}
	globals, err := e.ensureGlobals()
	if err != nil {
		return err
	}
	e.accrue(market, globals)
	position, err := e.ensurePosition(user, asset, market)
	if err != nil {
		return err
	}
	syncPosition(position, market)
	if amount.Cmp(position.SuppliedPrincipal) > 0 {
		return ErrExceedsSupplied
	}

	if position.CollateralEnabled {
		indebted, err := e.hasDebt(user)
		if err != nil {
			return err
		}
		if indebted {
			remaining := new(big.Int).Sub(position.SuppliedPrincipal, amount)
			overlay := map[common.Address]*Market{asset: market}
			health, err := e.healthFactor(user, market, &hypothetical{Asset: asset, Supplied: remaining}, overlay)
			if err != nil {
				return err
			}
			if health.Cmp(wad) < 0 {
				return ErrHealthFactor
			}
		}
	}

	newSupplied, err := subChecked(position.SuppliedPrincipal, amount)
	if err != nil {
		return err
	}
	newTotal, err := subChecked(market.TotalSupply, amount)
	if err != nil {
		return err
	}
	token, err := e.token(asset)
	if err != nil {
		return err
	}
	if !token.Transfer(user, amount) {
		return ErrTokenTransfer
	}
	position.SuppliedPrincipal = newSupplied
	market.TotalSupply = newTotal
	return e.persist([]*Market{market}, []*Position{position}, globals)
}

// SetCollateralEnabled flips the collateral flag on a position. Flipping in
// either direction while debt is outstanding must leave the account above
// the liquidation boundary; the disable direction prices the position's
// contribution at zero.
func (e *Engine) SetCollateralEnabled(user, asset common.Address, enabled bool) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	market, err := e.ensureMarket(asset)
	if err != nil {
		return err
	}
	globals, err := e.ensureGlobals()
	if err != nil {
		return err
	}
	e.accrue(market, globals)
	position, err := e.ensurePosition(user, asset, market)
	if err != nil {
		return err
	}
	syncPosition(position, market)

	// Both flip directions are health-checked when debt is outstanding, not
	// just enabling: an indebted borrower must never be able to price their
	// own collateral out of the account and leave the debt unbacked.
	if position.CollateralEnabled != enabled {
		indebted, err := e.hasDebt(user)
		if err != nil {
			return err
		}
		if indebted {
			substitute := big.NewInt(0)
			if enabled {
				substitute = cloneBig(position.SuppliedPrincipal)
			}
			overlay := map[common.Address]*Market{asset: market}
			health, err := e.healthFactor(user, market, &hypothetical{Asset: asset, Supplied: substitute}, overlay)
			if err != nil {
				return err
			}
			if health.Cmp(wad) < 0 {
				return ErrHealthFactor
			}
		}
	}

	position.CollateralEnabled = enabled
	return e.persist([]*Market{market}, []*Position{position}, globals)
}

// Borrow originates debt against the user's enabled collateral. Two
// independent checks gate it: the collateral-factor capacity limit bounds
// origination, and the liquidation-threshold health factor keeps new debt
// safely inside the liquidation boundary from the start.
func (e *Engine) Borrow(user, asset common.Address, amount *big.Int) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	market, err := e.ensureMarket(asset)
	if err != nil {
		return err
	}
	if !market.Config.BorrowEnabled {
		return ErrBorrowDisabled
	}
	globals, err := e.ensureGlobals()
	if err != nil {
		return err
	}
	e.accrue(market, globals)
	if cap := market.Config.BorrowCap; cap != nil && cap.Sign() > 0 {
		next := new(big.Int).Add(market.TotalBorrows, amount)
		if next.Cmp(cap) > 0 {
			return ErrBorrowCapExceeded
		}
	}
	position, err := e.ensurePosition(user, asset, market)
	if err != nil {
		return err
	}
	syncPosition(position, market)

	newBalance := new(big.Int).Add(position.BorrowedPrincipal, amount)
	overlay := map[common.Address]*Market{asset: market}
	hyp := &hypothetical{Asset: asset, Borrowed: newBalance}

	borrowVal, err := e.borrowValue(user, hyp, overlay)
	if err != nil {
		return err
	}
	collVal, err := e.collateralValue(user, nil)
	if err != nil {
		return err
	}
	capacity := bpsMul(collVal, market.Config.CollateralFactorBps)
	if borrowVal.Cmp(capacity) > 0 {
		return ErrInsufficientCollateral
	}
	health, err := e.healthFactor(user, market, hyp, overlay)
	if err != nil {
		return err
	}
	if health.Cmp(wad) < 0 {
		return ErrHealthFactor
	}

	token, err := e.token(asset)
	if err != nil {
		return err
	}
	if !token.Transfer(user, amount) {
		return ErrTokenTransfer
	}
	position.BorrowedPrincipal = newBalance
	market.TotalBorrows = new(big.Int).Add(market.TotalBorrows, amount)
	return e.persist([]*Market{market}, []*Position{position}, globals)
}

// Repay pays down the user's debt, clamped to the balance currently owed so
// overpayment can never accumulate dust. The repaid amount is returned.
func (e *Engine) Repay(user, asset common.Address, amount *big.Int) (*big.Int, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	market, err := e.ensureMarket(asset)
	if err != nil {
		return nil, err
	}
	globals, err := e.ensureGlobals()
	if err != nil {
		return nil, err
	}
	e.accrue(market, globals)
	position, err := e.ensurePosition(user, asset, market)
	if err != nil {
		return nil, err
	}
	syncPosition(position, market)

	owed := position.BorrowedPrincipal
	if owed.Sign() == 0 {
		return nil, ErrNoDebtToRepay
	}
	pay := cloneBig(amount)
	if pay.Cmp(owed) > 0 {
		pay = cloneBig(owed)
	}

	token, err := e.token(asset)
	if err != nil {
		return nil, err
	}
	if err := e.pullExact(token, user, pay); err != nil {
		return nil, err
	}

	position.BorrowedPrincipal = new(big.Int).Sub(owed, pay)
	newTotal, err := subChecked(market.TotalBorrows, pay)
	if err != nil {
		return nil, err
	}
	market.TotalBorrows = newTotal
	if err := e.persist([]*Market{market}, []*Position{position}, globals); err != nil {
		return nil, err
	}
	return pay, nil
}

// Liquidate lets a third party cover part of an unhealthy borrower's debt in
// exchange for collateral plus the liquidation bonus. Returns the debt
// actually covered and the collateral seized.
func (e *Engine) Liquidate(liquidator, borrower, collateralAsset, debtAsset common.Address, debtToCover *big.Int) (*big.Int, *big.Int, error) {
	release, err := e.enter()
	if err != nil {
		return nil, nil, err
	}
	defer release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if liquidator == borrower {
		return nil, nil, ErrSelfLiquidation
	}
	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	debtMarket, err := e.ensureMarket(debtAsset)
	if err != nil {
		return nil, nil, err
	}
	collMarket := debtMarket
	if collateralAsset != debtAsset {
		collMarket, err = e.ensureMarket(collateralAsset)
		if err != nil {
			return nil, nil, err
		}
	}
	globals, err := e.ensureGlobals()
	if err != nil {
		return nil, nil, err
	}
	e.accrue(debtMarket, globals)
	if collMarket != debtMarket {
		e.accrue(collMarket, globals)
	}

	debtPosition, err := e.ensurePosition(borrower, debtAsset, debtMarket)
	if err != nil {
		return nil, nil, err
	}
	syncPosition(debtPosition, debtMarket)
	collPosition := debtPosition
	if collateralAsset != debtAsset {
		collPosition, err = e.ensurePosition(borrower, collateralAsset, collMarket)
		if err != nil {
			return nil, nil, err
		}
		syncPosition(collPosition, collMarket)
	}

	owed := debtPosition.BorrowedPrincipal
	if owed.Sign() == 0 {
		return nil, nil, ErrNoDebtToRepay
	}
	cover := cloneBig(debtToCover)
	if cover.Cmp(owed) > 0 {
		cover = cloneBig(owed)
	}

	overlay := map[common.Address]*Market{debtAsset: debtMarket, collateralAsset: collMarket}
	health, err := e.healthFactor(borrower, collMarket, nil, overlay)
	if err != nil {
		return nil, nil, err
	}
	if health.Cmp(wad) >= 0 {
		return nil, nil, ErrNotLiquidatable
	}

	debtPrice := e.priceOf(debtAsset)
	collPrice := e.priceOf(collateralAsset)
	if debtPrice.Sign() == 0 || collPrice.Sign() == 0 {
		return nil, nil, ErrAssetUnpriced
	}

	// Covered debt value in collateral units, grossed up by the bonus, then
	// clamped to what the borrower actually has (partial seizure when
	// undercollateralized beyond what the bonus implies).
	collateralOfDebt := mulDiv(cover, debtPrice, collPrice)
	bonus := new(big.Int).SetUint64(10_000 + collMarket.Config.LiquidationBonusBps)
	seize := mulDiv(collateralOfDebt, bonus, basisPoints)
	if seize.Cmp(collPosition.SuppliedPrincipal) > 0 {
		seize = cloneBig(collPosition.SuppliedPrincipal)
	}

	debtPosition.BorrowedPrincipal = new(big.Int).Sub(owed, cover)
	newBorrows, err := subChecked(debtMarket.TotalBorrows, cover)
	if err != nil {
		return nil, nil, err
	}
	newSeized, err := subChecked(collPosition.SuppliedPrincipal, seize)
	if err != nil {
		return nil, nil, err
	}
	newSupply, err := subChecked(collMarket.TotalSupply, seize)
	if err != nil {
		return nil, nil, err
	}

	debtToken, err := e.token(debtAsset)
	if err != nil {
		return nil, nil, err
	}
	collToken, err := e.token(collateralAsset)
	if err != nil {
		return nil, nil, err
	}
	if err := e.pullExact(debtToken, liquidator, cover); err != nil {
		return nil, nil, err
	}
	if !collToken.Transfer(liquidator, seize) {
		// Hand the pulled repayment back before aborting.
		debtToken.Transfer(liquidator, cover)
		return nil, nil, ErrTokenTransfer
	}

	debtMarket.TotalBorrows = newBorrows
	collPosition.SuppliedPrincipal = newSeized
	collMarket.TotalSupply = newSupply
	globals.LiquidationVolume = new(big.Int).Add(globals.LiquidationVolume, seize)

	markets := []*Market{debtMarket}
	positions := []*Position{debtPosition}
	if collMarket != debtMarket {
		markets = append(markets, collMarket)
	}
	if collPosition != debtPosition {
		positions = append(positions, collPosition)
	}
	if err := e.persist(markets, positions, globals); err != nil {
		return nil, nil, err
	}
	return cover, seize, nil
}

// WithdrawProtocolFees drains accrued reserves to a recipient, paid in the
// given asset. The earmarked amount lives inside that market's total supply,
// so the total shrinks with the payout.
func (e *Engine) WithdrawProtocolFees(asset, recipient common.Address, amount *big.Int) (*big.Int, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	market, err := e.ensureMarket(asset)
	if err != nil {
		return nil, err
	}
	globals, err := e.ensureGlobals()
	if err != nil {
		return nil, err
	}
	e.accrue(market, globals)
	if globals.ProtocolFees.Cmp(amount) < 0 {
		return nil, ErrInsufficientFees
	}
	newSupply, err := subChecked(market.TotalSupply, amount)
	if err != nil {
		return nil, err
	}
	newFees, err := subChecked(globals.ProtocolFees, amount)
	if err != nil {
		return nil, err
	}
	token, err := e.token(asset)
	if err != nil {
		return nil, err
	}
	if !token.Transfer(recipient, amount) {
		return nil, ErrTokenTransfer
	}
	market.TotalSupply = newSupply
	globals.ProtocolFees = newFees
	if err := e.persist([]*Market{market}, nil, globals); err != nil {
		return nil, err
	}
	return cloneBig(amount), nil
}

// --- read-only queries ---
//
// Queries are not covered by the reentrancy guard: they do not mutate and
// are safe to serve while an operation is mid-flight.

// Market returns a copy of the market record for an asset.
func (e *Engine) Market(asset common.Address) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	market, err := e.ensureMarket(asset)
	if err != nil {
		return nil, err
	}
	return market.Clone(), nil
}

// Markets returns copies of all listed markets in listing order.
func (e *Engine) Markets() ([]*Market, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	assets, err := e.state.ListedAssets()
	if err != nil {
		return nil, err
	}
	markets := make([]*Market, 0, len(assets))
	for _, asset := range assets {
		market, err := e.ensureMarket(asset)
		if err != nil {
			return nil, err
		}
		markets = append(markets, market.Clone())
	}
	return markets, nil
}

// Position returns a copy of the (user, asset) ledger record, or nil when
// the user never touched the asset.
func (e *Engine) Position(user, asset common.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	position, err := e.state.GetPosition(user, asset)
	if err != nil {
		return nil, err
	}
	return position.Clone(), nil
}

// BorrowBalance returns the user's current debt balance in the asset,
// derived from the stored principal via the index ratio.
func (e *Engine) BorrowBalance(user, asset common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	market, err := e.ensureMarket(asset)
	if err != nil {
		return nil, err
	}
	position, err := e.state.GetPosition(user, asset)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return big.NewInt(0), nil
	}
	return borrowBalance(position, market), nil
}

// HealthFactor reports the account's health priced against the given
// asset's liquidation threshold; below 1.0 WAD the account is liquidatable.
func (e *Engine) HealthFactor(user, asset common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	market, err := e.ensureMarket(asset)
	if err != nil {
		return nil, err
	}
	return e.healthFactor(user, market, nil, nil)
}

// ProtocolFees returns the global fee accumulator and liquidation volume.
func (e *Engine) ProtocolFees() (*Globals, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	globals, err := e.ensureGlobals()
	if err != nil {
		return nil, err
	}
	return globals.Clone(), nil
}
