package modules

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	nativecommon "lendvault/native/common"
	"lendvault/native/lending"
	"lendvault/observability"
)

// LendingModule adapts the engine to the JSON-RPC surface. The engine's own
// guard only rejects reentrancy; honest concurrent RPC calls are serialized
// here so each operation runs as one indivisible step.
type LendingModule struct {
	mu     sync.Mutex
	engine *lending.Engine
	oracle *lending.PriceStore
	pauses *nativecommon.Pauses
}

func NewLendingModule(engine *lending.Engine, oracle *lending.PriceStore, pauses *nativecommon.Pauses) *LendingModule {
	return &LendingModule{engine: engine, oracle: oracle, pauses: pauses}
}

func (m *LendingModule) moduleUnavailable() *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: "lending module not available"}
}

func (m *LendingModule) ready() bool {
	return m != nil && m.engine != nil
}

// PositionView decorates the stored ledger record with its derived values.
type PositionView struct {
	Position      *lending.Position `json:"position"`
	BorrowBalance *big.Int          `json:"borrowBalance"`
	HealthFactor  *big.Int          `json:"healthFactor"`
}

func (m *LendingModule) Supply(user, asset common.Address, amount *big.Int) (string, *ModuleError) {
	if !m.ready() {
		return "", m.moduleUnavailable()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.engine.Supply(user, asset, amount)
	observability.VaultMetrics().RecordOperation("supply", err)
	if err != nil {
		return "", m.wrapError(err)
	}
	return m.makeTxHash("supply", user.Hex()+":"+asset.Hex(), amount), nil
}

func (m *LendingModule) Withdraw(user, asset common.Address, amount *big.Int) (string, *ModuleError) {
	if !m.ready() {
		return "", m.moduleUnavailable()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.engine.Withdraw(user, asset, amount)
	observability.VaultMetrics().RecordOperation("withdraw", err)
	if err != nil {
		return "", m.wrapError(err)
	}
	return m.makeTxHash("withdraw", user.Hex()+":"+asset.Hex(), amount), nil
}

func (m *LendingModule) SetCollateral(user, asset common.Address, enabled bool) (string, *ModuleError) {
	if !m.ready() {
		return "", m.moduleUnavailable()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.engine.SetCollateralEnabled(user, asset, enabled)
	observability.VaultMetrics().RecordOperation("set_collateral", err)
	if err != nil {
		return "", m.wrapError(err)
	}
	flag := big.NewInt(0)
	if enabled {
		flag = big.NewInt(1)
	}
	return m.makeTxHash("set-collateral", user.Hex()+":"+asset.Hex(), flag), nil
}

func (m *LendingModule) Borrow(user, asset common.Address, amount *big.Int) (string, *ModuleError) {
	if !m.ready() {
		return "", m.moduleUnavailable()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.engine.Borrow(user, asset, amount)
	observability.VaultMetrics().RecordOperation("borrow", err)
	if err != nil {
		return "", m.wrapError(err)
	}
	return m.makeTxHash("borrow", user.Hex()+":"+asset.Hex(), amount), nil
}

func (m *LendingModule) Repay(user, asset common.Address, amount *big.Int) (string, *big.Int, *ModuleError) {
	if !m.ready() {
		return "", nil, m.moduleUnavailable()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	repaid, err := m.engine.Repay(user, asset, amount)
	observability.VaultMetrics().RecordOperation("repay", err)
	if err != nil {
		return "", nil, m.wrapError(err)
	}
	return m.makeTxHash("repay", user.Hex()+":"+asset.Hex(), amount, repaid), repaid, nil
}

func (m *LendingModule) Liquidate(liquidator, borrower, collateralAsset, debtAsset common.Address, debtToCover *big.Int) (string, *big.Int, *big.Int, *ModuleError) {
	if !m.ready() {
		return "", nil, nil, m.moduleUnavailable()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cover, seized, err := m.engine.Liquidate(liquidator, borrower, collateralAsset, debtAsset, debtToCover)
	observability.VaultMetrics().RecordOperation("liquidate", err)
	if err != nil {
		return "", nil, nil, m.wrapError(err)
	}
	observability.VaultMetrics().RecordLiquidation(seized)
	primary := fmt.Sprintf("%s:%s:%s:%s", liquidator.Hex(), borrower.Hex(), collateralAsset.Hex(), debtAsset.Hex())
	return m.makeTxHash("liquidate", primary, cover, seized), cover, seized, nil
}

func (m *LendingModule) ListAsset(asset common.Address, cfg lending.AssetConfig, token lending.Token) (string, *ModuleError) {
	if !m.ready() {
		return "", m.moduleUnavailable()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if token == nil {
		token = lending.NewLedgerToken(m.engine.Vault())
	}
	err := m.engine.ListAsset(asset, cfg, token)
	observability.VaultMetrics().RecordOperation("list_asset", err)
	if err != nil {
		return "", m.wrapError(err)
	}
	return m.makeTxHash("list-asset", asset.Hex(), nil), nil
}

func (m *LendingModule) WithdrawFees(asset, recipient common.Address, amount *big.Int) (string, *big.Int, *ModuleError) {
	if !m.ready() {
		return "", nil, m.moduleUnavailable()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	paid, err := m.engine.WithdrawProtocolFees(asset, recipient, amount)
	observability.VaultMetrics().RecordOperation("withdraw_fees", err)
	if err != nil {
		return "", nil, m.wrapError(err)
	}
	return m.makeTxHash("withdraw-fees", asset.Hex()+":"+recipient.Hex(), paid), paid, nil
}

func (m *LendingModule) SetPaused(paused bool) *ModuleError {
	if m == nil || m.pauses == nil {
		return m.moduleUnavailable()
	}
	m.pauses.SetPaused("lending", paused)
	return nil
}

func (m *LendingModule) SetPrice(asset common.Address, price *big.Int) *ModuleError {
	if m == nil || m.oracle == nil {
		return m.moduleUnavailable()
	}
	if err := m.oracle.SetPrice(asset, price); err != nil {
		return m.wrapError(err)
	}
	return nil
}

func (m *LendingModule) SetPrices(assets []common.Address, prices []*big.Int) *ModuleError {
	if m == nil || m.oracle == nil {
		return m.moduleUnavailable()
	}
	if err := m.oracle.SetPrices(assets, prices); err != nil {
		return m.wrapError(err)
	}
	return nil
}

func (m *LendingModule) GetMarket(asset common.Address) (*lending.Market, *ModuleError) {
	if !m.ready() {
		return nil, m.moduleUnavailable()
	}
	market, err := m.engine.Market(asset)
	if err != nil {
		return nil, m.wrapError(err)
	}
	return market, nil
}

func (m *LendingModule) GetMarkets() ([]*lending.Market, *ModuleError) {
	if !m.ready() {
		return nil, m.moduleUnavailable()
	}
	markets, err := m.engine.Markets()
	if err != nil {
		return nil, m.wrapError(err)
	}
	return markets, nil
}

func (m *LendingModule) GetPosition(user, asset common.Address) (*PositionView, *ModuleError) {
	if !m.ready() {
		return nil, m.moduleUnavailable()
	}
	position, err := m.engine.Position(user, asset)
	if err != nil {
		return nil, m.wrapError(err)
	}
	balance, err := m.engine.BorrowBalance(user, asset)
	if err != nil {
		return nil, m.wrapError(err)
	}
	health, err := m.engine.HealthFactor(user, asset)
	if err != nil {
		return nil, m.wrapError(err)
	}
	return &PositionView{Position: position, BorrowBalance: balance, HealthFactor: health}, nil
}

func (m *LendingModule) GetProtocolFees() (*lending.Globals, *ModuleError) {
	if !m.ready() {
		return nil, m.moduleUnavailable()
	}
	globals, err := m.engine.ProtocolFees()
	if err != nil {
		return nil, m.wrapError(err)
	}
	observability.VaultMetrics().SetProtocolFees(globals.ProtocolFees)
	return globals, nil
}

func (m *LendingModule) wrapError(err error) *ModuleError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, lending.ErrInvalidAmount),
		errors.Is(err, lending.ErrAssetAlreadyListed),
		errors.Is(err, lending.ErrNegativePrice),
		errors.Is(err, lending.ErrPriceLengthMismatch):
		return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: err.Error()}
	case errors.Is(err, lending.ErrAssetNotListed):
		return &ModuleError{HTTPStatus: http.StatusNotFound, Code: codeUnavailable, Message: err.Error()}
	case errors.Is(err, nativecommon.ErrModulePaused),
		errors.Is(err, lending.ErrDepositsFrozen),
		errors.Is(err, lending.ErrBorrowDisabled),
		errors.Is(err, lending.ErrTokenNotRegistered),
		errors.Is(err, lending.ErrAssetUnpriced):
		return &ModuleError{HTTPStatus: http.StatusConflict, Code: codeUnavailable, Message: err.Error()}
	case errors.Is(err, lending.ErrSupplyCapExceeded),
		errors.Is(err, lending.ErrBorrowCapExceeded),
		errors.Is(err, lending.ErrInsufficientCollateral),
		errors.Is(err, lending.ErrExceedsSupplied),
		errors.Is(err, lending.ErrInsufficientFees):
		return &ModuleError{HTTPStatus: http.StatusConflict, Code: codeCapacity, Message: err.Error()}
	case errors.Is(err, lending.ErrHealthFactor),
		errors.Is(err, lending.ErrNotLiquidatable),
		errors.Is(err, lending.ErrSelfLiquidation),
		errors.Is(err, lending.ErrNoDebtToRepay):
		return &ModuleError{HTTPStatus: http.StatusConflict, Code: codeSafety, Message: err.Error()}
	case errors.Is(err, lending.ErrTokenTransfer),
		errors.Is(err, lending.ErrTransferMismatch),
		errors.Is(err, lending.ErrReentrancy),
		errors.Is(err, lending.ErrAccountingUnderflow):
		return &ModuleError{HTTPStatus: http.StatusBadGateway, Code: codeMechanical, Message: err.Error()}
	default:
		return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: err.Error()}
	}
}

// makeTxHash derives a synthetic receipt hash for mutating calls so clients
// can correlate submissions with their logs.
func (m *LendingModule) makeTxHash(kind, primary string, amount *big.Int, extras ...*big.Int) string {
	parts := []string{kind, primary}
	if amount != nil {
		parts = append(parts, amount.String())
	}
	for _, extra := range extras {
		if extra != nil {
			parts = append(parts, extra.String())
		}
	}
	parts = append(parts, fmt.Sprintf("%d", m.engine.Step()))
	parts = append(parts, uuid.NewString())
	parts = append(parts, fmt.Sprintf("%d", time.Now().UTC().UnixNano()))
	payload := strings.Join(parts, "|")
	hash := ethcrypto.Keccak256([]byte(payload))
	return "0x" + hex.EncodeToString(hash)
}
