package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"lendvault/config"
	"lendvault/native/lending"
	"lendvault/rpc/modules"
)

type lendAmountParams struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type lendCollateralParams struct {
	User    string `json:"user"`
	Asset   string `json:"asset"`
	Enabled bool   `json:"enabled"`
}

type lendLiquidateParams struct {
	Liquidator      string `json:"liquidator"`
	Borrower        string `json:"borrower"`
	CollateralAsset string `json:"collateralAsset"`
	DebtAsset       string `json:"debtAsset"`
	DebtToCover     string `json:"debtToCover"`
}

type lendAssetParams struct {
	Asset string `json:"asset"`
}

type lendPositionParams struct {
	User  string `json:"user"`
	Asset string `json:"asset"`
}

type lendPausedParams struct {
	Paused bool `json:"paused"`
}

type lendFeesWithdrawParams struct {
	Asset     string `json:"asset"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type oraclePriceParams struct {
	Asset string `json:"asset"`
	Price string `json:"price"`
}

type oraclePricesParams struct {
	Assets []string `json:"assets"`
	Prices []string `json:"prices"`
}

type lendTxResult struct {
	TxHash string `json:"txHash"`
}

type lendRepayResult struct {
	TxHash string   `json:"txHash"`
	Repaid *big.Int `json:"repaid"`
}

type lendLiquidateResult struct {
	TxHash         string   `json:"txHash"`
	DebtCovered    *big.Int `json:"debtCovered"`
	CollateralPaid *big.Int `json:"collateralPaid"`
}

type lendFeesResult struct {
	TxHash string   `json:"txHash"`
	Paid   *big.Int `json:"paid"`
}

type lendMarketsResult struct {
	Markets []*lending.Market `json:"markets"`
}

func decodeParams(req *RPCRequest, out interface{}) (string, bool) {
	if len(req.Params) != 1 {
		return "expected a single parameter object", false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return err.Error(), false
	}
	return "", true
}

func parseAddressParam(value, field string) (common.Address, string) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, field + " must be a 0x-prefixed hex address"
	}
	return common.HexToAddress(trimmed), ""
}

func parseAmountParam(value, field string) (*big.Int, string) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, field + " is required"
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, field + " must be a base-10 integer"
	}
	return amount, ""
}

func writeModuleError(w http.ResponseWriter, id interface{}, err *modules.ModuleError) {
	writeError(w, err.HTTPStatus, id, err.Code, err.Message, err.Data)
}

func (s *Server) decodeAmountCall(w http.ResponseWriter, req *RPCRequest) (common.Address, common.Address, *big.Int, bool) {
	var params lendAmountParams
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", msg)
		return common.Address{}, common.Address{}, nil, false
	}
	user, msg := parseAddressParam(params.User, "user")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return common.Address{}, common.Address{}, nil, false
	}
	asset, msg := parseAddressParam(params.Asset, "asset")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return common.Address{}, common.Address{}, nil, false
	}
	amount, msg := parseAmountParam(params.Amount, "amount")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return common.Address{}, common.Address{}, nil, false
	}
	return user, asset, amount, true
}

func (s *Server) handleLendSupply(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	user, asset, amount, ok := s.decodeAmountCall(w, req)
	if !ok {
		return
	}
	txHash, moduleErr := s.lending.Supply(user, asset, amount)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendTxResult{TxHash: txHash})
}

func (s *Server) handleLendWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	user, asset, amount, ok := s.decodeAmountCall(w, req)
	if !ok {
		return
	}
	txHash, moduleErr := s.lending.Withdraw(user, asset, amount)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendTxResult{TxHash: txHash})
}

func (s *Server) handleLendSetCollateral(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lendCollateralParams
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", msg)
		return
	}
	user, msg := parseAddressParam(params.User, "user")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	asset, msg := parseAddressParam(params.Asset, "asset")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	txHash, moduleErr := s.lending.SetCollateral(user, asset, params.Enabled)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendTxResult{TxHash: txHash})
}

func (s *Server) handleLendBorrow(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	user, asset, amount, ok := s.decodeAmountCall(w, req)
	if !ok {
		return
	}
	txHash, moduleErr := s.lending.Borrow(user, asset, amount)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendTxResult{TxHash: txHash})
}

func (s *Server) handleLendRepay(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	user, asset, amount, ok := s.decodeAmountCall(w, req)
	if !ok {
		return
	}
	txHash, repaid, moduleErr := s.lending.Repay(user, asset, amount)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendRepayResult{TxHash: txHash, Repaid: repaid})
}

func (s *Server) handleLendLiquidate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lendLiquidateParams
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", msg)
		return
	}
	liquidator, msg := parseAddressParam(params.Liquidator, "liquidator")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	borrower, msg := parseAddressParam(params.Borrower, "borrower")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	collateralAsset, msg := parseAddressParam(params.CollateralAsset, "collateralAsset")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	debtAsset, msg := parseAddressParam(params.DebtAsset, "debtAsset")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	debtToCover, msg := parseAmountParam(params.DebtToCover, "debtToCover")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	txHash, covered, seized, moduleErr := s.lending.Liquidate(liquidator, borrower, collateralAsset, debtAsset, debtToCover)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendLiquidateResult{TxHash: txHash, DebtCovered: covered, CollateralPaid: seized})
}

func (s *Server) handleLendGetMarket(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lendAssetParams
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", msg)
		return
	}
	asset, msg := parseAddressParam(params.Asset, "asset")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	market, moduleErr := s.lending.GetMarket(asset)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, market)
}

func (s *Server) handleLendGetMarkets(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	markets, moduleErr := s.lending.GetMarkets()
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	if markets == nil {
		markets = []*lending.Market{}
	}
	writeResult(w, req.ID, lendMarketsResult{Markets: markets})
}

func (s *Server) handleLendGetPosition(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lendPositionParams
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", msg)
		return
	}
	user, msg := parseAddressParam(params.User, "user")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	asset, msg := parseAddressParam(params.Asset, "asset")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	view, moduleErr := s.lending.GetPosition(user, asset)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, view)
}

func (s *Server) handleLendGetProtocolFees(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	globals, moduleErr := s.lending.GetProtocolFees()
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, globals)
}

func (s *Server) handleLendListAsset(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params config.MarketConfig
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", msg)
		return
	}
	asset, msg := parseAddressParam(params.Address, "address")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	engineCfg, err := params.EngineConfig()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid market configuration", err.Error())
		return
	}
	txHash, moduleErr := s.lending.ListAsset(asset, engineCfg, nil)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	if price, perr := params.Price(); perr == nil && price != nil {
		if moduleErr := s.lending.SetPrice(asset, price); moduleErr != nil {
			writeModuleError(w, req.ID, moduleErr)
			return
		}
	}
	writeResult(w, req.ID, lendTxResult{TxHash: txHash})
}

func (s *Server) handleLendSetPaused(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lendPausedParams
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", msg)
		return
	}
	if moduleErr := s.lending.SetPaused(params.Paused); moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, map[string]bool{"paused": params.Paused})
}

func (s *Server) handleLendWithdrawFees(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lendFeesWithdrawParams
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", msg)
		return
	}
	asset, msg := parseAddressParam(params.Asset, "asset")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	recipient, msg := parseAddressParam(params.Recipient, "recipient")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	amount, msg := parseAmountParam(params.Amount, "amount")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	txHash, paid, moduleErr := s.lending.WithdrawFees(asset, recipient, amount)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendFeesResult{TxHash: txHash, Paid: paid})
}

func (s *Server) handleOracleSetPrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oraclePriceParams
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", msg)
		return
	}
	asset, msg := parseAddressParam(params.Asset, "asset")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	price, msg := parseAmountParam(params.Price, "price")
	if msg != "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	if moduleErr := s.lending.SetPrice(asset, price); moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleOracleSetPrices(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params oraclePricesParams
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", msg)
		return
	}
	if len(params.Assets) != len(params.Prices) {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "assets and prices length mismatch", nil)
		return
	}
	assets := make([]common.Address, 0, len(params.Assets))
	prices := make([]*big.Int, 0, len(params.Prices))
	for i := range params.Assets {
		asset, msg := parseAddressParam(params.Assets[i], "assets")
		if msg != "" {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
			return
		}
		price, msg := parseAmountParam(params.Prices[i], "prices")
		if msg != "" {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
			return
		}
		assets = append(assets, asset)
		prices = append(prices, price)
	}
	if moduleErr := s.lending.SetPrices(assets, prices); moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, map[string]int{"updated": len(assets)})
}
