package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// hypothetical substitutes a proposed post-action balance for one asset when
// pricing an account, so safety checks evaluate the would-be state without
// mutating the ledger. A non-nil Supplied replaces the asset's collateral
// contribution wholesale: it is counted even when the stored position has
// collateral disabled, which lets toggle checks price the post-toggle state.
type hypothetical struct {
	Asset    common.Address
	Supplied *big.Int
	Borrowed *big.Int
}

// marketFor reads a market, preferring in-flight accrued copies from the
// current operation over the stored record.
func (e *Engine) marketFor(asset common.Address, overlay map[common.Address]*Market) (*Market, error) {
	if overlay != nil {
		if market, ok := overlay[asset]; ok {
			return market, nil
		}
	}
	market, err := e.state.GetMarket(asset)
	if err != nil {
		return nil, err
	}
	if market == nil {
		return nil, ErrAssetNotListed
	}
	return market, nil
}

// borrowBalance converts a stored borrow principal to the current balance via
// the index ratio.
func borrowBalance(position *Position, market *Market) *big.Int {
	if position == nil || position.BorrowedPrincipal == nil || position.BorrowedPrincipal.Sign() == 0 {
		return big.NewInt(0)
	}
	snapshot := position.IndexSnapshot
	if snapshot == nil || snapshot.Sign() == 0 {
		snapshot = wad
	}
	return mulDiv(position.BorrowedPrincipal, market.Index, snapshot)
}

// collateralValue sums supplied principal times oracle price over every
// listed asset with collateral enabled. Unpriced assets (zero price) are
// skipped: an oracle gap must not force instant insolvency, at the cost of
// being indistinguishable from a genuinely worthless asset.
func (e *Engine) collateralValue(user common.Address, hyp *hypothetical) (*big.Int, error) {
	assets, err := e.state.ListedAssets()
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, asset := range assets {
		var supplied *big.Int
		if hyp != nil && hyp.Supplied != nil && hyp.Asset == asset {
			supplied = hyp.Supplied
		} else {
			position, err := e.state.GetPosition(user, asset)
			if err != nil {
				return nil, err
			}
			if position == nil || !position.CollateralEnabled {
				continue
			}
			supplied = position.SuppliedPrincipal
		}
		if supplied == nil || supplied.Sign() == 0 {
			continue
		}
		price := e.priceOf(asset)
		if price.Sign() == 0 {
			continue
		}
		total.Add(total, new(big.Int).Mul(supplied, price))
	}
	return total, nil
}

// borrowValue sums current borrow balances times oracle price over every
// listed asset, substituting the hypothetical balance for the acted asset.
func (e *Engine) borrowValue(user common.Address, hyp *hypothetical, overlay map[common.Address]*Market) (*big.Int, error) {
	assets, err := e.state.ListedAssets()
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, asset := range assets {
		var balance *big.Int
		if hyp != nil && hyp.Borrowed != nil && hyp.Asset == asset {
			balance = hyp.Borrowed
		} else {
			position, err := e.state.GetPosition(user, asset)
			if err != nil {
				return nil, err
			}
			if position == nil || position.BorrowedPrincipal == nil || position.BorrowedPrincipal.Sign() == 0 {
				continue
			}
			market, err := e.marketFor(asset, overlay)
			if err != nil {
				return nil, err
			}
			balance = borrowBalance(position, market)
		}
		if balance == nil || balance.Sign() == 0 {
			continue
		}
		price := e.priceOf(asset)
		if price.Sign() == 0 {
			continue
		}
		total.Add(total, new(big.Int).Mul(balance, price))
	}
	return total, nil
}

// healthFactor prices the account against the liquidation threshold of the
// asset being acted on: that single threshold applies to the account's
// entire collateral value, not a per-asset weighted average. This is the
// documented policy and is preserved exactly. Returns maxHealth when the
// account carries no debt value.
func (e *Engine) healthFactor(user common.Address, thresholdMarket *Market, hyp *hypothetical, overlay map[common.Address]*Market) (*big.Int, error) {
	debtValue, err := e.borrowValue(user, hyp, overlay)
	if err != nil {
		return nil, err
	}
	if debtValue.Sign() == 0 {
		return cloneBig(maxHealth), nil
	}
	collValue, err := e.collateralValue(user, hyp)
	if err != nil {
		return nil, err
	}
	thresholdValue := bpsMul(collValue, thresholdMarket.Config.LiquidationThresholdBps)
	return wadDiv(thresholdValue, debtValue), nil
}

// hasDebt reports whether the user carries borrow principal in any market.
func (e *Engine) hasDebt(user common.Address) (bool, error) {
	assets, err := e.state.ListedAssets()
	if err != nil {
		return false, err
	}
	for _, asset := range assets {
		position, err := e.state.GetPosition(user, asset)
		if err != nil {
			return false, err
		}
		if position != nil && position.BorrowedPrincipal != nil && position.BorrowedPrincipal.Sign() > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) priceOf(asset common.Address) *big.Int {
	if e.oracle == nil {
		return big.NewInt(0)
	}
	return nonNil(e.oracle.Price(asset))
}
