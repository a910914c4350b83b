package lending

import "errors"

var (
	ErrNilState               = errors.New("lending engine: state not configured")
	ErrAssetNotListed         = errors.New("lending engine: asset not listed")
	ErrAssetAlreadyListed     = errors.New("lending engine: asset already listed")
	ErrTokenNotRegistered     = errors.New("lending engine: no token bound for asset")
	ErrInvalidAmount          = errors.New("lending engine: amount must be positive")
	ErrDepositsFrozen         = errors.New("lending engine: deposits frozen for asset")
	ErrBorrowDisabled         = errors.New("lending engine: borrowing disabled for asset")
	ErrSupplyCapExceeded      = errors.New("lending engine: supply cap exceeded")
	ErrBorrowCapExceeded      = errors.New("lending engine: borrow cap exceeded")
	ErrExceedsSupplied        = errors.New("lending engine: amount exceeds supplied principal")
	ErrInsufficientCollateral = errors.New("lending engine: borrow exceeds collateral capacity")
	ErrHealthFactor           = errors.New("lending engine: health factor below 1")
	ErrNoDebtToRepay          = errors.New("lending engine: no outstanding debt to repay")
	ErrNotLiquidatable        = errors.New("lending engine: borrower not eligible for liquidation")
	ErrSelfLiquidation        = errors.New("lending engine: borrower cannot liquidate themselves")
	ErrAssetUnpriced          = errors.New("lending engine: oracle price unavailable for asset")
	ErrTokenTransfer          = errors.New("lending engine: token transfer failed")
	ErrTransferMismatch       = errors.New("lending engine: received amount does not match requested amount")
	ErrInsufficientFees       = errors.New("lending engine: amount exceeds accrued protocol fees")
	ErrReentrancy             = errors.New("lending engine: reentrant call rejected")
	ErrAccountingUnderflow    = errors.New("lending engine: accounting underflow")
	ErrNegativePrice          = errors.New("lending oracle: price must not be negative")
	ErrPriceLengthMismatch    = errors.New("lending oracle: assets and prices length mismatch")
)
