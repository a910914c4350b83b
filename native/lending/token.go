package lending

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Token is the token-movement collaborator bound to each listed asset. The
// engine treats it as an opaque ledger: it never trusts a reported transfer
// amount for inbound moves and always reconciles its own balance delta.
// Transfer spends from the vault's own holdings; TransferFrom pulls from a
// third party into the vault.
type Token interface {
	BalanceOf(holder common.Address) *big.Int
	Transfer(to common.Address, amount *big.Int) bool
	TransferFrom(from, to common.Address, amount *big.Int) bool
}

// LedgerToken is an in-process Token backed by a balance map. It is the
// default adapter for tests and single-process deployments; Transfer spends
// from the owner account configured at construction, mirroring the implicit
// caller of an external token contract.
type LedgerToken struct {
	mu       sync.Mutex
	owner    common.Address
	balances map[common.Address]*big.Int
}

func NewLedgerToken(owner common.Address) *LedgerToken {
	return &LedgerToken{
		owner:    owner,
		balances: make(map[common.Address]*big.Int),
	}
}

// Mint credits a holder out of thin air. Test and bootstrap helper.
func (t *LedgerToken) Mint(holder common.Address, amount *big.Int) {
	if t == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[holder] = new(big.Int).Add(t.balance(holder), amount)
}

func (t *LedgerToken) BalanceOf(holder common.Address) *big.Int {
	if t == nil {
		return big.NewInt(0)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance(holder))
}

func (t *LedgerToken) Transfer(to common.Address, amount *big.Int) bool {
	return t.TransferFrom(t.owner, to, amount)
}

func (t *LedgerToken) TransferFrom(from, to common.Address, amount *big.Int) bool {
	if t == nil || amount == nil || amount.Sign() < 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fromBal := t.balance(from)
	if fromBal.Cmp(amount) < 0 {
		return false
	}
	t.balances[from] = new(big.Int).Sub(fromBal, amount)
	t.balances[to] = new(big.Int).Add(t.balance(to), amount)
	return true
}

// balance must be called with the mutex held.
func (t *LedgerToken) balance(holder common.Address) *big.Int {
	if bal, ok := t.balances[holder]; ok {
		return bal
	}
	return big.NewInt(0)
}
