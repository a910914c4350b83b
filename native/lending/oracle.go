package lending

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// PriceView exposes read-only oracle prices to the engine. A nil or zero
// price means the asset is currently unpriced; valuation sums skip such
// legs rather than treating them as worthless.
type PriceView interface {
	Price(asset common.Address) *big.Int
}

// PriceStore keeps the latest pushed price per asset. Prices are WAD-scaled
// value per base unit of the asset; no decimals normalization is applied
// across assets, so the feed must pre-adjust prices for each asset's
// base-unit scale. Staleness is entirely the feed's responsibility.
type PriceStore struct {
	mu     sync.RWMutex
	prices map[common.Address]*big.Int
}

func NewPriceStore() *PriceStore {
	return &PriceStore{prices: make(map[common.Address]*big.Int)}
}

// SetPrice records the latest price for an asset. A zero price marks the
// asset unpriced.
func (s *PriceStore) SetPrice(asset common.Address, price *big.Int) error {
	if price == nil {
		price = big.NewInt(0)
	}
	if price.Sign() < 0 {
		return ErrNegativePrice
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[asset] = new(big.Int).Set(price)
	return nil
}

// SetPrices records a batch of prices atomically.
func (s *PriceStore) SetPrices(assets []common.Address, prices []*big.Int) error {
	if len(assets) != len(prices) {
		return ErrPriceLengthMismatch
	}
	for _, price := range prices {
		if price != nil && price.Sign() < 0 {
			return ErrNegativePrice
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, asset := range assets {
		price := prices[i]
		if price == nil {
			price = big.NewInt(0)
		}
		s.prices[asset] = new(big.Int).Set(price)
	}
	return nil
}

// Price returns the latest price for the asset, or nil when never set.
func (s *PriceStore) Price(asset common.Address) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[asset]
	if !ok {
		return nil
	}
	return new(big.Int).Set(price)
}

// Snapshot returns a copy of all known prices.
func (s *PriceStore) Snapshot() map[common.Address]*big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[common.Address]*big.Int, len(s.prices))
	for asset, price := range s.prices {
		out[asset] = new(big.Int).Set(price)
	}
	return out
}
