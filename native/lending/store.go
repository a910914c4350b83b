package lending

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"lendvault/storage"
)

// engineState is the persistence boundary for the engine. The registry and
// ledger are owned exclusively by the vault process; nothing mutates them
// except through the engine's entry points.
type engineState interface {
	ListedAssets() ([]common.Address, error)
	GetMarket(asset common.Address) (*Market, error)
	PutMarket(market *Market) error
	GetPosition(user, asset common.Address) (*Position, error)
	PutPosition(position *Position) error
	GetGlobals() (*Globals, error)
	PutGlobals(globals *Globals) error
}

var (
	keyAssets      = []byte("lend/assets")
	keyGlobals     = []byte("lend/globals")
	marketPrefix   = []byte("lend/market/")
	positionPrefix = []byte("lend/position/")
)

// Store persists lending records RLP-encoded in a key-value database.
type Store struct {
	db storage.Database
}

func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func marketKey(asset common.Address) []byte {
	return append(append([]byte(nil), marketPrefix...), asset.Bytes()...)
}

func positionKey(user, asset common.Address) []byte {
	key := append(append([]byte(nil), positionPrefix...), user.Bytes()...)
	return append(key, asset.Bytes()...)
}

// ListedAssets returns the listing order of all markets.
func (s *Store) ListedAssets() ([]common.Address, error) {
	raw, err := s.db.Get(keyAssets)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var assets []common.Address
	if err := rlp.DecodeBytes(raw, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

func (s *Store) putListedAssets(assets []common.Address) error {
	raw, err := rlp.EncodeToBytes(assets)
	if err != nil {
		return err
	}
	return s.db.Put(keyAssets, raw)
}

// GetMarket returns the market record for an asset, or nil when unlisted.
func (s *Store) GetMarket(asset common.Address) (*Market, error) {
	raw, err := s.db.Get(marketKey(asset))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	market := new(Market)
	if err := rlp.DecodeBytes(raw, market); err != nil {
		return nil, err
	}
	market.EnsureDefaults()
	return market, nil
}

// PutMarket stores a market record, registering the asset in the listing
// index when seen for the first time.
func (s *Store) PutMarket(market *Market) error {
	if market == nil {
		return nil
	}
	market.EnsureDefaults()
	raw, err := rlp.EncodeToBytes(market)
	if err != nil {
		return err
	}
	assets, err := s.ListedAssets()
	if err != nil {
		return err
	}
	listed := false
	for _, asset := range assets {
		if asset == market.Asset {
			listed = true
			break
		}
	}
	if !listed {
		if err := s.putListedAssets(append(assets, market.Asset)); err != nil {
			return err
		}
	}
	return s.db.Put(marketKey(market.Asset), raw)
}

// GetPosition returns the stored position for (user, asset), or nil when the
// user never touched the asset.
func (s *Store) GetPosition(user, asset common.Address) (*Position, error) {
	raw, err := s.db.Get(positionKey(user, asset))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	position := new(Position)
	if err := rlp.DecodeBytes(raw, position); err != nil {
		return nil, err
	}
	position.EnsureDefaults()
	return position, nil
}

func (s *Store) PutPosition(position *Position) error {
	if position == nil {
		return nil
	}
	position.EnsureDefaults()
	raw, err := rlp.EncodeToBytes(position)
	if err != nil {
		return err
	}
	return s.db.Put(positionKey(position.User, position.Asset), raw)
}

// GetGlobals returns the protocol-wide counters, zeroed when never written.
func (s *Store) GetGlobals() (*Globals, error) {
	raw, err := s.db.Get(keyGlobals)
	if errors.Is(err, storage.ErrNotFound) {
		globals := new(Globals)
		globals.EnsureDefaults()
		return globals, nil
	}
	if err != nil {
		return nil, err
	}
	globals := new(Globals)
	if err := rlp.DecodeBytes(raw, globals); err != nil {
		return nil, err
	}
	globals.EnsureDefaults()
	return globals, nil
}

func (s *Store) PutGlobals(globals *Globals) error {
	if globals == nil {
		return nil
	}
	globals.EnsureDefaults()
	raw, err := rlp.EncodeToBytes(globals)
	if err != nil {
		return err
	}
	return s.db.Put(keyGlobals, raw)
}
