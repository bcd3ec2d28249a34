package storage

import (
	"encoding/json"
	"strings"

	"github.com/dgraph-io/badger/v4"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"github.com/web3-force/dapp-gateway/types"
)

var log = logging.Logger("storage")

const (
	prefixSite    = "site/"
	prefixSession = "wc/"
	prefixChain   = "chain/"
	keyChainID    = "wallet/chain"
)

// Store persists wallet state across daemon restarts. Accounts live in the
// signing service; everything else the controller owns is written here.
type Store struct {
	db *badger.DB
}

func OpenStore(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open state store at %s", path)
	}
	return &Store{db: db}, nil
}

// OpenMemStore is used by tests and the example daemon.
func OpenMemStore() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) put(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *Store) get(key string, v interface{}) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) listPrefix(prefix string, each func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				return each(val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) PutSite(rec *types.ConnectionRecord) error {
	return s.put(prefixSite+strings.ToLower(rec.Origin), rec)
}

func (s *Store) GetSite(origin string) (*types.ConnectionRecord, error) {
	var rec types.ConnectionRecord
	ok, err := s.get(prefixSite+strings.ToLower(origin), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListSites() ([]*types.ConnectionRecord, error) {
	var out []*types.ConnectionRecord
	err := s.listPrefix(prefixSite, func(val []byte) error {
		var rec types.ConnectionRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		out = append(out, &rec)
		return nil
	})
	return out, err
}

func (s *Store) PutSession(sess *types.Session) error {
	return s.put(prefixSession+sess.ID.String(), sess)
}

func (s *Store) ListSessions() ([]*types.Session, error) {
	var out []*types.Session
	err := s.listPrefix(prefixSession, func(val []byte) error {
		var sess types.Session
		if err := json.Unmarshal(val, &sess); err != nil {
			return err
		}
		out = append(out, &sess)
		return nil
	})
	return out, err
}

func (s *Store) DeleteSession(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(prefixSession + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (s *Store) PutChain(info *types.ChainInfo) error {
	return s.put(prefixChain+info.ChainID, info)
}

func (s *Store) ListChains() ([]*types.ChainInfo, error) {
	var out []*types.ChainInfo
	err := s.listPrefix(prefixChain, func(val []byte) error {
		var info types.ChainInfo
		if err := json.Unmarshal(val, &info); err != nil {
			return err
		}
		out = append(out, &info)
		return nil
	})
	return out, err
}

func (s *Store) PutSelectedChain(chainID string) error {
	return s.put(keyChainID, chainID)
}

func (s *Store) SelectedChain() (string, error) {
	var chainID string
	ok, err := s.get(keyChainID, &chainID)
	if err != nil || !ok {
		return "", err
	}
	return chainID, nil
}
