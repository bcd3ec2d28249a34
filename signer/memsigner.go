package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/web3-force/dapp-gateway/types"
)

var _ types.SigningService = (*MemSigner)(nil)

// MemSigner keeps secp256k1 keys in memory. It backs the daemon's default
// signing service and the test suites; production deployments swap in an
// implementation over real key storage behind the same interface.
type MemSigner struct {
	lk    sync.Mutex
	keys  map[common.Address]*ecdsa.PrivateKey
	order []common.Address
	fail  bool
}

func NewMemSigner() *MemSigner {
	return &MemSigner{
		keys: make(map[common.Address]*ecdsa.PrivateKey),
	}
}

// SetFail makes every signing call fail, for exercising upstream-failure
// paths in tests.
func (m *MemSigner) SetFail(fail bool) {
	m.lk.Lock()
	m.fail = fail
	m.lk.Unlock()
}

func (m *MemSigner) AddKey() (common.Address, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, err
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	m.keys[addr] = key
	m.order = append(m.order, addr)
	return addr, nil
}

func (m *MemSigner) Accounts(ctx context.Context) ([]common.Address, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	out := make([]common.Address, len(m.order))
	copy(out, m.order)
	return out, nil
}

func (m *MemSigner) SignTransaction(ctx context.Context, params *types.TxParams, chainID *big.Int) (common.Hash, error) {
	m.lk.Lock()
	key, ok := m.keys[params.From]
	fail := m.fail
	m.lk.Unlock()
	if fail {
		return common.Hash{}, fmt.Errorf("signer unavailable")
	}
	if !ok {
		return common.Hash{}, fmt.Errorf("no key for %s", params.From.Hex())
	}

	value := new(big.Int)
	if params.Value != nil {
		value = params.Value.ToInt()
	}
	gasPrice := new(big.Int)
	if params.GasPrice != nil {
		gasPrice = params.GasPrice.ToInt()
	}
	var nonce uint64
	if params.Nonce != nil {
		nonce = uint64(*params.Nonce)
	}
	gas := uint64(params.Gas)
	if gas == 0 {
		gas = 21000
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       params.To,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     params.Data,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	return signed.Hash(), nil
}

func (m *MemSigner) SignMessage(ctx context.Context, from common.Address, data []byte) ([]byte, error) {
	m.lk.Lock()
	key, ok := m.keys[from]
	fail := m.fail
	m.lk.Unlock()
	if fail {
		return nil, fmt.Errorf("signer unavailable")
	}
	if !ok {
		return nil, fmt.Errorf("no key for %s", from.Hex())
	}

	hash := accounts.TextHash(data)
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	// shift V to the 27/28 convention pages expect
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
