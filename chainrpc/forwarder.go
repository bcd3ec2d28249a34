package chainrpc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/rpc"
	logging "github.com/ipfs/go-log/v2"

	"github.com/web3-force/dapp-gateway/types"
)

var log = logging.Logger("chainrpc")

var _ types.ReadForwarder = (*Forwarder)(nil)

// Forwarder proxies read-only calls to the upstream node of an
// allow-listed chain. Clients are dialed lazily and reused.
type Forwarder struct {
	lk      sync.Mutex
	chains  map[string]*types.ChainInfo
	clients map[string]*rpc.Client
}

func NewForwarder(chains []*types.ChainInfo) *Forwarder {
	byID := make(map[string]*types.ChainInfo, len(chains))
	for _, c := range chains {
		byID[c.ChainID] = c
	}
	return &Forwarder{
		chains:  byID,
		clients: make(map[string]*rpc.Client),
	}
}

// Known reports whether chainID is on the allow list.
func (f *Forwarder) Known(chainID string) bool {
	f.lk.Lock()
	defer f.lk.Unlock()
	_, ok := f.chains[chainID]
	return ok
}

// AddChain extends the allow list at runtime.
func (f *Forwarder) AddChain(info *types.ChainInfo) {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.chains[info.ChainID] = info
}

func (f *Forwarder) Chains() []*types.ChainInfo {
	f.lk.Lock()
	defer f.lk.Unlock()
	out := make([]*types.ChainInfo, 0, len(f.chains))
	for _, c := range f.chains {
		out = append(out, c)
	}
	return out
}

func (f *Forwarder) client(ctx context.Context, chainID string) (*rpc.Client, error) {
	f.lk.Lock()
	defer f.lk.Unlock()
	if cli, ok := f.clients[chainID]; ok {
		return cli, nil
	}
	info, ok := f.chains[chainID]
	if !ok {
		return nil, types.UnrecognizedChain(chainID)
	}
	cli, err := rpc.DialContext(ctx, info.RPCURL)
	if err != nil {
		return nil, types.InternalError(err)
	}
	f.clients[chainID] = cli
	return cli, nil
}

func (f *Forwarder) Forward(ctx context.Context, chainID string, method string, params []interface{}) ([]byte, error) {
	cli, err := f.client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	var result json.RawMessage
	if err := cli.CallContext(ctx, &result, method, params...); err != nil {
		log.Warnf("forward %s to chain %s failed: %v", method, chainID, err)
		f.dropClient(chainID, cli)
		return nil, types.InternalError(err)
	}
	return result, nil
}

// dropClient discards a client after a failed call so the next request
// redials the upstream.
func (f *Forwarder) dropClient(chainID string, cli *rpc.Client) {
	f.lk.Lock()
	if f.clients[chainID] == cli {
		delete(f.clients, chainID)
	}
	f.lk.Unlock()
	cli.Close()
}

func (f *Forwarder) Close() {
	f.lk.Lock()
	defer f.lk.Unlock()
	for id, cli := range f.clients {
		cli.Close()
		delete(f.clients, id)
	}
}
