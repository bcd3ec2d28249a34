package testhelper

import (
	"context"
	"net/http"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/google/uuid"

	"github.com/web3-force/dapp-gateway/types"
)

// FullAPI is the complete RPC surface of a running gateway, built the way
// jsonrpc merge clients are declared. Tests and tools dial it over
// websocket so the channel-returning RegisterTab works.
type FullAPI struct {
	RegisterTab func(ctx context.Context, origin string, tabID uuid.UUID) (<-chan *types.PushEvent, error)
	Call        func(ctx context.Context, req *types.RequestEvent) (*types.ResponseEvent, error)

	ListPending  func(ctx context.Context) ([]*types.PendingRequest, error)
	Decide       func(ctx context.Context, id string, outcome types.Outcome, extra *types.DecideExtra) error
	GetState     func(ctx context.Context) (*types.StateView, error)
	ListSites    func(ctx context.Context) ([]*types.ConnectionRecord, error)
	RevokeSite   func(ctx context.Context, origin string) error
	SwitchChain  func(ctx context.Context, chainID string) error
	ListChains   func(ctx context.Context) ([]*types.ChainInfo, error)
	AddAccount   func(ctx context.Context) (string, error)
	CloseSession func(ctx context.Context, id string) error
	Version      func(ctx context.Context) (string, error)
}

func NewFullClient(ctx context.Context, url string) (*FullAPI, jsonrpc.ClientCloser, error) {
	api := &FullAPI{}
	closer, err := jsonrpc.NewMergeClient(ctx, url, "Gateway", []interface{}{api}, http.Header{})
	if err != nil {
		return nil, nil, err
	}
	return api, closer, nil
}

// GatewayConn adapts a FullAPI into the method set relays consume, so a
// relay can run in one process against a gateway in another.
type GatewayConn struct {
	API *FullAPI
}

func (g *GatewayConn) RegisterTab(ctx context.Context, origin string, tabID uuid.UUID) (<-chan *types.PushEvent, error) {
	return g.API.RegisterTab(ctx, origin, tabID)
}

func (g *GatewayConn) Call(ctx context.Context, req *types.RequestEvent) (*types.ResponseEvent, error) {
	return g.API.Call(ctx, req)
}
