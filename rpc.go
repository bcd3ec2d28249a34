package main

import (
	"context"

	"github.com/google/uuid"

	"github.com/web3-force/dapp-gateway/controller"
	"github.com/web3-force/dapp-gateway/proxy"
	"github.com/web3-force/dapp-gateway/types"
	"github.com/web3-force/dapp-gateway/version"
)

// IGatewayPushAPI is the surface relays consume.
type IGatewayPushAPI interface {
	RegisterTab(ctx context.Context, origin string, tabID uuid.UUID) (<-chan *types.PushEvent, error)
	Call(ctx context.Context, req *types.RequestEvent) (*types.ResponseEvent, error)
}

// IGatewayAPI adds the owner surface on top.
type IGatewayAPI interface {
	IGatewayPushAPI
	types.ApprovalSurface

	GetState(ctx context.Context) (*types.StateView, error)
	ListSites(ctx context.Context) ([]*types.ConnectionRecord, error)
	RevokeSite(ctx context.Context, origin string) error
	SwitchChain(ctx context.Context, chainID string) error
	ListChains(ctx context.Context) ([]*types.ChainInfo, error)
	AddAccount(ctx context.Context) (string, error)
	CloseSession(ctx context.Context, id string) error
	RegisterReverse(ctx context.Context, chainID string, address string) error
	Version(ctx context.Context) (string, error)
}

var _ IGatewayAPI = (*GatewayAPI)(nil)

type GatewayAPI struct {
	*controller.Controller
	proxy proxy.IProxy
}

func NewGatewayAPI(ctrl *controller.Controller, p proxy.IProxy) *GatewayAPI {
	return &GatewayAPI{
		Controller: ctrl,
		proxy:      p,
	}
}

func (g *GatewayAPI) RegisterReverse(ctx context.Context, chainID string, address string) error {
	return g.proxy.RegisterReverseByAddr(chainID, address)
}

func (g *GatewayAPI) Version(ctx context.Context) (string, error) {
	return version.UserVersion, nil
}
