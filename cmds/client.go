package cmds

import (
	"context"
	"net/http"
	"net/url"

	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/urfave/cli/v2"

	"github.com/filecoin-project/go-jsonrpc"

	"github.com/web3-force/dapp-gateway/types"
)

type GatewayAPI struct {
	ListPending     func(ctx context.Context) ([]*types.PendingRequest, error)
	Decide          func(ctx context.Context, id string, outcome types.Outcome, extra *types.DecideExtra) error
	GetState        func(ctx context.Context) (*types.StateView, error)
	ListSites       func(ctx context.Context) ([]*types.ConnectionRecord, error)
	RevokeSite      func(ctx context.Context, origin string) error
	SwitchChain     func(ctx context.Context, chainID string) error
	ListChains      func(ctx context.Context) ([]*types.ChainInfo, error)
	AddAccount      func(ctx context.Context) (string, error)
	CloseSession    func(ctx context.Context, id string) error
	RegisterReverse func(ctx context.Context, chainID string, address string) error
	Version         func(ctx context.Context) (string, error)
}

func NewGatewayClient(ctx *cli.Context) (*GatewayAPI, jsonrpc.ClientCloser, error) {
	var gatewayAPI = &GatewayAPI{}
	listen := ctx.String("listen")
	addr, err := DialArgs(listen)
	if err != nil {
		return nil, nil, err
	}

	closer, err := jsonrpc.NewMergeClient(ctx.Context, addr,
		"Gateway", []interface{}{gatewayAPI}, http.Header{})
	if err != nil {
		return nil, nil, err
	}
	return gatewayAPI, closer, nil
}

func DialArgs(addr string) (string, error) {
	ma, err := multiaddr.NewMultiaddr(addr)
	if err == nil {
		_, addr, err := manet.DialArgs(ma)
		if err != nil {
			return "", err
		}

		return "ws://" + addr + "/rpc/v1", nil
	}

	_, err = url.Parse(addr)
	if err != nil {
		return "", err
	}
	return addr + "/rpc/v1", nil
}
