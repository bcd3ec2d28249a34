package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/filecoin-project/go-jsonrpc"
	"github.com/google/uuid"

	"github.com/web3-force/dapp-gateway/provider"
	"github.com/web3-force/dapp-gateway/relay"
	"github.com/web3-force/dapp-gateway/types"
)

// GatewayClient mirrors the gateway's RPC surface for jsonrpc merge
// client construction.
type GatewayClient struct {
	RegisterTab func(ctx context.Context, origin string, tabID uuid.UUID) (<-chan *types.PushEvent, error)
	Call        func(ctx context.Context, req *types.RequestEvent) (*types.ResponseEvent, error)
	ListPending func(ctx context.Context) ([]*types.PendingRequest, error)
	Decide      func(ctx context.Context, id string, outcome types.Outcome, extra *types.DecideExtra) error
	GetState    func(ctx context.Context) (*types.StateView, error)
}

type gatewayConn struct {
	cli *GatewayClient
}

func (g *gatewayConn) RegisterTab(ctx context.Context, origin string, tabID uuid.UUID) (<-chan *types.PushEvent, error) {
	return g.cli.RegisterTab(ctx, origin, tabID)
}

func (g *gatewayConn) Call(ctx context.Context, req *types.RequestEvent) (*types.ResponseEvent, error) {
	return g.cli.Call(ctx, req)
}

// Dials a running gateway (see example/server), acts as one page tab and
// auto-approves its own requests through the owner surface.
func main() {
	ctx := context.Background()

	cli := &GatewayClient{}
	closer, err := jsonrpc.NewMergeClient(ctx, "ws://127.0.0.1:45132/rpc/v1",
		"Gateway", []interface{}{cli}, http.Header{})
	if err != nil {
		log.Fatal(err)
	}
	defer closer()

	cfg := types.DefaultRequestConfig()
	var prov *provider.Provider
	rly := relay.NewRelay(ctx, "https://dapp.example.org", &gatewayConn{cli: cli}, cfg,
		func(env *types.PageEnvelope) { prov.HandleEnvelope(env) })
	prov = provider.NewProvider(ctx, rly, cfg)
	if err := rly.Start(ctx); err != nil {
		log.Fatal(err)
	}

	go autoApprove(ctx, cli)

	accounts, err := prov.Enable(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("connected accounts:", accounts)

	sig, err := prov.Request(ctx, types.MethodPersonalSign,
		[]interface{}{hexutil.Encode([]byte("hello gateway")), accounts[0]})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("signature:", string(sig))

	block, err := prov.Request(ctx, "eth_blockNumber", nil)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("block number:", string(block))
}

// autoApprove stands in for the human: every pending request is approved
// with all wallet accounts shared.
func autoApprove(ctx context.Context, cli *GatewayClient) {
	ticker := time.NewTicker(time.Millisecond * 200)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pending, err := cli.ListPending(ctx)
		if err != nil {
			log.Printf("list pending: %v", err)
			continue
		}
		for _, req := range pending {
			state, err := cli.GetState(ctx)
			if err != nil {
				log.Printf("get state: %v", err)
				continue
			}
			extra := &types.DecideExtra{SelectedAccounts: state.Accounts}
			if err := cli.Decide(ctx, req.ID.String(), types.OutcomeApprove, extra); err != nil {
				log.Printf("approve %s: %v", req.ID, err)
			}
		}
	}
}
