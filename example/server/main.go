package main

import (
	"context"
	"log"
	"net/http"

	"github.com/filecoin-project/go-jsonrpc"

	"github.com/web3-force/dapp-gateway/chainrpc"
	"github.com/web3-force/dapp-gateway/controller"
	"github.com/web3-force/dapp-gateway/signer"
	"github.com/web3-force/dapp-gateway/storage"
	"github.com/web3-force/dapp-gateway/types"
	"github.com/web3-force/dapp-gateway/validator"
)

// Minimal in-memory gateway for trying the client example against. State
// is not persisted; every start generates a fresh wallet account.
func main() {
	ctx := context.Background()

	store, err := storage.OpenMemStore()
	if err != nil {
		log.Fatal(err)
	}

	walletSigner := signer.NewMemSigner()
	account, err := walletSigner.AddKey()
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("wallet account %s", account.Hex())

	forwarder := chainrpc.NewForwarder([]*types.ChainInfo{
		{ChainID: "0x1", Name: "mainnet", RPCURL: "http://127.0.0.1:8545"},
	})

	ctrl, err := controller.NewController(ctx, types.DefaultRequestConfig(), store,
		walletSigner, forwarder, forwarder, validator.NewOriginValidator(true))
	if err != nil {
		log.Fatal(err)
	}

	rpcServer := jsonrpc.NewServer()
	rpcServer.Register("Gateway", ctrl)
	http.Handle("/rpc/v1", rpcServer)

	log.Println("gateway listening on 127.0.0.1:45132")
	log.Fatal(http.ListenAndServe("127.0.0.1:45132", nil))
}
