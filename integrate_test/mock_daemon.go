package integrate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-jsonrpc"
	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"

	"github.com/web3-force/dapp-gateway/chainrpc"
	"github.com/web3-force/dapp-gateway/controller"
	"github.com/web3-force/dapp-gateway/signer"
	"github.com/web3-force/dapp-gateway/storage"
	"github.com/web3-force/dapp-gateway/types"
	"github.com/web3-force/dapp-gateway/validator"
	"github.com/web3-force/dapp-gateway/version"
)

var log = logging.Logger("mock main")

type testConfig struct {
	requestTimeout time.Duration
	clearInterval  time.Duration
}

func defaultTestConfig() testConfig {
	return testConfig{
		requestTimeout: time.Minute * 5,
		clearInterval:  time.Minute * 5,
	}
}

// fakeNode is a canned-answer JSON-RPC chain node. Forwarded reads hit it
// over real HTTP so the whole forwarding path is exercised.
type fakeNode struct {
	srv     *httptest.Server
	results map[string]interface{}
}

func newFakeNode(results map[string]interface{}) *fakeNode {
	n := &fakeNode{results: results}
	n.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		result, ok := n.results[req.Method]
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]interface{}{"code": -32601, "message": "method not found"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": req.ID, "result": result,
		})
	}))
	return n
}

// mockDaemon is one in-process gateway reachable over websocket, with its
// backing signer and fake chain node exposed for assertions.
type mockDaemon struct {
	URL    string
	Signer *signer.MemSigner
	Node   *fakeNode

	Account common.Address
}

type gatewayAPI struct {
	*controller.Controller
}

func (g *gatewayAPI) Version(ctx context.Context) (string, error) {
	return version.UserVersion, nil
}

func MockMain(ctx context.Context, tcfg testConfig) (*mockDaemon, error) {
	requestCfg := &types.RequestConfig{
		RequestQueueSize: 30,
		RequestTimeout:   tcfg.requestTimeout,
		ClearInterval:    tcfg.clearInterval,
	}

	store, err := storage.OpenMemStore()
	if err != nil {
		return nil, err
	}

	walletSigner := signer.NewMemSigner()
	account, err := walletSigner.AddKey()
	if err != nil {
		return nil, err
	}

	node := newFakeNode(map[string]interface{}{
		"eth_blockNumber": "0x10",
		"eth_getBalance":  "0xde0b6b3a7640000",
		"net_version":     "1",
	})

	forwarder := chainrpc.NewForwarder([]*types.ChainInfo{
		{ChainID: "0x1", Name: "mainnet", RPCURL: node.srv.URL},
		{ChainID: "0x89", Name: "polygon", RPCURL: node.srv.URL},
	})

	ctrl, err := controller.NewController(ctx, requestCfg, store, walletSigner,
		forwarder, forwarder, validator.NewOriginValidator(true))
	if err != nil {
		return nil, err
	}

	log.Infof("mock gateway version %s", version.UserVersion)

	mux := mux.NewRouter()
	rpcServer := jsonrpc.NewServer()
	rpcServer.Register("Gateway", &gatewayAPI{Controller: ctrl})
	mux.Handle("/rpc/v1", rpcServer)
	mux.PathPrefix("/").Handler(http.DefaultServeMux)

	srv := httptest.NewServer(mux)
	return &mockDaemon{
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http") + "/rpc/v1",
		Signer:  walletSigner,
		Node:    node,
		Account: account,
	}, nil
}
