package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/web3-force/dapp-gateway/signer"
	"github.com/web3-force/dapp-gateway/storage"
	"github.com/web3-force/dapp-gateway/types"
	"github.com/web3-force/dapp-gateway/validator"
)

const testOrigin = "https://app.example.com"

type fakeChains struct {
	lk      sync.Mutex
	chains  map[string]*types.ChainInfo
	results map[string]json.RawMessage
}

func newFakeChains(ids ...string) *fakeChains {
	f := &fakeChains{
		chains:  make(map[string]*types.ChainInfo),
		results: make(map[string]json.RawMessage),
	}
	for _, id := range ids {
		f.chains[id] = &types.ChainInfo{ChainID: id, Name: id, RPCURL: "http://localhost:0"}
	}
	return f
}

func (f *fakeChains) Known(chainID string) bool {
	f.lk.Lock()
	defer f.lk.Unlock()
	_, ok := f.chains[chainID]
	return ok
}

func (f *fakeChains) AddChain(info *types.ChainInfo) {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.chains[info.ChainID] = info
}

func (f *fakeChains) Chains() []*types.ChainInfo {
	f.lk.Lock()
	defer f.lk.Unlock()
	out := make([]*types.ChainInfo, 0, len(f.chains))
	for _, c := range f.chains {
		out = append(out, c)
	}
	return out
}

func (f *fakeChains) Forward(ctx context.Context, chainID string, method string, params []interface{}) ([]byte, error) {
	f.lk.Lock()
	defer f.lk.Unlock()
	if _, ok := f.chains[chainID]; !ok {
		return nil, types.UnrecognizedChain(chainID)
	}
	result, ok := f.results[method]
	if !ok {
		return nil, types.InternalError(fmt.Errorf("no upstream result for %s", method))
	}
	return result, nil
}

type testEnv struct {
	ctx    context.Context
	ctrl   *Controller
	signer *signer.MemSigner
	chains *fakeChains
	store  *storage.Store
}

func setup(t *testing.T) *testEnv {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store, err := storage.OpenMemStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	memSigner := signer.NewMemSigner()
	_, err = memSigner.AddKey()
	require.NoError(t, err)

	chains := newFakeChains("0x1", "0x89")
	cfg := &types.RequestConfig{RequestQueueSize: 30, RequestTimeout: time.Minute, ClearInterval: time.Minute}
	ctrl, err := NewController(ctx, cfg, store, memSigner, chains, chains, validator.NewOriginValidator(false))
	require.NoError(t, err)

	return &testEnv{ctx: ctx, ctrl: ctrl, signer: memSigner, chains: chains, store: store}
}

func (e *testEnv) registerTab(t *testing.T) (uuid.UUID, <-chan *types.PushEvent, context.CancelFunc) {
	ctx, cancel := context.WithCancel(e.ctx)
	tabID := uuid.New()
	ch, err := e.ctrl.RegisterTab(ctx, testOrigin, tabID)
	require.NoError(t, err)
	return tabID, ch, cancel
}

func (e *testEnv) call(t *testing.T, msgType types.MsgType, method string, params interface{}, tabID uuid.UUID) *types.ResponseEvent {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		require.NoError(t, err)
		raw = data
	}
	resp, err := e.ctrl.Call(e.ctx, &types.RequestEvent{
		ID:     uuid.New(),
		Type:   msgType,
		Origin: testOrigin,
		TabID:  tabID,
		Method: method,
		Params: raw,
	})
	require.NoError(t, err)
	return resp
}

func recvEvent(t *testing.T, ch <-chan *types.PushEvent) *types.PushEvent {
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func (e *testEnv) connect(t *testing.T, tabID uuid.UUID, ch <-chan *types.PushEvent) []string {
	resp := e.call(t, types.MsgConnectRequest, "", nil, tabID)
	require.True(t, resp.Pending)

	pending, err := e.ctrl.ListPending(e.ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, e.ctrl.Decide(e.ctx, pending[0].ID.String(), types.OutcomeApprove, nil))

	require.Equal(t, types.EventConnect, recvEvent(t, ch).Kind)
	accountsEv := recvEvent(t, ch)
	require.Equal(t, types.EventAccountsChanged, accountsEv.Kind)
	require.Equal(t, types.EventChainChanged, recvEvent(t, ch).Kind)
	respEv := recvEvent(t, ch)
	require.Equal(t, types.EventResponse, respEv.Kind)
	require.Equal(t, resp.ID, respEv.Response.ID)
	require.Nil(t, respEv.Response.Error)
	return accountsEv.Accounts
}

func TestConnectApproval(t *testing.T) {
	e := setup(t)
	tabID, ch, cancel := e.registerTab(t)
	defer cancel()

	accounts := e.connect(t, tabID, ch)
	require.Len(t, accounts, 1)

	t.Run("already connected answers immediately", func(t *testing.T) {
		resp := e.call(t, types.MsgConnectRequest, "", nil, tabID)
		require.False(t, resp.Pending)
		var got []string
		require.NoError(t, json.Unmarshal(resp.Payload, &got))
		require.Equal(t, accounts, got)
	})
}

func TestConnectReject(t *testing.T) {
	e := setup(t)
	tabID, ch, cancel := e.registerTab(t)
	defer cancel()

	resp := e.call(t, types.MsgConnectRequest, "", nil, tabID)
	require.True(t, resp.Pending)

	pending, err := e.ctrl.ListPending(e.ctx)
	require.NoError(t, err)
	require.NoError(t, e.ctrl.Decide(e.ctx, pending[0].ID.String(), types.OutcomeReject, nil))

	ev := recvEvent(t, ch)
	require.Equal(t, types.EventResponse, ev.Kind)
	require.NotNil(t, ev.Response.Error)
	require.Equal(t, types.CodeUserRejected, ev.Response.Error.Code)

	t.Run("decide is final", func(t *testing.T) {
		// duplicate clicks are swallowed, and the first decision stands
		require.NoError(t, e.ctrl.Decide(e.ctx, pending[0].ID.String(), types.OutcomeApprove, nil))
		rec, err := e.store.GetSite(testOrigin)
		require.NoError(t, err)
		require.True(t, rec == nil || !rec.Connected)
	})
}

func TestDuplicateConnectRefused(t *testing.T) {
	e := setup(t)
	tabID, _, cancel := e.registerTab(t)
	defer cancel()

	resp := e.call(t, types.MsgConnectRequest, "", nil, tabID)
	require.True(t, resp.Pending)

	resp = e.call(t, types.MsgConnectRequest, "", nil, tabID)
	require.NotNil(t, resp.Error)
	require.Equal(t, types.CodeResourceUnavailable, resp.Error.Code)
}

func TestEthAccountsAndChainID(t *testing.T) {
	e := setup(t)
	tabID, ch, cancel := e.registerTab(t)
	defer cancel()

	t.Run("before connect", func(t *testing.T) {
		resp := e.call(t, types.MsgWeb3Request, types.MethodEthAccounts, nil, tabID)
		require.JSONEq(t, `[]`, string(resp.Payload))
	})

	accounts := e.connect(t, tabID, ch)

	t.Run("after connect", func(t *testing.T) {
		resp := e.call(t, types.MsgWeb3Request, types.MethodEthAccounts, nil, tabID)
		var got []string
		require.NoError(t, json.Unmarshal(resp.Payload, &got))
		require.Equal(t, accounts, got)
	})

	t.Run("chain id", func(t *testing.T) {
		resp := e.call(t, types.MsgWeb3Request, types.MethodEthChainID, nil, tabID)
		var got string
		require.NoError(t, json.Unmarshal(resp.Payload, &got))
		require.Equal(t, "0x1", got)
	})
}

func TestSignRequiresAuthorization(t *testing.T) {
	e := setup(t)
	tabID, ch, cancel := e.registerTab(t)
	defer cancel()

	params := []interface{}{"0x68656c6c6f", "0x0000000000000000000000000000000000000001"}
	resp := e.call(t, types.MsgWeb3Request, types.MethodPersonalSign, params, tabID)
	require.NotNil(t, resp.Error)
	require.Equal(t, types.CodeUnauthorized, resp.Error.Code)

	accounts := e.connect(t, tabID, ch)

	t.Run("unshared account", func(t *testing.T) {
		resp := e.call(t, types.MsgWeb3Request, types.MethodPersonalSign, params, tabID)
		require.NotNil(t, resp.Error)
		require.Equal(t, types.CodeUnauthorized, resp.Error.Code)
	})

	t.Run("approved sign", func(t *testing.T) {
		params := []interface{}{"0x68656c6c6f", accounts[0]}
		resp := e.call(t, types.MsgWeb3Request, types.MethodPersonalSign, params, tabID)
		require.True(t, resp.Pending)

		pending, err := e.ctrl.ListPending(e.ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.Equal(t, types.KindSign, pending[0].Kind)
		require.NoError(t, e.ctrl.Decide(e.ctx, pending[0].ID.String(), types.OutcomeApprove, nil))

		ev := recvEvent(t, ch)
		require.Equal(t, types.EventResponse, ev.Kind)
		require.Nil(t, ev.Response.Error)
		var sig string
		require.NoError(t, json.Unmarshal(ev.Response.Payload, &sig))
		require.Len(t, sig, 2+65*2)
	})
}

func TestSendTransaction(t *testing.T) {
	e := setup(t)
	tabID, ch, cancel := e.registerTab(t)
	defer cancel()
	accounts := e.connect(t, tabID, ch)

	tx := map[string]interface{}{
		"from":  accounts[0],
		"to":    "0x000000000000000000000000000000000000dEaD",
		"value": "0x3e8",
	}
	resp := e.call(t, types.MsgWeb3Request, types.MethodEthSendTransaction, []interface{}{tx}, tabID)
	require.True(t, resp.Pending)

	pending, err := e.ctrl.ListPending(e.ctx)
	require.NoError(t, err)
	require.Equal(t, types.KindSendTransaction, pending[0].Kind)
	require.NoError(t, e.ctrl.Decide(e.ctx, pending[0].ID.String(), types.OutcomeApprove, nil))

	ev := recvEvent(t, ch)
	require.Nil(t, ev.Response.Error)
	var hash string
	require.NoError(t, json.Unmarshal(ev.Response.Payload, &hash))
	require.Len(t, hash, 2+32*2)
}

func TestSwitchChain(t *testing.T) {
	e := setup(t)
	tabID, ch, cancel := e.registerTab(t)
	defer cancel()
	e.connect(t, tabID, ch)

	t.Run("unknown chain", func(t *testing.T) {
		resp := e.call(t, types.MsgWeb3Request, types.MethodSwitchChain,
			[]interface{}{map[string]string{"chainId": "0xdead"}}, tabID)
		require.NotNil(t, resp.Error)
		require.Equal(t, types.CodeUnrecognizedChain, resp.Error.Code)
	})

	t.Run("already selected", func(t *testing.T) {
		resp := e.call(t, types.MsgWeb3Request, types.MethodSwitchChain,
			[]interface{}{map[string]string{"chainId": "0x1"}}, tabID)
		require.False(t, resp.Pending)
		require.JSONEq(t, `null`, string(resp.Payload))
	})

	t.Run("allow-listed switch needs no approval", func(t *testing.T) {
		resp := e.call(t, types.MsgWeb3Request, types.MethodSwitchChain,
			[]interface{}{map[string]string{"chainId": "0x89"}}, tabID)
		require.False(t, resp.Pending)
		require.Nil(t, resp.Error)
		require.JSONEq(t, `null`, string(resp.Payload))

		ev := recvEvent(t, ch)
		require.Equal(t, types.EventChainChanged, ev.Kind)
		require.Equal(t, "0x89", ev.ChainID)

		require.Equal(t, "0x89", e.ctrl.selectedChain())

		// connected sites follow the wallet's chain
		rec, err := e.store.GetSite(testOrigin)
		require.NoError(t, err)
		require.Equal(t, "0x89", rec.ChainID)
	})
}

func TestAddChainAndWatchAsset(t *testing.T) {
	e := setup(t)
	tabID, ch, cancel := e.registerTab(t)
	defer cancel()
	e.connect(t, tabID, ch)

	t.Run("add chain", func(t *testing.T) {
		params := []interface{}{map[string]interface{}{
			"chainId":   "0xa",
			"chainName": "optimism",
			"rpcUrls":   []string{"https://op.example"},
		}}
		resp := e.call(t, types.MsgWeb3Request, types.MethodAddChain, params, tabID)
		require.True(t, resp.Pending)

		pending, err := e.ctrl.ListPending(e.ctx)
		require.NoError(t, err)
		require.NoError(t, e.ctrl.Decide(e.ctx, pending[0].ID.String(), types.OutcomeApprove, nil))

		ev := recvEvent(t, ch)
		require.JSONEq(t, `null`, string(ev.Response.Payload))
		require.True(t, e.chains.Known("0xa"))
	})

	t.Run("watch asset", func(t *testing.T) {
		params := map[string]interface{}{
			"type": "ERC20",
			"options": map[string]interface{}{
				"address":  "0x6B175474E89094C44Da98b954EedeAC495271d0F",
				"symbol":   "DAI",
				"decimals": 18,
			},
		}
		resp := e.call(t, types.MsgWeb3Request, types.MethodWatchAsset, params, tabID)
		require.True(t, resp.Pending)

		pending, err := e.ctrl.ListPending(e.ctx)
		require.NoError(t, err)
		require.Equal(t, types.KindWatchAsset, pending[0].Kind)
		require.NoError(t, e.ctrl.Decide(e.ctx, pending[0].ID.String(), types.OutcomeApprove, nil))

		ev := recvEvent(t, ch)
		require.JSONEq(t, `true`, string(ev.Response.Payload))

		rec, err := e.store.GetSite(testOrigin)
		require.NoError(t, err)
		require.Len(t, rec.Assets, 1)
		require.Equal(t, "DAI", rec.Assets[0].Symbol)
	})
}

func TestReadForwarding(t *testing.T) {
	e := setup(t)
	tabID, _, cancel := e.registerTab(t)
	defer cancel()

	e.chains.results["eth_blockNumber"] = json.RawMessage(`"0x10"`)
	resp := e.call(t, types.MsgWeb3Request, "eth_blockNumber", []interface{}{}, tabID)
	require.Nil(t, resp.Error)
	require.JSONEq(t, `"0x10"`, string(resp.Payload))

	t.Run("unsupported method", func(t *testing.T) {
		resp := e.call(t, types.MsgWeb3Request, "admin_peers", nil, tabID)
		require.NotNil(t, resp.Error)
		require.Equal(t, types.CodeUnsupportedMethod, resp.Error.Code)
	})
}

func TestSiteDisconnected(t *testing.T) {
	e := setup(t)
	tabID, ch, cancel := e.registerTab(t)
	defer cancel()
	e.connect(t, tabID, ch)

	resp := e.call(t, types.MsgSiteDisconnected, "", nil, tabID)
	require.Nil(t, resp.Error)

	ev := recvEvent(t, ch)
	require.Equal(t, types.EventDisconnect, ev.Kind)
	require.Equal(t, types.CodeDisconnected, ev.Disconnect.Code)

	rec, err := e.store.GetSite(testOrigin)
	require.NoError(t, err)
	require.False(t, rec.Connected)

	t.Run("accounts empty again", func(t *testing.T) {
		resp := e.call(t, types.MsgWeb3Request, types.MethodEthAccounts, nil, tabID)
		require.JSONEq(t, `[]`, string(resp.Payload))
	})
}

func TestSilentReconnect(t *testing.T) {
	e := setup(t)
	tabID, ch, cancel := e.registerTab(t)
	accounts := e.connect(t, tabID, ch)
	cancel()

	// new tab of the same site gets the handshake replayed without approval
	_, ch2, cancel2 := e.registerTab(t)
	defer cancel2()

	require.Equal(t, types.EventConnect, recvEvent(t, ch2).Kind)
	ev := recvEvent(t, ch2)
	require.Equal(t, types.EventAccountsChanged, ev.Kind)
	require.Equal(t, accounts, ev.Accounts)
	require.Equal(t, types.EventChainChanged, recvEvent(t, ch2).Kind)

	require.Equal(t, 0, e.ctrl.pending.count())
	_ = tabID
}

func TestReplayPrecedesNewTraffic(t *testing.T) {
	e := setup(t)
	tabID, ch, cancel := e.registerTab(t)
	accounts := e.connect(t, tabID, ch)
	cancel()

	// the handshake is replayed before RegisterTab returns, so an approval
	// decided right after registration cannot jump ahead of it
	tab2, ch2, cancel2 := e.registerTab(t)
	defer cancel2()

	resp := e.call(t, types.MsgWeb3Request, types.MethodPersonalSign,
		[]interface{}{"0x68656c6c6f", accounts[0]}, tab2)
	require.True(t, resp.Pending)

	pending, err := e.ctrl.ListPending(e.ctx)
	require.NoError(t, err)
	require.NoError(t, e.ctrl.Decide(e.ctx, pending[0].ID.String(), types.OutcomeApprove, nil))

	kinds := []types.EventKind{
		recvEvent(t, ch2).Kind,
		recvEvent(t, ch2).Kind,
		recvEvent(t, ch2).Kind,
		recvEvent(t, ch2).Kind,
	}
	require.Equal(t, []types.EventKind{
		types.EventConnect,
		types.EventAccountsChanged,
		types.EventChainChanged,
		types.EventResponse,
	}, kinds)
}

func TestPendingExpiry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.OpenMemStore()
	require.NoError(t, err)
	defer store.Close() // nolint

	memSigner := signer.NewMemSigner()
	_, err = memSigner.AddKey()
	require.NoError(t, err)

	chains := newFakeChains("0x1")
	cfg := &types.RequestConfig{RequestQueueSize: 30, RequestTimeout: 50 * time.Millisecond, ClearInterval: 20 * time.Millisecond}
	ctrl, err := NewController(ctx, cfg, store, memSigner, chains, chains, validator.NewOriginValidator(false))
	require.NoError(t, err)

	tabCtx, tabCancel := context.WithCancel(ctx)
	defer tabCancel()
	ch, err := ctrl.RegisterTab(tabCtx, testOrigin, uuid.New())
	require.NoError(t, err)

	resp, err := ctrl.Call(ctx, &types.RequestEvent{
		ID: uuid.New(), Type: types.MsgConnectRequest, Origin: testOrigin,
	})
	require.NoError(t, err)
	require.True(t, resp.Pending)

	ev := recvEvent(t, ch)
	require.Equal(t, types.EventResponse, ev.Kind)
	require.Equal(t, resp.ID, ev.Response.ID)
	require.Equal(t, types.CodeUserRejected, ev.Response.Error.Code)

	// deciding after expiry is a silent no-op, nothing reconnects
	require.NoError(t, ctrl.Decide(ctx, resp.ID.String(), types.OutcomeApprove, nil))
	require.Equal(t, 0, ctrl.pending.count())
}

func TestWalletConnectLifecycle(t *testing.T) {
	e := setup(t)
	tabID, ch, cancel := e.registerTab(t)
	defer cancel()

	resp := e.call(t, types.MsgWCSessionRequest, "", types.WCSessionParams{URI: "wc:topic@2"}, tabID)
	require.True(t, resp.Pending)

	pending, err := e.ctrl.ListPending(e.ctx)
	require.NoError(t, err)
	require.Equal(t, types.KindWCSession, pending[0].Kind)
	require.NoError(t, e.ctrl.Decide(e.ctx, pending[0].ID.String(), types.OutcomeApprove, nil))

	ev := recvEvent(t, ch)
	require.Nil(t, ev.Response.Error)
	var sess types.Session
	require.NoError(t, json.Unmarshal(ev.Response.Payload, &sess))
	require.True(t, sess.Connected)
	require.NotEmpty(t, sess.Accounts)

	t.Run("session call", func(t *testing.T) {
		params := types.WCCallParams{
			SessionID: sess.ID,
			Method:    types.MethodPersonalSign,
		}
		inner, err := json.Marshal([]interface{}{"0x68656c6c6f", sess.Accounts[0]})
		require.NoError(t, err)
		params.Params = inner

		resp := e.call(t, types.MsgWCCallRequest, "", params, tabID)
		require.True(t, resp.Pending)

		pending, err := e.ctrl.ListPending(e.ctx)
		require.NoError(t, err)
		require.Equal(t, types.KindWCCall, pending[0].Kind)
		require.NoError(t, e.ctrl.Decide(e.ctx, pending[0].ID.String(), types.OutcomeApprove, nil))

		ev := recvEvent(t, ch)
		require.Nil(t, ev.Response.Error)
	})

	t.Run("close session", func(t *testing.T) {
		require.NoError(t, e.ctrl.CloseSession(e.ctx, sess.ID.String()))
		resp := e.call(t, types.MsgWCCallRequest, "", types.WCCallParams{SessionID: sess.ID, Method: "eth_chainId"}, tabID)
		require.NotNil(t, resp.Error)
		require.Equal(t, types.CodeDisconnected, resp.Error.Code)
	})
}

func TestResponseTargetsOriginatingTab(t *testing.T) {
	e := setup(t)
	tabID, ch, cancel := e.registerTab(t)
	defer cancel()
	_, ch2, cancel2 := e.registerTab(t)
	defer cancel2()

	resp := e.call(t, types.MsgConnectRequest, "", nil, tabID)
	require.True(t, resp.Pending)

	pending, err := e.ctrl.ListPending(e.ctx)
	require.NoError(t, err)
	require.NoError(t, e.ctrl.Decide(e.ctx, pending[0].ID.String(), types.OutcomeReject, nil))

	ev := recvEvent(t, ch)
	require.Equal(t, types.EventResponse, ev.Kind)
	require.Equal(t, resp.ID, ev.Response.ID)

	// the sibling tab never asked and must not see the answer
	select {
	case ev := <-ch2:
		t.Fatalf("unexpected %s event on sibling tab", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}

	t.Run("closed tab falls back to the origin", func(t *testing.T) {
		resp := e.call(t, types.MsgConnectRequest, "", nil, tabID)
		require.True(t, resp.Pending)
		cancel()
		require.Eventually(t, func() bool {
			return e.ctrl.connMgr.tabCount() == 1
		}, time.Second, 10*time.Millisecond)

		pending, err := e.ctrl.ListPending(e.ctx)
		require.NoError(t, err)
		require.NoError(t, e.ctrl.Decide(e.ctx, pending[0].ID.String(), types.OutcomeReject, nil))

		ev := recvEvent(t, ch2)
		require.Equal(t, types.EventResponse, ev.Kind)
		require.Equal(t, resp.ID, ev.Response.ID)
	})
}

func TestMalformedWalletMessages(t *testing.T) {
	e := setup(t)
	tabID, _, cancel := e.registerTab(t)
	defer cancel()

	t.Run("page announces chain change", func(t *testing.T) {
		resp := e.call(t, types.MsgChainChanged, "", nil, tabID)
		require.NotNil(t, resp.Error)
		require.Equal(t, types.CodeInvalidInput, resp.Error.Code)
		require.Equal(t, "chain changes originate from the wallet", resp.Error.Message)
	})

	t.Run("unknown message type", func(t *testing.T) {
		resp := e.call(t, types.MsgType("mystery"), "", nil, tabID)
		require.NotNil(t, resp.Error)
		require.Equal(t, types.CodeInvalidInput, resp.Error.Code)
	})

	t.Run("decide with garbage id", func(t *testing.T) {
		resp := e.call(t, types.MsgApproveConnection, "", map[string]string{"id": "not-a-uuid"}, tabID)
		require.NotNil(t, resp.Error)
		require.Equal(t, types.CodeInvalidInput, resp.Error.Code)
		require.NotEmpty(t, resp.Error.Data)
	})
}

func TestAdminOps(t *testing.T) {
	e := setup(t)
	tabID, ch, cancel := e.registerTab(t)
	defer cancel()
	e.connect(t, tabID, ch)

	t.Run("get state", func(t *testing.T) {
		view, err := e.ctrl.GetState(e.ctx)
		require.NoError(t, err)
		require.Len(t, view.Accounts, 1)
		require.Equal(t, "0x1", view.SelectedChainID)
		require.Len(t, view.ConnectedSites, 1)
	})

	t.Run("admin switch chain", func(t *testing.T) {
		require.Error(t, e.ctrl.SwitchChain(e.ctx, "0xdead"))
		require.NoError(t, e.ctrl.SwitchChain(e.ctx, "0x89"))
		ev := recvEvent(t, ch)
		require.Equal(t, types.EventChainChanged, ev.Kind)
		require.Equal(t, "0x89", ev.ChainID)
	})

	t.Run("add account", func(t *testing.T) {
		addr, err := e.ctrl.AddAccount(e.ctx)
		require.NoError(t, err)
		require.NotEmpty(t, addr)
	})

	t.Run("revoke site", func(t *testing.T) {
		require.NoError(t, e.ctrl.RevokeSite(e.ctx, testOrigin))
		ev := recvEvent(t, ch)
		require.Equal(t, types.EventDisconnect, ev.Kind)
		require.Error(t, e.ctrl.RevokeSite(e.ctx, "https://never-seen.example"))
	})
}
