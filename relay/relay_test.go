package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/web3-force/dapp-gateway/types"
)

const testOrigin = "https://app.example.com"

type fakeGateway struct {
	lk       sync.Mutex
	pushCh   chan *types.PushEvent
	calls    []*types.RequestEvent
	response func(req *types.RequestEvent) *types.ResponseEvent
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		pushCh: make(chan *types.PushEvent, 16),
		response: func(req *types.RequestEvent) *types.ResponseEvent {
			return &types.ResponseEvent{ID: req.ID, Payload: json.RawMessage(`"ok"`)}
		},
	}
}

func (f *fakeGateway) RegisterTab(ctx context.Context, origin string, tabID uuid.UUID) (<-chan *types.PushEvent, error) {
	return f.pushCh, nil
}

func (f *fakeGateway) Call(ctx context.Context, req *types.RequestEvent) (*types.ResponseEvent, error) {
	f.lk.Lock()
	f.calls = append(f.calls, req)
	f.lk.Unlock()
	return f.response(req), nil
}

func (f *fakeGateway) lastCall() *types.RequestEvent {
	f.lk.Lock()
	defer f.lk.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func setup(t *testing.T) (*Relay, *fakeGateway, chan *types.PageEnvelope) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	gw := newFakeGateway()
	out := make(chan *types.PageEnvelope, 16)
	cfg := types.DefaultRequestConfig()
	r := NewRelay(ctx, testOrigin, gw, cfg, func(env *types.PageEnvelope) {
		out <- env
	})
	require.NoError(t, r.Start(ctx))
	return r, gw, out
}

func recvEnvelope(t *testing.T, out chan *types.PageEnvelope) *types.PageEnvelope {
	select {
	case env := <-out:
		return env
	case <-time.After(time.Second):
		t.Fatal("no envelope received")
		return nil
	}
}

func pageRequest(method string, params interface{}) *types.PageEnvelope {
	var raw json.RawMessage
	if params != nil {
		raw, _ = json.Marshal(params)
	}
	return &types.PageEnvelope{
		Source: "provider",
		Kind:   types.PageRequest,
		ID:     uuid.New(),
		Method: method,
		Params: raw,
	}
}

func TestForwardImmediateResponse(t *testing.T) {
	r, gw, out := setup(t)
	ctx := context.Background()

	env := pageRequest(types.MethodEthChainID, nil)
	r.DeliverFromPage(ctx, env)

	resp := recvEnvelope(t, out)
	require.Equal(t, types.PageResponse, resp.Kind)
	require.Equal(t, "relay", resp.Source)
	require.Equal(t, env.ID, resp.Response.ID)
	require.JSONEq(t, `"ok"`, string(resp.Response.Payload))

	call := gw.lastCall()
	require.Equal(t, testOrigin, call.Origin)
	require.Equal(t, r.TabID(), call.TabID)
	require.Equal(t, types.MsgWeb3Request, call.Type)
	require.Equal(t, 0, r.InFlight())
}

func TestConnectMethodType(t *testing.T) {
	r, gw, out := setup(t)
	r.DeliverFromPage(context.Background(), pageRequest(types.MethodEthRequestAccounts, nil))
	recvEnvelope(t, out)
	require.Equal(t, types.MsgConnectRequest, gw.lastCall().Type)
}

func TestDeferredResponse(t *testing.T) {
	r, gw, out := setup(t)
	ctx := context.Background()

	gw.response = func(req *types.RequestEvent) *types.ResponseEvent {
		return &types.ResponseEvent{ID: req.ID, Pending: true}
	}

	env := pageRequest(types.MethodEthRequestAccounts, nil)
	r.DeliverFromPage(ctx, env)
	require.Eventually(t, func() bool { return r.InFlight() == 1 }, time.Second, 10*time.Millisecond)

	gw.pushCh <- &types.PushEvent{
		Kind:     types.EventResponse,
		Response: &types.ResponseEvent{ID: env.ID, Payload: json.RawMessage(`["0xabc"]`)},
	}

	resp := recvEnvelope(t, out)
	require.Equal(t, types.PageResponse, resp.Kind)
	require.Equal(t, env.ID, resp.Response.ID)
	require.JSONEq(t, `["0xabc"]`, string(resp.Response.Payload))
	require.Equal(t, 0, r.InFlight())
}

func TestEventRebroadcastBothShapes(t *testing.T) {
	_, gw, out := setup(t)

	gw.pushCh <- &types.PushEvent{Kind: types.EventChainChanged, ChainID: "0x89"}

	first := recvEnvelope(t, out)
	require.Equal(t, types.PageEvent, first.Kind)
	require.Equal(t, "0x89", first.Event.ChainID)

	second := recvEnvelope(t, out)
	require.Equal(t, types.PageLegacyEvent, second.Kind)
	require.Equal(t, "0x89", second.Event.ChainID)
}

func TestGuards(t *testing.T) {
	r, gw, out := setup(t)
	ctx := context.Background()

	drop := func(t *testing.T, env *types.PageEnvelope) {
		r.DeliverFromPage(ctx, env)
		select {
		case got := <-out:
			t.Fatalf("expected drop, got %s envelope", got.Kind)
		case <-time.After(50 * time.Millisecond):
		}
		require.Nil(t, gw.lastCall())
	}

	t.Run("own stamp looped back", func(t *testing.T) {
		env := pageRequest(types.MethodEthChainID, nil)
		env.Source = "relay"
		drop(t, env)
	})

	t.Run("forged response shape", func(t *testing.T) {
		drop(t, &types.PageEnvelope{
			Source:   "provider",
			Kind:     types.PageResponse,
			ID:       uuid.New(),
			Response: &types.ResponseEvent{ID: uuid.New()},
		})
	})

	t.Run("request smuggling an event", func(t *testing.T) {
		env := pageRequest(types.MethodEthChainID, nil)
		env.Event = &types.PushEvent{Kind: types.EventChainChanged, ChainID: "0x1"}
		drop(t, env)
	})

	t.Run("missing method", func(t *testing.T) {
		r.DeliverFromPage(ctx, &types.PageEnvelope{Source: "provider", Kind: types.PageRequest, ID: uuid.New()})
		resp := recvEnvelope(t, out)
		require.Equal(t, types.PageResponse, resp.Kind)
		require.Equal(t, types.CodeInvalidParams, resp.Response.Error.Code)
		require.Nil(t, gw.lastCall())
	})
}

func TestMissingTokenGetsGenerated(t *testing.T) {
	r, gw, out := setup(t)

	env := pageRequest(types.MethodEthChainID, nil)
	env.ID = uuid.Nil
	r.DeliverFromPage(context.Background(), env)

	resp := recvEnvelope(t, out)
	require.Equal(t, types.PageResponse, resp.Kind)
	require.NotEqual(t, uuid.Nil, resp.Response.ID)
	require.Equal(t, resp.Response.ID, gw.lastCall().ID)
}

func TestConnStateCache(t *testing.T) {
	r, gw, out := setup(t)
	ctx := context.Background()

	gw.pushCh <- &types.PushEvent{Kind: types.EventConnect, Connect: &types.ConnectPayload{ChainID: "0x1"}}
	recvEnvelope(t, out)
	recvEnvelope(t, out)
	gw.pushCh <- &types.PushEvent{Kind: types.EventAccountsChanged, Accounts: []string{"0xabc"}}
	recvEnvelope(t, out)
	recvEnvelope(t, out)

	connected, accounts, chainID := r.ConnState()
	require.True(t, connected)
	require.Equal(t, []string{"0xabc"}, accounts)
	require.Equal(t, "0x1", chainID)

	t.Run("controller answer overwrites the pushed view", func(t *testing.T) {
		gw.response = func(req *types.RequestEvent) *types.ResponseEvent {
			return &types.ResponseEvent{ID: req.ID, Payload: json.RawMessage(`["0xdef"]`)}
		}
		r.DeliverFromPage(ctx, pageRequest(types.MethodEthAccounts, nil))
		recvEnvelope(t, out)

		_, accounts, _ := r.ConnState()
		require.Equal(t, []string{"0xdef"}, accounts)
	})

	t.Run("switch answer moves the cached chain", func(t *testing.T) {
		gw.response = func(req *types.RequestEvent) *types.ResponseEvent {
			return &types.ResponseEvent{ID: req.ID, Payload: json.RawMessage(`null`)}
		}
		r.DeliverFromPage(ctx, pageRequest(types.MethodSwitchChain,
			[]interface{}{map[string]string{"chainId": "0x89"}}))
		recvEnvelope(t, out)

		_, _, chainID := r.ConnState()
		require.Equal(t, "0x89", chainID)
	})

	t.Run("disconnect clears it", func(t *testing.T) {
		gw.pushCh <- &types.PushEvent{
			Kind:       types.EventDisconnect,
			Disconnect: &types.DisconnectPayload{Code: types.CodeDisconnected, Reason: "revoked"},
		}
		recvEnvelope(t, out)
		recvEnvelope(t, out)

		connected, accounts, _ := r.ConnState()
		require.False(t, connected)
		require.Empty(t, accounts)
	})
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := newFakeGateway()
	out := make(chan *types.PageEnvelope, 64)
	cfg := &types.RequestConfig{RequestQueueSize: 2, RequestTimeout: time.Minute, ClearInterval: time.Minute}
	r := NewRelay(ctx, testOrigin, gw, cfg, func(env *types.PageEnvelope) {
		out <- env
	})
	require.NoError(t, r.Start(ctx))

	var limited bool
	for i := 0; i < 10; i++ {
		r.DeliverFromPage(ctx, pageRequest(types.MethodEthChainID, nil))
	}
	for len(out) > 0 {
		env := <-out
		if env.Response != nil && env.Response.Error != nil && env.Response.Error.Code == types.CodeResourceUnavailable {
			limited = true
		}
	}
	require.True(t, limited)
}
