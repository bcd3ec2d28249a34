package provider

import (
	"context"
	"encoding/json"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/web3-force/dapp-gateway/types"
)

var log = logging.Logger("provider")

const envelopeSource = "provider"

// IRelaySink is where the provider hands its envelopes. In-process it is
// the tab's relay; a browser build would post across the page boundary.
type IRelaySink interface {
	DeliverFromPage(ctx context.Context, env *types.PageEnvelope)
}

// Provider is the page-facing wallet surface. It exposes the request call
// pages use, keeps a warm cache of accounts and chain, and re-emits wallet
// events to subscribed listeners.
type Provider struct {
	relay   IRelaySink
	cfg     *types.RequestConfig
	stream  *types.CorrelationStream
	emitter *Emitter

	cacheLk   sync.RWMutex
	accounts  []string
	chainID   string
	connected bool

	connectLk       sync.Mutex
	connectInFlight bool
}

func NewProvider(ctx context.Context, relay IRelaySink, cfg *types.RequestConfig) *Provider {
	return &Provider{
		relay:   relay,
		cfg:     cfg,
		stream:  types.NewCorrelationStream(ctx, cfg),
		emitter: NewEmitter(),
	}
}

// HandleEnvelope consumes everything the relay sends back. Legacy-shaped
// events mirror the modern ones, so only the modern shape feeds the cache
// and the emitter.
func (p *Provider) HandleEnvelope(env *types.PageEnvelope) {
	if env == nil || env.Source != "relay" {
		return
	}
	switch env.Kind {
	case types.PageResponse:
		if err := p.stream.Resolve(env.Response); err != nil {
			log.Warnf("response dropped: %v", err)
		}
	case types.PageEvent:
		if p.applyEvent(env.Event) {
			p.emitter.Emit(env.Event)
		}
	case types.PageLegacyEvent:
	default:
		log.Warnf("relay sent unexpected %s envelope", env.Kind)
	}
}

// applyEvent folds a wallet event into the cache and reports whether the
// cached view changed. A chainChanged repeating the current chain is the
// echo of a switch this provider already announced.
func (p *Provider) applyEvent(ev *types.PushEvent) bool {
	if ev == nil {
		return false
	}
	p.cacheLk.Lock()
	defer p.cacheLk.Unlock()
	switch ev.Kind {
	case types.EventConnect:
		p.connected = true
		if ev.Connect != nil {
			p.chainID = ev.Connect.ChainID
		}
	case types.EventDisconnect:
		p.connected = false
		p.accounts = nil
	case types.EventAccountsChanged:
		p.accounts = ev.Accounts
	case types.EventChainChanged:
		if p.chainID == ev.ChainID {
			return false
		}
		p.chainID = ev.ChainID
	}
	return true
}

// Request performs one wallet call and blocks until the answer or the
// deadline. Reads served from the warm cache never leave the page.
func (p *Provider) Request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	switch method {
	case types.MethodEthAccounts:
		if accounts, ok := p.cachedAccounts(); ok {
			return json.Marshal(accounts)
		}
	case types.MethodEthChainID:
		if chainID := p.ChainID(); chainID != "" {
			return json.Marshal(chainID)
		}
	case types.MethodEthRequestAccounts:
		if accounts, ok := p.cachedAccounts(); ok && len(accounts) > 0 {
			return json.Marshal(accounts)
		}
		if !p.markConnectInFlight() {
			return nil, types.ErrResourceUnavailable.WithData("eth_requestAccounts already pending")
		}
		defer p.clearConnectInFlight()
	}

	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, types.ErrInvalidParams.WithData(err.Error())
		}
		raw = data
	}

	// the deadline covers the synchronous hop to the controller too, not
	// just the wait for a deferred answer
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	id, ch := p.stream.Register(method)
	p.relay.DeliverFromPage(callCtx, &types.PageEnvelope{
		Source: envelopeSource,
		Kind:   types.PageRequest,
		ID:     id,
		Method: method,
		Params: raw,
	})

	resp, err := p.stream.Await(callCtx, id, ch)
	if err != nil {
		return nil, types.ErrResourceUnavailable.WithData(err.Error())
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if method == types.MethodSwitchChain {
		p.noteChainSwitch(raw)
	}
	return resp.Payload, nil
}

// noteChainSwitch surfaces a confirmed wallet_switchEthereumChain on this
// page. The wallet's own chainChanged push only reaches connected origins,
// so the provider synthesizes the event; the cache guard keeps a push that
// does arrive from emitting it a second time.
func (p *Provider) noteChainSwitch(params json.RawMessage) {
	var elems []types.SwitchChainParams
	if err := json.Unmarshal(params, &elems); err != nil || len(elems) < 1 {
		var single types.SwitchChainParams
		if err := json.Unmarshal(params, &single); err != nil {
			return
		}
		elems = []types.SwitchChainParams{single}
	}
	if elems[0].ChainID == "" {
		return
	}
	ev := &types.PushEvent{Kind: types.EventChainChanged, ChainID: elems[0].ChainID}
	if p.applyEvent(ev) {
		p.emitter.Emit(ev)
	}
}

// Enable is the legacy connect alias older pages still call.
func (p *Provider) Enable(ctx context.Context) ([]string, error) {
	raw, err := p.Request(ctx, types.MethodEthRequestAccounts, nil)
	if err != nil {
		return nil, err
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, types.InternalError(err)
	}
	return accounts, nil
}

// Send is the legacy synchronous request alias.
func (p *Provider) Send(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return p.Request(ctx, method, params)
}

// SendAsync is the legacy callback alias.
func (p *Provider) SendAsync(ctx context.Context, method string, params interface{}, cb func(json.RawMessage, error)) {
	go func() {
		cb(p.Request(ctx, method, params))
	}()
}

func (p *Provider) On(kind types.EventKind, fn Listener) int {
	return p.emitter.Subscribe(kind, fn)
}

func (p *Provider) RemoveListener(kind types.EventKind, token int) {
	p.emitter.Unsubscribe(kind, token)
}

func (p *Provider) IsConnected() bool {
	p.cacheLk.RLock()
	defer p.cacheLk.RUnlock()
	return p.connected
}

func (p *Provider) ChainID() string {
	p.cacheLk.RLock()
	defer p.cacheLk.RUnlock()
	return p.chainID
}

func (p *Provider) cachedAccounts() ([]string, bool) {
	p.cacheLk.RLock()
	defer p.cacheLk.RUnlock()
	if !p.connected {
		return nil, false
	}
	accounts := make([]string, len(p.accounts))
	copy(accounts, p.accounts)
	return accounts, true
}

func (p *Provider) markConnectInFlight() bool {
	p.connectLk.Lock()
	defer p.connectLk.Unlock()
	if p.connectInFlight {
		return false
	}
	p.connectInFlight = true
	return true
}

func (p *Provider) clearConnectInFlight() {
	p.connectLk.Lock()
	p.connectInFlight = false
	p.connectLk.Unlock()
}
