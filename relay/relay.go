package relay

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"golang.org/x/time/rate"

	"github.com/web3-force/dapp-gateway/metrics"
	"github.com/web3-force/dapp-gateway/types"
)

var log = logging.Logger("relay")

const envelopeSource = "relay"

// IGatewayClient is the controller surface a relay talks to. In the daemon
// it is the controller itself; over the wire it is a jsonrpc client struct.
type IGatewayClient interface {
	RegisterTab(ctx context.Context, origin string, tabID uuid.UUID) (<-chan *types.PushEvent, error)
	Call(ctx context.Context, req *types.RequestEvent) (*types.ResponseEvent, error)
}

// Relay carries messages between one page and the controller. It trusts
// neither direction fully: page envelopes are screened before forwarding,
// and the origin a request claims is always overwritten with the relay's
// own.
type Relay struct {
	origin  string
	tabID   uuid.UUID
	gateway IGatewayClient
	cfg     *types.RequestConfig
	stream  *types.CorrelationStream
	limiter *rate.Limiter
	sink    func(*types.PageEnvelope)

	// local view of the page connection, fed by wallet pushes and by
	// answers to the connection-state methods
	cacheLk   sync.Mutex
	connected bool
	accounts  []string
	chainID   string
}

func NewRelay(ctx context.Context, origin string, gateway IGatewayClient, cfg *types.RequestConfig, sink func(*types.PageEnvelope)) *Relay {
	return &Relay{
		origin:  origin,
		tabID:   uuid.New(),
		gateway: gateway,
		cfg:     cfg,
		stream:  types.NewCorrelationStream(ctx, cfg),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestQueueSize), cfg.RequestQueueSize),
		sink:    sink,
	}
}

func (r *Relay) TabID() uuid.UUID {
	return r.tabID
}

// Start registers the tab channel and pumps controller pushes to the page
// until ctx is done.
func (r *Relay) Start(ctx context.Context) error {
	pushCh, err := r.gateway.RegisterTab(ctx, r.origin, r.tabID)
	if err != nil {
		return errors.Wrapf(err, "register tab for %s", r.origin)
	}
	go r.pumpEvents(ctx, pushCh)
	return nil
}

func (r *Relay) pumpEvents(ctx context.Context, pushCh <-chan *types.PushEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-pushCh:
			if !ok {
				log.Infof("push channel for %s closed", r.origin)
				return
			}
			r.handlePush(ev)
		}
	}
}

func (r *Relay) handlePush(ev *types.PushEvent) {
	if ev.Kind == types.EventResponse {
		if err := r.stream.Resolve(ev.Response); err != nil {
			log.Warnf("deferred response for %s dropped: %v", r.origin, err)
		}
		return
	}
	r.applyEvent(ev)
	// events go out in both shapes so older page scripts keep working
	r.sink(&types.PageEnvelope{Source: envelopeSource, Kind: types.PageEvent, Event: ev})
	r.sink(&types.PageEnvelope{Source: envelopeSource, Kind: types.PageLegacyEvent, Event: ev})
}

func (r *Relay) applyEvent(ev *types.PushEvent) {
	r.cacheLk.Lock()
	defer r.cacheLk.Unlock()
	switch ev.Kind {
	case types.EventConnect:
		r.connected = true
		if ev.Connect != nil {
			r.chainID = ev.Connect.ChainID
		}
	case types.EventDisconnect:
		r.connected = false
		r.accounts = nil
	case types.EventAccountsChanged:
		r.accounts = ev.Accounts
	case types.EventChainChanged:
		r.chainID = ev.ChainID
	}
}

// noteResponse folds a successful answer to a connection-state method into
// the cache, so the controller's word always overrides whatever a push left
// there.
func (r *Relay) noteResponse(method string, params json.RawMessage, resp *types.ResponseEvent) {
	if resp == nil || resp.Error != nil {
		return
	}
	r.cacheLk.Lock()
	defer r.cacheLk.Unlock()
	switch method {
	case types.MethodEthAccounts, types.MethodEthRequestAccounts:
		var accounts []string
		if err := json.Unmarshal(resp.Payload, &accounts); err != nil {
			return
		}
		r.accounts = accounts
		if method == types.MethodEthRequestAccounts {
			r.connected = true
		}
	case types.MethodEthChainID:
		var chainID string
		if err := json.Unmarshal(resp.Payload, &chainID); err != nil {
			return
		}
		r.chainID = chainID
	case types.MethodSwitchChain:
		var elems []types.SwitchChainParams
		if err := json.Unmarshal(params, &elems); err != nil || len(elems) < 1 {
			var single types.SwitchChainParams
			if err := json.Unmarshal(params, &single); err != nil {
				return
			}
			elems = []types.SwitchChainParams{single}
		}
		if elems[0].ChainID != "" {
			r.chainID = elems[0].ChainID
		}
	}
}

// ConnState reports the relay's cached view of the page connection.
func (r *Relay) ConnState() (connected bool, accounts []string, chainID string) {
	r.cacheLk.Lock()
	defer r.cacheLk.Unlock()
	accounts = make([]string, len(r.accounts))
	copy(accounts, r.accounts)
	return r.connected, accounts, r.chainID
}

// DeliverFromPage screens one page envelope and forwards it. The answer,
// immediate or deferred, comes back through the sink carrying the same
// correlation token.
func (r *Relay) DeliverFromPage(ctx context.Context, env *types.PageEnvelope) {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.OriginKey, r.origin))
	if env != nil && env.ID == uuid.Nil {
		// pages that skip the id still get a correlated answer
		env.ID = uuid.New()
	}
	if !r.admit(env) {
		stats.Record(ctx, metrics.RelayDropped.M(1))
		return
	}
	stats.Record(ctx, metrics.RelayForwarded.M(1))

	req := &types.RequestEvent{
		ID:     env.ID,
		Type:   typeForMethod(env.Method),
		Origin: r.origin,
		TabID:  r.tabID,
		Method: env.Method,
		Params: env.Params,
	}

	ch, err := r.stream.RegisterID(env.ID, env.Method)
	if err != nil {
		r.respond(&types.ResponseEvent{ID: env.ID, Error: types.ErrInvalidParams.WithData(err.Error())})
		return
	}

	resp, err := r.gateway.Call(ctx, req)
	if err != nil {
		r.stream.Cancel(env.ID)
		r.respond(&types.ResponseEvent{ID: env.ID, Error: types.InternalError(err)})
		return
	}
	if !resp.Pending {
		r.stream.Cancel(env.ID)
		r.noteResponse(env.Method, env.Params, resp)
		r.respond(resp)
		return
	}

	go func() {
		final, err := r.stream.Await(ctx, env.ID, ch)
		if err != nil {
			r.respond(&types.ResponseEvent{ID: env.ID, Error: types.ErrResourceUnavailable.WithData(err.Error())})
			return
		}
		r.noteResponse(env.Method, env.Params, final)
		r.respond(final)
	}()
}

// admit drops anything but a well-formed request claiming to come from the
// page provider. Response or event shapes arriving from the page are
// forgeries, as are envelopes echoing the relay's own stamp.
func (r *Relay) admit(env *types.PageEnvelope) bool {
	if env == nil || env.Source == envelopeSource {
		return false
	}
	if env.Kind != types.PageRequest {
		log.Warnf("page at %s sent a %s shape, dropped", r.origin, env.Kind)
		return false
	}
	if env.Response != nil || env.Event != nil {
		log.Warnf("page at %s tried to inject a response or event, dropped", r.origin)
		return false
	}
	if env.Method == "" {
		r.respond(&types.ResponseEvent{ID: env.ID, Error: types.ErrInvalidParams.WithData("missing method")})
		return false
	}
	if !r.limiter.Allow() {
		log.Warnf("page at %s exceeded the request rate", r.origin)
		r.respond(&types.ResponseEvent{ID: env.ID, Error: types.ErrResourceUnavailable.WithData("too many requests")})
		return false
	}
	return true
}

func (r *Relay) respond(resp *types.ResponseEvent) {
	r.sink(&types.PageEnvelope{Source: envelopeSource, Kind: types.PageResponse, ID: resp.ID, Response: resp})
}

// typeForMethod picks the routed message type for a page method.
func typeForMethod(method string) types.MsgType {
	switch method {
	case types.MethodEthRequestAccounts:
		return types.MsgConnectRequest
	default:
		return types.MsgWeb3Request
	}
}

// InFlight reports page requests still waiting on a deferred answer.
func (r *Relay) InFlight() int {
	return r.stream.InFlight()
}
