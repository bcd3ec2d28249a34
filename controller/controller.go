package controller

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"

	"github.com/web3-force/dapp-gateway/metrics"
	"github.com/web3-force/dapp-gateway/storage"
	"github.com/web3-force/dapp-gateway/types"
	"github.com/web3-force/dapp-gateway/validator"
)

var log = logging.Logger("controller")

// Controller owns the wallet: the pending-approval table, the per-site
// authorization records, the selected chain and the signing service. It is
// the only component allowed to decide requests; relays and pages merely
// carry messages to and from it.
type Controller struct {
	ctx       context.Context
	cfg       *types.RequestConfig
	connMgr   ITabConnMgr
	pending   *pendingTable
	store     *storage.Store
	signer    types.SigningService
	forwarder types.ReadForwarder
	chains    IChainRegistry
	validator validator.IOriginValidator

	chainLk sync.RWMutex
	chainID string
}

// IChainRegistry is the allow-list surface the controller needs beyond raw
// forwarding.
type IChainRegistry interface {
	Known(chainID string) bool
	AddChain(info *types.ChainInfo)
	Chains() []*types.ChainInfo
}

var (
	_ types.ApprovalSurface = (*Controller)(nil)
)

func NewController(ctx context.Context,
	cfg *types.RequestConfig,
	store *storage.Store,
	signer types.SigningService,
	forwarder types.ReadForwarder,
	chains IChainRegistry,
	originValidator validator.IOriginValidator,
) (*Controller, error) {
	c := &Controller{
		ctx:       ctx,
		cfg:       cfg,
		connMgr:   newTabConnMgr(),
		pending:   newPendingTable(cfg.RequestTimeout),
		store:     store,
		signer:    signer,
		forwarder: forwarder,
		chains:    chains,
		validator: originValidator,
	}

	chainID, err := store.SelectedChain()
	if err != nil {
		return nil, errors.Wrap(err, "load selected chain")
	}
	if chainID == "" {
		if known := chains.Chains(); len(known) > 0 {
			chainID = known[0].ChainID
		}
	}
	c.chainID = chainID

	// chains added by earlier wallet_addEthereumChain approvals
	saved, err := store.ListChains()
	if err != nil {
		return nil, errors.Wrap(err, "load saved chains")
	}
	for _, info := range saved {
		chains.AddChain(info)
	}

	go c.pending.cleanExpired(ctx, cfg.ClearInterval, c.notifyExpired)
	return c, nil
}

// RegisterTab opens the event channel for one page context. A site that was
// authorized before reconnects silently: the page gets the connect events
// again without a fresh approval.
func (c *Controller) RegisterTab(ctx context.Context, origin string, tabID uuid.UUID) (<-chan *types.PushEvent, error) {
	origin, err := c.validator.Validate(origin)
	if err != nil {
		return nil, err
	}

	out := make(chan *types.PushEvent, c.cfg.RequestQueueSize)
	tabLog := log.With("origin", origin).With("tab", tabID.String())
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.OriginKey, origin))

	channel := types.NewTabChannel(origin, tabID, out)
	if err := c.connMgr.addConn(origin, channel); err != nil {
		return nil, err
	}
	stats.Record(ctx, metrics.TabRegister.M(1))
	metrics.TabConnections.Set(ctx, int64(c.connMgr.tabCount()))

	// replay the handshake before the channel is handed out, so an
	// approval landing right after registration cannot interleave with it
	if rec, err := c.connectedSite(origin); err != nil {
		tabLog.Errorf("read site record: %v", err)
	} else if rec != nil {
		c.sendConnectEvents(channel, rec)
	}

	go func() {
		defer close(out)
		<-ctx.Done()
		stats.Record(ctx, metrics.TabUnregister.M(1))
		if err := c.connMgr.removeConn(origin, channel); err != nil {
			tabLog.Errorf("remove tab connection: %v", err)
		}
		metrics.TabConnections.Set(ctx, int64(c.connMgr.tabCount()))
	}()
	return out, nil
}

// sendConnectEvents replays the authorization handshake to a single tab, in
// the order pages rely on.
func (c *Controller) sendConnectEvents(channel *types.TabChannel, rec *types.ConnectionRecord) {
	events := []*types.PushEvent{
		{Kind: types.EventConnect, Connect: &types.ConnectPayload{ChainID: c.selectedChain()}},
		{Kind: types.EventAccountsChanged, Accounts: rec.Accounts},
		{Kind: types.EventChainChanged, ChainID: c.selectedChain()},
	}
	for _, ev := range events {
		select {
		case channel.OutBound <- ev:
		default:
			log.Warnf("tab %s of %s dropped replayed %s", channel.TabID, channel.Origin, ev.Kind)
			return
		}
	}
}

// Call handles one routed message and answers synchronously. Requests that
// need the owner's approval are parked in the pending table and acknowledged
// with Pending set; the final answer arrives later as a response event on
// the tab channel.
func (c *Controller) Call(ctx context.Context, req *types.RequestEvent) (*types.ResponseEvent, error) {
	if req == nil || req.ID == uuid.Nil {
		return nil, errors.New("request without correlation token")
	}
	origin, err := c.validator.Validate(req.Origin)
	if err != nil {
		return errResponse(req.ID, types.NewRPCError(types.CodeInvalidInput, err.Error())), nil
	}
	req.Origin = origin

	ctx, _ = tag.New(ctx,
		tag.Upsert(metrics.OriginKey, origin),
		tag.Upsert(metrics.MsgTypeKey, string(req.Type)),
	)
	start := time.Now()
	defer func() {
		stats.Record(ctx, metrics.ControllerCallDuration.M(float64(time.Since(start).Milliseconds())))
	}()

	switch req.Type {
	case types.MsgGetState:
		view, err := c.GetState(ctx)
		if err != nil {
			return errResponse(req.ID, types.InternalError(err)), nil
		}
		return okResponse(req.ID, view)
	case types.MsgConnectRequest:
		return c.handleConnectRequest(ctx, req)
	case types.MsgWeb3Request:
		return c.handleWeb3Request(ctx, req)
	case types.MsgTransactionRequest:
		return c.parkPending(ctx, req, types.KindSendTransaction, req.Params)
	case types.MsgApproveConnection, types.MsgTransactionApprove:
		return c.decideByMessage(ctx, req, types.OutcomeApprove)
	case types.MsgRejectConnection, types.MsgTransactionReject:
		return c.decideByMessage(ctx, req, types.OutcomeReject)
	case types.MsgSiteDisconnected:
		return c.handleSiteDisconnected(ctx, req)
	case types.MsgChainChanged:
		return c.handleChainChangedNotice(ctx, req)
	case types.MsgWCSessionRequest:
		return c.parkPending(ctx, req, types.KindWCSession, req.Params)
	case types.MsgWCCallRequest:
		return c.handleWCCallRequest(ctx, req)
	default:
		log.Warnf("origin %s sent unknown message type %s", origin, req.Type)
		return errResponse(req.ID, types.NewRPCError(types.CodeInvalidInput, "unknown message type "+string(req.Type))), nil
	}
}

// parkPending files an approval request keyed by the message's correlation
// token and returns the pending acknowledgement.
func (c *Controller) parkPending(ctx context.Context, req *types.RequestEvent, kind types.PendingKind, payload json.RawMessage) (*types.ResponseEvent, error) {
	pendingReq := &types.PendingRequest{
		ID:         req.ID,
		Kind:       kind,
		Origin:     req.Origin,
		TabID:      req.TabID,
		CreateTime: time.Now(),
		Payload:    payload,
	}
	if err := c.pending.add(pendingReq); err != nil {
		return errResponse(req.ID, types.ErrResourceUnavailable.WithData(err.Error())), nil
	}
	stats.Record(ctx, metrics.RequestPending.M(1))
	log.Infow("park pending request", "id", req.ID.String(), "kind", kind, "origin", req.Origin)
	return &types.ResponseEvent{ID: req.ID, Pending: true}, nil
}

// ListPending is the owner surface for the approval queue.
func (c *Controller) ListPending(ctx context.Context) ([]*types.PendingRequest, error) {
	return c.pending.list(), nil
}

// Decide applies the owner's verdict on one pending request. The waiting
// page learns the outcome through a response event carrying the original
// correlation token.
func (c *Controller) Decide(ctx context.Context, id string, outcome types.Outcome, extra *types.DecideExtra) error {
	token, err := uuid.Parse(id)
	if err != nil {
		return errors.Wrapf(err, "parse pending id %s", id)
	}
	req, err := c.pending.take(token, outcome)
	if err != nil {
		// duplicate clicks race the first decision; a stale or unknown
		// id is a no-op, not a failure the approval surface must handle
		log.Warnf("decide %s ignored: %v", id, err)
		return nil
	}

	ctx, _ = tag.New(ctx,
		tag.Upsert(metrics.OriginKey, req.Origin),
		tag.Upsert(metrics.MsgTypeKey, string(req.Kind)),
	)

	if outcome != types.OutcomeApprove {
		stats.Record(ctx, metrics.RequestRejected.M(1))
		log.Infow("reject pending request", "id", id, "kind", req.Kind, "origin", req.Origin)
		c.pushResponse(req.Origin, req.TabID, errResponse(req.ID, types.ErrUserRejected))
		return nil
	}

	resp := c.applyApproval(ctx, req, extra)
	stats.Record(ctx, metrics.RequestApproved.M(1))
	log.Infow("approve pending request", "id", id, "kind", req.Kind, "origin", req.Origin)
	c.pushResponse(req.Origin, req.TabID, resp)
	return nil
}

func (c *Controller) decideByMessage(ctx context.Context, req *types.RequestEvent, outcome types.Outcome) (*types.ResponseEvent, error) {
	var params struct {
		ID    string             `json:"id"`
		Extra *types.DecideExtra `json:"extra,omitempty"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, types.ErrInvalidParams.WithData(err.Error())), nil
	}
	if err := c.Decide(ctx, params.ID, outcome, params.Extra); err != nil {
		return errResponse(req.ID, types.NewRPCError(types.CodeInvalidInput, "invalid decision").WithData(err.Error())), nil
	}
	return okResponse(req.ID, true)
}

func (c *Controller) notifyExpired(req *types.PendingRequest) {
	stats.Record(c.ctx, metrics.RequestExpired.M(1))
	c.pushResponse(req.Origin, req.TabID, errResponse(req.ID,
		types.NewRPCError(types.CodeUserRejected, "approval request expired")))
}

func okResponse(id uuid.UUID, v interface{}) (*types.ResponseEvent, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return errResponse(id, types.InternalError(err)), nil
	}
	return &types.ResponseEvent{ID: id, Payload: payload}, nil
}

func errResponse(id uuid.UUID, rpcErr *types.RPCError) *types.ResponseEvent {
	return &types.ResponseEvent{ID: id, Error: rpcErr}
}
