package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"

	"github.com/web3-force/dapp-gateway/metrics"
	"github.com/web3-force/dapp-gateway/types"
)

var nullResult = json.RawMessage("null")

func (c *Controller) handleConnectRequest(ctx context.Context, req *types.RequestEvent) (*types.ResponseEvent, error) {
	rec, err := c.connectedSite(req.Origin)
	if err != nil {
		return errResponse(req.ID, types.InternalError(err)), nil
	}
	if rec != nil {
		return okResponse(req.ID, rec.Accounts)
	}
	if c.pending.hasKind(req.Origin, types.KindConnect) {
		return errResponse(req.ID, types.ErrResourceUnavailable.WithData("a connect request is already pending")), nil
	}
	return c.parkPending(ctx, req, types.KindConnect, req.Params)
}

func (c *Controller) handleWeb3Request(ctx context.Context, req *types.RequestEvent) (*types.ResponseEvent, error) {
	rec, err := c.connectedSite(req.Origin)
	if err != nil {
		return errResponse(req.ID, types.InternalError(err)), nil
	}

	switch {
	case req.Method == types.MethodEthAccounts:
		if rec == nil {
			return okResponse(req.ID, []string{})
		}
		return okResponse(req.ID, rec.Accounts)

	case req.Method == types.MethodEthChainID:
		return okResponse(req.ID, c.selectedChain())

	case req.Method == types.MethodEthRequestAccounts:
		return c.handleConnectRequest(ctx, req)

	case types.IsSigningMethod(req.Method):
		if rec == nil {
			return errResponse(req.ID, types.ErrUnauthorized), nil
		}
		params, err := parseSignParams(req.Method, req.Params)
		if err != nil {
			return errResponse(req.ID, types.ErrInvalidParams.WithData(err.Error())), nil
		}
		if !containsString(rec.Accounts, strings.ToLower(params.From.Hex())) {
			return errResponse(req.ID, types.ErrUnauthorized.WithData("account not shared with this site")), nil
		}
		payload, _ := json.Marshal(params)
		return c.parkPending(ctx, req, types.KindSign, payload)

	case req.Method == types.MethodEthSendTransaction:
		if rec == nil {
			return errResponse(req.ID, types.ErrUnauthorized), nil
		}
		params, err := parseTxParams(req.Params)
		if err != nil {
			return errResponse(req.ID, types.ErrInvalidParams.WithData(err.Error())), nil
		}
		if !containsString(rec.Accounts, strings.ToLower(params.From.Hex())) {
			return errResponse(req.ID, types.ErrUnauthorized.WithData("account not shared with this site")), nil
		}
		payload, _ := json.Marshal(params)
		return c.parkPending(ctx, req, types.KindSendTransaction, payload)

	case req.Method == types.MethodSwitchChain:
		params, err := parseSwitchChainParams(req.Params)
		if err != nil {
			return errResponse(req.ID, types.ErrInvalidParams.WithData(err.Error())), nil
		}
		// switching to an allow-listed chain needs no approval, only
		// adding one does
		if err := c.SwitchChain(ctx, params.ChainID); err != nil {
			return errResponse(req.ID, types.AsRPCError(err)), nil
		}
		return &types.ResponseEvent{ID: req.ID, Payload: nullResult}, nil

	case req.Method == types.MethodAddChain:
		params, err := parseAddChainParams(req.Params)
		if err != nil {
			return errResponse(req.ID, types.ErrInvalidParams.WithData(err.Error())), nil
		}
		if c.chains.Known(params.ChainID) {
			return &types.ResponseEvent{ID: req.ID, Payload: nullResult}, nil
		}
		payload, _ := json.Marshal(params)
		return c.parkPending(ctx, req, types.KindAddChain, payload)

	case req.Method == types.MethodWatchAsset:
		if rec == nil {
			return errResponse(req.ID, types.ErrUnauthorized), nil
		}
		params, err := parseWatchAssetParams(req.Params)
		if err != nil {
			return errResponse(req.ID, types.ErrInvalidParams.WithData(err.Error())), nil
		}
		payload, _ := json.Marshal(params)
		return c.parkPending(ctx, req, types.KindWatchAsset, payload)

	default:
		return c.forwardRead(ctx, req)
	}
}

// forwardRead proxies node-read methods upstream, keyed by the origin's
// chain when it has one, the selected chain otherwise. Anything outside
// the known namespaces is refused rather than forwarded.
func (c *Controller) forwardRead(ctx context.Context, req *types.RequestEvent) (*types.ResponseEvent, error) {
	if !isReadNamespace(req.Method) {
		return errResponse(req.ID, types.UnsupportedMethod(req.Method)), nil
	}
	var params []interface{}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errResponse(req.ID, types.ErrInvalidParams.WithData(err.Error())), nil
		}
	}
	chainID := c.selectedChain()
	if rec, err := c.connectedSite(req.Origin); err == nil && rec != nil && rec.ChainID != "" {
		chainID = rec.ChainID
	}
	ctx, _ = tag.New(ctx,
		tag.Upsert(metrics.ChainKey, chainID),
		tag.Upsert(metrics.MethodKey, req.Method),
	)
	start := time.Now()
	raw, err := c.forwarder.Forward(ctx, chainID, req.Method, params)
	stats.Record(ctx, metrics.ForwardDuration.M(metrics.SinceInMilliseconds(start)))
	if err != nil {
		if rpcErr := types.AsRPCError(err); rpcErr != nil {
			return errResponse(req.ID, rpcErr), nil
		}
		return errResponse(req.ID, types.InternalError(err)), nil
	}
	return &types.ResponseEvent{ID: req.ID, Payload: raw}, nil
}

func isReadNamespace(method string) bool {
	for _, prefix := range []string{"eth_", "net_", "web3_"} {
		if strings.HasPrefix(method, prefix) {
			return true
		}
	}
	return false
}

func (c *Controller) handleSiteDisconnected(ctx context.Context, req *types.RequestEvent) (*types.ResponseEvent, error) {
	rec, err := c.disconnectSite(req.Origin)
	if err != nil {
		return errResponse(req.ID, types.InternalError(err)), nil
	}
	if rec != nil {
		c.pushToOrigin(req.Origin, &types.PushEvent{
			Kind: types.EventDisconnect,
			Disconnect: &types.DisconnectPayload{
				Code:   types.CodeDisconnected,
				Reason: "site disconnected",
			},
		})
		log.Infof("origin %s disconnected", req.Origin)
	}
	return okResponse(req.ID, true)
}

// Chain changes always originate from the wallet side; a page announcing one
// is misbehaving.
func (c *Controller) handleChainChangedNotice(ctx context.Context, req *types.RequestEvent) (*types.ResponseEvent, error) {
	log.Warnf("origin %s tried to announce a chain change", req.Origin)
	return errResponse(req.ID, types.NewRPCError(types.CodeInvalidInput, "chain changes originate from the wallet")), nil
}

func (c *Controller) handleWCCallRequest(ctx context.Context, req *types.RequestEvent) (*types.ResponseEvent, error) {
	var params types.WCCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, types.ErrInvalidParams.WithData(err.Error())), nil
	}
	sess, err := c.findSession(params.SessionID)
	if err != nil {
		return errResponse(req.ID, types.InternalError(err)), nil
	}
	if sess == nil || !sess.Connected {
		return errResponse(req.ID, types.ErrDisconnected.WithData("no such session")), nil
	}
	return c.parkPending(ctx, req, types.KindWCCall, req.Params)
}

func (c *Controller) findSession(id uuid.UUID) (*types.Session, error) {
	sessions, err := c.store.ListSessions()
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if sess.ID == id {
			return sess, nil
		}
	}
	return nil, nil
}

// applyApproval performs the approved action and builds the deferred answer
// for the waiting page.
func (c *Controller) applyApproval(ctx context.Context, req *types.PendingRequest, extra *types.DecideExtra) *types.ResponseEvent {
	switch req.Kind {
	case types.KindConnect:
		return c.applyConnect(ctx, req, extra)
	case types.KindSign:
		return c.applySign(ctx, req)
	case types.KindSendTransaction:
		return c.applySendTransaction(ctx, req)
	case types.KindAddChain:
		return c.applyAddChain(ctx, req)
	case types.KindWatchAsset:
		return c.applyWatchAsset(ctx, req)
	case types.KindWCSession:
		return c.applyWCSession(ctx, req)
	case types.KindWCCall:
		return c.applyWCCall(ctx, req)
	default:
		return errResponse(req.ID, types.InternalError(fmt.Errorf("unknown pending kind %s", req.Kind)))
	}
}

func (c *Controller) applyConnect(ctx context.Context, req *types.PendingRequest, extra *types.DecideExtra) *types.ResponseEvent {
	accounts, err := c.accountStrings(ctx)
	if err != nil {
		return errResponse(req.ID, types.InternalError(err))
	}
	if extra != nil && len(extra.SelectedAccounts) > 0 {
		var selected []string
		for _, acct := range extra.SelectedAccounts {
			acct = strings.ToLower(acct)
			if containsString(accounts, acct) {
				selected = append(selected, acct)
			}
		}
		accounts = selected
	}
	if len(accounts) == 0 {
		return errResponse(req.ID, types.NewRPCError(types.CodeInvalidInput, "no accounts to share"))
	}

	rec, err := c.connectSite(req.Origin, accounts, []string{"eth_accounts"})
	if err != nil {
		return errResponse(req.ID, types.InternalError(err))
	}
	c.pushToOrigin(req.Origin, &types.PushEvent{
		Kind:    types.EventConnect,
		Connect: &types.ConnectPayload{ChainID: c.selectedChain()},
	})
	c.pushToOrigin(req.Origin, &types.PushEvent{Kind: types.EventAccountsChanged, Accounts: rec.Accounts})
	c.pushToOrigin(req.Origin, &types.PushEvent{Kind: types.EventChainChanged, ChainID: c.selectedChain()})

	resp, _ := okResponse(req.ID, rec.Accounts)
	return resp
}

func (c *Controller) applySign(ctx context.Context, req *types.PendingRequest) *types.ResponseEvent {
	var params types.SignParams
	if err := json.Unmarshal(req.Payload, &params); err != nil {
		return errResponse(req.ID, types.ErrInvalidParams.WithData(err.Error()))
	}
	sig, err := c.signer.SignMessage(ctx, params.From, params.Data)
	if err != nil {
		return errResponse(req.ID, types.InternalError(err))
	}
	resp, _ := okResponse(req.ID, hexutil.Encode(sig))
	return resp
}

func (c *Controller) applySendTransaction(ctx context.Context, req *types.PendingRequest) *types.ResponseEvent {
	var params types.TxParams
	if err := json.Unmarshal(req.Payload, &params); err != nil {
		return errResponse(req.ID, types.ErrInvalidParams.WithData(err.Error()))
	}
	chainID, err := hexutil.DecodeBig(c.selectedChain())
	if err != nil {
		return errResponse(req.ID, types.InternalError(fmt.Errorf("selected chain id %q: %w", c.selectedChain(), err)))
	}
	hash, err := c.signer.SignTransaction(ctx, &params, chainID)
	if err != nil {
		return errResponse(req.ID, types.InternalError(err))
	}
	resp, _ := okResponse(req.ID, hash.Hex())
	return resp
}

func (c *Controller) applyAddChain(ctx context.Context, req *types.PendingRequest) *types.ResponseEvent {
	var params types.AddChainParams
	if err := json.Unmarshal(req.Payload, &params); err != nil {
		return errResponse(req.ID, types.ErrInvalidParams.WithData(err.Error()))
	}
	info := &types.ChainInfo{
		ChainID: params.ChainID,
		Name:    params.ChainName,
	}
	if len(params.RPCURLs) > 0 {
		info.RPCURL = params.RPCURLs[0]
	}
	c.chains.AddChain(info)
	if err := c.store.PutChain(info); err != nil {
		return errResponse(req.ID, types.InternalError(err))
	}
	log.Infow("chain added", "chainId", info.ChainID, "name", info.Name)
	return &types.ResponseEvent{ID: req.ID, Payload: nullResult}
}

func (c *Controller) applyWatchAsset(ctx context.Context, req *types.PendingRequest) *types.ResponseEvent {
	var params types.WatchAssetParams
	if err := json.Unmarshal(req.Payload, &params); err != nil {
		return errResponse(req.ID, types.ErrInvalidParams.WithData(err.Error()))
	}
	if err := c.addSiteAsset(req.Origin, params); err != nil {
		return errResponse(req.ID, types.InternalError(err))
	}
	resp, _ := okResponse(req.ID, true)
	return resp
}

func (c *Controller) applyWCSession(ctx context.Context, req *types.PendingRequest) *types.ResponseEvent {
	var params types.WCSessionParams
	if err := json.Unmarshal(req.Payload, &params); err != nil {
		return errResponse(req.ID, types.ErrInvalidParams.WithData(err.Error()))
	}
	if params.URI == "" {
		return errResponse(req.ID, types.ErrInvalidParams.WithData("empty session uri"))
	}
	accounts, err := c.accountStrings(ctx)
	if err != nil {
		return errResponse(req.ID, types.InternalError(err))
	}
	sess := &types.Session{
		ID:        uuid.New(),
		URI:       params.URI,
		Accounts:  accounts,
		ChainID:   c.selectedChain(),
		Connected: true,
	}
	if err := c.store.PutSession(sess); err != nil {
		return errResponse(req.ID, types.InternalError(err))
	}
	log.Infow("session established", "session", sess.ID.String())
	resp, _ := okResponse(req.ID, sess)
	return resp
}

func (c *Controller) applyWCCall(ctx context.Context, req *types.PendingRequest) *types.ResponseEvent {
	var params types.WCCallParams
	if err := json.Unmarshal(req.Payload, &params); err != nil {
		return errResponse(req.ID, types.ErrInvalidParams.WithData(err.Error()))
	}
	sess, err := c.findSession(params.SessionID)
	if err != nil {
		return errResponse(req.ID, types.InternalError(err))
	}
	if sess == nil || !sess.Connected {
		return errResponse(req.ID, types.ErrDisconnected.WithData("no such session"))
	}

	switch {
	case types.IsSigningMethod(params.Method):
		signParams, err := parseSignParams(params.Method, params.Params)
		if err != nil {
			return errResponse(req.ID, types.ErrInvalidParams.WithData(err.Error()))
		}
		sig, err := c.signer.SignMessage(ctx, signParams.From, signParams.Data)
		if err != nil {
			return errResponse(req.ID, types.InternalError(err))
		}
		resp, _ := okResponse(req.ID, hexutil.Encode(sig))
		return resp
	case params.Method == types.MethodEthSendTransaction:
		txParams, err := parseTxParams(params.Params)
		if err != nil {
			return errResponse(req.ID, types.ErrInvalidParams.WithData(err.Error()))
		}
		chainID, err := hexutil.DecodeBig(sess.ChainID)
		if err != nil {
			return errResponse(req.ID, types.InternalError(err))
		}
		hash, err := c.signer.SignTransaction(ctx, txParams, chainID)
		if err != nil {
			return errResponse(req.ID, types.InternalError(err))
		}
		resp, _ := okResponse(req.ID, hash.Hex())
		return resp
	default:
		fwdReq := &types.RequestEvent{ID: req.ID, Origin: req.Origin, Method: params.Method, Params: params.Params}
		resp, _ := c.forwardRead(ctx, fwdReq)
		return resp
	}
}

func parseSignParams(method string, raw json.RawMessage) (*types.SignParams, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	if len(elems) < 2 {
		return nil, fmt.Errorf("%s wants [data, address] parameters", method)
	}

	var fromRaw, dataRaw json.RawMessage
	if method == types.MethodPersonalSign {
		dataRaw, fromRaw = elems[0], elems[1]
	} else {
		fromRaw, dataRaw = elems[0], elems[1]
	}

	params := &types.SignParams{Method: method}
	if err := json.Unmarshal(fromRaw, &params.From); err != nil {
		return nil, fmt.Errorf("parse signer address: %w", err)
	}
	if err := json.Unmarshal(dataRaw, (*hexutil.Bytes)(&params.Data)); err != nil {
		// typed-data payloads arrive as JSON, sign the document bytes
		params.Data = hexutil.Bytes(dataRaw)
	}
	return params, nil
}

func parseTxParams(raw json.RawMessage) (*types.TxParams, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		// the wallet surface sends the object directly
		var params types.TxParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, err
		}
		return checkTxParams(&params)
	}
	if len(elems) < 1 {
		return nil, fmt.Errorf("eth_sendTransaction wants a transaction object")
	}
	var params types.TxParams
	if err := json.Unmarshal(elems[0], &params); err != nil {
		return nil, err
	}
	return checkTxParams(&params)
}

func checkTxParams(params *types.TxParams) (*types.TxParams, error) {
	if params.From == (common.Address{}) {
		return nil, fmt.Errorf("missing from address")
	}
	return params, nil
}

func parseSwitchChainParams(raw json.RawMessage) (*types.SwitchChainParams, error) {
	var elems []types.SwitchChainParams
	if err := json.Unmarshal(raw, &elems); err != nil {
		var params types.SwitchChainParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, err
		}
		elems = append(elems, params)
	}
	if len(elems) < 1 || elems[0].ChainID == "" {
		return nil, fmt.Errorf("missing chainId")
	}
	return &elems[0], nil
}

func parseAddChainParams(raw json.RawMessage) (*types.AddChainParams, error) {
	var elems []types.AddChainParams
	if err := json.Unmarshal(raw, &elems); err != nil {
		var params types.AddChainParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, err
		}
		elems = append(elems, params)
	}
	if len(elems) < 1 || elems[0].ChainID == "" {
		return nil, fmt.Errorf("missing chainId")
	}
	if len(elems[0].RPCURLs) == 0 {
		return nil, fmt.Errorf("missing rpcUrls")
	}
	return &elems[0], nil
}

func parseWatchAssetParams(raw json.RawMessage) (*types.WatchAssetParams, error) {
	// EIP-747 sends an object with the token under options
	var wrapped struct {
		Type    string `json:"type"`
		Options struct {
			Address  common.Address `json:"address"`
			Symbol   string         `json:"symbol"`
			Decimals uint8          `json:"decimals"`
		} `json:"options"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Options.Address == (common.Address{}) {
		var flat types.WatchAssetParams
		if err := json.Unmarshal(raw, &flat); err != nil || flat.Address == (common.Address{}) {
			return nil, fmt.Errorf("missing asset address")
		}
		return &flat, nil
	}
	return &types.WatchAssetParams{
		Type:     wrapped.Type,
		Address:  wrapped.Options.Address,
		Symbol:   wrapped.Options.Symbol,
		Decimals: wrapped.Options.Decimals,
	}, nil
}
