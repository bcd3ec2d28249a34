package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MsgType is the closed set of message families the controller dispatches
// on. Adding a new family means adding a constant here and a case to every
// switch over MsgType.
type MsgType string

const (
	MsgGetState           MsgType = "GET_STATE"
	MsgConnectRequest     MsgType = "CONNECT_REQUEST"
	MsgApproveConnection  MsgType = "APPROVE_CONNECTION"
	MsgRejectConnection   MsgType = "REJECT_CONNECTION"
	MsgWeb3Request        MsgType = "WEB3_REQUEST"
	MsgTransactionRequest MsgType = "TRANSACTION_REQUEST"
	MsgTransactionApprove MsgType = "TRANSACTION_APPROVE"
	MsgTransactionReject  MsgType = "TRANSACTION_REJECT"
	MsgChainChanged       MsgType = "CHAIN_CHANGED"
	MsgSiteDisconnected   MsgType = "SITE_DISCONNECTED"
	MsgWCSessionRequest   MsgType = "WALLET_CONNECT_SESSION"
	MsgWCCallRequest      MsgType = "WALLET_CONNECT_CALL"
)

// RequestEvent is the envelope a relay delivers to the controller. ID is
// the correlation token; every response or pushed answer for this request
// carries the same ID.
type RequestEvent struct {
	ID         uuid.UUID
	Type       MsgType
	Origin     string
	TabID      uuid.UUID
	Method     string
	Params     json.RawMessage
	CreateTime time.Time
}

// ResponseEvent answers a RequestEvent. Pending means the request was
// parked for human approval and the real answer will arrive later as a
// response-kind push on the tab channel, carrying the same ID.
type ResponseEvent struct {
	ID      uuid.UUID
	Payload json.RawMessage
	Pending bool
	Error   *RPCError
}

// EventKind tags push events flowing controller -> relay -> page.
type EventKind string

const (
	EventConnect         EventKind = "connect"
	EventDisconnect      EventKind = "disconnect"
	EventAccountsChanged EventKind = "accountsChanged"
	EventChainChanged    EventKind = "chainChanged"
	// EventResponse carries the deferred answer of an approval-gated
	// request back to its originating tab.
	EventResponse EventKind = "response"
)

type ConnectPayload struct {
	ChainID string
}

type DisconnectPayload struct {
	Code   int
	Reason string
}

// PushEvent is a controller-originated broadcast. State events carry no
// correlation token; response events carry the token inside Response.
type PushEvent struct {
	Kind       EventKind
	Connect    *ConnectPayload    `json:",omitempty"`
	Disconnect *DisconnectPayload `json:",omitempty"`
	Accounts   []string           `json:",omitempty"`
	ChainID    string             `json:",omitempty"`
	Response   *ResponseEvent     `json:",omitempty"`
}

// TabChannel is one registered relay/tab: the outbound side the controller
// pushes events into.
type TabChannel struct {
	TabID      uuid.UUID
	Origin     string
	OutBound   chan *PushEvent
	CreateTime time.Time
}

func NewTabChannel(origin string, tabID uuid.UUID, out chan *PushEvent) *TabChannel {
	return &TabChannel{
		TabID:      tabID,
		Origin:     origin,
		OutBound:   out,
		CreateTime: time.Now(),
	}
}

// PageKind tags messages on the page-side bus between the provider facade
// and its relay.
type PageKind string

const (
	PageRequest  PageKind = "request"
	PageResponse PageKind = "response"
	PageEvent    PageKind = "event"
	// PageLegacyEvent is the secondary message shape older consumers
	// still listen for; every push is re-broadcast in this shape too.
	PageLegacyEvent PageKind = "legacy_event"
)

// PageEnvelope is the message shape on the page bus. Source identifies the
// sending endpoint so a relay can drop messages not originating from its
// own page context.
type PageEnvelope struct {
	Source   string
	Kind     PageKind
	ID       uuid.UUID
	Method   string
	Params   json.RawMessage
	Response *ResponseEvent
	Event    *PushEvent
}

// ConnectionRecord is the durable authorization state of one origin. Soft
// deleted on disconnect (Connected=false), never removed, so the decision
// whether a returning origin needs a fresh approval stays explicit.
type ConnectionRecord struct {
	Origin      string
	Connected   bool
	Accounts    []string
	ChainID     string
	Permissions []string
	Assets      []WatchAssetParams `json:",omitempty"`
	LastUpdated time.Time
}

// Session is one WalletConnect pairing. Lifecycle independent of
// ConnectionRecord.
type Session struct {
	ID        uuid.UUID
	URI       string
	Accounts  []string
	ChainID   string
	Connected bool
}

// ChainInfo is one entry of the supported-chain allow-list.
type ChainInfo struct {
	ChainID string
	Name    string
	RPCURL  string
}

// WalletState is the persisted controller state. Pending requests are
// deliberately excluded: they are in-memory only and lost on restart.
type WalletState struct {
	Accounts        []string
	SelectedChainID string
	ConnectedSites  map[string]*ConnectionRecord
	Sessions        []*Session
}

// StateView is the read-only snapshot served to the approval surface and
// operator commands.
type StateView struct {
	Accounts        []string
	SelectedChainID string
	ConnectedSites  []*ConnectionRecord
	Sessions        []*Session
	PendingCount    int
}
