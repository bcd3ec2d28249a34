package types

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

// PendingKind is the closed set of approval-gated request variants.
type PendingKind string

const (
	KindConnect         PendingKind = "connect"
	KindSign            PendingKind = "sign"
	KindSendTransaction PendingKind = "send_transaction"
	KindSwitchChain     PendingKind = "switch_chain"
	KindAddChain        PendingKind = "add_chain"
	KindWatchAsset      PendingKind = "watch_asset"
	KindWCSession       PendingKind = "wc_session"
	KindWCCall          PendingKind = "wc_call"
)

// PendingRequest is one action awaiting an explicit human decision. It is
// immutable after creation; the single terminal transition (approve,
// reject or expire) consumes it.
type PendingRequest struct {
	ID         uuid.UUID
	Kind       PendingKind
	Origin     string
	TabID      uuid.UUID
	CreateTime time.Time
	Payload    json.RawMessage
}

// Outcome is the approval surface's verdict on a pending request.
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)

// DecideExtra carries user-chosen parameters alongside an approval, e.g.
// the subset of accounts to share with a connecting origin.
type DecideExtra struct {
	SelectedAccounts []string
}

// TxParams is the transaction payload of a send-transaction request, hex
// encoded the way providers hand it over.
type TxParams struct {
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Data     hexutil.Bytes   `json:"data,omitempty"`
	Gas      hexutil.Uint64  `json:"gas,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
	Nonce    *hexutil.Uint64 `json:"nonce,omitempty"`
}

// SignParams is the payload of a message-signing request. Method records
// which signing flavour the page asked for.
type SignParams struct {
	From   common.Address `json:"from"`
	Data   hexutil.Bytes  `json:"data"`
	Method string         `json:"method"`
}

type SwitchChainParams struct {
	ChainID string `json:"chainId"`
}

type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type AddChainParams struct {
	ChainID        string         `json:"chainId"`
	ChainName      string         `json:"chainName"`
	RPCURLs        []string       `json:"rpcUrls"`
	NativeCurrency NativeCurrency `json:"nativeCurrency"`
}

type WatchAssetParams struct {
	Type     string         `json:"type"`
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

type WCSessionParams struct {
	URI string `json:"uri"`
}

type WCCallParams struct {
	SessionID uuid.UUID       `json:"sessionId"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
}
