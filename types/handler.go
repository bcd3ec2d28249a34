package types

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SigningService is the opaque signer invoked only after an approval. Key
// material never crosses this boundary in either direction.
type SigningService interface {
	Accounts(ctx context.Context) ([]common.Address, error)
	// SignTransaction signs (and hands off) the transaction, returning
	// its hash.
	SignTransaction(ctx context.Context, params *TxParams, chainID *big.Int) (common.Hash, error)
	// SignMessage produces an EIP-191 personal signature over data.
	SignMessage(ctx context.Context, from common.Address, data []byte) ([]byte, error)
}

// ReadForwarder forwards read-only chain methods verbatim to an upstream
// node for the given chain. The controller never interprets the payload.
type ReadForwarder interface {
	Forward(ctx context.Context, chainID string, method string, params []interface{}) ([]byte, error)
}

// ApprovalSurface is what the human approval interface consumes: a
// snapshot of pending requests and an idempotent decide operation.
type ApprovalSurface interface {
	ListPending(ctx context.Context) ([]*PendingRequest, error)
	Decide(ctx context.Context, id string, outcome Outcome, extra *DecideExtra) error
}
