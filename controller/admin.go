package controller

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/web3-force/dapp-gateway/types"
)

// Owner-surface operations. These run with full authority and never go
// through the pending table.

func (c *Controller) ListSites(ctx context.Context) ([]*types.ConnectionRecord, error) {
	return c.store.ListSites()
}

// RevokeSite withdraws a site's authorization and tells its live tabs.
func (c *Controller) RevokeSite(ctx context.Context, origin string) error {
	origin, err := c.validator.Validate(origin)
	if err != nil {
		return err
	}
	rec, err := c.disconnectSite(origin)
	if err != nil {
		return err
	}
	if rec == nil {
		return errors.Errorf("no record for origin %s", origin)
	}
	c.pushToOrigin(origin, &types.PushEvent{
		Kind: types.EventDisconnect,
		Disconnect: &types.DisconnectPayload{
			Code:   types.CodeDisconnected,
			Reason: "authorization revoked",
		},
	})
	log.Infof("revoked %s", origin)
	return nil
}

// SwitchChain is the owner's direct chain switch, no approval required.
func (c *Controller) SwitchChain(ctx context.Context, chainID string) error {
	if !c.chains.Known(chainID) {
		return types.UnrecognizedChain(chainID)
	}
	if chainID == c.selectedChain() {
		return nil
	}
	if err := c.setSelectedChain(chainID); err != nil {
		return err
	}
	c.broadcastConnected(&types.PushEvent{Kind: types.EventChainChanged, ChainID: chainID})
	log.Infof("switched to chain %s", chainID)
	return nil
}

func (c *Controller) ListChains(ctx context.Context) ([]*types.ChainInfo, error) {
	return c.chains.Chains(), nil
}

// KeyAdder is implemented by signing services that can mint keys.
type KeyAdder interface {
	AddKey() (common.Address, error)
}

// AddAccount creates a fresh account when the signing service supports it
// and announces the new list to every authorized site that shares all
// accounts.
func (c *Controller) AddAccount(ctx context.Context) (string, error) {
	adder, ok := c.signer.(KeyAdder)
	if !ok {
		return "", errors.New("signing service cannot create accounts")
	}
	addr, err := adder.AddKey()
	if err != nil {
		return "", err
	}
	return strings.ToLower(addr.Hex()), nil
}

// CloseSession tears a session down.
func (c *Controller) CloseSession(ctx context.Context, id string) error {
	return c.store.DeleteSession(id)
}
