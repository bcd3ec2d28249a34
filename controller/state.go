package controller

import (
	"context"
	"strings"
	"time"

	"github.com/web3-force/dapp-gateway/types"
)

// connectedSite returns the record for origin only when the site is
// currently authorized.
func (c *Controller) connectedSite(origin string) (*types.ConnectionRecord, error) {
	rec, err := c.store.GetSite(origin)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.Connected {
		return nil, nil
	}
	return rec, nil
}

func (c *Controller) connectSite(origin string, accounts []string, permissions []string) (*types.ConnectionRecord, error) {
	rec, err := c.store.GetSite(origin)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &types.ConnectionRecord{Origin: origin}
	}
	rec.Connected = true
	rec.Accounts = accounts
	rec.ChainID = c.selectedChain()
	for _, perm := range permissions {
		if !containsString(rec.Permissions, perm) {
			rec.Permissions = append(rec.Permissions, perm)
		}
	}
	rec.LastUpdated = time.Now()
	if err := c.store.PutSite(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// disconnectSite clears the authorization but keeps the record, so the
// site's asset list and permission history survive a disconnect.
func (c *Controller) disconnectSite(origin string) (*types.ConnectionRecord, error) {
	rec, err := c.store.GetSite(origin)
	if err != nil || rec == nil {
		return nil, err
	}
	rec.Connected = false
	rec.Accounts = nil
	rec.LastUpdated = time.Now()
	if err := c.store.PutSite(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Controller) addSiteAsset(origin string, asset types.WatchAssetParams) error {
	rec, err := c.store.GetSite(origin)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &types.ConnectionRecord{Origin: origin}
	}
	for _, have := range rec.Assets {
		if have.Address == asset.Address {
			return nil
		}
	}
	rec.Assets = append(rec.Assets, asset)
	rec.LastUpdated = time.Now()
	return c.store.PutSite(rec)
}

func (c *Controller) selectedChain() string {
	c.chainLk.RLock()
	defer c.chainLk.RUnlock()
	return c.chainID
}

// setSelectedChain moves the wallet and every connected site onto
// chainID. Sites follow the wallet's chain, they never pin their own.
func (c *Controller) setSelectedChain(chainID string) error {
	c.chainLk.Lock()
	c.chainID = chainID
	c.chainLk.Unlock()
	if err := c.store.PutSelectedChain(chainID); err != nil {
		return err
	}

	sites, err := c.store.ListSites()
	if err != nil {
		return err
	}
	for _, rec := range sites {
		if !rec.Connected || rec.ChainID == chainID {
			continue
		}
		rec.ChainID = chainID
		rec.LastUpdated = time.Now()
		if err := c.store.PutSite(rec); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) accountStrings(ctx context.Context) ([]string, error) {
	addrs, err := c.signer.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(addrs))
	for i, addr := range addrs {
		out[i] = strings.ToLower(addr.Hex())
	}
	return out, nil
}

// GetState assembles the full wallet view served to the owner surface.
func (c *Controller) GetState(ctx context.Context) (*types.StateView, error) {
	accounts, err := c.accountStrings(ctx)
	if err != nil {
		return nil, err
	}
	sites, err := c.store.ListSites()
	if err != nil {
		return nil, err
	}
	sessions, err := c.store.ListSessions()
	if err != nil {
		return nil, err
	}
	return &types.StateView{
		Accounts:        accounts,
		SelectedChainID: c.selectedChain(),
		ConnectedSites:  sites,
		Sessions:        sessions,
		PendingCount:    c.pending.count(),
	}, nil
}

func containsString(list []string, want string) bool {
	for _, have := range list {
		if have == want {
			return true
		}
	}
	return false
}
