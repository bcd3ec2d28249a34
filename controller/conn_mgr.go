package controller

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/web3-force/dapp-gateway/types"
)

type originInfo struct {
	origin string
	tabs   map[uuid.UUID]*types.TabChannel
}

type ITabConnMgr interface {
	addConn(origin string, channel *types.TabChannel) error
	getConn(origin string, tabID uuid.UUID) (*types.TabChannel, error)
	removeConn(origin string, channel *types.TabChannel) error
	getChannels(origin string) ([]*types.TabChannel, error)
	listOrigins(ctx context.Context) []string
	tabCount() int
}

var _ ITabConnMgr = (*tabConnMgr)(nil)

// tabConnMgr tracks the live page channels per origin. Several tabs of the
// same site may be registered at once; pushes fan out to all of them.
type tabConnMgr struct {
	infoLk  sync.Mutex
	origins map[string]*originInfo
}

func newTabConnMgr() *tabConnMgr {
	return &tabConnMgr{
		origins: make(map[string]*originInfo),
	}
}

func (t *tabConnMgr) addConn(origin string, channel *types.TabChannel) error {
	t.infoLk.Lock()
	defer t.infoLk.Unlock()

	info, ok := t.origins[origin]
	if !ok {
		info = &originInfo{
			origin: origin,
			tabs:   make(map[uuid.UUID]*types.TabChannel),
		}
		t.origins[origin] = info
	}
	if _, ok := info.tabs[channel.TabID]; ok {
		return fmt.Errorf("tab %s already registered for origin %s", channel.TabID, origin)
	}
	info.tabs[channel.TabID] = channel
	log.Infow("add tab connection", "origin", origin, "tab", channel.TabID.String())
	return nil
}

func (t *tabConnMgr) getConn(origin string, tabID uuid.UUID) (*types.TabChannel, error) {
	t.infoLk.Lock()
	defer t.infoLk.Unlock()

	if info, ok := t.origins[origin]; ok {
		if conn, ok := info.tabs[tabID]; ok {
			return conn, nil
		}
	}
	return nil, fmt.Errorf("no connection found for origin %s and tab %s", origin, tabID)
}

func (t *tabConnMgr) removeConn(origin string, channel *types.TabChannel) error {
	t.infoLk.Lock()
	defer t.infoLk.Unlock()

	if info, ok := t.origins[origin]; ok {
		delete(info.tabs, channel.TabID)
		if len(info.tabs) == 0 {
			delete(t.origins, origin)
		}
	}
	log.Infof("origin %s remove tab %s", origin, channel.TabID)
	return nil
}

func (t *tabConnMgr) getChannels(origin string) ([]*types.TabChannel, error) {
	t.infoLk.Lock()
	defer t.infoLk.Unlock()

	info, ok := t.origins[origin]
	if !ok || len(info.tabs) == 0 {
		return nil, fmt.Errorf("no tab found for origin %s", origin)
	}
	channels := make([]*types.TabChannel, 0, len(info.tabs))
	for _, conn := range info.tabs {
		channels = append(channels, conn)
	}
	return channels, nil
}

func (t *tabConnMgr) listOrigins(ctx context.Context) []string {
	t.infoLk.Lock()
	defer t.infoLk.Unlock()

	origins := make([]string, 0, len(t.origins))
	for origin := range t.origins {
		origins = append(origins, origin)
	}
	return origins
}

func (t *tabConnMgr) tabCount() int {
	t.infoLk.Lock()
	defer t.infoLk.Unlock()

	count := 0
	for _, info := range t.origins {
		count += len(info.tabs)
	}
	return count
}
