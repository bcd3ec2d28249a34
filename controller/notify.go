package controller

import (
	"github.com/google/uuid"

	"github.com/web3-force/dapp-gateway/types"
)

// pushToOrigin fans an event out to every live tab of origin. A tab whose
// outbound buffer is full is skipped rather than blocking the controller.
func (c *Controller) pushToOrigin(origin string, ev *types.PushEvent) {
	channels, err := c.connMgr.getChannels(origin)
	if err != nil {
		log.Debugf("push %s to %s: %v", ev.Kind, origin, err)
		return
	}
	for _, channel := range channels {
		select {
		case channel.OutBound <- ev:
		default:
			log.Warnf("tab %s of %s is not reading events, dropped %s", channel.TabID, origin, ev.Kind)
		}
	}
}

// broadcastConnected sends an event to every origin with a live tab that is
// currently authorized. Used for wallet-wide changes like chain switches.
func (c *Controller) broadcastConnected(ev *types.PushEvent) {
	for _, origin := range c.connMgr.listOrigins(c.ctx) {
		rec, err := c.connectedSite(origin)
		if err != nil {
			log.Errorf("read site %s: %v", origin, err)
			continue
		}
		if rec == nil {
			continue
		}
		c.pushToOrigin(origin, ev)
	}
}

// pushResponse delivers a deferred answer to the tab that issued the
// request. If that tab is gone, every live tab of the origin gets it; the
// correlation token keeps delivery exactly-once regardless.
func (c *Controller) pushResponse(origin string, tabID uuid.UUID, resp *types.ResponseEvent) {
	ev := &types.PushEvent{
		Kind:     types.EventResponse,
		Response: resp,
	}
	if tabID != uuid.Nil {
		if channel, err := c.connMgr.getConn(origin, tabID); err == nil {
			select {
			case channel.OutBound <- ev:
			default:
				log.Warnf("tab %s of %s is not reading events, dropped response %s", tabID, origin, resp.ID)
			}
			return
		}
	}
	c.pushToOrigin(origin, ev)
}
