package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/web3-force/dapp-gateway/types"
)

type pendingStatus string

const (
	statusPending  pendingStatus = "pending"
	statusApproved pendingStatus = "approved"
	statusRejected pendingStatus = "rejected"
	statusExpired  pendingStatus = "expired"
)

type pendingEntry struct {
	req    *types.PendingRequest
	status pendingStatus
}

// pendingTable holds approval requests awaiting a wallet-owner decision.
// Each entry moves through exactly one terminal transition; a decided or
// expired entry can never be decided again.
type pendingTable struct {
	lk      sync.Mutex
	entries map[uuid.UUID]*pendingEntry
	ttl     time.Duration
}

func newPendingTable(ttl time.Duration) *pendingTable {
	return &pendingTable{
		entries: make(map[uuid.UUID]*pendingEntry),
		ttl:     ttl,
	}
}

func (p *pendingTable) add(req *types.PendingRequest) error {
	p.lk.Lock()
	defer p.lk.Unlock()

	if _, ok := p.entries[req.ID]; ok {
		return fmt.Errorf("pending request %s already exists", req.ID)
	}
	p.entries[req.ID] = &pendingEntry{req: req, status: statusPending}
	return nil
}

func (p *pendingTable) list() []*types.PendingRequest {
	p.lk.Lock()
	defer p.lk.Unlock()

	out := make([]*types.PendingRequest, 0, len(p.entries))
	for _, entry := range p.entries {
		if entry.status != statusPending {
			continue
		}
		out = append(out, entry.req)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreateTime.Before(out[j].CreateTime)
	})
	return out
}

func (p *pendingTable) count() int {
	p.lk.Lock()
	defer p.lk.Unlock()

	count := 0
	for _, entry := range p.entries {
		if entry.status == statusPending {
			count++
		}
	}
	return count
}

// hasKind reports whether origin already has a live request of the given
// kind, used to refuse duplicate approval popups.
func (p *pendingTable) hasKind(origin string, kind types.PendingKind) bool {
	p.lk.Lock()
	defer p.lk.Unlock()

	for _, entry := range p.entries {
		if entry.status == statusPending && entry.req.Origin == origin && entry.req.Kind == kind {
			return true
		}
	}
	return false
}

// take transitions the entry to its terminal state and hands the request
// back for the outcome to be applied. Deciding an unknown, already decided,
// or expired entry fails.
func (p *pendingTable) take(id uuid.UUID, outcome types.Outcome) (*types.PendingRequest, error) {
	p.lk.Lock()
	defer p.lk.Unlock()

	entry, ok := p.entries[id]
	if !ok {
		return nil, fmt.Errorf("unknown pending request %s", id)
	}
	if entry.status != statusPending {
		return nil, fmt.Errorf("pending request %s already %s", id, entry.status)
	}
	if outcome == types.OutcomeApprove {
		entry.status = statusApproved
	} else {
		entry.status = statusRejected
	}
	return entry.req, nil
}

// expire marks timed-out entries and returns them so the caller can notify
// the waiting pages. Terminal entries past their ttl are swept out.
func (p *pendingTable) expire(now time.Time) []*types.PendingRequest {
	p.lk.Lock()
	defer p.lk.Unlock()

	var expired []*types.PendingRequest
	for id, entry := range p.entries {
		if now.Sub(entry.req.CreateTime) < p.ttl {
			continue
		}
		if entry.status == statusPending {
			entry.status = statusExpired
			expired = append(expired, entry.req)
			continue
		}
		delete(p.entries, id)
	}
	return expired
}

// cleanExpired runs the sweep loop until ctx is done.
func (p *pendingTable) cleanExpired(ctx context.Context, interval time.Duration, onExpire func(*types.PendingRequest)) {
	tm := time.NewTicker(interval)
	defer tm.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tm.C:
			for _, req := range p.expire(time.Now()) {
				log.Warnf("pending %s request %s from %s expired", req.Kind, req.ID, req.Origin)
				onExpire(req)
			}
		}
	}
}
