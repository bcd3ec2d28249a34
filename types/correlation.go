package types

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/modern-go/reflect2"
)

var log = logging.Logger("correlation")

// CorrelationStream is the shared bookkeeping for in-flight requests on an
// asynchronous channel: one entry per outstanding correlation token, each
// consumed exactly once by a response, a cancellation or the timeout sweep.
// A response bearing an unknown token is dropped, never delivered to a
// waiter.
type CorrelationStream struct {
	reqLk    sync.RWMutex
	inflight map[uuid.UUID]*inflightRequest
	cfg      *RequestConfig
}

type inflightRequest struct {
	id         uuid.UUID
	method     string
	createTime time.Time
	result     chan *ResponseEvent
}

func NewCorrelationStream(ctx context.Context, cfg *RequestConfig) *CorrelationStream {
	s := &CorrelationStream{
		inflight: make(map[uuid.UUID]*inflightRequest),
		cfg:      cfg,
	}
	go s.cleanRequests(ctx)
	return s
}

// Register parks a fresh correlation token and returns the channel its
// response will arrive on. The channel is buffered so a resolver never
// blocks on a waiter that already gave up.
func (s *CorrelationStream) Register(method string) (uuid.UUID, <-chan *ResponseEvent) {
	id := uuid.New()
	ch, _ := s.RegisterID(id, method)
	return id, ch
}

// RegisterID parks a caller-supplied token. Reusing a live token is an
// error: tokens are never shared between in-flight requests.
func (s *CorrelationStream) RegisterID(id uuid.UUID, method string) (<-chan *ResponseEvent, error) {
	s.reqLk.Lock()
	defer s.reqLk.Unlock()
	if _, ok := s.inflight[id]; ok {
		return nil, fmt.Errorf("correlation token %s already in flight", id)
	}
	req := &inflightRequest{
		id:         id,
		method:     method,
		createTime: time.Now(),
		result:     make(chan *ResponseEvent, 1),
	}
	s.inflight[id] = req
	return req.result, nil
}

// Resolve delivers a response to the waiter registered for its token and
// releases the entry. Unknown tokens (timed out, cancelled, spurious) are
// reported so callers can drop them.
func (s *CorrelationStream) Resolve(resp *ResponseEvent) error {
	s.reqLk.Lock()
	req, ok := s.inflight[resp.ID]
	if ok {
		delete(s.inflight, resp.ID)
	}
	s.reqLk.Unlock()
	if !ok {
		return fmt.Errorf("correlation token %s not in flight", resp.ID)
	}
	req.result <- resp
	return nil
}

// Cancel releases the entry for id without delivering anything. Safe to
// call for an already-consumed token.
func (s *CorrelationStream) Cancel(id uuid.UUID) {
	s.reqLk.Lock()
	delete(s.inflight, id)
	s.reqLk.Unlock()
}

// InFlight reports the number of outstanding entries.
func (s *CorrelationStream) InFlight() int {
	s.reqLk.RLock()
	defer s.reqLk.RUnlock()
	return len(s.inflight)
}

func (s *CorrelationStream) cleanRequests(ctx context.Context) {
	tm := time.NewTicker(s.cfg.ClearInterval)
	defer tm.Stop()
	for {
		select {
		case <-tm.C:
			s.reqLk.Lock()
			for id, req := range s.inflight {
				if time.Since(req.createTime) > s.cfg.RequestTimeout {
					delete(s.inflight, id)
					// buffered send; a racing Resolve already
					// consumed the entry so this never doubles up
					select {
					case req.result <- &ResponseEvent{
						ID: id,
						Error: ErrResourceUnavailable.WithData(
							fmt.Sprintf("no response for %s within %s", req.method, s.cfg.RequestTimeout)),
					}:
					default:
					}
				}
			}
			s.reqLk.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

// Await blocks on ch until the response, the context deadline or stream
// timeout fires, whichever is first. On context exit the token is released
// so a late response cannot resolve a stale waiter.
func (s *CorrelationStream) Await(ctx context.Context, id uuid.UUID, ch <-chan *ResponseEvent) (*ResponseEvent, error) {
	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		s.Cancel(id)
		return nil, ErrResourceUnavailable.WithData(fmt.Sprintf("request cancelled: %v", ctx.Err()))
	}
}

// DecodeResult unpacks a response payload into result, surfacing the
// response's own error first. A nil result discards the payload.
func DecodeResult(resp *ResponseEvent, result interface{}) error {
	if resp.Error != nil {
		return resp.Error
	}
	if reflect2.IsNil(result) || len(resp.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Payload, result); err != nil {
		log.Warnf("decode response %s: %v", resp.ID, err)
		return ErrInvalidParams.WithData(err.Error())
	}
	return nil
}
