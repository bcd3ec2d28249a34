package provider

import (
	"sync"

	"github.com/web3-force/dapp-gateway/types"
)

type Listener func(ev *types.PushEvent)

// Emitter fans wallet events out to page-side listeners. Dispatch happens
// outside the lock on a snapshot, so a listener may subscribe or
// unsubscribe from inside its own callback.
type Emitter struct {
	lk   sync.Mutex
	next int
	subs map[types.EventKind]map[int]Listener
}

func NewEmitter() *Emitter {
	return &Emitter{
		subs: make(map[types.EventKind]map[int]Listener),
	}
}

// Subscribe registers fn for one event kind and returns the token used to
// remove it.
func (e *Emitter) Subscribe(kind types.EventKind, fn Listener) int {
	e.lk.Lock()
	defer e.lk.Unlock()
	e.next++
	if e.subs[kind] == nil {
		e.subs[kind] = make(map[int]Listener)
	}
	e.subs[kind][e.next] = fn
	return e.next
}

func (e *Emitter) Unsubscribe(kind types.EventKind, token int) {
	e.lk.Lock()
	defer e.lk.Unlock()
	delete(e.subs[kind], token)
}

func (e *Emitter) Emit(ev *types.PushEvent) {
	e.lk.Lock()
	listeners := make([]Listener, 0, len(e.subs[ev.Kind]))
	for _, fn := range e.subs[ev.Kind] {
		listeners = append(listeners, fn)
	}
	e.lk.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("listener for %s panicked: %v", ev.Kind, r)
				}
			}()
			fn(ev)
		}()
	}
}

func (e *Emitter) ListenerCount(kind types.EventKind) int {
	e.lk.Lock()
	defer e.lk.Unlock()
	return len(e.subs[kind])
}
