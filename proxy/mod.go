package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/multiformats/go-multiaddr"
	maNet "github.com/multiformats/go-multiaddr/net"
)

var log = logging.Logger("proxy")

type IProxy interface {
	RegisterReverseHandler(chainID string, server http.Handler)
	RegisterReverseByAddr(chainID string, address string) error
	ProxyMiddleware(next http.Handler) http.Handler
}

// Proxy forwards raw node traffic to the upstream of the chain named in the
// request header, so tooling can reach the allow-listed nodes through the
// gateway endpoint.
type Proxy struct {
	lk      sync.RWMutex
	handler map[string]http.Handler
}

var _ IProxy = (*Proxy)(nil)

func NewProxy() *Proxy {
	return &Proxy{
		handler: make(map[string]http.Handler),
	}
}

func (p *Proxy) ProxyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chainID := r.Header.Get(ChainHeader)
		if chainID == "" {
			log.Debugf("no chain header found, skip proxy")
			next.ServeHTTP(w, r)
			return
		}

		ser, err := p.getReverseHandler(chainID)
		if err != nil {
			log.Errorf("get reverse handler fail: %s", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ser.ServeHTTP(w, r)
	})
}

func (p *Proxy) getReverseHandler(chainID string) (http.Handler, error) {
	p.lk.RLock()
	defer p.lk.RUnlock()
	server, ok := p.handler[chainID]
	if !ok {
		return nil, fmt.Errorf("chain(%s): %w", chainID, ErrorNoReverseProxyRegistered)
	}
	return server, nil
}

func (p *Proxy) RegisterReverseHandler(chainID string, server http.Handler) {
	p.lk.Lock()
	defer p.lk.Unlock()
	if server == nil {
		delete(p.handler, chainID)
		log.Info("unregister reverse proxy for ", chainID)
		return
	}
	log.Infof("register reverse proxy for %s", chainID)
	p.handler[chainID] = server
}

func (p *Proxy) RegisterReverseByAddr(chainID string, address string) error {
	// unregister handler if address is empty
	if address == "" {
		p.RegisterReverseHandler(chainID, nil)
		return nil
	}
	u, err := parseAddr(address)
	if err != nil {
		return err
	}

	log.Infof("register reverse proxy for %s: %s", chainID, u.String())
	p.RegisterReverseHandler(chainID, NewReverseServer(u))
	return nil
}

// parseAddr parse a multiaddr or normal url string into url.Url
func parseAddr(address string) (*url.URL, error) {
	ma, err := multiaddr.NewMultiaddr(address)
	if err == nil {
		_, addr, err := maNet.DialArgs(ma)
		if err != nil {
			return nil, fmt.Errorf("parser libp2p url fail %w", err)
		}

		hasTLS := false

		_, err = ma.ValueForProtocol(multiaddr.P_WSS)
		if err == nil {
			hasTLS = true
		} else if err != multiaddr.ErrProtocolNotFound {
			return nil, err
		}

		_, err = ma.ValueForProtocol(multiaddr.P_HTTPS)
		if err == nil {
			hasTLS = true
		} else if err != multiaddr.ErrProtocolNotFound {
			return nil, err
		}

		if hasTLS {
			address = "https://" + addr
		} else {
			address = "http://" + addr
		}
	}

	return url.Parse(address)
}
