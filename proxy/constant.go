package proxy

import (
	"fmt"
)

// ChainHeader selects which upstream node a proxied request goes to. An
// absent header falls through to the gateway's own rpc surface.
const ChainHeader = "X-Gateway-Chain"

var (
	ErrorInvalidChain             = fmt.Errorf("no such chain registered for %s", ChainHeader)
	ErrorNoReverseProxyRegistered = fmt.Errorf("no reverse proxy registered")
)
