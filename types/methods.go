package types

// JSON-RPC method names the bridge special-cases. Anything else arriving
// in a WEB3_REQUEST envelope is treated as a read-only chain method.
const (
	MethodEthAccounts        = "eth_accounts"
	MethodEthChainID         = "eth_chainId"
	MethodEthRequestAccounts = "eth_requestAccounts"
	MethodEthSendTransaction = "eth_sendTransaction"
	MethodEthSign            = "eth_sign"
	MethodPersonalSign       = "personal_sign"
	MethodSignTypedData      = "eth_signTypedData"
	MethodSignTypedDataV4    = "eth_signTypedData_v4"
	MethodSwitchChain        = "wallet_switchEthereumChain"
	MethodAddChain           = "wallet_addEthereumChain"
	MethodWatchAsset         = "wallet_watchAsset"
)

// IsSigningMethod reports whether method signs a message with an account
// key and therefore needs a per-request approval.
func IsSigningMethod(method string) bool {
	switch method {
	case MethodEthSign, MethodPersonalSign, MethodSignTypedData, MethodSignTypedDataV4:
		return true
	default:
		return false
	}
}
