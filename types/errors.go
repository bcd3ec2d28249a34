package types

import (
	"errors"
	"fmt"
)

// RPCError is the page-visible error shape. Codes follow the provider
// convention: 4xxx for authorization/user outcomes, -32xxx for JSON-RPC
// protocol failures.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

const (
	CodeUserRejected        = 4001
	CodeUnauthorized        = 4100
	CodeUnsupportedMethod   = 4200
	CodeDisconnected        = 4900
	CodeChainDisconnected   = 4901
	CodeUnrecognizedChain   = 4902
	CodeInvalidInput        = 4000
	CodeMethodNotFound      = -32601
	CodeInvalidParams       = -32602
	CodeInternal            = -32603
	CodeParse               = -32700
	CodeResourceUnavailable = -32002
)

var (
	ErrUserRejected = &RPCError{Code: CodeUserRejected, Message: "user rejected the request"}

	ErrUnauthorized = &RPCError{Code: CodeUnauthorized, Message: "the requested method requires a connected origin"}

	ErrDisconnected = &RPCError{Code: CodeDisconnected, Message: "the provider is disconnected"}

	ErrChainDisconnected = &RPCError{Code: CodeChainDisconnected, Message: "the provider is disconnected from the requested chain"}

	ErrInvalidParams = &RPCError{Code: CodeInvalidParams, Message: "invalid request parameters"}

	ErrResourceUnavailable = &RPCError{Code: CodeResourceUnavailable, Message: "resource unavailable"}
)

// NewRPCError builds an error outside the predefined set. Detail strings
// go in via WithData.
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{Code: code, Message: message}
}

// UnsupportedMethod reports a method outside the dispatch table.
func UnsupportedMethod(method string) *RPCError {
	return &RPCError{Code: CodeUnsupportedMethod, Message: "unsupported method", Data: method}
}

// MethodNotFound reports an unknown JSON-RPC method name.
func MethodNotFound(method string) *RPCError {
	return &RPCError{Code: CodeMethodNotFound, Message: "method not found", Data: method}
}

// UnrecognizedChain reports a chain id missing from the allow-list.
func UnrecognizedChain(chainID string) *RPCError {
	return &RPCError{
		Code:    CodeUnrecognizedChain,
		Message: "unrecognized chain, add it with wallet_addEthereumChain first",
		Data:    chainID,
	}
}

// InternalError wraps an upstream failure, keeping the original message
// for diagnostics.
func InternalError(err error) *RPCError {
	return &RPCError{Code: CodeInternal, Message: "internal error", Data: err.Error()}
}

// AsRPCError extracts a typed error, wrapping anything else as internal.
func AsRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return InternalError(err)
}

// WithData copies the error so predefined values stay immutable.
func (e *RPCError) WithData(data string) *RPCError {
	return &RPCError{Code: e.Code, Message: e.Message, Data: data}
}
