// Package transport provides JSON-RPC 2.0 transports for talking to a node.
package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport: connection closed")

	// ErrSubscriptionsUnsupported is returned by transports without push support.
	ErrSubscriptionsUnsupported = errors.New("transport: subscriptions not supported")
)

// Transport sends JSON-RPC requests and returns raw responses.
type Transport interface {
	// Call sends a JSON-RPC request and returns the result bytes.
	Call(ctx context.Context, method string, params ...interface{}) ([]byte, error)

	// Subscribe establishes a streaming subscription (WebSocket only).
	// unsubscribeMethod is the RPC used to tear it down again.
	Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...interface{}) (*Subscription, error)

	// Close terminates the transport connection.
	Close() error
}

type jsonRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error: code=%d message=%s data=%s", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error: code=%d message=%s", e.Code, e.Message)
}

func newRequest(id uint64, method string, params []interface{}) jsonRPCRequest {
	if params == nil {
		params = []interface{}{}
	}
	return jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// decodeResult unwraps a JSON-RPC response body into its result.
func decodeResult(data []byte) ([]byte, error) {
	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, errors.Wrap(err, "unmarshal response")
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}
