package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/pkg/errors"
)

// HTTP implements Transport over HTTP JSON-RPC.
type HTTP struct {
	url    string
	client *http.Client
	nextID atomic.Uint64
}

// NewHTTP creates an HTTP transport targeting the given JSON-RPC endpoint.
// Request deadlines come from the context passed to Call.
func NewHTTP(url string) *HTTP {
	return &HTTP{
		url:    url,
		client: &http.Client{},
	}
}

// Call sends an HTTP JSON-RPC request and returns the result bytes.
func (h *HTTP) Call(ctx context.Context, method string, params ...interface{}) ([]byte, error) {
	body, err := json.Marshal(newRequest(h.nextID.Add(1), method, params))
	if err != nil {
		return nil, errors.Wrap(err, "transport/http: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "transport/http: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "transport/http: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "transport/http: read response")
	}

	if resp.StatusCode != http.StatusOK {
		body := string(respBody)
		if len(body) > 256 {
			body = body[:256]
		}
		return nil, fmt.Errorf("transport/http: HTTP %d: %s", resp.StatusCode, body)
	}

	result, err := decodeResult(respBody)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return nil, rpcErr
		}
		return nil, errors.Wrapf(err, "transport/http: status %d", resp.StatusCode)
	}
	return result, nil
}

// Subscribe is not supported over HTTP and always returns an error.
func (h *HTTP) Subscribe(_ context.Context, _, _ string, _ ...interface{}) (*Subscription, error) {
	return nil, ErrSubscriptionsUnsupported
}

// Close is a no-op for HTTP transport.
func (h *HTTP) Close() error {
	return nil
}
