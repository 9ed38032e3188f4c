// Package nodetest runs an in-process fake Substrate node that speaks
// JSON-RPC over WebSocket and HTTP.
package nodetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hedeqiang/chainprobe/block"
	"github.com/hedeqiang/chainprobe/internal/hex"
)

// JSON-RPC error codes used by the node.
const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// Health mirrors the system_health reply.
type Health struct {
	Peers           int  `json:"peers"`
	IsSyncing       bool `json:"isSyncing"`
	ShouldHavePeers bool `json:"shouldHavePeers"`
}

// Node is a fake node. Configure it with options; the exported fields
// are read-only once the server is running.
type Node struct {
	ChainName string
	NodeName  string
	Version   string
	Methods   []string
	Health    Health

	storage        map[string]string
	heads          []block.Header
	headInterval   time.Duration
	dropAfterHeads bool
	delays         map[string]time.Duration
	failures       map[string]rpcError

	server *httptest.Server

	mu           sync.Mutex
	calls        map[string]int
	unsubscribed map[string]bool
}

// Option configures a Node.
type Option func(*Node)

// WithHeads sets the headers pushed to every new-heads subscriber.
func WithHeads(heads ...block.Header) Option {
	return func(n *Node) {
		n.heads = append(n.heads, heads...)
	}
}

// WithHeadInterval spaces out header notifications.
func WithHeadInterval(d time.Duration) Option {
	return func(n *Node) {
		n.headInterval = d
	}
}

// WithDropAfterHeads closes the connection once all headers were pushed.
func WithDropAfterHeads() Option {
	return func(n *Node) {
		n.dropAfterHeads = true
	}
}

// WithStorage stores value under key.
func WithStorage(key, value []byte) Option {
	return func(n *Node) {
		n.storage[hex.Encode(key)] = hex.Encode(value)
	}
}

// WithChain sets the system_chain reply.
func WithChain(name string) Option {
	return func(n *Node) {
		n.ChainName = name
	}
}

// WithMethods sets the rpc_methods reply.
func WithMethods(methods ...string) Option {
	return func(n *Node) {
		n.Methods = methods
	}
}

// WithHealth sets the system_health reply.
func WithHealth(h Health) Option {
	return func(n *Node) {
		n.Health = h
	}
}

// WithFailure makes every request for method fail with a JSON-RPC error.
func WithFailure(method string, code int, message string) Option {
	return func(n *Node) {
		n.failures[method] = rpcError{Code: code, Message: message}
	}
}

// WithDelay delays every reply to method.
func WithDelay(method string, d time.Duration) Option {
	return func(n *Node) {
		n.delays[method] = d
	}
}

// New starts a node and registers its shutdown with t.
func New(t testing.TB, opts ...Option) *Node {
	t.Helper()

	n := &Node{
		ChainName: "Development",
		NodeName:  "Substrate Node",
		Version:   "4.0.0-dev-7b0a5d8",
		Methods: []string{
			"chain_getBlockHash",
			"chain_getHeader",
			"chain_subscribeNewHeads",
			"chain_unsubscribeNewHeads",
			"rpc_methods",
			"state_getStorage",
			"system_chain",
			"system_health",
			"system_name",
			"system_version",
		},
		storage:      make(map[string]string),
		delays:       make(map[string]time.Duration),
		failures:     make(map[string]rpcError),
		calls:        make(map[string]int),
		unsubscribed: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(n)
	}

	n.server = httptest.NewServer(http.HandlerFunc(n.serveHTTP))
	t.Cleanup(n.Close)
	return n
}

// URL returns the WebSocket endpoint.
func (n *Node) URL() string {
	return "ws" + strings.TrimPrefix(n.server.URL, "http")
}

// HTTPURL returns the HTTP endpoint.
func (n *Node) HTTPURL() string {
	return n.server.URL
}

// Close stops the server and drops all connections.
func (n *Node) Close() {
	n.server.CloseClientConnections()
	n.server.Close()
}

// Calls returns how many times method was requested.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// Unsubscribed reports whether the subscription id was torn down.
func (n *Node) Unsubscribed(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.unsubscribed[id]
}

// UnsubscribeCount returns the number of distinct unsubscribed ids.
func (n *Node) UnsubscribeCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.unsubscribed)
}

// Heads builds count chained headers starting at number start.
func Heads(start uint64, count int) []block.Header {
	heads := make([]block.Header, 0, count)
	var parent block.Hash
	for i := 0; i < count; i++ {
		h := block.Header{
			ParentHash: parent,
			Number:     start + uint64(i),
			Digest:     [][]byte{{0x06, 0x61, 0x75, 0x72, 0x61, byte(i)}},
		}
		h.StateRoot[0] = byte(i)
		h.ExtrinsicsRoot[1] = byte(i)
		heads = append(heads, h)
		parent = h.Hash()
	}
	return heads
}

type request struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  struct {
		Subscription string       `json:"subscription"`
		Result       block.Header `json:"result"`
	} `json:"params"`
}

func (n *Node) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		n.serveWebSocket(w, r)
		return
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, _ := n.handle(req)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (n *Node) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsConn{conn: conn}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req request
		if err := json.Unmarshal(msg, &req); err != nil {
			continue
		}
		go n.serveRequest(c, req)
	}
}

func (n *Node) serveRequest(c *wsConn, req request) {
	resp, subID := n.handle(req)
	if err := c.write(resp); err != nil {
		return
	}
	if subID != "" {
		n.pushHeads(c, subID)
	}
}

func (n *Node) pushHeads(c *wsConn, subID string) {
	for _, h := range n.heads {
		if n.headInterval > 0 {
			time.Sleep(n.headInterval)
		}
		if n.Unsubscribed(subID) {
			return
		}
		var note notification
		note.JSONRPC = "2.0"
		note.Method = "chain_newHead"
		note.Params.Subscription = subID
		note.Params.Result = h
		if err := c.write(note); err != nil {
			return
		}
	}
	if n.dropAfterHeads {
		_ = c.conn.Close()
	}
}

// handle answers one request. subID is non-empty for a new subscription.
func (n *Node) handle(req request) (response, string) {
	n.mu.Lock()
	n.calls[req.Method]++
	n.mu.Unlock()

	if d := n.delays[req.Method]; d > 0 {
		time.Sleep(d)
	}

	resp := response{JSONRPC: "2.0", ID: req.ID}
	if f, ok := n.failures[req.Method]; ok {
		resp.Error = &f
		return resp, ""
	}

	switch req.Method {
	case "system_chain":
		resp.Result = n.ChainName
	case "system_name":
		resp.Result = n.NodeName
	case "system_version":
		resp.Result = n.Version
	case "system_health":
		resp.Result = n.Health
	case "rpc_methods":
		resp.Result = map[string]interface{}{"version": 1, "methods": n.Methods}
	case "state_getStorage":
		key, ok := stringParam(req.Params, 0)
		if !ok {
			resp.Error = &rpcError{Code: codeInvalidParams, Message: "Invalid params"}
			break
		}
		if _, err := hex.Decode(key); err != nil {
			resp.Error = &rpcError{Code: codeInvalidParams, Message: "Invalid params: invalid hex"}
			break
		}
		if v, ok := n.storage[strings.ToLower(key)]; ok {
			resp.Result = v
		}
	case "chain_subscribeNewHeads":
		id := uuid.NewString()
		resp.Result = id
		return resp, id
	case "chain_unsubscribeNewHeads":
		id, _ := stringParam(req.Params, 0)
		n.mu.Lock()
		n.unsubscribed[id] = true
		n.mu.Unlock()
		resp.Result = true
	default:
		resp.Error = &rpcError{Code: codeMethodNotFound, Message: "Method not found"}
	}
	return resp, ""
}

func stringParam(params []json.RawMessage, i int) (string, bool) {
	if len(params) <= i {
		return "", false
	}
	var s string
	if err := json.Unmarshal(params[i], &s); err != nil {
		return "", false
	}
	return s, true
}
