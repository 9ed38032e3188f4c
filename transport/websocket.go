package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the node.
	writeWait = 10 * time.Second

	// Buffered notifications per subscription before the read loop waits.
	subscriptionBuffer = 64
)

// WSOption configures a WebSocket transport.
type WSOption func(*WebSocket)

// WithLogger sets the logger used for connection lifecycle events.
func WithLogger(l zerolog.Logger) WSOption {
	return func(ws *WebSocket) {
		ws.logger = l
	}
}

// WithKeepAlive enables ping frames every period. The connection is
// considered dead when no pong arrives within 10/9 of the period.
// Zero disables keepalive.
func WithKeepAlive(period time.Duration) WSOption {
	return func(ws *WebSocket) {
		ws.keepAlive = period
	}
}

// WithHandshakeTimeout bounds the WebSocket opening handshake.
func WithHandshakeTimeout(d time.Duration) WSOption {
	return func(ws *WebSocket) {
		ws.handshakeTimeout = d
	}
}

// WebSocket implements Transport over a WebSocket connection.
type WebSocket struct {
	url              string
	conn             *websocket.Conn
	logger           zerolog.Logger
	keepAlive        time.Duration
	handshakeTimeout time.Duration

	writeMu sync.Mutex
	nextID  atomic.Uint64

	// routing tables, guarded by mu
	mu      sync.Mutex
	pending map[uint64]*pendingCall
	subs    map[string]*Subscription

	// closing is set by Close before the socket is torn down, so the
	// read loop can tell a local close from a dropped connection.
	closing   atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

type pendingCall struct {
	resp chan []byte
	// sub is set for subscribe requests; the read loop registers it
	// before any later notification is routed.
	sub *Subscription
}

// DialWebSocket connects to a WebSocket JSON-RPC endpoint.
func DialWebSocket(ctx context.Context, url string, opts ...WSOption) (*WebSocket, error) {
	ws := &WebSocket{
		url:              url,
		logger:           zerolog.Nop(),
		handshakeTimeout: 10 * time.Second,
		pending:          make(map[uint64]*pendingCall),
		subs:             make(map[string]*Subscription),
		closed:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ws)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: ws.handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "transport/ws: dial")
	}
	ws.conn = conn
	ws.logger.Debug().Str("endpoint", url).Msg("websocket connected")

	if ws.keepAlive > 0 {
		pongWait := ws.keepAlive * 10 / 9
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go ws.pingLoop()
	}
	go ws.readLoop()

	return ws, nil
}

// Call sends a JSON-RPC request over WebSocket and waits for the response.
func (ws *WebSocket) Call(ctx context.Context, method string, params ...interface{}) ([]byte, error) {
	return ws.call(ctx, method, params, nil)
}

// Subscribe sends a subscription request. Notifications for the returned
// subscription are delivered in arrival order and are never dropped.
func (ws *WebSocket) Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...interface{}) (*Subscription, error) {
	sub := newSubscription(ws, method, unsubscribeMethod)
	if _, err := ws.call(ctx, method, params, sub); err != nil {
		ws.removeSub(sub)
		sub.finish(err)
		return nil, err
	}
	ws.logger.Debug().Str("method", method).Str("subscription", sub.ID()).Msg("subscribed")
	return sub, nil
}

// Close terminates the WebSocket connection.
func (ws *WebSocket) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		ws.closing.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = ws.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = ws.conn.Close()
		ws.teardown(nil)
		ws.logger.Debug().Str("endpoint", ws.url).Msg("websocket closed")
	})
	return err
}

func (ws *WebSocket) call(ctx context.Context, method string, params []interface{}, sub *Subscription) ([]byte, error) {
	id := ws.nextID.Add(1)
	pc := &pendingCall{resp: make(chan []byte, 1), sub: sub}

	ws.mu.Lock()
	select {
	case <-ws.closed:
		ws.mu.Unlock()
		return nil, ws.closedErr()
	default:
	}
	ws.pending[id] = pc
	ws.mu.Unlock()

	defer func() {
		ws.mu.Lock()
		delete(ws.pending, id)
		ws.mu.Unlock()
	}()

	ws.writeMu.Lock()
	_ = ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := ws.conn.WriteJSON(newRequest(id, method, params))
	ws.writeMu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, "transport/ws: write")
	}

	select {
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "transport/ws: %s", method)
	case data := <-pc.resp:
		result, err := decodeResult(data)
		if err != nil {
			var rpcErr *RPCError
			if errors.As(err, &rpcErr) {
				return nil, rpcErr
			}
			return nil, errors.Wrap(err, "transport/ws")
		}
		return result, nil
	case <-ws.closed:
		return nil, ws.closedErr()
	}
}

// readLoop reads messages from the WebSocket and routes them to waiting callers.
func (ws *WebSocket) readLoop() {
	for {
		_, message, err := ws.conn.ReadMessage()
		if err != nil {
			if ws.closing.Load() {
				return
			}
			ws.logger.Warn().Err(err).Str("endpoint", ws.url).Msg("websocket read failed")
			ws.closeOnce.Do(func() {
				_ = ws.conn.Close()
				ws.teardown(err)
			})
			return
		}

		var envelope struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params struct {
				Subscription json.RawMessage `json:"subscription"`
				Result       json.RawMessage `json:"result"`
			} `json:"params"`
		}
		if err := json.Unmarshal(message, &envelope); err != nil {
			ws.logger.Debug().Err(err).Msg("dropping undecodable message")
			continue
		}

		switch {
		case len(envelope.ID) > 0 && !bytes.Equal(envelope.ID, []byte("null")):
			ws.routeResponse(envelope.ID, message)
		case envelope.Method != "" && len(envelope.Params.Subscription) > 0:
			ws.routeNotification(envelope.Params.Subscription, envelope.Params.Result)
		}
	}
}

func (ws *WebSocket) routeResponse(rawID json.RawMessage, message []byte) {
	id, err := strconv.ParseUint(string(rawID), 10, 64)
	if err != nil {
		return
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	pc, ok := ws.pending[id]
	if !ok {
		return
	}
	if pc.sub != nil {
		var resp jsonRPCResponse
		if err := json.Unmarshal(message, &resp); err == nil && resp.Error == nil && len(resp.Result) > 0 {
			pc.sub.rawID = resp.Result
			pc.sub.id = normalizeID(resp.Result)
			ws.subs[pc.sub.id] = pc.sub
		}
	}
	select {
	case pc.resp <- message:
	default:
	}
}

func (ws *WebSocket) routeNotification(rawSubID, result json.RawMessage) {
	ws.mu.Lock()
	sub, ok := ws.subs[normalizeID(rawSubID)]
	ws.mu.Unlock()
	if !ok {
		ws.logger.Debug().RawJSON("subscription", rawSubID).Msg("notification for unknown subscription")
		return
	}
	sub.deliver(result)
}

func (ws *WebSocket) removeSub(sub *Subscription) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if sub.id != "" && ws.subs[sub.id] == sub {
		delete(ws.subs, sub.id)
	}
}

// teardown records the close cause and ends every live subscription.
// Must run inside closeOnce.
func (ws *WebSocket) teardown(cause error) {
	ws.closeErr = cause
	close(ws.closed)

	ws.mu.Lock()
	subs := make([]*Subscription, 0, len(ws.subs))
	for id, sub := range ws.subs {
		subs = append(subs, sub)
		delete(ws.subs, id)
	}
	ws.mu.Unlock()

	for _, sub := range subs {
		sub.finish(ws.closedErr())
	}
}

func (ws *WebSocket) closedErr() error {
	if ws.closeErr != nil {
		return fmt.Errorf("%w: %v", ErrClosed, ws.closeErr)
	}
	return ErrClosed
}

// pingLoop sends keep-alive pings; a missing pong trips the read deadline
// and ends the read loop.
func (ws *WebSocket) pingLoop() {
	ticker := time.NewTicker(ws.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ws.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				ws.logger.Debug().Err(err).Msg("failed to send ping")
				return
			}
		case <-ws.closed:
			return
		}
	}
}

// normalizeID renders a subscription id, which nodes send either as a
// JSON string or a number, as a map key.
func normalizeID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}
