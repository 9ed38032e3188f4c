package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hedeqiang/chainprobe/transport"
)

// Logger logs each request that passes through the transport.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a logging middleware. Requests are logged at debug
// level, failures at warn.
func NewLogger(l zerolog.Logger) *Logger {
	return &Logger{logger: l.With().Str("component", "rpc").Logger()}
}

// Wrap decorates the transport with request logging.
func (l *Logger) Wrap(next transport.Transport) transport.Transport {
	return &loggedTransport{next: next, logger: l.logger}
}

type loggedTransport struct {
	next   transport.Transport
	logger zerolog.Logger
}

func (t *loggedTransport) Call(ctx context.Context, method string, params ...interface{}) ([]byte, error) {
	start := time.Now()
	result, err := t.next.Call(ctx, method, params...)
	t.log(method, start, err).Int("bytes", len(result)).Msg("rpc call")
	return result, err
}

func (t *loggedTransport) Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...interface{}) (*transport.Subscription, error) {
	start := time.Now()
	sub, err := t.next.Subscribe(ctx, method, unsubscribeMethod, params...)
	ev := t.log(method, start, err)
	if sub != nil {
		ev = ev.Str("subscription", sub.ID())
	}
	ev.Msg("rpc subscribe")
	return sub, err
}

func (t *loggedTransport) Close() error {
	return t.next.Close()
}

func (t *loggedTransport) log(method string, start time.Time, err error) *zerolog.Event {
	ev := t.logger.Debug()
	if err != nil {
		ev = t.logger.Warn().Err(err)
	}
	return ev.Str("method", method).Dur("duration", time.Since(start))
}
