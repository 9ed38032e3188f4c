package middleware

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hedeqiang/chainprobe/transport"
)

const (
	namespace = "chainprobe"
	subsystem = "rpc"

	outcomeOK       = "ok"
	outcomeRPCError = "rpc_error"
	outcomeError    = "error"
)

// Metrics collects Prometheus metrics for node requests.
type Metrics struct {
	// requests counts finished calls labeled by method and outcome
	// (ok, rpc_error, error).
	requests *prometheus.CounterVec

	// duration measures call latency. Buckets span a local dev node
	// answering in milliseconds up to the default 10s request timeout.
	duration *prometheus.HistogramVec

	// subscriptions counts subscribe attempts labeled by method and outcome.
	subscriptions *prometheus.CounterVec
}

// NewMetrics creates a metrics middleware and registers its collectors
// with reg. A nil reg leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Total number of JSON-RPC calls, labeled by method and outcome.",
			},
			[]string{"method", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "Histogram of JSON-RPC call latency in seconds.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"method"},
		),
		subscriptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "subscriptions_total",
				Help:      "Total number of subscription requests, labeled by method and outcome.",
			},
			[]string{"method", "outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.subscriptions)
	}
	return m
}

// Wrap decorates the transport with metrics collection.
func (m *Metrics) Wrap(next transport.Transport) transport.Transport {
	return &measuredTransport{next: next, metrics: m}
}

// Requests returns the counter for the given method and outcome.
func (m *Metrics) Requests(method, outcome string) prometheus.Counter {
	return m.requests.WithLabelValues(method, outcome)
}

// Subscriptions returns the subscribe counter for the given method and outcome.
func (m *Metrics) Subscriptions(method, outcome string) prometheus.Counter {
	return m.subscriptions.WithLabelValues(method, outcome)
}

type measuredTransport struct {
	next    transport.Transport
	metrics *Metrics
}

func (t *measuredTransport) Call(ctx context.Context, method string, params ...interface{}) ([]byte, error) {
	start := time.Now()
	result, err := t.next.Call(ctx, method, params...)
	t.metrics.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	t.metrics.requests.WithLabelValues(method, outcome(err)).Inc()
	return result, err
}

func (t *measuredTransport) Subscribe(ctx context.Context, method, unsubscribeMethod string, params ...interface{}) (*transport.Subscription, error) {
	sub, err := t.next.Subscribe(ctx, method, unsubscribeMethod, params...)
	t.metrics.subscriptions.WithLabelValues(method, outcome(err)).Inc()
	return sub, err
}

func (t *measuredTransport) Close() error {
	return t.next.Close()
}

func outcome(err error) string {
	if err == nil {
		return outcomeOK
	}
	var rpcErr *transport.RPCError
	if errors.As(err, &rpcErr) {
		return outcomeRPCError
	}
	return outcomeError
}
