package chainprobe_test

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedeqiang/chainprobe"
	"github.com/hedeqiang/chainprobe/block"
	"github.com/hedeqiang/chainprobe/chain"
	"github.com/hedeqiang/chainprobe/internal/nodetest"
	"github.com/hedeqiang/chainprobe/middleware"
	"github.com/hedeqiang/chainprobe/retry"
	"github.com/hedeqiang/chainprobe/storage"
	"github.com/hedeqiang/chainprobe/subscriber"
	"github.com/hedeqiang/chainprobe/transport"
)

func connect(t *testing.T, endpoint string, opts ...chainprobe.Option) *chainprobe.Probe {
	t.Helper()
	p, err := chainprobe.Connect(context.Background(), endpoint, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestConnectAndQuery(t *testing.T) {
	node := nodetest.New(t, nodetest.WithChain("Local Testnet"))
	p := connect(t, node.URL())
	ctx := context.Background()

	assert.Equal(t, node.URL(), p.Endpoint())

	version, err := p.Version(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, version)

	name, err := p.ChainName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Local Testnet", name)

	nodeName, err := p.NodeName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Substrate Node", nodeName)

	methods, err := p.RPCMethods(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, methods)
	assert.Contains(t, methods, "chain_subscribeNewHeads")

	health, err := p.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, chain.Health{}, health)
}

func TestConnectHTTP(t *testing.T) {
	node := nodetest.New(t)
	p := connect(t, node.HTTPURL())

	version, err := p.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, node.Version, version)
	assert.Equal(t, 1, node.Calls("system_health"))

	_, err = p.SubscribeNewHeads(context.Background(), func(block.Header) {})
	var reqErr *chainprobe.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.True(t, errors.Is(err, transport.ErrSubscriptionsUnsupported))
}

func TestConnectHTTPHealthRejected(t *testing.T) {
	node := nodetest.New(t, nodetest.WithFailure("system_health", -32601, "Method not found"))
	connect(t, node.HTTPURL())
}

func TestConnectUnreachable(t *testing.T) {
	node := nodetest.New(t)
	endpoint := node.URL()
	node.Close()

	p, err := chainprobe.Connect(context.Background(), endpoint, chainprobe.WithDialTimeout(time.Second))
	require.Error(t, err)
	assert.Nil(t, p)

	var connErr *chainprobe.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, endpoint, connErr.Endpoint)
}

func TestConnectBadEndpoint(t *testing.T) {
	for _, endpoint := range []string{"localhost:9944", "ftp://localhost:9944", "://"} {
		_, err := chainprobe.Connect(context.Background(), endpoint)
		var connErr *chainprobe.ConnectionError
		assert.True(t, errors.As(err, &connErr), endpoint)
	}

	_, err := chainprobe.Connect(context.Background(), "tcp://localhost:9944")
	assert.True(t, errors.Is(err, chainprobe.ErrUnsupportedScheme))
}

func TestConnectRetries(t *testing.T) {
	node := nodetest.New(t)
	endpoint := node.URL()
	node.Close()

	b := &retry.Backoff{MaxAttempts: 2, InitialDelay: time.Millisecond}
	start := time.Now()
	_, err := chainprobe.Connect(context.Background(), endpoint, chainprobe.WithDialRetry(b))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRequestError(t *testing.T) {
	node := nodetest.New(t, nodetest.WithFailure("system_version", -32000, "busy"))
	p := connect(t, node.URL())

	_, err := p.Version(context.Background())
	var reqErr *chainprobe.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "system_version", reqErr.Method)

	var rpcErr *transport.RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "busy", rpcErr.Message)
}

func TestRequestTimeout(t *testing.T) {
	node := nodetest.New(t, nodetest.WithDelay("system_chain", 500*time.Millisecond))
	p := connect(t, node.URL(), chainprobe.WithRequestTimeout(50*time.Millisecond))

	_, err := p.ChainName(context.Background())
	var reqErr *chainprobe.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestStorageValue(t *testing.T) {
	key, err := storage.PlainKey("SmultisigRpc", "MultisigMembers")
	require.NoError(t, err)
	node := nodetest.New(t, nodetest.WithStorage(key, []byte{0x00}))
	p := connect(t, node.URL())

	value, err := p.StorageValue(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, storage.Value{0x00}, value)
}

func TestStorageValueUnknownKey(t *testing.T) {
	node := nodetest.New(t)
	p := connect(t, node.URL())

	key, err := storage.PlainKey("Multisig", "Members")
	require.NoError(t, err)

	_, err = p.StorageValue(context.Background(), key)
	var reqErr *chainprobe.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.True(t, errors.Is(err, chainprobe.ErrStorageNotFound))

	_, err = p.StorageValue(context.Background(), nil)
	require.True(t, errors.As(err, &reqErr))
	assert.True(t, errors.Is(err, chainprobe.ErrInvalidStorageKey))
}

func TestSubscribeNewHeadsCancel(t *testing.T) {
	const n = 4
	node := nodetest.New(t, nodetest.WithHeads(nodetest.Heads(10, 20)...))
	p := connect(t, node.URL())

	var (
		mu       sync.Mutex
		got      []uint64
		sub      *chainprobe.Subscription
		reached  = make(chan struct{})
		subReady = make(chan struct{})
	)
	sub, err := p.SubscribeNewHeads(context.Background(), func(h block.Header) {
		<-subReady
		mu.Lock()
		got = append(got, h.Number)
		count := len(got)
		mu.Unlock()
		if count == n {
			sub.Cancel()
			sub.Cancel()
			close(reached)
		}
	})
	require.NoError(t, err)
	close(subReady)

	select {
	case <-reached:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for headers")
	}
	sub.Cancel()

	<-sub.Done()
	assert.NoError(t, sub.Err())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, n)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i], got[i-1])
	}
	assert.Equal(t, 1, node.Calls("chain_unsubscribeNewHeads"))
}

func TestCancelFromOutsideStopsDelivery(t *testing.T) {
	node := nodetest.New(t,
		nodetest.WithHeads(nodetest.Heads(1, 50)...),
		nodetest.WithHeadInterval(5*time.Millisecond),
	)
	p := connect(t, node.URL())

	var delivered atomic.Int32
	sub, err := p.SubscribeNewHeads(context.Background(), func(block.Header) {
		delivered.Add(1)
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return delivered.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	sub.Cancel()
	<-sub.Done()
	after := delivered.Load()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, delivered.Load())
}

func TestDoneWaitsForRunningCallback(t *testing.T) {
	node := nodetest.New(t, nodetest.WithHeads(nodetest.Heads(1, 5)...))
	p := connect(t, node.URL())

	var (
		entered  = make(chan struct{})
		release  = make(chan struct{})
		finished atomic.Bool
		calls    atomic.Int32
	)
	sub, err := p.SubscribeNewHeads(context.Background(), func(block.Header) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
			finished.Store(true)
		}
	})
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("callback not started")
	}

	sub.Cancel()
	select {
	case <-sub.Done():
		t.Fatal("Done closed while a callback is running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after the callback returned")
	}
	assert.True(t, finished.Load())
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubscribeNewHeadsToChannel(t *testing.T) {
	heads := nodetest.Heads(5, 3)
	node := nodetest.New(t, nodetest.WithHeads(heads...))
	p := connect(t, node.URL())

	ch := subscriber.NewChannel(1)
	sub, err := p.SubscribeNewHeadsTo(context.Background(), ch)
	require.NoError(t, err)

	for i := range heads {
		select {
		case h := <-ch.Headers():
			assert.Equal(t, heads[i].Number, h.Number)
		case <-time.After(2 * time.Second):
			t.Fatalf("header %d not delivered", i)
		}
	}

	sub.Cancel()
	<-ch.Done()
	<-sub.Done()
}

func TestSampleNewHeads(t *testing.T) {
	heads := nodetest.Heads(100, 15)
	node := nodetest.New(t, nodetest.WithHeads(heads...))
	p := connect(t, node.URL())

	var seen []int
	var numbers []uint64
	err := p.SampleNewHeads(context.Background(), 10, func(n int, h block.Header) {
		seen = append(seen, n)
		numbers = append(numbers, h.Number)
	})
	require.NoError(t, err)

	require.Len(t, seen, 10)
	assert.Equal(t, 1, seen[0])
	assert.Equal(t, 10, seen[9])
	for i := 1; i < len(numbers); i++ {
		assert.Greater(t, numbers[i], numbers[i-1])
	}
	assert.Equal(t, heads[0].Number, numbers[0])
	assert.Eventually(t, func() bool { return node.UnsubscribeCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestSampleNewHeadsInvalidLimit(t *testing.T) {
	node := nodetest.New(t)
	p := connect(t, node.URL())

	err := p.SampleNewHeads(context.Background(), 0, func(int, block.Header) {})
	assert.True(t, errors.Is(err, chainprobe.ErrInvalidLimit))
	assert.Equal(t, 0, node.Calls("chain_subscribeNewHeads"))
}

func TestSampleNewHeadsConnectionDrop(t *testing.T) {
	node := nodetest.New(t, nodetest.WithHeads(nodetest.Heads(1, 3)...), nodetest.WithDropAfterHeads())
	p := connect(t, node.URL())

	calls := 0
	err := p.SampleNewHeads(context.Background(), 10, func(int, block.Header) { calls++ })
	require.Error(t, err)

	var subErr *chainprobe.SubscriptionError
	require.True(t, errors.As(err, &subErr))
	assert.True(t, errors.Is(err, chain.ErrSubscriptionClosed))
	assert.Equal(t, 3, calls)
}

func TestSampleNewHeadsContext(t *testing.T) {
	node := nodetest.New(t)
	p := connect(t, node.URL())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.SampleNewHeads(ctx, 10, func(int, block.Header) {})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSampleNewHeadsReturnsAfterCallback(t *testing.T) {
	node := nodetest.New(t,
		nodetest.WithHeads(nodetest.Heads(1, 20)...),
		nodetest.WithHeadInterval(10*time.Millisecond),
	)
	var logs bytes.Buffer
	logger := zerolog.New(zerolog.SyncWriter(&logs)).Level(zerolog.DebugLevel)
	p := connect(t, node.URL(), chainprobe.WithLogger(logger))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	var running atomic.Bool
	err := p.SampleNewHeads(ctx, 10, func(int, block.Header) {
		running.Store(true)
		time.Sleep(25 * time.Millisecond)
		running.Store(false)
	})
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, running.Load())

	require.NoError(t, p.Close())
	assert.Contains(t, logs.String(), "header sample ended early")
	assert.Contains(t, logs.String(), `"limit":10`)
}

func TestCloseCancelsSubscriptions(t *testing.T) {
	node := nodetest.New(t)
	p, err := chainprobe.Connect(context.Background(), node.URL())
	require.NoError(t, err)

	sub, err := p.SubscribeNewHeads(context.Background(), func(block.Header) {})
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription outlived the probe")
	}
	assert.NoError(t, sub.Err())
	sub.Cancel()

	_, err = p.ChainName(context.Background())
	assert.True(t, errors.Is(err, chainprobe.ErrClosed))
}

func TestMiddleware(t *testing.T) {
	node := nodetest.New(t)
	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(reg)
	p := connect(t, node.URL(), chainprobe.WithMiddleware(metrics))

	_, err := p.ChainName(context.Background())
	require.NoError(t, err)
	_, err = p.Version(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests("system_chain", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests("system_version", "ok")))
}

func TestDefaultConfig(t *testing.T) {
	cfg := chainprobe.DefaultConfig()
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.DialTimeout)
	assert.Equal(t, 30*time.Second, cfg.KeepAlive)
	assert.Zero(t, cfg.DialRetries)
	assert.Equal(t, "ws://localhost:9944", chainprobe.DefaultEndpoint)
}
