package substrate_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedeqiang/chainprobe/block"
	"github.com/hedeqiang/chainprobe/chain"
	"github.com/hedeqiang/chainprobe/chain/substrate"
	"github.com/hedeqiang/chainprobe/internal/nodetest"
	"github.com/hedeqiang/chainprobe/transport"
)

func newClient(t *testing.T, node *nodetest.Node) *substrate.Client {
	t.Helper()
	ws, err := transport.DialWebSocket(context.Background(), node.URL())
	require.NoError(t, err)

	c := substrate.New(node.URL(), ws)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientQueries(t *testing.T) {
	node := nodetest.New(t, nodetest.WithHealth(nodetest.Health{Peers: 3, IsSyncing: true, ShouldHavePeers: true}))
	c := newClient(t, node)
	ctx := context.Background()

	assert.Equal(t, node.URL(), c.Endpoint())

	name, err := c.Chain(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Development", name)

	nodeName, err := c.Name(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Substrate Node", nodeName)

	version, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, node.Version, version)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, chain.Health{Peers: 3, IsSyncing: true, ShouldHavePeers: true}, health)

	methods, err := c.RPCMethods(ctx)
	require.NoError(t, err)
	assert.Equal(t, node.Methods, methods)
}

func TestClientStorage(t *testing.T) {
	key := []byte{0x01, 0x02, 0x03}
	node := nodetest.New(t, nodetest.WithStorage(key, []byte{0x04, 0xaa, 0xbb}))
	c := newClient(t, node)

	value, found, err := c.Storage(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte{0x04, 0xaa, 0xbb}, value)

	value, found, err = c.Storage(context.Background(), []byte{0xff})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)
}

func TestClientRPCErrorIsWrapped(t *testing.T) {
	node := nodetest.New(t, nodetest.WithFailure(substrate.MethodRPCMethods, -32000, "unsafe rpc"))
	c := newClient(t, node)

	_, err := c.RPCMethods(context.Background())
	require.Error(t, err)
	var rpcErr *transport.RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "unsafe rpc", rpcErr.Message)
	assert.Contains(t, err.Error(), substrate.MethodRPCMethods)
}

func TestClientHTTPSubscribeUnsupported(t *testing.T) {
	node := nodetest.New(t)
	c := substrate.New(node.HTTPURL(), transport.NewHTTP(node.HTTPURL()))

	_, err := c.SubscribeNewHeads(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, transport.ErrSubscriptionsUnsupported))
	assert.Contains(t, err.Error(), substrate.MethodSubscribeHeads)
}

func TestSubscribeNewHeads(t *testing.T) {
	heads := nodetest.Heads(7, 5)
	node := nodetest.New(t, nodetest.WithHeads(heads...))
	c := newClient(t, node)

	sub, err := c.SubscribeNewHeads(context.Background())
	require.NoError(t, err)

	var got []block.Header
	for len(got) < len(heads) {
		select {
		case h := <-sub.Headers():
			got = append(got, h)
		case err := <-sub.Err():
			t.Fatalf("unexpected error: %v", err)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for headers")
		}
	}
	sub.Unsubscribe()
	sub.Unsubscribe()

	for i, h := range got {
		assert.Equal(t, heads[i].Number, h.Number)
		assert.Equal(t, heads[i].Hash(), h.Hash())
	}

	_, open := <-sub.Headers()
	assert.False(t, open)
	assert.Equal(t, 1, node.Calls(substrate.MethodUnsubscribeHeads))
}

func TestSubscribeNewHeadsConnectionDrop(t *testing.T) {
	heads := nodetest.Heads(1, 3)
	node := nodetest.New(t, nodetest.WithHeads(heads...), nodetest.WithDropAfterHeads())
	c := newClient(t, node)

	sub, err := c.SubscribeNewHeads(context.Background())
	require.NoError(t, err)

	received := 0
	for range sub.Headers() {
		received++
	}
	assert.Equal(t, len(heads), received)

	err = <-sub.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, chain.ErrSubscriptionClosed))
	assert.True(t, errors.Is(err, transport.ErrClosed))
}
