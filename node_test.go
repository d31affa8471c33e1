package substrate

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/internal/core/protocol/ping"
	"github.com/dep2p/go-substrate/pkg/lib/crypto"
	maddr "github.com/dep2p/go-substrate/pkg/lib/multiaddr"
)

const echoProto ProtocolID = "/test/echo/1"

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestNode(t *testing.T, opts ...Option) *Node {
	t.Helper()
	opts = append([]Option{WithListenAddrs("/ip4/127.0.0.1/tcp/0")}, opts...)
	n, err := New(testCtx(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func echo(st Stream) {
	defer st.Close()
	_, _ = io.Copy(st, st)
}

func TestNew_Defaults(t *testing.T) {
	n := newTestNode(t)

	assert.False(t, n.ID().IsEmpty())
	require.Len(t, n.ListenAddrs(), 1)
	addrs := n.Addrs()
	require.Len(t, addrs, 1)

	_, id, err := maddr.SplitPeer(addrs[0])
	require.NoError(t, err)
	assert.Equal(t, n.ID(), id)
}

func TestNew_InvalidOptions(t *testing.T) {
	ctx := testCtx(t)

	_, err := New(ctx, WithListenAddrs("not-a-multiaddr"))
	assert.Error(t, err)

	_, err = New(ctx, WithIdentity(nil))
	assert.Error(t, err)

	_, err = New(ctx, WithHandshakeTimeout(0))
	assert.Error(t, err)

	_, err = New(ctx, WithDedupPolicy(DedupPolicy(42)))
	assert.Error(t, err)

	_, err = New(ctx, WithConfig(nil))
	assert.Error(t, err)
}

func TestNew_WithIdentity(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	want, err := crypto.PeerIDFromPrivateKey(priv)
	require.NoError(t, err)

	n := newTestNode(t, WithIdentity(priv))
	assert.Equal(t, want, n.ID())
}

func TestNew_WithConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Transport.EnableQUIC = false
	cfg.Transport.ListenAddrs = []string{"/ip4/127.0.0.1/tcp/0"}

	n, err := New(testCtx(t), WithConfig(cfg), WithDedupPolicy(KeepBoth))
	require.NoError(t, err)
	defer n.Close()

	assert.Same(t, cfg, n.Config())
	assert.Equal(t, "keep-both", n.Config().ConnMgr.DedupPolicy)
}

func TestNode_ConnectAndStream(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	a.SetStreamHandler(echoProto, echo)
	ctx := testCtx(t)

	c, err := b.Connect(ctx, a.Addrs()[0], "")
	require.NoError(t, err)
	assert.Equal(t, a.ID(), c.RemotePeer())
	assert.Contains(t, b.Peers(), a.ID())
	assert.Len(t, b.ConnsToPeer(a.ID()), 1)

	st, err := b.NewStream(ctx, a.ID(), echoProto)
	require.NoError(t, err)
	_, err = st.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, st.CloseWrite())

	got, err := io.ReadAll(st)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestNode_Ping(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	a.SetStreamHandler(ping.ProtocolID, ping.Handler)
	ctx := testCtx(t)

	_, err := b.Connect(ctx, a.ListenAddrs()[0].String(), a.ID())
	require.NoError(t, err)

	rtt, err := ping.Ping(ctx, b, a.ID())
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
}

func TestNode_ConnectAddressMismatch(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	other := newTestNode(t)

	_, err := b.Connect(testCtx(t), a.Addrs()[0], other.ID())
	assert.ErrorIs(t, err, ErrIdentityMismatch)
	assert.Empty(t, b.Peers())
}

func TestNode_ConnectWrongIdentity(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	other := newTestNode(t)

	_, err := b.Connect(testCtx(t), a.ListenAddrs()[0].String(), other.ID())
	require.Error(t, err)

	var he *HandshakeError
	assert.True(t, errors.As(err, &he))
	assert.ErrorIs(t, err, ErrIdentityMismatch)
}

func TestNode_RemoveStreamHandler(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	a.SetStreamHandler(echoProto, echo)
	assert.Contains(t, a.Protocols(), echoProto)
	ctx := testCtx(t)

	_, err := b.Connect(ctx, a.Addrs()[0], "")
	require.NoError(t, err)

	a.RemoveStreamHandler(echoProto)
	assert.NotContains(t, a.Protocols(), echoProto)

	_, err = b.NewStream(ctx, a.ID(), echoProto)
	assert.ErrorIs(t, err, ErrNoCommonProtocol)

	// 协商失败不影响连接
	assert.Len(t, b.ConnsToPeer(a.ID()), 1)
}

func TestNode_NotifyAndClosePeer(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	connected := make(chan Conn, 4)
	disconnected := make(chan Conn, 4)
	b.Notify(&NotifyBundle{
		ConnectedF:    func(c Conn) { connected <- c },
		DisconnectedF: func(c Conn, _ error) { disconnected <- c },
	})

	_, err := b.Connect(testCtx(t), a.Addrs()[0], "")
	require.NoError(t, err)

	select {
	case c := <-connected:
		assert.Equal(t, a.ID(), c.RemotePeer())
	case <-time.After(5 * time.Second):
		t.Fatal("no connected notification")
	}

	require.NoError(t, b.ClosePeer(a.ID()))
	select {
	case c := <-disconnected:
		assert.Equal(t, a.ID(), c.RemotePeer())
	case <-time.After(5 * time.Second):
		t.Fatal("no disconnected notification")
	}
	assert.Empty(t, b.ConnsToPeer(a.ID()))
}

func TestNode_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := newTestNode(t)
	b := newTestNode(t, WithMetricsRegisterer(reg))

	_, err := b.Connect(testCtx(t), a.Addrs()[0], "")
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "substrate_swarm_connections_opened_total")
}

func TestNode_Close(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err := b.Connect(testCtx(t), a.Addrs()[0], "")
	assert.ErrorIs(t, err, ErrNodeClosed)
	_, err = b.NewStream(testCtx(t), a.ID(), echoProto)
	assert.ErrorIs(t, err, ErrNodeClosed)
}
