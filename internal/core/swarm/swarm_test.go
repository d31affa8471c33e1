package swarm

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/internal/core/identity"
	"github.com/dep2p/go-substrate/internal/core/muxer"
	"github.com/dep2p/go-substrate/internal/core/protocol"
	"github.com/dep2p/go-substrate/internal/core/security/noise"
	"github.com/dep2p/go-substrate/internal/core/transport"
	"github.com/dep2p/go-substrate/internal/core/transport/quic"
	"github.com/dep2p/go-substrate/internal/core/transport/tcp"
	"github.com/dep2p/go-substrate/internal/core/transport/websocket"
	"github.com/dep2p/go-substrate/internal/core/upgrader"
	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/lib/crypto"
	"github.com/dep2p/go-substrate/pkg/types"
)

const (
	tcpAddr  = "/ip4/127.0.0.1/tcp/0"
	wsAddr   = "/ip4/127.0.0.1/tcp/0/ws"
	quicAddr = "/ip4/127.0.0.1/udp/0/quic-v1"
)

// events 记录通知
type events struct {
	connected    chan interfaces.Conn
	disconnected chan error
	security     chan interfaces.SecurityEvent
	listenClosed chan ma.Multiaddr
}

func newEvents() *events {
	return &events{
		connected:    make(chan interfaces.Conn, 16),
		disconnected: make(chan error, 16),
		security:     make(chan interfaces.SecurityEvent, 16),
		listenClosed: make(chan ma.Multiaddr, 16),
	}
}

func (e *events) bundle() *NotifyBundle {
	return &NotifyBundle{
		ConnectedF:     func(c interfaces.Conn) { e.connected <- c },
		DisconnectedF:  func(_ interfaces.Conn, reason error) { e.disconnected <- reason },
		SecurityEventF: func(ev interfaces.SecurityEvent) { e.security <- ev },
		ListenCloseF:   func(a ma.Multiaddr) { e.listenClosed <- a },
	}
}

type testNode struct {
	*Swarm
	id     *identity.Identity
	events *events
}

func newNode(t *testing.T, cfg Config, opts ...Option) *testNode {
	t.Helper()
	id, err := identity.Generate(crypto.KeyTypeEd25519)
	require.NoError(t, err)

	sec, err := noise.New(id, noise.WithMuxers(muxer.ID))
	require.NoError(t, err)
	up, err := upgrader.New(
		[]interfaces.SecureTransport{sec},
		[]interfaces.StreamMuxer{muxer.NewTransport(muxer.DefaultConfig())},
		upgrader.DefaultConfig(),
	)
	require.NoError(t, err)

	qt, err := quic.New(quic.DefaultConfig())
	require.NoError(t, err)
	reg := transport.NewRegistry(tcp.New(tcp.DefaultConfig()), websocket.New(websocket.DefaultConfig()), qt)

	s, err := New(id.PeerID(), reg, up, nil, nil, cfg, opts...)
	require.NoError(t, err)

	ev := newEvents()
	s.Notify(ev.bundle())
	t.Cleanup(func() {
		_ = s.Close()
		_ = reg.Close()
	})
	return &testNode{Swarm: s, id: id, events: ev}
}

func (n *testNode) listen(t *testing.T, addr string) ma.Multiaddr {
	t.Helper()
	require.NoError(t, n.Listen(ma.StringCast(addr)))
	addrs := n.ListenAddrs()
	require.Len(t, addrs, 1)
	return addrs[0]
}

func echo(st interfaces.Stream) {
	defer st.Close()
	_, _ = io.Copy(st, st)
}

func roundTrip(t *testing.T, st io.ReadWriter, msg string) {
	t.Helper()
	_, err := st.Write([]byte(msg))
	require.NoError(t, err)
	buf := make([]byte, len(msg))
	_, err = io.ReadFull(st, buf)
	require.NoError(t, err)
	assert.Equal(t, msg, string(buf))
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSwarm_New(t *testing.T) {
	_, err := New("", transport.NewRegistry(), nil, nil, nil, DefaultConfig())
	assert.Error(t, err)

	n := newNode(t, DefaultConfig())
	assert.Equal(t, n.id.PeerID(), n.LocalPeer())
	assert.Empty(t, n.Peers())
	assert.Empty(t, n.Conns())
}

func TestSwarm_ConnectAndStream(t *testing.T) {
	a := newNode(t, DefaultConfig())
	b := newNode(t, DefaultConfig())
	a.SetStreamHandler("/echo/1", echo)
	addr := a.listen(t, tcpAddr)
	ctx := testCtx(t)

	c, err := b.Connect(ctx, addr, a.LocalPeer())
	require.NoError(t, err)
	assert.Equal(t, a.LocalPeer(), c.RemotePeer())
	assert.Equal(t, b.LocalPeer(), c.LocalPeer())
	assert.Equal(t, types.DirOutbound, c.Direction())
	assert.Equal(t, types.TransportTCP, c.Transport())
	assert.Equal(t, types.ConnStateEstablished, c.State())
	assert.Equal(t, muxer.ID, c.Muxer())
	assert.NotEmpty(t, c.ID())

	select {
	case got := <-a.events.connected:
		assert.Equal(t, b.LocalPeer(), got.RemotePeer())
		assert.Equal(t, types.DirInbound, got.Direction())
	case <-time.After(5 * time.Second):
		t.Fatal("no Connected on responder")
	}

	st, err := b.NewStream(ctx, a.LocalPeer(), "/echo/1")
	require.NoError(t, err)
	assert.Equal(t, types.ProtocolID("/echo/1"), st.Protocol())
	assert.Equal(t, c, st.Conn())
	roundTrip(t, st, "hello")
	require.NoError(t, st.Close())
}

func TestSwarm_ConnectReusesExisting(t *testing.T) {
	a := newNode(t, DefaultConfig())
	b := newNode(t, DefaultConfig())
	addr := a.listen(t, tcpAddr)
	ctx := testCtx(t)

	c1, err := b.Connect(ctx, addr, a.LocalPeer())
	require.NoError(t, err)
	c2, err := b.Connect(ctx, addr, a.LocalPeer())
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	assert.Len(t, b.ConnsToPeer(a.LocalPeer()), 1)
}

func TestSwarm_ConcurrentConnect(t *testing.T) {
	a := newNode(t, DefaultConfig())
	b := newNode(t, DefaultConfig())
	addr := a.listen(t, tcpAddr)
	ctx := testCtx(t)

	const n = 8
	conns := make([]*Conn, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conns[i], errs[i] = b.Connect(ctx, addr, a.LocalPeer())
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, conns[0], conns[i])
	}
	assert.Len(t, b.ConnsToPeer(a.LocalPeer()), 1)
}

func TestSwarm_DedupKeepExisting(t *testing.T) {
	a := newNode(t, DefaultConfig())
	b := newNode(t, DefaultConfig())
	addr := a.listen(t, tcpAddr)
	ctx := testCtx(t)

	// 不给期望身份时每次都真正拨号
	c1, err := b.Connect(ctx, addr, "")
	require.NoError(t, err)
	c2, err := b.Connect(ctx, addr, "")
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.Len(t, b.ConnsToPeer(a.LocalPeer()), 1)
	require.Eventually(t, func() bool {
		return len(a.ConnsToPeer(b.LocalPeer())) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSwarm_DedupKeepBoth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DedupPolicy = KeepBoth
	a := newNode(t, cfg)
	b := newNode(t, cfg)
	addr := a.listen(t, tcpAddr)
	ctx := testCtx(t)

	c1, err := b.Connect(ctx, addr, "")
	require.NoError(t, err)
	c2, err := b.Connect(ctx, addr, "")
	require.NoError(t, err)

	assert.NotSame(t, c1, c2)
	assert.Len(t, b.ConnsToPeer(a.LocalPeer()), 2)
	require.Eventually(t, func() bool {
		return len(a.ConnsToPeer(b.LocalPeer())) == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestKeepNewConn_SimultaneousOpen(t *testing.T) {
	x, err := identity.Generate(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	y, err := identity.Generate(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	lo, hi := x.PeerID(), y.PeerID()
	if hi.Less(lo) {
		lo, hi = hi, lo
	}

	// 同方向的重复连接总被丢弃
	assert.False(t, keepNewConn(lo, hi, types.DirOutbound, types.DirOutbound))
	assert.False(t, keepNewConn(lo, hi, types.DirInbound, types.DirInbound))

	// lo 拨出的连接在 lo 端是出站、在 hi 端是入站，无论到达顺序两端都保留它
	assert.True(t, keepNewConn(lo, hi, types.DirInbound, types.DirOutbound))
	assert.False(t, keepNewConn(lo, hi, types.DirOutbound, types.DirInbound))
	assert.True(t, keepNewConn(hi, lo, types.DirOutbound, types.DirInbound))
	assert.False(t, keepNewConn(hi, lo, types.DirInbound, types.DirOutbound))
}

func TestSwarm_NegotiationFailureIsolated(t *testing.T) {
	a := newNode(t, DefaultConfig())
	b := newNode(t, DefaultConfig())
	a.SetStreamHandler("/b", echo)
	a.SetStreamHandler("/c", echo)
	addr := a.listen(t, tcpAddr)
	ctx := testCtx(t)

	c, err := b.Connect(ctx, addr, a.LocalPeer())
	require.NoError(t, err)
	ok, err := b.NewStream(ctx, a.LocalPeer(), "/b")
	require.NoError(t, err)

	_, err = b.NewStream(ctx, a.LocalPeer(), "/x")
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrNoCommonProtocol)
	var ne *protocol.NegotiationError
	assert.ErrorAs(t, err, &ne)

	// 失败只影响那一条流
	assert.Equal(t, types.ConnStateEstablished, c.State())
	roundTrip(t, ok, "still alive")

	st, err := b.NewStream(ctx, a.LocalPeer(), "/a", "/b")
	require.NoError(t, err)
	assert.Equal(t, types.ProtocolID("/b"), st.Protocol())
	roundTrip(t, st, "ping")

	_, err = b.NewStream(ctx, a.LocalPeer())
	assert.ErrorIs(t, err, ErrNoProtocols)
}

func TestSwarm_RemoveStreamHandler(t *testing.T) {
	a := newNode(t, DefaultConfig())
	b := newNode(t, DefaultConfig())
	a.SetStreamHandler("/echo/1", echo)
	assert.Contains(t, a.Protocols(), types.ProtocolID("/echo/1"))
	a.RemoveStreamHandler("/echo/1")
	assert.Empty(t, a.Protocols())

	addr := a.listen(t, tcpAddr)
	ctx := testCtx(t)
	_, err := b.Connect(ctx, addr, a.LocalPeer())
	require.NoError(t, err)
	_, err = b.NewStream(ctx, a.LocalPeer(), "/echo/1")
	assert.ErrorIs(t, err, protocol.ErrNoCommonProtocol)
}

func TestSwarm_ClosePeer(t *testing.T) {
	a := newNode(t, DefaultConfig())
	b := newNode(t, DefaultConfig())
	a.SetStreamHandler("/echo/1", echo)
	addr := a.listen(t, tcpAddr)
	ctx := testCtx(t)

	c, err := b.Connect(ctx, addr, a.LocalPeer())
	require.NoError(t, err)
	st, err := b.NewStream(ctx, a.LocalPeer(), "/echo/1")
	require.NoError(t, err)
	roundTrip(t, st, "x")

	reason := errors.New("done")
	require.NoError(t, b.ClosePeer(a.LocalPeer(), reason))

	select {
	case got := <-b.events.disconnected:
		assert.ErrorIs(t, got, reason)
	case <-time.After(5 * time.Second):
		t.Fatal("no Disconnected on initiator")
	}
	select {
	case <-a.events.disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("no Disconnected on responder")
	}

	assert.Equal(t, types.ConnStateClosed, c.State())
	assert.Equal(t, types.StreamStateClosed, st.State())
	_, err = st.Write([]byte("y"))
	assert.Error(t, err)
	assert.Empty(t, c.Streams())

	// 幂等
	require.NoError(t, b.ClosePeer(a.LocalPeer(), reason))
	_, err = b.NewStream(ctx, a.LocalPeer(), "/echo/1")
	assert.ErrorIs(t, err, ErrNoConnection)
	require.Eventually(t, func() bool {
		return len(a.ConnsToPeer(b.LocalPeer())) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSwarm_StreamsReleased(t *testing.T) {
	a := newNode(t, DefaultConfig())
	b := newNode(t, DefaultConfig())
	// 只用 CloseWrite 结束，不调用包装层的 Close
	a.SetStreamHandler("/half/1", func(st interfaces.Stream) {
		_, _ = io.Copy(st, st)
		_ = st.CloseWrite()
	})
	a.SetStreamHandler("/reset/1", func(st interfaces.Stream) {
		buf := make([]byte, 1)
		_, _ = io.ReadFull(st, buf)
		_ = st.Reset()
	})
	addr := a.listen(t, tcpAddr)
	ctx := testCtx(t)

	c, err := b.Connect(ctx, addr, a.LocalPeer())
	require.NoError(t, err)

	var remote *Conn
	require.Eventually(t, func() bool {
		conns := a.ConnsToPeer(b.LocalPeer())
		if len(conns) != 1 {
			return false
		}
		remote = conns[0]
		return true
	}, 5*time.Second, 10*time.Millisecond)

	noStreams := func() bool { return len(c.Streams()) == 0 && len(remote.Streams()) == 0 }

	t.Run("FIN both ways", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			st, err := b.NewStream(ctx, a.LocalPeer(), "/half/1")
			require.NoError(t, err)
			_, err = st.Write([]byte("data"))
			require.NoError(t, err)
			require.NoError(t, st.CloseWrite())
			got, err := io.ReadAll(st)
			require.NoError(t, err)
			assert.Equal(t, "data", string(got))
		}
		require.Eventually(t, noStreams, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("remote reset", func(t *testing.T) {
		st, err := b.NewStream(ctx, a.LocalPeer(), "/reset/1")
		require.NoError(t, err)
		_, err = st.Write([]byte("x"))
		require.NoError(t, err)

		_, err = io.ReadAll(st)
		assert.ErrorIs(t, err, muxer.ErrStreamReset)
		require.Eventually(t, noStreams, 5*time.Second, 10*time.Millisecond)
	})

	assert.Equal(t, types.ConnStateEstablished, c.State())
}

func TestSwarm_IdentityMismatchQuarantine(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Now())
	cfg := DefaultConfig()
	cfg.AuthFailureQuarantine = time.Minute

	a := newNode(t, DefaultConfig())
	b := newNode(t, cfg, WithClock(clk))
	other, err := identity.Generate(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	addr := a.listen(t, tcpAddr)
	ctx := testCtx(t)

	_, err = b.Connect(ctx, addr, other.PeerID())
	require.Error(t, err)
	var de *DialError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, other.PeerID(), de.Peer)
	var he *noise.HandshakeError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, noise.KindIdentityMismatch, he.Kind)

	select {
	case ev := <-b.events.security:
		assert.Equal(t, "identity-mismatch", ev.Kind)
		assert.Equal(t, other.PeerID(), ev.Peer)
	case <-time.After(5 * time.Second):
		t.Fatal("no security event")
	}

	// 隔离期内不再拨号
	assert.True(t, b.IsQuarantined(other.PeerID()))
	_, err = b.Connect(ctx, addr, other.PeerID())
	var ae *AuthFailureError
	require.ErrorAs(t, err, &ae)
	assert.ErrorIs(t, err, ErrQuarantined)
	assert.True(t, noise.IsAuthFailure(err))

	// 其它身份不受影响
	_, err = b.Connect(ctx, addr, a.LocalPeer())
	require.NoError(t, err)

	clk.Add(time.Minute + time.Second)
	assert.False(t, b.IsQuarantined(other.PeerID()))
}

func TestSwarm_DialErrors(t *testing.T) {
	a := newNode(t, DefaultConfig())
	b := newNode(t, DefaultConfig())
	addr := a.listen(t, tcpAddr)
	ctx := testCtx(t)

	_, err := b.Connect(ctx, addr, b.LocalPeer())
	assert.ErrorIs(t, err, ErrDialToSelf)

	_, err = b.Connect(ctx, nil, a.LocalPeer())
	assert.ErrorIs(t, err, ErrNoAddresses)

	_, err = b.Connect(ctx, ma.StringCast("/ip4/127.0.0.1/udp/1"), a.LocalPeer())
	var de *DialError
	require.ErrorAs(t, err, &de)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, transport.ErrNoTransport)

	// 监听后立即关闭，得到一个拒绝连接的端口
	l, err := manet.Listen(ma.StringCast(tcpAddr))
	require.NoError(t, err)
	refused := l.Multiaddr()
	require.NoError(t, l.Close())

	_, err = b.Connect(ctx, refused, a.LocalPeer())
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "dial", te.Op)
	assert.False(t, b.IsQuarantined(a.LocalPeer()))
}

func TestSwarm_ConnectCancelClosesRaw(t *testing.T) {
	b := newNode(t, DefaultConfig())
	other, err := identity.Generate(crypto.KeyTypeEd25519)
	require.NoError(t, err)

	// 接受连接但从不应答
	l, err := manet.Listen(ma.StringCast(tcpAddr))
	require.NoError(t, err)
	defer l.Close()
	accepted := make(chan manet.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)
	start := time.Now()
	_, err = b.Connect(ctx, l.Multiaddr(), other.PeerID())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)

	var peer manet.Conn
	select {
	case peer = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("dial never reached the listener")
	}
	defer peer.Close()

	// 对端很快读到 EOF，不必等协商超时
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err = io.Copy(io.Discard, peer)
	assert.NoError(t, err)

	assert.Empty(t, b.Conns())
	assert.False(t, b.IsQuarantined(other.PeerID()))
}

func TestSwarm_ListenErrors(t *testing.T) {
	a := newNode(t, DefaultConfig())
	assert.ErrorIs(t, a.Listen(), ErrNoAddresses)

	err := a.Listen(ma.StringCast("/ip4/127.0.0.1/udp/0"))
	assert.ErrorIs(t, err, transport.ErrNoTransport)

	// 部分成功即可
	require.NoError(t, a.Listen(ma.StringCast("/ip4/127.0.0.1/udp/0"), ma.StringCast(tcpAddr)))
	assert.Len(t, a.ListenAddrs(), 1)
}

func TestSwarm_Close(t *testing.T) {
	a := newNode(t, DefaultConfig())
	b := newNode(t, DefaultConfig())
	addr := a.listen(t, tcpAddr)
	ctx := testCtx(t)

	_, err := b.Connect(ctx, addr, a.LocalPeer())
	require.NoError(t, err)

	require.NoError(t, a.Close())
	assert.True(t, a.IsClosed())
	assert.Empty(t, a.ListenAddrs())
	assert.Empty(t, a.Conns())

	select {
	case got := <-a.events.listenClosed:
		assert.True(t, got.Equal(addr))
	case <-time.After(5 * time.Second):
		t.Fatal("no ListenClose")
	}
	select {
	case <-b.events.disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("remote did not observe close")
	}

	_, err = a.Connect(ctx, addr, b.LocalPeer())
	assert.ErrorIs(t, err, ErrSwarmClosed)
	assert.ErrorIs(t, a.Listen(ma.StringCast(tcpAddr)), ErrSwarmClosed)
	_, err = a.NewStream(ctx, b.LocalPeer(), "/x")
	assert.ErrorIs(t, err, ErrSwarmClosed)
	assert.NoError(t, a.Close())
}

// corruptingProxy 转发 TCP 字节，置位后翻转下一段从客户端发出的数据的最后一个字节
type corruptingProxy struct {
	ln      net.Listener
	target  string
	corrupt atomic.Bool
}

func newCorruptingProxy(t *testing.T, target ma.Multiaddr) *corruptingProxy {
	t.Helper()
	_, host, err := manet.DialArgs(target)
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := &corruptingProxy{ln: ln, target: host}
	t.Cleanup(func() { _ = ln.Close() })
	go p.serve()
	return p
}

func (p *corruptingProxy) addr() ma.Multiaddr {
	a, err := manet.FromNetAddr(p.ln.Addr())
	if err != nil {
		panic(err)
	}
	return a
}

func (p *corruptingProxy) serve() {
	for {
		client, err := p.ln.Accept()
		if err != nil {
			return
		}
		server, err := net.Dial("tcp", p.target)
		if err != nil {
			_ = client.Close()
			continue
		}
		go func() {
			_, _ = io.Copy(client, server)
			_ = client.Close()
		}()
		go func() {
			buf := make([]byte, 64<<10)
			for {
				n, err := client.Read(buf)
				if n > 0 {
					if p.corrupt.CompareAndSwap(true, false) {
						buf[n-1] ^= 0xff
					}
					if _, werr := server.Write(buf[:n]); werr != nil {
						break
					}
				}
				if err != nil {
					break
				}
			}
			_ = server.Close()
		}()
	}
}

func TestSwarm_DecryptFailureIsSecurityEvent(t *testing.T) {
	a := newNode(t, DefaultConfig())
	b := newNode(t, DefaultConfig())
	a.SetStreamHandler("/echo/1", echo)
	addr := a.listen(t, tcpAddr)
	proxy := newCorruptingProxy(t, addr)
	ctx := testCtx(t)

	_, err := b.Connect(ctx, proxy.addr(), a.LocalPeer())
	require.NoError(t, err)
	select {
	case <-a.events.connected:
	case <-time.After(5 * time.Second):
		t.Fatal("no Connected on responder")
	}

	proxy.corrupt.Store(true)
	if st, err := b.NewStream(ctx, a.LocalPeer(), "/echo/1"); err == nil {
		_, _ = st.Write([]byte("tampered"))
	}

	select {
	case ev := <-a.events.security:
		assert.Equal(t, SecurityEventDecryptFailed, ev.Kind)
		assert.Equal(t, b.LocalPeer(), ev.Peer)
		var de *noise.DecryptError
		assert.ErrorAs(t, ev.Err, &de)
	case <-time.After(5 * time.Second):
		t.Fatal("no decrypt security event")
	}
	select {
	case reason := <-a.events.disconnected:
		var de *noise.DecryptError
		assert.ErrorAs(t, reason, &de)
	case <-time.After(5 * time.Second):
		t.Fatal("no Disconnected after decrypt failure")
	}
}

func TestConfigFromUnified(t *testing.T) {
	cfg := config.NewConfig()
	cfg.ConnMgr.DedupPolicy = config.DedupKeepBoth
	cfg.ConnMgr.AuthFailureQuarantine = config.Duration(5 * time.Second)

	c := ConfigFromUnified(cfg)
	assert.Equal(t, KeepBoth, c.DedupPolicy)
	assert.Equal(t, 5*time.Second, c.AuthFailureQuarantine)
	assert.Equal(t, config.DedupKeepBoth, c.DedupPolicy.String())

	def := DefaultConfig()
	assert.Equal(t, KeepExisting, def.DedupPolicy)
	assert.Equal(t, KeepExisting, ParseDedupPolicy("bogus"))

	n := Config{}.normalize()
	assert.Positive(t, n.DialTimeout)
	assert.Positive(t, n.MaxInboundPending)
}

func TestErrors(t *testing.T) {
	cause := errors.New("boom")
	de := &DialError{Peer: "", Err: cause}
	assert.ErrorIs(t, de, cause)
	assert.Contains(t, de.Error(), "unknown peer")

	ae := &AuthFailureError{Until: time.Unix(0, 0), Err: cause}
	assert.ErrorIs(t, ae, ErrQuarantined)
	assert.ErrorIs(t, ae, cause)
}
