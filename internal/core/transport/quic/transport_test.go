package quic

import (
	"bytes"
	"context"
	"crypto/x509"
	"io"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-substrate/internal/core/identity"
	"github.com/dep2p/go-substrate/internal/core/security/noise"
	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/lib/crypto"
	"github.com/dep2p/go-substrate/pkg/types"
)

func newTransport(t *testing.T) *Transport {
	t.Helper()
	tpt, err := New(DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { tpt.Close() })
	return tpt
}

func dialPair(t *testing.T, client, server *Transport) (interfaces.RawConn, interfaces.RawConn) {
	t.Helper()
	l, err := server.Listen(ma.StringCast("/ip4/127.0.0.1/udp/0/quic-v1"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, l.Multiaddr())
	require.NoError(t, err)

	// 对端在收到首个字节后才接受流
	_, err = c.Write([]byte("ping"))
	require.NoError(t, err)

	s, err := l.Accept()
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Close()
		s.Close()
	})

	buf := make([]byte, 4)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))
	return c, s
}

func TestTransport_CanDial(t *testing.T) {
	tpt := newTransport(t)

	assert.True(t, tpt.CanDial(ma.StringCast("/ip4/127.0.0.1/udp/4001/quic-v1")))
	assert.True(t, tpt.CanDial(ma.StringCast("/ip6/::1/udp/4001/quic-v1")))
	assert.False(t, tpt.CanDial(ma.StringCast("/ip4/127.0.0.1/udp/4001")))
	assert.False(t, tpt.CanDial(ma.StringCast("/ip4/127.0.0.1/tcp/4001")))
	assert.Equal(t, []string{"quic-v1"}, tpt.Protocols())
	assert.Equal(t, types.TransportQUIC, tpt.Kind())
}

func TestCertificate(t *testing.T) {
	tpt := newTransport(t)

	der := tpt.cert.tls.Certificate[0]
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	assert.True(t, cert.NotAfter.After(time.Now().Add(13*24*time.Hour)))

	h := tpt.CertHash()
	require.Len(t, h, 34)
	assert.Equal(t, []byte{0x12, 0x20}, h[:2])
	assert.Equal(t, h, CertHash(der))

	// 每个传输生成独立证书
	other := newTransport(t)
	assert.False(t, bytes.Equal(h, other.CertHash()))

	assert.NoError(t, verifyPeerCertificate([][]byte{der}, nil))
	assert.ErrorIs(t, verifyPeerCertificate(nil, nil), ErrNoPeerCertificate)
}

func TestCertificate_Expired(t *testing.T) {
	// 有效期为负，NotAfter 早于当前时间
	cert, err := generateCert(-time.Minute)
	require.NoError(t, err)
	err = verifyPeerCertificate(cert.tls.Certificate, nil)
	assert.ErrorIs(t, err, ErrCertExpired)
}

func TestTransport_DialAndAccept(t *testing.T) {
	client, server := newTransport(t), newTransport(t)
	c, s := dialPair(t, client, server)

	assert.Equal(t, types.TransportQUIC, c.Kind())
	assert.True(t, c.RemoteMultiaddr().Equal(s.LocalMultiaddr()))
	assert.True(t, s.RemoteMultiaddr().Equal(c.LocalMultiaddr()))

	_, err := s.Write([]byte("pong"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(c, buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf))
}

func TestTransport_CertHashes(t *testing.T) {
	client, server := newTransport(t), newTransport(t)
	c, s := dialPair(t, client, server)

	obs, ok := c.(interfaces.CertHashObserver)
	require.True(t, ok)
	assert.Equal(t, [][]byte{server.CertHash()}, obs.ObservedCertHashes())

	prov, ok := s.(interfaces.CertHashProvider)
	require.True(t, ok)
	assert.Equal(t, [][]byte{server.CertHash()}, prov.LocalCertHashes())
}

func TestTransport_NoiseOverQUIC(t *testing.T) {
	client, server := newTransport(t), newTransport(t)
	c, s := dialPair(t, client, server)

	newNoise := func() (*noise.Transport, types.PeerID) {
		id, err := identity.Generate(crypto.KeyTypeEd25519)
		require.NoError(t, err)
		tpt, err := noise.New(id)
		require.NoError(t, err)
		return tpt, id.PeerID()
	}
	ni, _ := newNoise()
	nr, rid := newNoise()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := nr.SecureInbound(ctx, s, "")
		errCh <- err
	}()

	// 响应方声明的证书哈希与发起方观察到的一致
	sc, err := ni.SecureOutbound(ctx, c, rid)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	assert.Equal(t, rid, sc.RemotePeer())
}

func TestConn_RemoteCloseGivesEOF(t *testing.T) {
	client, server := newTransport(t), newTransport(t)
	c, s := dialPair(t, client, server)

	require.NoError(t, c.Close())
	_, err := io.ReadAll(s)
	assert.NoError(t, err)
}

func TestTransport_SharedSocket(t *testing.T) {
	client, server := newTransport(t), newTransport(t)

	cl, err := client.Listen(ma.StringCast("/ip4/127.0.0.1/udp/0/quic-v1"))
	require.NoError(t, err)
	defer cl.Close()

	c, _ := dialPair(t, client, server)

	// 出站连接复用监听端口
	assert.True(t, c.LocalMultiaddr().Equal(cl.Multiaddr()))

	_, err = client.Listen(ma.StringCast("/ip4/127.0.0.1/udp/0/quic-v1"))
	assert.ErrorIs(t, err, ErrAlreadyListening)
}

func TestTransport_Close(t *testing.T) {
	client, server := newTransport(t), newTransport(t)
	c, _ := dialPair(t, client, server)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err := c.Write([]byte("x"))
	assert.Error(t, err)

	_, err = client.Dial(context.Background(), ma.StringCast("/ip4/127.0.0.1/udp/1/quic-v1"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = client.Listen(ma.StringCast("/ip4/127.0.0.1/udp/0/quic-v1"))
	assert.ErrorIs(t, err, ErrClosed)
}
