package quic

import (
	"errors"
	"io"
	"net"
	"sync"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-substrate/pkg/interfaces"
	maddr "github.com/dep2p/go-substrate/pkg/lib/multiaddr"
	"github.com/dep2p/go-substrate/pkg/types"
)

// 应用层关闭码
const (
	errCodeNone     quic.ApplicationErrorCode = 0
	errCodeProtocol quic.ApplicationErrorCode = 1
)

// Conn 单流 QUIC 原始连接
type Conn struct {
	quic.Stream

	qconn quic.Connection
	laddr ma.Multiaddr
	raddr ma.Multiaddr

	closeOnce sync.Once
	closeErr  error
}

var _ interfaces.RawConn = (*Conn)(nil)

func newConn(qconn quic.Connection, str quic.Stream) (*Conn, error) {
	laddr, err := maddr.FromNetAddr(qconn.LocalAddr(), "/quic-v1")
	if err != nil {
		_ = qconn.CloseWithError(errCodeProtocol, "bad address")
		return nil, err
	}
	raddr, err := maddr.FromNetAddr(qconn.RemoteAddr(), "/quic-v1")
	if err != nil {
		_ = qconn.CloseWithError(errCodeProtocol, "bad address")
		return nil, err
	}
	return &Conn{Stream: str, qconn: qconn, laddr: laddr, raddr: raddr}, nil
}

// Read 读取数据；对端以 0 码关闭连接视为 io.EOF
func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.Stream.Read(p)
	if err != nil && isRemoteClose(err) {
		err = io.EOF
	}
	return n, err
}

// CloseWrite 发送 FIN，半关闭写方向
func (c *Conn) CloseWrite() error {
	return c.Stream.Close()
}

// Close 关闭流与 QUIC 连接，幂等
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.Stream.Close()
		c.closeErr = c.qconn.CloseWithError(errCodeNone, "")
	})
	return c.closeErr
}

// LocalAddr 返回本地 UDP 地址
func (c *Conn) LocalAddr() net.Addr {
	return c.qconn.LocalAddr()
}

// RemoteAddr 返回远端 UDP 地址
func (c *Conn) RemoteAddr() net.Addr {
	return c.qconn.RemoteAddr()
}

// Kind 返回传输类型
func (c *Conn) Kind() types.TransportKind {
	return types.TransportQUIC
}

// LocalMultiaddr 返回本地多地址
func (c *Conn) LocalMultiaddr() ma.Multiaddr {
	return c.laddr
}

// RemoteMultiaddr 返回远端多地址
func (c *Conn) RemoteMultiaddr() ma.Multiaddr {
	return c.raddr
}

func isRemoteClose(err error) bool {
	var appErr *quic.ApplicationError
	return errors.As(err, &appErr) && appErr.Remote && appErr.ErrorCode == errCodeNone
}

// outboundConn 发起方连接，携带观察到的对端证书哈希
type outboundConn struct {
	*Conn
	observed [][]byte
}

var _ interfaces.CertHashObserver = (*outboundConn)(nil)

// ObservedCertHashes 返回 TLS 握手中观察到的对端证书哈希
func (c *outboundConn) ObservedCertHashes() [][]byte {
	return c.observed
}

// inboundConn 响应方连接，声明本地证书哈希
type inboundConn struct {
	*Conn
	local [][]byte
}

var _ interfaces.CertHashProvider = (*inboundConn)(nil)

// LocalCertHashes 返回本地证书哈希
func (c *inboundConn) LocalCertHashes() [][]byte {
	return c.local
}
