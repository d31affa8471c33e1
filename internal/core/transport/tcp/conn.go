package tcp

import (
	"sync"

	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/types"
)

// Conn TCP 原始连接
type Conn struct {
	manet.Conn

	transport *Transport
	closeOnce sync.Once
	closeErr  error
}

var _ interfaces.RawConn = (*Conn)(nil)

// Kind 返回传输类型
func (c *Conn) Kind() types.TransportKind {
	return types.TransportTCP
}

// Close 关闭连接，幂等
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
		c.transport.untrackConn(c)
	})
	return c.closeErr
}
