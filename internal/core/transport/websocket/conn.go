package websocket

import (
	"io"
	"net"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/types"
)

// closeGrace 发送关闭帧的最长等待
const closeGrace = time.Second

// Conn 把 WebSocket 消息流适配为字节流
type Conn struct {
	ws    *ws.Conn
	laddr ma.Multiaddr
	raddr ma.Multiaddr

	readMu sync.Mutex
	reader io.Reader // 当前二进制消息

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
	onClose   func()
}

var _ interfaces.RawConn = (*Conn)(nil)

func newConn(c *ws.Conn, laddr, raddr ma.Multiaddr) *Conn {
	return &Conn{ws: c, laddr: laddr, raddr: raddr}
}

// Read 读取数据，跨消息边界拼接；对端正常关闭时返回 io.EOF
func (c *Conn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			mt, r, err := c.ws.NextReader()
			if err != nil {
				if ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if mt != ws.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write 以一条二进制消息发送 p
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(ws.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close 发送关闭帧后关闭底层连接，幂等
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		msg := ws.FormatCloseMessage(ws.CloseNormalClosure, "")
		_ = c.ws.WriteControl(ws.CloseMessage, msg, time.Now().Add(closeGrace))
		c.closeErr = c.ws.Close()
		if c.onClose != nil {
			c.onClose()
		}
	})
	return c.closeErr
}

// LocalAddr 返回本地网络地址
func (c *Conn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

// RemoteAddr 返回远端网络地址
func (c *Conn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

// SetDeadline 同时设置读写截止时间
func (c *Conn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

// SetReadDeadline 设置读截止时间
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

// SetWriteDeadline 设置写截止时间
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}

// Kind 返回传输类型
func (c *Conn) Kind() types.TransportKind {
	return types.TransportWebSocket
}

// LocalMultiaddr 返回本地多地址
func (c *Conn) LocalMultiaddr() ma.Multiaddr {
	return c.laddr
}

// RemoteMultiaddr 返回远端多地址
func (c *Conn) RemoteMultiaddr() ma.Multiaddr {
	return c.raddr
}
