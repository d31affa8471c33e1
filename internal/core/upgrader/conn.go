package upgrader

import (
	"context"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/lib/crypto"
	"github.com/dep2p/go-substrate/pkg/types"
)

// Conn 升级后的连接：安全连接 + 多路复用会话
type Conn struct {
	interfaces.MuxedConn

	raw    interfaces.RawConn
	secure interfaces.SecureConn

	security types.ProtocolID
	muxer    string
	early    bool
	dir      types.Direction
}

// LocalPeer 返回本地节点 ID
func (c *Conn) LocalPeer() types.PeerID { return c.secure.LocalPeer() }

// RemotePeer 返回握手验证过的远端节点 ID
func (c *Conn) RemotePeer() types.PeerID { return c.secure.RemotePeer() }

// RemotePublicKey 返回远端身份公钥
func (c *Conn) RemotePublicKey() crypto.PublicKey { return c.secure.RemotePublicKey() }

// LocalMultiaddr 返回本地地址
func (c *Conn) LocalMultiaddr() ma.Multiaddr { return c.raw.LocalMultiaddr() }

// RemoteMultiaddr 返回远端地址
func (c *Conn) RemoteMultiaddr() ma.Multiaddr { return c.raw.RemoteMultiaddr() }

// Transport 返回传输类型
func (c *Conn) Transport() types.TransportKind { return c.raw.Kind() }

// Direction 返回连接方向
func (c *Conn) Direction() types.Direction { return c.dir }

// Security 返回协商的安全协议
func (c *Conn) Security() types.ProtocolID { return c.security }

// Muxer 返回协商的多路复用器
func (c *Conn) Muxer() string { return c.muxer }

// EarlyMuxer 多路复用器是否由握手扩展直接选出
func (c *Conn) EarlyMuxer() bool { return c.early }

// SecureConn 返回底层安全连接
func (c *Conn) SecureConn() interfaces.SecureConn { return c.secure }

// CloseGracefully 会话支持时等待已有流结束，否则直接关闭
func (c *Conn) CloseGracefully(ctx context.Context) error {
	if g, ok := c.MuxedConn.(interfaces.GracefulCloser); ok {
		return g.CloseGracefully(ctx)
	}
	return c.MuxedConn.Close()
}
