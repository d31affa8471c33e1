package interfaces

import (
	"context"
	"net"

	"github.com/dep2p/go-substrate/pkg/lib/crypto"
	"github.com/dep2p/go-substrate/pkg/types"
)

// SecureTransport 安全传输
//
// 握手失败时原始连接已被关闭。
type SecureTransport interface {
	// SecureInbound 以响应方身份握手，remotePeer 为空表示接受任意身份
	SecureInbound(ctx context.Context, conn net.Conn, remotePeer types.PeerID) (SecureConn, error)

	// SecureOutbound 以发起方身份握手，remotePeer 非空时校验对端身份
	SecureOutbound(ctx context.Context, conn net.Conn, remotePeer types.PeerID) (SecureConn, error)

	// ID 返回安全协议标识
	ID() types.ProtocolID
}

// SecureConn 加密连接
type SecureConn interface {
	net.Conn

	// LocalPeer 返回本地节点 ID
	LocalPeer() types.PeerID

	// RemotePeer 返回已验证的远端节点 ID
	RemotePeer() types.PeerID

	// RemotePublicKey 返回远端身份公钥
	RemotePublicKey() crypto.PublicKey

	// RemoteMuxers 返回远端在握手扩展中声明的多路复用器
	RemoteMuxers() []string
}
