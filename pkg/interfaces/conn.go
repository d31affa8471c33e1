package interfaces

import (
	"context"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-substrate/pkg/lib/crypto"
	"github.com/dep2p/go-substrate/pkg/types"
)

// Conn 已建立的连接
type Conn interface {
	// ID 返回连接唯一标识
	ID() string

	// LocalPeer 返回本地节点 ID
	LocalPeer() types.PeerID

	// RemotePeer 返回远端节点 ID
	RemotePeer() types.PeerID

	// RemotePublicKey 返回远端公钥
	RemotePublicKey() crypto.PublicKey

	// LocalMultiaddr 返回本地地址
	LocalMultiaddr() ma.Multiaddr

	// RemoteMultiaddr 返回远端地址
	RemoteMultiaddr() ma.Multiaddr

	// Direction 返回连接方向
	Direction() types.Direction

	// Transport 返回传输类型
	Transport() types.TransportKind

	// Muxer 返回协商的多路复用器
	Muxer() string

	// State 返回生命周期状态
	State() types.ConnState

	// Opened 返回建立时间
	Opened() time.Time

	// NewStream 在连接上打开并协商新流
	NewStream(ctx context.Context, protos ...types.ProtocolID) (Stream, error)

	// Close 关闭连接，幂等
	Close() error
}

// Stream 协商完成的流
type Stream interface {
	MuxedStream

	// Protocol 返回协商的协议
	Protocol() types.ProtocolID

	// Conn 返回所属连接
	Conn() Conn
}

// StreamHandler 入站流处理函数
type StreamHandler func(Stream)

// SecurityEvent 安全事件：认证失败、解密失败等，区别于普通断开
type SecurityEvent struct {
	// Peer 相关节点，可能为空（未完成握手）
	Peer types.PeerID

	// Addr 远端地址
	Addr ma.Multiaddr

	// Kind 事件类型，如 "signature-invalid"、"decrypt-failed"
	Kind string

	// Err 原始错误
	Err error

	// Time 发生时间
	Time time.Time
}

// Notifiee 网络事件订阅者
type Notifiee interface {
	Listen(ma.Multiaddr)
	ListenClose(ma.Multiaddr)
	Connected(Conn)
	Disconnected(Conn, error)
	SecurityEvent(SecurityEvent)
}
