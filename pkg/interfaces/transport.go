package interfaces

//go:generate mockgen -source=transport.go -destination=mocks/transport.go -package=mocks Transport,Listener

import (
	"context"
	"net"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-substrate/pkg/types"
)

// Transport 传输适配器
//
// 以能力集合建模：拨号、监听，产生统一的 RawConn。
type Transport interface {
	// Dial 拨号远端地址
	Dial(ctx context.Context, raddr ma.Multiaddr) (RawConn, error)

	// Listen 在本地地址监听
	Listen(laddr ma.Multiaddr) (Listener, error)

	// CanDial 检查是否支持该地址
	CanDial(addr ma.Multiaddr) bool

	// Protocols 返回处理的 multiaddr 协议名，如 "tcp"、"ws"、"quic-v1"
	Protocols() []string

	// Kind 返回传输类型
	Kind() types.TransportKind

	// Close 关闭传输，释放共享资源
	Close() error
}

// Listener 传输监听器
type Listener interface {
	// Accept 接受下一个原始连接
	Accept() (RawConn, error)

	// Close 停止监听
	Close() error

	// Addr 返回监听的网络地址
	Addr() net.Addr

	// Multiaddr 返回监听的多地址
	Multiaddr() ma.Multiaddr
}

// RawConn 有序字节流形式的原始连接
type RawConn interface {
	net.Conn

	// Kind 返回传输类型
	Kind() types.TransportKind

	// LocalMultiaddr 返回本地多地址
	LocalMultiaddr() ma.Multiaddr

	// RemoteMultiaddr 返回远端多地址
	RemoteMultiaddr() ma.Multiaddr
}

// CertHashProvider 响应方原始连接：在握手扩展中声明本地证书哈希
type CertHashProvider interface {
	LocalCertHashes() [][]byte
}

// CertHashObserver 发起方原始连接：传输层观察到的对端证书哈希
type CertHashObserver interface {
	ObservedCertHashes() [][]byte
}
