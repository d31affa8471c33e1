package interfaces

import (
	"context"
	"net"
	"time"

	"github.com/dep2p/go-substrate/pkg/types"
)

// StreamMuxer 流多路复用器
type StreamMuxer interface {
	// NewConn 在加密连接上创建多路复用会话
	NewConn(conn net.Conn, isServer bool) (MuxedConn, error)

	// ID 返回多路复用协议标识
	ID() string
}

// MuxedConn 多路复用会话
type MuxedConn interface {
	// OpenStream 打开新流，不等待对端确认
	OpenStream(ctx context.Context) (MuxedStream, error)

	// AcceptStream 按收到顺序返回对端打开的流
	AcceptStream(ctx context.Context) (MuxedStream, error)

	// Close 重置所有流并关闭底层连接
	Close() error

	// IsClosed 检查会话是否已关闭
	IsClosed() bool

	// CloseChan 会话关闭时关闭的通道
	CloseChan() <-chan struct{}

	// CloseErr 返回导致会话关闭的原因
	CloseErr() error
}

// GracefulCloser 支持优雅关闭的会话：拒绝新流，等待已有流结束
type GracefulCloser interface {
	CloseGracefully(ctx context.Context) error
}

// MuxedStream 多路复用流
type MuxedStream interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)

	// Close 关闭写端并停止接收
	Close() error

	// CloseWrite 发送 FIN
	CloseWrite() error

	// CloseRead 发送 STOP_SENDING，丢弃后续入站数据
	CloseRead() error

	// Reset 以默认错误码发送 RESET_STREAM
	Reset() error

	// ResetWithError 以指定错误码发送 RESET_STREAM
	ResetWithError(code uint32) error

	// ID 返回流 ID
	ID() uint64

	// State 返回流状态
	State() types.StreamState

	// Done 流两个方向都结束、被重置或会话关闭后关闭
	Done() <-chan struct{}

	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}
