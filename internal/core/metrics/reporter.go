package metrics

import (
	"github.com/dep2p/go-substrate/pkg/types"
)

// Reporter 连接与流事件的指标接收方
type Reporter interface {
	// ConnOpened 记录连接建立
	ConnOpened(dir types.Direction, transport types.TransportKind)

	// ConnClosed 记录连接关闭
	ConnClosed(dir types.Direction, transport types.TransportKind)

	// HandshakeFailed 记录握手失败，kind 为失败类型
	HandshakeFailed(kind string)

	// DecryptFailed 记录解密失败导致的连接拆除
	DecryptFailed()

	// StreamOpened 记录协商成功的流
	StreamOpened(dir types.Direction, proto types.ProtocolID)

	// NegotiationFailed 记录协议协商失败
	NegotiationFailed(kind string)
}

// Nop 丢弃所有指标
type Nop struct{}

var _ Reporter = Nop{}

func (Nop) ConnOpened(types.Direction, types.TransportKind) {}
func (Nop) ConnClosed(types.Direction, types.TransportKind) {}
func (Nop) HandshakeFailed(string)                          {}
func (Nop) DecryptFailed()                                  {}
func (Nop) StreamOpened(types.Direction, types.ProtocolID)  {}
func (Nop) NegotiationFailed(string)                        {}
