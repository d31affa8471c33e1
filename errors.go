package substrate

import (
	"errors"

	"github.com/dep2p/go-substrate/internal/core/muxer"
	"github.com/dep2p/go-substrate/internal/core/protocol"
	"github.com/dep2p/go-substrate/internal/core/security/noise"
	"github.com/dep2p/go-substrate/internal/core/swarm"
)

// 节点错误
var (
	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("node closed")
)

// 连接管理错误
var (
	ErrNoConnection = swarm.ErrNoConnection
	ErrDialToSelf   = swarm.ErrDialToSelf
	ErrQuarantined  = swarm.ErrQuarantined
	ErrSwarmClosed  = swarm.ErrSwarmClosed
)

// 握手错误哨兵，可与 errors.Is 一起使用
var (
	ErrHandshakeTimeout     = noise.ErrHandshakeTimeout
	ErrSignatureInvalid     = noise.ErrSignatureInvalid
	ErrIdentityMismatch     = noise.ErrIdentityMismatch
	ErrCertHashMismatch     = noise.ErrCertHashMismatch
	ErrAuthenticationFailed = noise.ErrAuthenticationFailed
)

// 流与协商错误
var (
	ErrStreamClosed       = muxer.ErrStreamClosed
	ErrStreamReset        = muxer.ErrStreamReset
	ErrNoCommonProtocol   = protocol.ErrNoCommonProtocol
	ErrNegotiationTimeout = protocol.ErrNegotiationTimeout
	ErrFrameTooLarge      = protocol.ErrFrameTooLarge
)

// 错误类型
type (
	// TransportError 传输层失败，可按调用方策略重试
	TransportError = swarm.TransportError
	// DialError 拨号失败
	DialError = swarm.DialError
	// AuthFailureError 目标身份处于认证失败隔离期
	AuthFailureError = swarm.AuthFailureError
	// HandshakeError Noise 握手失败，不会自动重试
	HandshakeError = noise.HandshakeError
	// DecryptError 已建立通道上的解密失败
	DecryptError = noise.DecryptError
	// NegotiationError 协议协商失败，只影响单条流
	NegotiationError = protocol.NegotiationError
)
