package swarm

import (
	"errors"
	"fmt"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-substrate/internal/core/transport"
	"github.com/dep2p/go-substrate/pkg/types"
)

var (
	// ErrSwarmClosed Swarm 已关闭
	ErrSwarmClosed = errors.New("swarm closed")

	// ErrNoConnection 没有到该节点的连接
	ErrNoConnection = errors.New("no connection to peer")

	// ErrDialToSelf 尝试拨号自己
	ErrDialToSelf = errors.New("dial to self attempted")

	// ErrNoAddresses 没有可监听或可拨号的地址
	ErrNoAddresses = errors.New("no addresses")

	// ErrConnClosed 连接已关闭或正在关闭
	ErrConnClosed = errors.New("connection closed")

	// ErrDuplicateConn 重复连接按去重策略被关闭
	ErrDuplicateConn = errors.New("duplicate connection")

	// ErrQuarantined 节点因认证失败处于隔离期
	ErrQuarantined = errors.New("peer quarantined after authentication failure")

	// ErrInboundLimit 入站升级并发已满
	ErrInboundLimit = errors.New("too many pending inbound connections")

	// ErrNoProtocols 打开流时未给出协议
	ErrNoProtocols = errors.New("no protocols given")
)

// TransportError 传输适配器失败，调用方可按自己的策略重试
type TransportError = transport.Error

// DialError 拨号失败，携带目标节点与地址
type DialError struct {
	Peer types.PeerID
	Addr ma.Multiaddr
	Err  error
}

func (e *DialError) Error() string {
	target := "unknown peer"
	if !e.Peer.IsEmpty() {
		target = e.Peer.ShortString()
	}
	if e.Addr != nil {
		return fmt.Sprintf("failed to dial %s at %s: %v", target, e.Addr, e.Err)
	}
	return fmt.Sprintf("failed to dial %s: %v", target, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// AuthFailureError 拒绝拨号认证失败过的身份，直到隔离期结束
type AuthFailureError struct {
	Peer  types.PeerID
	Until time.Time
	// Err 最近一次认证失败
	Err error
}

func (e *AuthFailureError) Error() string {
	return fmt.Sprintf("peer %s quarantined until %s: %v",
		e.Peer.ShortString(), e.Until.Format(time.RFC3339), e.Err)
}

// Unwrap 同时暴露 ErrQuarantined 与最近一次失败
func (e *AuthFailureError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrQuarantined}
	}
	return []error{ErrQuarantined, e.Err}
}
