package protocol

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-substrate/pkg/types"
)

var (
	// ErrNoCommonProtocol 双方没有共同支持的协议
	ErrNoCommonProtocol = errors.New("no common protocol")

	// ErrNegotiationTimeout 协商超时
	ErrNegotiationTimeout = errors.New("protocol negotiation timeout")

	// ErrFrameTooLarge 协商消息超过上限
	ErrFrameTooLarge = errors.New("negotiation message too large")

	// ErrMalformedMessage 协商消息格式错误
	ErrMalformedMessage = errors.New("malformed negotiation message")

	// ErrDuplicateProtocol 协议已注册
	ErrDuplicateProtocol = errors.New("protocol already registered")

	// ErrProtocolNotRegistered 协议未注册
	ErrProtocolNotRegistered = errors.New("protocol not registered")
)

// NegotiationError 协商失败
type NegotiationError struct {
	// Initiator 是否为发起方
	Initiator bool
	// Protocols 发起方提议的协议（响应方为空）
	Protocols []types.ProtocolID
	// Err 底层原因
	Err error
}

func (e *NegotiationError) Error() string {
	role := "responder"
	if e.Initiator {
		role = "initiator"
	}
	if len(e.Protocols) > 0 {
		return fmt.Sprintf("protocol negotiation failed (%s, proposed %v): %v", role, e.Protocols, e.Err)
	}
	return fmt.Sprintf("protocol negotiation failed (%s): %v", role, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }
