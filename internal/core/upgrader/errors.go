package upgrader

import "errors"

var (
	// ErrNoSecurityTransport 没有安全传输
	ErrNoSecurityTransport = errors.New("upgrader: no security transport configured")

	// ErrNoStreamMuxer 没有可用的多路复用器
	ErrNoStreamMuxer = errors.New("upgrader: no stream muxer configured")

	// ErrNegotiationFailed 协商结果不在本地列表中
	ErrNegotiationFailed = errors.New("upgrader: protocol negotiation failed")

	// ErrMuxerUnavailable 早期协商选中的多路复用器本地不可用
	ErrMuxerUnavailable = errors.New("upgrader: selected muxer unavailable")
)
