package muxer

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamClosed 流已被本地关闭或重置
	ErrStreamClosed = errors.New("dmux: stream closed")

	// ErrConnectionClosed 会话已关闭
	ErrConnectionClosed = errors.New("dmux: connection closed")

	// ErrStreamReset 流被重置，*StreamResetError 可用 errors.Is 匹配
	ErrStreamReset = errors.New("dmux: stream reset")

	// ErrStopSending 对端已停止接收，*StopSendingError 可用 errors.Is 匹配
	ErrStopSending = errors.New("dmux: peer stopped receiving")

	// ErrRemoteGoAway 对端发送了 GoAway，不再接受新流
	ErrRemoteGoAway = errors.New("dmux: remote sent go away")

	// ErrLocalGoAway 本地正在优雅关闭，不再打开新流
	ErrLocalGoAway = errors.New("dmux: session is going away")

	// ErrStreamsExhausted 流 ID 耗尽
	ErrStreamsExhausted = errors.New("dmux: stream ids exhausted")

	// ErrKeepAliveTimeout 保活 Ping 超时
	ErrKeepAliveTimeout = errors.New("dmux: keepalive timeout")

	// ErrProtocol 连接级协议错误，会话随即关闭
	ErrProtocol = errors.New("dmux: protocol error")
)

// 连接级协议错误
var (
	ErrInvalidVersion      = fmt.Errorf("%w: invalid version", ErrProtocol)
	ErrInvalidFrameType    = fmt.Errorf("%w: invalid frame type", ErrProtocol)
	ErrConnWindowExceeded  = fmt.Errorf("%w: connection receive window exceeded", ErrProtocol)
	ErrDuplicateStream     = fmt.Errorf("%w: duplicate stream", ErrProtocol)
	ErrInvalidStreamID     = fmt.Errorf("%w: invalid stream id", ErrProtocol)
	ErrUnexpectedStreamID0 = fmt.Errorf("%w: data on stream 0", ErrProtocol)
)

// StreamResetError 流被重置
type StreamResetError struct {
	// Code 重置错误码
	Code uint32
	// Remote 是否由对端发起
	Remote bool
}

func (e *StreamResetError) Error() string {
	side := "local"
	if e.Remote {
		side = "remote"
	}
	return fmt.Sprintf("dmux: stream reset by %s (code %d)", side, e.Code)
}

// Is 匹配 ErrStreamReset
func (e *StreamResetError) Is(target error) bool { return target == ErrStreamReset }

// StopSendingError 对端发送了 STOP_SENDING
type StopSendingError struct {
	Code uint32
}

func (e *StopSendingError) Error() string {
	return fmt.Sprintf("dmux: peer stopped receiving (code %d)", e.Code)
}

// Is 匹配 ErrStopSending
func (e *StopSendingError) Is(target error) bool { return target == ErrStopSending }
