// Package webrtc 定义数据通道流帧的 wire format
//
//	message Message {
//	    enum Flag {
//	        FIN          = 0;
//	        STOP_SENDING = 1;
//	        RESET_STREAM = 2;
//	        FIN_ACK      = 3;
//	    }
//	    optional Flag   flag       = 1;
//	    optional bytes  message    = 2;
//	    optional uint32 error_code = 3;
//	}
//
// flag 与 message 均可选，一帧可以只携带控制标志或只携带数据。
package webrtc

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrInvalidMessage 无效的消息编码
var ErrInvalidMessage = errors.New("invalid data channel message")

// Flag 控制标志
type Flag int32

const (
	// FlagFIN 发送方不再发送数据
	FlagFIN Flag = 0
	// FlagStopSending 接收方请求发送方停止
	FlagStopSending Flag = 1
	// FlagResetStream 双向中止
	FlagResetStream Flag = 2
	// FlagFINAck 确认收到 FIN
	FlagFINAck Flag = 3
)

// String 返回标志名称
func (f Flag) String() string {
	switch f {
	case FlagFIN:
		return "FIN"
	case FlagStopSending:
		return "STOP_SENDING"
	case FlagResetStream:
		return "RESET_STREAM"
	case FlagFINAck:
		return "FIN_ACK"
	default:
		return fmt.Sprintf("Flag(%d)", int32(f))
	}
}

const (
	fieldFlag      protowire.Number = 1
	fieldMessage   protowire.Number = 2
	fieldErrorCode protowire.Number = 3
)

// Message 数据通道帧
type Message struct {
	Flag      *Flag
	Message   []byte
	ErrorCode *uint32
}

// FlagPtr 返回 f 的指针
func FlagPtr(f Flag) *Flag { return &f }

// Marshal 序列化
func (m *Message) Marshal() []byte {
	b := make([]byte, 0, len(m.Message)+12)
	if m.Flag != nil {
		b = protowire.AppendTag(b, fieldFlag, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*m.Flag))
	}
	if m.Message != nil {
		b = protowire.AppendTag(b, fieldMessage, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Message)
	}
	if m.ErrorCode != nil {
		b = protowire.AppendTag(b, fieldErrorCode, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*m.ErrorCode))
	}
	return b
}

// Unmarshal 反序列化
func (m *Message) Unmarshal(b []byte) error {
	*m = Message{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldFlag && typ == protowire.VarintType:
			v, m2 := protowire.ConsumeVarint(b)
			if m2 < 0 {
				return fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(m2))
			}
			f := Flag(int32(v))
			m.Flag = &f
			n = m2
		case num == fieldMessage && typ == protowire.BytesType:
			v, m2 := protowire.ConsumeBytes(b)
			if m2 < 0 {
				return fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(m2))
			}
			m.Message = append([]byte{}, v...)
			n = m2
		case num == fieldErrorCode && typ == protowire.VarintType:
			v, m2 := protowire.ConsumeVarint(b)
			if m2 < 0 {
				return fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(m2))
			}
			code := uint32(v)
			m.ErrorCode = &code
			n = m2
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return nil
}
