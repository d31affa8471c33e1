package muxer

import (
	"encoding/binary"
	"fmt"

	"github.com/dep2p/go-substrate/pkg/protocolids"
)

// ID 多路复用协议标识
const ID = string(protocolids.Dmux)

const (
	protoVersion uint8 = 0

	headerSize = 12

	// initialStreamWindow 协议约定的流初始窗口，更大的配置通过 SYN/ACK 帧追加
	initialStreamWindow uint32 = 256 << 10

	// initialConnWindow 协议约定的连接初始窗口，更大的配置通过流 0 的窗口更新追加
	initialConnWindow uint32 = 16 << 20
)

type frameType uint8

const (
	typeData frameType = iota
	typeWindowUpdate
	typePing
	typeGoAway
)

func (t frameType) String() string {
	switch t {
	case typeData:
		return "data"
	case typeWindowUpdate:
		return "window-update"
	case typePing:
		return "ping"
	case typeGoAway:
		return "go-away"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

const (
	flagSYN uint16 = 1 << iota
	flagACK
	flagFIN
	flagRST
	flagStopSending
)

// 流错误码，随 RST 或 STOP_SENDING 发送
const (
	// CodeCancel 应用主动取消（Reset 默认值）
	CodeCancel uint32 = 0
	// CodeFlowControlError 对端超出流接收窗口
	CodeFlowControlError uint32 = 1
	// CodeProtocolError 流级协议错误，例如 FIN 之后收到数据
	CodeProtocolError uint32 = 2
	// CodeRefusedStream 接受队列已满或会话正在关闭
	CodeRefusedStream uint32 = 3
)

// GoAway 错误码
const (
	goAwayNormal uint32 = iota
	goAwayProtocolError
	goAwayInternalError
)

// header 帧头
type header [headerSize]byte

func (h header) Version() uint8 { return h[0] }

func (h header) MsgType() frameType { return frameType(h[1]) }

func (h header) Flags() uint16 { return binary.BigEndian.Uint16(h[2:4]) }

func (h header) StreamID() uint32 { return binary.BigEndian.Uint32(h[4:8]) }

func (h header) Length() uint32 { return binary.BigEndian.Uint32(h[8:12]) }

func (h header) String() string {
	return fmt.Sprintf("Vsn:%d Type:%s Flags:%#x StreamID:%d Length:%d",
		h.Version(), h.MsgType(), h.Flags(), h.StreamID(), h.Length())
}

func encode(t frameType, flags uint16, streamID, length uint32) header {
	var h header
	h[0] = protoVersion
	h[1] = uint8(t)
	binary.BigEndian.PutUint16(h[2:4], flags)
	binary.BigEndian.PutUint32(h[4:8], streamID)
	binary.BigEndian.PutUint32(h[8:12], length)
	return h
}
