package protocolids

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dep2p/go-substrate/pkg/types"
)

// 升级阶段协议
const (
	// Multistream 协议协商头
	Multistream types.ProtocolID = "/multistream/1.0.0"

	// Noise Noise XX 安全通道
	Noise types.ProtocolID = "/noise"

	// Dmux 内置多路复用
	Dmux types.ProtocolID = "/dmux/1.0.0"

	// Yamux yamux 多路复用
	Yamux types.ProtocolID = "/yamux/1.0.0"
)

// 内置服务协议
const (
	// Ping 回显延迟测量
	Ping types.ProtocolID = "/ping/1"
)

// MaxLength 协议 ID 最大字节数，加上换行后不超过单个协商帧
const MaxLength = 1023

var (
	// ErrInvalidProtocolID 协议 ID 格式错误
	ErrInvalidProtocolID = errors.New("invalid protocol ID")

	// ErrReservedProtocolID 保留协议 ID
	ErrReservedProtocolID = errors.New("reserved protocol ID")
)

var reserved = map[types.ProtocolID]struct{}{
	Multistream: {},
	Noise:       {},
	Dmux:        {},
	Yamux:       {},
}

// IsReserved 是否为升级阶段使用的保留 ID
func IsReserved(p types.ProtocolID) bool {
	_, ok := reserved[p]
	return ok
}

// Validate 检查应用可注册的协议 ID
//
// 要求以 '/' 开头、是合法 UTF-8、不含换行且不超过 MaxLength。
func Validate(p types.ProtocolID) error {
	s := string(p)
	switch {
	case s == "":
		return types.ErrEmptyProtocolID
	case len(s) > MaxLength:
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidProtocolID, len(s), MaxLength)
	case !strings.HasPrefix(s, "/"):
		return fmt.Errorf("%w: %q must start with '/'", ErrInvalidProtocolID, s)
	case !utf8.ValidString(s), strings.ContainsAny(s, "\n\r"):
		return fmt.Errorf("%w: %q", ErrInvalidProtocolID, s)
	case IsReserved(p):
		return fmt.Errorf("%w: %s", ErrReservedProtocolID, s)
	}
	return nil
}
