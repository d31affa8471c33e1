package types

import (
	"bytes"
	"strings"

	"github.com/mr-tron/base58"
)

// ============================================================================
//                              PeerID - 节点标识
// ============================================================================

// PeerID 节点唯一标识符
//
// 由公钥派生：Base58(SHA256(protobuf 编码的公钥))。
// 一经计算不可变，用作连接去重与握手身份校验的键。
type PeerID string

// EmptyPeerID 空节点 ID
const EmptyPeerID PeerID = ""

// PeerIDLen 解码后的 PeerID 字节长度
const PeerIDLen = 32

// String 返回 PeerID 的 Base58 字符串
func (p PeerID) String() string {
	return string(p)
}

// ShortString 返回前 8 个字符，用于日志
func (p PeerID) ShortString() string {
	s := string(p)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// IsEmpty 检查 PeerID 是否为空
func (p PeerID) IsEmpty() bool {
	return p == EmptyPeerID
}

// Bytes 返回解码后的原始字节，解码失败返回 nil
func (p PeerID) Bytes() []byte {
	b, err := base58.Decode(string(p))
	if err != nil {
		return nil
	}
	return b
}

// Validate 校验 PeerID 格式
func (p PeerID) Validate() error {
	if p.IsEmpty() {
		return ErrEmptyPeerID
	}
	b, err := base58.Decode(string(p))
	if err != nil || len(b) != PeerIDLen {
		return ErrInvalidPeerID
	}
	return nil
}

// Less 按解码后的字节序比较
//
// 用于同时打开（simultaneous open）时的确定性裁决，两端得出相同结果。
func (p PeerID) Less(other PeerID) bool {
	a, b := p.Bytes(), other.Bytes()
	if a == nil || b == nil {
		return string(p) < string(other)
	}
	return bytes.Compare(a, b) < 0
}

// PeerIDFromBytes 从 32 字节摘要构造 PeerID
func PeerIDFromBytes(b []byte) (PeerID, error) {
	if len(b) != PeerIDLen {
		return EmptyPeerID, ErrInvalidPeerID
	}
	return PeerID(base58.Encode(b)), nil
}

// ParsePeerID 从字符串解析 PeerID
func ParsePeerID(s string) (PeerID, error) {
	id := PeerID(strings.TrimSpace(s))
	if err := id.Validate(); err != nil {
		return EmptyPeerID, err
	}
	return id, nil
}

// ============================================================================
//                              ProtocolID - 协议标识
// ============================================================================

// ProtocolID 协议标识符
// 格式: /name/version，如 /ping/1
type ProtocolID string

// String 返回协议ID字符串
func (p ProtocolID) String() string {
	return string(p)
}

// ProtocolIDs 转换为字符串切片
func ProtocolIDs(ps []ProtocolID) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}
