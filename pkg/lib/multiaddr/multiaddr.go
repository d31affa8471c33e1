// Package multiaddr 提供 go-multiaddr 之上的地址工具
//
// 传输适配器用 Match 判断地址形状，节点入口用 SplitPeer 拆出 /p2p 后缀。
//
// PeerID 是 32 字节摘要的 Base58 形式，不是 multihash，
// 因此 /p2p/<id> 后缀在字符串层处理，不交给 go-multiaddr 解析。
package multiaddr

import (
	"errors"
	"fmt"
	"net"
	"strings"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-substrate/pkg/types"
)

// p2pSep 节点 ID 后缀分隔
const p2pSep = "/p2p/"

var (
	// ErrEmptyAddr 空地址
	ErrEmptyAddr = errors.New("empty multiaddr")

	// ErrNoPeerID 地址缺少 /p2p 后缀
	ErrNoPeerID = errors.New("multiaddr has no /p2p component")
)

// IP 网络层协议
var IP = []int{ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6}

// Pattern 地址形状：每一段允许的协议码
type Pattern [][]int

var (
	// TCP /ip4/.../tcp/N
	TCP = Pattern{IP, {ma.P_TCP}}

	// WebSocket /ip4/.../tcp/N/ws
	WebSocket = Pattern{IP, {ma.P_TCP}, {ma.P_WS}}

	// QUIC /ip4/.../udp/N/quic-v1
	QUIC = Pattern{IP, {ma.P_UDP}, {ma.P_QUIC_V1}}
)

// Match 检查地址是否完全符合形状
func (p Pattern) Match(addr ma.Multiaddr) bool {
	if addr == nil {
		return false
	}
	protos := addr.Protocols()
	if len(protos) != len(p) {
		return false
	}
	for i, proto := range protos {
		if !contains(p[i], proto.Code) {
			return false
		}
	}
	return true
}

func contains(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// HasProtocol 检查地址是否包含协议
func HasProtocol(addr ma.Multiaddr, code int) bool {
	if addr == nil {
		return false
	}
	for _, p := range addr.Protocols() {
		if p.Code == code {
			return true
		}
	}
	return false
}

// SplitPeer 拆分 "<传输地址>/p2p/<PeerID>"
//
// 没有 /p2p 后缀时返回 ErrNoPeerID 以及解析后的传输地址。
func SplitPeer(s string) (ma.Multiaddr, types.PeerID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, types.EmptyPeerID, ErrEmptyAddr
	}
	i := strings.LastIndex(s, p2pSep)
	if i < 0 {
		addr, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, types.EmptyPeerID, err
		}
		return addr, types.EmptyPeerID, ErrNoPeerID
	}
	addr, err := ma.NewMultiaddr(s[:i])
	if err != nil {
		return nil, types.EmptyPeerID, err
	}
	id, err := types.ParsePeerID(s[i+len(p2pSep):])
	if err != nil {
		return nil, types.EmptyPeerID, fmt.Errorf("peer id in %q: %w", s, err)
	}
	return addr, id, nil
}

// JoinPeer 拼接传输地址与节点 ID
func JoinPeer(addr ma.Multiaddr, id types.PeerID) string {
	if id.IsEmpty() {
		return addr.String()
	}
	return addr.String() + p2pSep + id.String()
}

// FromNetAddr 把网络地址转为多地址，并追加 suffix（如 /ws、/quic-v1）
func FromNetAddr(a net.Addr, suffix string) (ma.Multiaddr, error) {
	m, err := manet.FromNetAddr(a)
	if err != nil {
		return nil, err
	}
	if suffix == "" {
		return m, nil
	}
	s, err := ma.NewMultiaddr(suffix)
	if err != nil {
		return nil, err
	}
	return m.Encapsulate(s), nil
}

// Unique 去重并保持顺序
func Unique(addrs []ma.Multiaddr) []ma.Multiaddr {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]ma.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		k := string(a.Bytes())
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	return out
}

// ParseList 解析地址字符串列表
func ParseList(ss []string) ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, 0, len(ss))
	for _, s := range ss {
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", s, err)
		}
		out = append(out, a)
	}
	return out, nil
}
