package substrate

import (
	"fmt"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/internal/core/swarm"
	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/types"
)

// 公共类型
type (
	PeerID        = types.PeerID
	ProtocolID    = types.ProtocolID
	Conn          = interfaces.Conn
	Stream        = interfaces.Stream
	StreamHandler = interfaces.StreamHandler
	Notifiee      = interfaces.Notifiee
	SecurityEvent = interfaces.SecurityEvent

	// NotifyBundle 用函数字段实现 Notifiee
	NotifyBundle = swarm.NotifyBundle
)

// DedupPolicy 重复连接策略
type DedupPolicy = swarm.DedupPolicy

const (
	// KeepExisting 保留已有连接（默认）
	KeepExisting = swarm.KeepExisting
	// KeepBoth 两条连接都保留
	KeepBoth = swarm.KeepBoth
)

// ParseDedupPolicy 解析 "keep-existing" 或 "keep-both"
func ParseDedupPolicy(s string) (DedupPolicy, error) {
	switch s {
	case config.DedupKeepExisting:
		return KeepExisting, nil
	case config.DedupKeepBoth:
		return KeepBoth, nil
	}
	return KeepExisting, fmt.Errorf("unknown dedup policy %q", s)
}
