package swarm

import (
	"time"

	"github.com/dep2p/go-substrate/config"
)

// DedupPolicy 重复连接处理策略
type DedupPolicy int

const (
	// KeepExisting 保留已有连接，新完成的重复连接被关闭
	KeepExisting DedupPolicy = iota
	// KeepBoth 两条连接都保留
	KeepBoth
)

// String 返回配置文件中的取值
func (p DedupPolicy) String() string {
	if p == KeepBoth {
		return config.DedupKeepBoth
	}
	return config.DedupKeepExisting
}

// ParseDedupPolicy 解析去重策略，未知值按 KeepExisting 处理
func ParseDedupPolicy(s string) DedupPolicy {
	if s == config.DedupKeepBoth {
		return KeepBoth
	}
	return KeepExisting
}

// Config Swarm 配置
type Config struct {
	// DedupPolicy 重复连接策略
	DedupPolicy DedupPolicy

	// DialTimeout 拨号加升级的总超时
	DialTimeout time.Duration

	// AcceptTimeout 入站升级超时
	AcceptTimeout time.Duration

	// AuthFailureQuarantine 认证失败后拒绝拨号同一身份的时长，0 表示不隔离
	AuthFailureQuarantine time.Duration

	// AuthFailureCacheSize 认证失败记录容量
	AuthFailureCacheSize int

	// MaxInboundPending 同时升级中的入站连接上限
	MaxInboundPending int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(nil)
}

// ConfigFromUnified 从统一配置创建 Swarm 配置
func ConfigFromUnified(cfg *config.Config) Config {
	cm := config.DefaultConnMgrConfig()
	if cfg != nil {
		cm = cfg.ConnMgr
	}
	return Config{
		DedupPolicy:           ParseDedupPolicy(cm.DedupPolicy),
		DialTimeout:           cm.DialTimeout.Duration(),
		AcceptTimeout:         cm.AcceptTimeout.Duration(),
		AuthFailureQuarantine: cm.AuthFailureQuarantine.Duration(),
		AuthFailureCacheSize:  cm.AuthFailureCacheSize,
		MaxInboundPending:     cm.MaxInboundPending,
	}
}

func (c Config) normalize() Config {
	def := ConfigFromUnified(nil)
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.AcceptTimeout <= 0 {
		c.AcceptTimeout = def.AcceptTimeout
	}
	if c.AuthFailureCacheSize <= 0 {
		c.AuthFailureCacheSize = def.AuthFailureCacheSize
	}
	if c.MaxInboundPending <= 0 {
		c.MaxInboundPending = def.MaxInboundPending
	}
	return c
}
