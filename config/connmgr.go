package config

import (
	"errors"
	"time"
)

// 去重策略
const (
	// DedupKeepExisting 保留已有连接，丢弃新完成的重复连接（默认）
	DedupKeepExisting = "keep-existing"
	// DedupKeepBoth 两条连接都保留，直到显式关闭
	DedupKeepBoth = "keep-both"
)

// ConnMgrConfig 连接管理配置
type ConnMgrConfig struct {
	// DedupPolicy 重复连接处理策略
	DedupPolicy string `json:"dedup_policy"`

	// DialTimeout 拨号 + 升级的总超时
	DialTimeout Duration `json:"dial_timeout"`

	// AcceptTimeout 入站连接升级超时
	AcceptTimeout Duration `json:"accept_timeout"`

	// AuthFailureQuarantine 认证失败后拒绝再次拨号该身份的时长
	AuthFailureQuarantine Duration `json:"auth_failure_quarantine"`

	// AuthFailureCacheSize 认证失败记录缓存容量
	AuthFailureCacheSize int `json:"auth_failure_cache_size"`

	// MaxInboundPending 同时进行中的入站升级上限
	MaxInboundPending int `json:"max_inbound_pending"`
}

// DefaultConnMgrConfig 返回默认连接管理配置
func DefaultConnMgrConfig() ConnMgrConfig {
	return ConnMgrConfig{
		DedupPolicy:           DedupKeepExisting,
		DialTimeout:           Duration(30 * time.Second),
		AcceptTimeout:         Duration(30 * time.Second),
		AuthFailureQuarantine: Duration(time.Minute),
		AuthFailureCacheSize:  1024,
		MaxInboundPending:     128,
	}
}

// Validate 验证连接管理配置
func (c ConnMgrConfig) Validate() error {
	switch c.DedupPolicy {
	case DedupKeepExisting, DedupKeepBoth:
	default:
		return errors.New("dedup policy must be keep-existing or keep-both")
	}
	if c.DialTimeout <= 0 || c.AcceptTimeout <= 0 {
		return errors.New("dial and accept timeouts must be positive")
	}
	if c.AuthFailureQuarantine < 0 {
		return errors.New("auth failure quarantine must not be negative")
	}
	if c.AuthFailureCacheSize <= 0 {
		return errors.New("auth failure cache size must be positive")
	}
	if c.MaxInboundPending <= 0 {
		return errors.New("max inbound pending must be positive")
	}
	return nil
}
