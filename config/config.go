// Package config 提供统一的配置管理
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义，
// 支持 JSON 加载与保存。各组件通过 fx 注入 *Config 并从中派生自己的参数。
//
//	cfg := config.NewConfig()
//	cfg.Muxer.InitialStreamWindow = 512 << 10
//
//	cfg, err := config.LoadFile("substrate.json")
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Config 完整配置
type Config struct {
	// Identity 身份配置
	Identity IdentityConfig `json:"identity"`

	// Security 安全通道配置
	Security SecurityConfig `json:"security"`

	// Muxer 多路复用配置
	Muxer MuxerConfig `json:"muxer"`

	// Negotiation 协议协商配置
	Negotiation NegotiationConfig `json:"negotiation"`

	// ConnMgr 连接管理配置
	ConnMgr ConnMgrConfig `json:"conn_mgr"`

	// Transport 传输层配置
	Transport TransportConfig `json:"transport"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`
}

// NewConfig 返回默认配置
func NewConfig() *Config {
	return &Config{
		Identity:    DefaultIdentityConfig(),
		Security:    DefaultSecurityConfig(),
		Muxer:       DefaultMuxerConfig(),
		Negotiation: DefaultNegotiationConfig(),
		ConnMgr:     DefaultConnMgrConfig(),
		Transport:   DefaultTransportConfig(),
		Metrics:     DefaultMetricsConfig(),
	}
}

// Validate 验证所有子配置
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	checks := []struct {
		name string
		fn   func() error
	}{
		{"identity", c.Identity.Validate},
		{"security", c.Security.Validate},
		{"muxer", c.Muxer.Validate},
		{"negotiation", c.Negotiation.Validate},
		{"conn_mgr", c.ConnMgr.Validate},
		{"transport", c.Transport.Validate},
	}
	for _, chk := range checks {
		if err := chk.fn(); err != nil {
			return fmt.Errorf("%s: %w", chk.name, err)
		}
	}
	return nil
}

// FromJSON 在默认配置之上解析 JSON
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile 从文件加载配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return FromJSON(data)
}

// ToJSON 序列化为缩进 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
