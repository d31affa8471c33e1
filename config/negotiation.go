package config

import (
	"errors"
	"time"
)

// NegotiationConfig 流协议协商配置
type NegotiationConfig struct {
	// Timeout 单个流的协商超时
	Timeout Duration `json:"timeout"`

	// MaxMessageSize 单条协商消息上限（字节）
	MaxMessageSize int `json:"max_message_size"`

	// MaxAttempts 响应方最多处理的提议数
	MaxAttempts int `json:"max_attempts"`
}

// DefaultNegotiationConfig 返回默认协商配置
func DefaultNegotiationConfig() NegotiationConfig {
	return NegotiationConfig{
		Timeout:        Duration(10 * time.Second),
		MaxMessageSize: 1024,
		MaxAttempts:    64,
	}
}

// Validate 验证协商配置
func (c NegotiationConfig) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("negotiation timeout must be positive")
	}
	if c.MaxMessageSize < 64 {
		return errors.New("max message size must be at least 64")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("max attempts must be positive")
	}
	return nil
}
