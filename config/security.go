package config

import (
	"errors"
	"time"
)

// SecurityConfig 安全通道配置
type SecurityConfig struct {
	// NegotiateTimeout 安全协议选择（multistream）超时
	NegotiateTimeout Duration `json:"negotiate_timeout"`

	// Noise Noise 配置
	Noise NoiseConfig `json:"noise"`
}

// NoiseConfig Noise 配置
type NoiseConfig struct {
	// HandshakeTimeout 握手超时，覆盖三条握手消息
	HandshakeTimeout Duration `json:"handshake_timeout"`

	// EarlyMuxerNegotiation 在握手扩展中携带多路复用器列表
	EarlyMuxerNegotiation bool `json:"early_muxer_negotiation"`
}

// DefaultSecurityConfig 返回默认安全配置
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		NegotiateTimeout: Duration(10 * time.Second),
		Noise: NoiseConfig{
			HandshakeTimeout:      Duration(15 * time.Second),
			EarlyMuxerNegotiation: true,
		},
	}
}

// Validate 验证安全配置
func (c SecurityConfig) Validate() error {
	if c.NegotiateTimeout <= 0 {
		return errors.New("negotiate timeout must be positive")
	}
	if c.Noise.HandshakeTimeout <= 0 {
		return errors.New("noise handshake timeout must be positive")
	}
	return nil
}
