package config

import (
	"errors"
	"time"
)

// TransportConfig 传输层配置
type TransportConfig struct {
	// ListenAddrs 监听地址（multiaddr）
	ListenAddrs []string `json:"listen_addrs"`

	// TCP 配置
	EnableTCP bool `json:"enable_tcp"`

	// QUIC 配置
	EnableQUIC bool       `json:"enable_quic"`
	QUIC       QUICConfig `json:"quic"`

	// WebSocket 配置
	EnableWebSocket bool            `json:"enable_websocket"`
	WebSocket       WebSocketConfig `json:"websocket"`

	// DialTimeout 建立原始连接的超时
	DialTimeout Duration `json:"dial_timeout"`
}

// QUICConfig QUIC 传输配置
type QUICConfig struct {
	// MaxIdleTimeout 最大空闲超时
	MaxIdleTimeout Duration `json:"max_idle_timeout"`

	// KeepAlivePeriod KeepAlive 周期，0 表示关闭
	KeepAlivePeriod Duration `json:"keep_alive_period"`

	// CertValidity 自签名证书有效期
	CertValidity Duration `json:"cert_validity"`
}

// WebSocketConfig WebSocket 传输配置
type WebSocketConfig struct {
	// Path HTTP 升级路径
	Path string `json:"path"`

	// HandshakeTimeout HTTP 升级超时
	HandshakeTimeout Duration `json:"handshake_timeout"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ListenAddrs: []string{
			"/ip4/0.0.0.0/tcp/0",
			"/ip4/0.0.0.0/udp/0/quic-v1",
		},
		EnableTCP:  true,
		EnableQUIC: true,
		QUIC: QUICConfig{
			MaxIdleTimeout:  Duration(30 * time.Second),
			KeepAlivePeriod: Duration(15 * time.Second),
			CertValidity:    Duration(14 * 24 * time.Hour),
		},
		EnableWebSocket: true,
		WebSocket: WebSocketConfig{
			Path:             "/",
			HandshakeTimeout: Duration(10 * time.Second),
		},
		DialTimeout: Duration(10 * time.Second),
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	if !c.EnableTCP && !c.EnableQUIC && !c.EnableWebSocket {
		return errors.New("at least one transport must be enabled")
	}
	if c.DialTimeout <= 0 {
		return errors.New("dial timeout must be positive")
	}
	if c.EnableQUIC && c.QUIC.MaxIdleTimeout <= 0 {
		return errors.New("quic max idle timeout must be positive")
	}
	if c.EnableWebSocket && c.WebSocket.Path == "" {
		return errors.New("websocket path must not be empty")
	}
	return nil
}
