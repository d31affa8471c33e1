package upgrader

import (
	"time"

	"github.com/dep2p/go-substrate/config"
)

// Config 升级器配置
type Config struct {
	// NegotiateTimeout 安全协议与回退多路复用器选择的超时
	NegotiateTimeout time.Duration

	// Preferred 多路复用器偏好顺序，未列出的多路复用器不参与协商
	Preferred []string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		NegotiateTimeout: 10 * time.Second,
		Preferred:        []string{config.MuxerDmux, config.MuxerYamux},
	}
}

// ConfigFromUnified 从统一配置创建升级器配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		NegotiateTimeout: cfg.Security.NegotiateTimeout.Duration(),
		Preferred:        append([]string(nil), cfg.Muxer.Preferred...),
	}
}
