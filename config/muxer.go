package config

import (
	"errors"
	"time"
)

// 多路复用协议 ID
const (
	MuxerDmux  = "/dmux/1.0.0"
	MuxerYamux = "/yamux/1.0.0"
)

// MuxerConfig 多路复用配置
type MuxerConfig struct {
	// Preferred 按偏好排序的多路复用器
	Preferred []string `json:"preferred"`

	// InitialStreamWindow 每流初始接收窗口（字节）
	InitialStreamWindow uint32 `json:"initial_stream_window"`

	// ConnectionWindow 连接级聚合接收窗口（字节）
	ConnectionWindow uint32 `json:"connection_window"`

	// MaxFrameSize 单个数据帧最大负载
	MaxFrameSize uint32 `json:"max_frame_size"`

	// AcceptBacklog 未被 Accept 的入站流上限，超出时重置新流
	AcceptBacklog int `json:"accept_backlog"`

	// EnableKeepAlive 是否发送保活 Ping
	EnableKeepAlive bool `json:"enable_keep_alive"`

	// KeepAliveInterval 保活间隔
	KeepAliveInterval Duration `json:"keep_alive_interval"`

	// WriteTimeout 帧写入底层连接的超时
	WriteTimeout Duration `json:"write_timeout"`
}

// DefaultMuxerConfig 返回默认多路复用配置
func DefaultMuxerConfig() MuxerConfig {
	return MuxerConfig{
		Preferred:           []string{MuxerDmux, MuxerYamux},
		InitialStreamWindow: 256 << 10,
		ConnectionWindow:    16 << 20,
		MaxFrameSize:        64 << 10,
		AcceptBacklog:       256,
		EnableKeepAlive:     true,
		KeepAliveInterval:   Duration(30 * time.Second),
		WriteTimeout:        Duration(10 * time.Second),
	}
}

// Validate 验证多路复用配置
func (c MuxerConfig) Validate() error {
	if len(c.Preferred) == 0 {
		return errors.New("at least one muxer is required")
	}
	for _, id := range c.Preferred {
		if id != MuxerDmux && id != MuxerYamux {
			return errors.New("unknown muxer: " + id)
		}
	}
	if c.InitialStreamWindow == 0 {
		return errors.New("initial stream window must be positive")
	}
	if c.ConnectionWindow < c.InitialStreamWindow {
		return errors.New("connection window must not be smaller than stream window")
	}
	if c.MaxFrameSize == 0 {
		return errors.New("max frame size must be positive")
	}
	if c.AcceptBacklog <= 0 {
		return errors.New("accept backlog must be positive")
	}
	if c.EnableKeepAlive && c.KeepAliveInterval <= 0 {
		return errors.New("keep alive interval must be positive")
	}
	return nil
}
