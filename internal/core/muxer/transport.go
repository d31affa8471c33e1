package muxer

import (
	"net"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/pkg/interfaces"
)

// Config dmux 会话配置
type Config struct {
	// StreamWindow 每流接收窗口，不小于 256 KiB
	StreamWindow uint32

	// ConnWindow 连接聚合接收窗口，不小于 16 MiB
	ConnWindow uint32

	// MaxFrameSize 单个数据帧最大负载
	MaxFrameSize uint32

	// AcceptBacklog 未被 AcceptStream 取走的入站流上限
	AcceptBacklog int

	EnableKeepAlive   bool
	KeepAliveInterval time.Duration

	// WriteTimeout 单帧写入底层连接的超时
	WriteTimeout time.Duration

	// Clock 保活计时使用的时钟
	Clock clock.Clock
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(nil)
}

// ConfigFromUnified 从统一配置创建 dmux 配置
func ConfigFromUnified(cfg *config.Config) Config {
	mc := config.DefaultMuxerConfig()
	if cfg != nil {
		mc = cfg.Muxer
	}
	return Config{
		StreamWindow:      mc.InitialStreamWindow,
		ConnWindow:        mc.ConnectionWindow,
		MaxFrameSize:      mc.MaxFrameSize,
		AcceptBacklog:     mc.AcceptBacklog,
		EnableKeepAlive:   mc.EnableKeepAlive,
		KeepAliveInterval: mc.KeepAliveInterval.Duration(),
		WriteTimeout:      mc.WriteTimeout.Duration(),
	}
}

// normalize 补齐零值，窗口不低于协议初始值
func (c Config) normalize() Config {
	if c.StreamWindow < initialStreamWindow {
		c.StreamWindow = initialStreamWindow
	}
	if c.ConnWindow < initialConnWindow {
		c.ConnWindow = initialConnWindow
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = 64 << 10
	}
	if c.AcceptBacklog <= 0 {
		c.AcceptBacklog = 256
	}
	if c.EnableKeepAlive && c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 30 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// Transport dmux 多路复用器
type Transport struct {
	config Config
}

var _ interfaces.StreamMuxer = (*Transport)(nil)

// NewTransport 创建 dmux 多路复用器
func NewTransport(cfg Config) *Transport {
	return &Transport{config: cfg.normalize()}
}

// NewConn 在加密连接上创建会话，isServer 决定流 ID 奇偶性
func (t *Transport) NewConn(conn net.Conn, isServer bool) (interfaces.MuxedConn, error) {
	return NewSession(conn, t.config, !isServer), nil
}

// ID 返回多路复用协议标识
func (t *Transport) ID() string { return ID }

// Config 返回生效的配置
func (t *Transport) Config() Config { return t.config }
