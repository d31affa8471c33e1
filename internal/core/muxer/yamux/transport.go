package yamux

import (
	"io"
	"math"
	"net"

	"github.com/libp2p/go-yamux/v5"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/lib/log"
	"github.com/dep2p/go-substrate/pkg/protocolids"
)

var logger = log.Logger("core/muxer/yamux")

// ID yamux 协议标识
const ID = string(protocolids.Yamux)

// maxStreamWindow 16MiB 窗口：100ms 延迟下可达 160MB/s 吞吐量
const maxStreamWindow = 16 << 20

// Transport yamux 多路复用器
type Transport struct {
	config *yamux.Config
}

var _ interfaces.StreamMuxer = (*Transport)(nil)

// ConfigFromUnified 从统一配置创建 yamux 配置
func ConfigFromUnified(cfg *config.Config) *yamux.Config {
	mc := config.DefaultMuxerConfig()
	if cfg != nil {
		mc = cfg.Muxer
	}

	yc := yamux.DefaultConfig()
	yc.InitialStreamWindowSize = max(yc.InitialStreamWindowSize, mc.InitialStreamWindow)
	yc.MaxStreamWindowSize = max(maxStreamWindow, yc.InitialStreamWindowSize)
	if mc.AcceptBacklog > 0 {
		yc.AcceptBacklog = mc.AcceptBacklog
	}
	yc.EnableKeepAlive = mc.EnableKeepAlive
	if d := mc.KeepAliveInterval.Duration(); d > 0 {
		yc.KeepAliveInterval = d
	}
	if d := mc.WriteTimeout.Duration(); d > 0 {
		yc.ConnectionWriteTimeout = d
	}
	if mc.MaxFrameSize >= 1024 {
		yc.MaxMessageSize = mc.MaxFrameSize
	}

	// 禁用日志输出
	yc.LogOutput = io.Discard

	// 禁用读缓冲（安全传输层已有缓冲）
	yc.ReadBufSize = 0

	// 入站流数量由接受队列约束
	yc.MaxIncomingStreams = math.MaxUint32
	return yc
}

// NewTransport 创建 yamux 多路复用器，cfg 为 nil 时使用默认配置
func NewTransport(cfg *yamux.Config) (*Transport, error) {
	if cfg == nil {
		cfg = ConfigFromUnified(nil)
	}
	if err := yamux.VerifyConfig(cfg); err != nil {
		return nil, err
	}
	return &Transport{config: cfg}, nil
}

// NewConn 在加密连接上创建 yamux 会话
func (t *Transport) NewConn(conn net.Conn, isServer bool) (interfaces.MuxedConn, error) {
	var (
		sess *yamux.Session
		err  error
	)
	if isServer {
		sess, err = yamux.Server(conn, t.config, nil)
	} else {
		sess, err = yamux.Client(conn, t.config, nil)
	}
	if err != nil {
		return nil, err
	}
	return newConn(sess), nil
}

// ID 返回多路复用协议标识
func (t *Transport) ID() string { return ID }

// Config 返回 yamux 配置（供测试使用）
func (t *Transport) Config() *yamux.Config { return t.config }
