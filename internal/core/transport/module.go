package transport

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/internal/core/transport/quic"
	"github.com/dep2p/go-substrate/internal/core/transport/tcp"
	"github.com/dep2p/go-substrate/internal/core/transport/websocket"
	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/lib/log"
)

var logger = log.Logger("core/transport")

// Config 传输层配置
type Config struct {
	// 协议开关
	EnableTCP       bool
	EnableQUIC      bool
	EnableWebSocket bool

	// DialTimeout 建立原始连接的超时
	DialTimeout time.Duration

	QUIC      quic.Config
	WebSocket websocket.Config
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(nil)
}

// ConfigFromUnified 从统一配置创建传输配置
func ConfigFromUnified(cfg *config.Config) Config {
	tc := config.DefaultTransportConfig()
	if cfg != nil {
		tc = cfg.Transport
	}
	dial := tc.DialTimeout.Duration()

	q := quic.DefaultConfig()
	q.MaxIdleTimeout = tc.QUIC.MaxIdleTimeout.Duration()
	q.KeepAlivePeriod = tc.QUIC.KeepAlivePeriod.Duration()
	q.CertValidity = tc.QUIC.CertValidity.Duration()
	q.DialTimeout = dial

	return Config{
		EnableTCP:       tc.EnableTCP,
		EnableQUIC:      tc.EnableQUIC,
		EnableWebSocket: tc.EnableWebSocket,
		DialTimeout:     dial,
		QUIC:            q,
		WebSocket: websocket.Config{
			Path:             tc.WebSocket.Path,
			HandshakeTimeout: tc.WebSocket.HandshakeTimeout.Duration(),
			DialTimeout:      dial,
		},
	}
}

// NewTransports 按配置创建启用的传输
func NewTransports(cfg Config) ([]interfaces.Transport, error) {
	var out []interfaces.Transport
	if cfg.EnableTCP {
		out = append(out, tcp.New(tcp.Config{DialTimeout: cfg.DialTimeout}))
	}
	if cfg.EnableWebSocket {
		out = append(out, websocket.New(cfg.WebSocket))
	}
	if cfg.EnableQUIC {
		q, err := quic.New(cfg.QUIC)
		if err != nil {
			var cerr error
			for _, t := range out {
				cerr = multierr.Append(cerr, t.Close())
			}
			return nil, multierr.Append(err, cerr)
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, ErrNoTransport
	}
	return out, nil
}

// Params 传输模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Output 传输模块输出
type Output struct {
	fx.Out

	Registry   *Registry
	Transports []interfaces.Transport `group:"transports,flatten"`
}

// ProvideTransports 创建传输与注册表
func ProvideTransports(p Params) (Output, error) {
	ts, err := NewTransports(ConfigFromUnified(p.UnifiedCfg))
	if err != nil {
		return Output{}, err
	}
	kinds := make([]string, len(ts))
	for i, t := range ts {
		kinds[i] = t.Kind().String()
	}
	logger.Debug("传输已创建", "transports", kinds)
	return Output{Registry: NewRegistry(ts...), Transports: ts}, nil
}

func registerLifecycle(lc fx.Lifecycle, r *Registry) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return r.Close()
		},
	})
}

// Module 提供传输注册表
var Module = fx.Module("transport",
	fx.Provide(ProvideTransports),
	fx.Invoke(registerLifecycle),
)
