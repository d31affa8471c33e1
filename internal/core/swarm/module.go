package swarm

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/internal/core/metrics"
	"github.com/dep2p/go-substrate/internal/core/protocol"
	"github.com/dep2p/go-substrate/internal/core/transport"
	"github.com/dep2p/go-substrate/internal/core/upgrader"
	"github.com/dep2p/go-substrate/pkg/interfaces"
	maddr "github.com/dep2p/go-substrate/pkg/lib/multiaddr"
)

// Params Swarm 依赖参数
type Params struct {
	fx.In

	Identity   interfaces.Identity
	Transports *transport.Registry
	Upgrader   *upgrader.Upgrader
	Negotiator *protocol.Negotiator
	Handlers   *protocol.Registry
	Metrics    metrics.Reporter `optional:"true"`
	UnifiedCfg *config.Config   `optional:"true"`
}

// NewFromParams 从依赖创建 Swarm
func NewFromParams(p Params) (*Swarm, error) {
	return New(
		p.Identity.PeerID(),
		p.Transports,
		p.Upgrader,
		p.Negotiator,
		p.Handlers,
		ConfigFromUnified(p.UnifiedCfg),
		WithMetrics(p.Metrics),
	)
}

type lifecycleParams struct {
	fx.In

	LC         fx.Lifecycle
	Swarm      *Swarm
	UnifiedCfg *config.Config `optional:"true"`
}

// registerLifecycle 启动时监听配置的地址，停止时关闭 Swarm
func registerLifecycle(p lifecycleParams) {
	p.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if p.UnifiedCfg == nil || len(p.UnifiedCfg.Transport.ListenAddrs) == 0 {
				return nil
			}
			addrs, err := maddr.ParseList(p.UnifiedCfg.Transport.ListenAddrs)
			if err != nil {
				return err
			}
			return p.Swarm.Listen(addrs...)
		},
		OnStop: func(context.Context) error {
			return p.Swarm.Close()
		},
	})
}

// Module Swarm 模块
var Module = fx.Module("swarm",
	fx.Provide(NewFromParams),
	fx.Invoke(registerLifecycle),
)
