package substrate

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/dep2p/go-substrate/internal/core/identity"
	"github.com/dep2p/go-substrate/internal/core/metrics"
	"github.com/dep2p/go-substrate/internal/core/muxer"
	"github.com/dep2p/go-substrate/internal/core/muxer/yamux"
	"github.com/dep2p/go-substrate/internal/core/protocol"
	"github.com/dep2p/go-substrate/internal/core/security/noise"
	"github.com/dep2p/go-substrate/internal/core/swarm"
	"github.com/dep2p/go-substrate/internal/core/transport"
	"github.com/dep2p/go-substrate/internal/core/upgrader"
	"github.com/dep2p/go-substrate/pkg/lib/log"
)

var fxLogger = log.Logger("substrate/fx")

// buildFxApp 组装内部模块
//
// 加载顺序：Identity → Metrics → Transport → Noise → Muxer → Upgrader → Protocol → Swarm。
// 生命周期按相反顺序停止，Swarm 先于传输关闭。
func buildFxApp(o *options, node *Node) (*fx.App, error) {
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	modules := []fx.Option{
		fx.Supply(o.config),

		identity.Module,
		metrics.Module,
		transport.Module,
		noise.Module,
		muxer.Module,
		yamux.Module,
		upgrader.Module,
		protocol.Module,
		swarm.Module,

		fx.Populate(&node.swarm, &node.identity),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: fxLogger.Zap()}
		}),
	}

	if o.identity != nil {
		modules = append(modules, fx.Supply(fx.Annotated{
			Name:   "preset_identity",
			Target: o.identity,
		}))
	}
	if o.registerer != nil {
		reg := o.registerer
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return reg }))
	}

	return fx.New(modules...), nil
}
