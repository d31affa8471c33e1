package noise

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/pkg/interfaces"
)

// Params Noise 依赖参数
type Params struct {
	fx.In

	Identity   interfaces.Identity
	UnifiedCfg *config.Config `optional:"true"`
}

// NewFromParams 从统一配置创建 Transport
//
// 开启早期多路复用器协商时，将 Muxer.Preferred 写入握手扩展。
func NewFromParams(p Params) (*Transport, error) {
	cfg := config.NewConfig()
	if p.UnifiedCfg != nil {
		cfg = p.UnifiedCfg
	}
	opts := []Option{WithTimeout(cfg.Security.Noise.HandshakeTimeout.Duration())}
	if cfg.Security.Noise.EarlyMuxerNegotiation {
		opts = append(opts, WithMuxers(cfg.Muxer.Preferred...))
	}
	return New(p.Identity, opts...)
}

// Module Noise 安全传输模块
var Module = fx.Module("security/noise",
	fx.Provide(
		fx.Annotate(
			NewFromParams,
			fx.As(new(interfaces.SecureTransport)),
		),
	),
)
