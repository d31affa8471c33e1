package yamux

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/pkg/interfaces"
)

// Params yamux 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Result yamux 模块输出
type Result struct {
	fx.Out

	Muxer interfaces.StreamMuxer `group:"muxers"`
}

// NewFromParams 从统一配置创建 yamux 多路复用器
func NewFromParams(p Params) (Result, error) {
	t, err := NewTransport(ConfigFromUnified(p.UnifiedCfg))
	if err != nil {
		return Result{}, err
	}
	return Result{Muxer: t}, nil
}

// Module 是 yamux 的 Fx 模块，输出到 muxers 组
var Module = fx.Module("muxer/yamux",
	fx.Provide(NewFromParams),
)
