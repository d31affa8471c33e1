package muxer

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/pkg/interfaces"
)

// Params Muxer 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Result Muxer 模块输出
type Result struct {
	fx.Out

	Muxer interfaces.StreamMuxer `group:"muxers"`
}

// NewFromParams 从统一配置创建 dmux 多路复用器
func NewFromParams(p Params) Result {
	return Result{Muxer: NewTransport(ConfigFromUnified(p.UnifiedCfg))}
}

// Module 是 dmux 的 Fx 模块，输出到 muxers 组
var Module = fx.Module("muxer",
	fx.Provide(NewFromParams),
)
