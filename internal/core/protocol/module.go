package protocol

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-substrate/config"
)

// Params 协商器依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// NewFromParams 从统一配置创建协商器
func NewFromParams(p Params) *Negotiator {
	return NewNegotiator(ConfigFromUnified(p.UnifiedCfg))
}

// Module 提供协商器与协议注册表
var Module = fx.Module("protocol",
	fx.Provide(
		NewFromParams,
		NewRegistry,
	),
)
