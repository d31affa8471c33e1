package upgrader

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/pkg/interfaces"
)

// Params Upgrader 依赖参数
type Params struct {
	fx.In

	Security   interfaces.SecureTransport
	Muxers     []interfaces.StreamMuxer `group:"muxers"`
	UnifiedCfg *config.Config           `optional:"true"`
}

// NewFromParams 从依赖创建升级器
func NewFromParams(p Params) (*Upgrader, error) {
	return New([]interfaces.SecureTransport{p.Security}, p.Muxers, ConfigFromUnified(p.UnifiedCfg))
}

// Module 升级器模块
var Module = fx.Module("upgrader",
	fx.Provide(NewFromParams),
)
