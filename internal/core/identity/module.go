package identity

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/pkg/interfaces"
)

// Params 模块输入
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	// Preset 由 WithIdentity 直接注入的身份
	Preset *Identity `name:"preset_identity" optional:"true"`
}

// ProvideIdentity 提供本地身份
func ProvideIdentity(p Params) (interfaces.Identity, error) {
	if p.Preset != nil {
		return p.Preset, nil
	}
	cfg := config.DefaultIdentityConfig()
	if p.UnifiedCfg != nil {
		cfg = p.UnifiedCfg.Identity
	}
	return FromConfig(cfg)
}

// Module 身份模块
var Module = fx.Module("identity",
	fx.Provide(ProvideIdentity),
)
