package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-substrate/config"
)

// Config 指标配置
type Config struct {
	// Enabled 是否注册 Prometheus 采集器
	Enabled bool

	// Namespace 指标名前缀
	Namespace string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(nil)
}

// ConfigFromUnified 从统一配置创建指标配置
func ConfigFromUnified(cfg *config.Config) Config {
	mc := config.DefaultMetricsConfig()
	if cfg != nil {
		mc = cfg.Metrics
	}
	return Config{Enabled: mc.Enabled, Namespace: mc.Namespace}
}

// Params Metrics 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config        `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

// NewFromParams 创建 Reporter
//
// 未启用或未提供 Registerer 时返回 Nop。
func NewFromParams(p Params) (Reporter, error) {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	if !cfg.Enabled || p.Registerer == nil {
		return Nop{}, nil
	}
	return NewCollector(p.Registerer, cfg.Namespace)
}

// Module 是 metrics 的 Fx 模块
var Module = fx.Module("metrics",
	fx.Provide(NewFromParams),
)
