package substrate

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/internal/core/identity"
	"github.com/dep2p/go-substrate/pkg/lib/crypto"
	maddr "github.com/dep2p/go-substrate/pkg/lib/multiaddr"
)

// Option 节点配置选项
type Option func(*options) error

// options 选项汇总：统一配置加上无法放进 JSON 配置的对象
type options struct {
	config     *config.Config
	identity   *identity.Identity
	registerer prometheus.Registerer
}

func newOptions() *options {
	return &options{config: config.NewConfig()}
}

func (o *options) apply(opts []Option) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(o); err != nil {
			return err
		}
	}
	return nil
}

// WithConfig 以完整配置替换默认配置，应放在其它选项之前
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		o.config = cfg
		return nil
	}
}

// WithIdentity 使用给定私钥作为节点身份
func WithIdentity(priv crypto.PrivateKey) Option {
	return func(o *options) error {
		if priv == nil {
			return errors.New("identity key is nil")
		}
		id, err := identity.New(priv)
		if err != nil {
			return fmt.Errorf("identity: %w", err)
		}
		o.identity = id
		return nil
	}
}

// WithListenAddrs 设置监听地址
//
//	substrate.WithListenAddrs("/ip4/0.0.0.0/tcp/4001", "/ip4/0.0.0.0/udp/4001/quic-v1")
func WithListenAddrs(addrs ...string) Option {
	return func(o *options) error {
		if _, err := maddr.ParseList(addrs); err != nil {
			return err
		}
		o.config.Transport.ListenAddrs = addrs
		return nil
	}
}

// WithDedupPolicy 设置重复连接策略
func WithDedupPolicy(p DedupPolicy) Option {
	return func(o *options) error {
		switch p {
		case KeepExisting, KeepBoth:
		default:
			return fmt.Errorf("unknown dedup policy %d", p)
		}
		o.config.ConnMgr.DedupPolicy = p.String()
		return nil
	}
}

// WithHandshakeTimeout 设置 Noise 握手超时
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("handshake timeout must be positive")
		}
		o.config.Security.Noise.HandshakeTimeout = config.Duration(d)
		return nil
	}
}

// WithMetricsRegisterer 在 reg 上注册 Prometheus 指标
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}
