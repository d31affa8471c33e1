package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/pkg/lib/crypto"
)

// 环境变量
const (
	envListenAddrs = "SUBSTRATE_LISTEN_ADDRS"
	envIdentityKey = "SUBSTRATE_IDENTITY_KEY"
	envDedupPolicy = "SUBSTRATE_DEDUP_POLICY"
)

// applyEnvOverrides 应用环境变量覆盖配置
//
// 环境变量优先级高于配置文件，但低于命令行参数。
//   - SUBSTRATE_LISTEN_ADDRS: 监听地址（逗号分隔）
//   - SUBSTRATE_IDENTITY_KEY: base64 编码的私钥
//   - SUBSTRATE_DEDUP_POLICY: 重复连接策略
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv(envListenAddrs); v != "" {
		addrs := splitList(v)
		if err := validateAddrs(addrs); err != nil {
			logger.Warn("忽略无效的监听地址环境变量", "env", envListenAddrs, "error", err)
		} else {
			cfg.Transport.ListenAddrs = addrs
		}
	}
	if v := os.Getenv(envIdentityKey); v != "" {
		cfg.Identity.PrivateKey = strings.TrimSpace(v)
	}
	if v := os.Getenv(envDedupPolicy); v != "" {
		cfg.ConnMgr.DedupPolicy = v
	}
}

// loadKey 读取 base64 私钥文件
func loadKey(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path) //nolint:gosec // 用户指定的密钥文件
	if err != nil {
		return nil, fmt.Errorf("读取私钥失败: %w", err)
	}
	cfg := config.IdentityConfig{KeyType: "Ed25519", PrivateKey: strings.TrimSpace(string(data))}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("私钥格式错误: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(raw)
	return crypto.UnmarshalPrivateKeyBytes(raw)
}
