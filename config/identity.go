package config

import (
	"encoding/base64"
	"errors"
)

// IdentityConfig 身份配置
//
// 密钥不落盘：PrivateKey 为空时在内存中生成临时密钥。
type IdentityConfig struct {
	// KeyType 密钥类型，可选 "Ed25519"、"Secp256k1"
	KeyType string `json:"key_type"`

	// PrivateKey base64 编码的 protobuf 私钥记录，可选
	PrivateKey string `json:"private_key,omitempty"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		KeyType: "Ed25519",
	}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	switch c.KeyType {
	case "Ed25519", "Secp256k1":
	default:
		return errors.New("invalid key type: must be Ed25519 or Secp256k1")
	}
	if c.PrivateKey != "" {
		if _, err := base64.StdEncoding.DecodeString(c.PrivateKey); err != nil {
			return errors.New("private key must be base64")
		}
	}
	return nil
}
