// Package identity 提供本地身份
//
// 身份由一个长期私钥决定，PeerID 从其公钥派生。
// 密钥不落盘：未配置私钥时生成临时密钥。
package identity

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/lib/crypto"
	"github.com/dep2p/go-substrate/pkg/lib/log"
	"github.com/dep2p/go-substrate/pkg/types"
)

var logger = log.Logger("core/identity")

// ErrNilPrivateKey 私钥为空
var ErrNilPrivateKey = errors.New("identity: nil private key")

// Identity 本地身份
type Identity struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
	id   types.PeerID
}

var _ interfaces.Identity = (*Identity)(nil)

// New 从私钥创建身份
func New(priv crypto.PrivateKey) (*Identity, error) {
	if priv == nil {
		return nil, ErrNilPrivateKey
	}
	id, err := crypto.PeerIDFromPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("derive peer id: %w", err)
	}
	return &Identity{priv: priv, pub: priv.GetPublic(), id: id}, nil
}

// Generate 生成指定类型的临时身份
func Generate(kt crypto.KeyType) (*Identity, error) {
	priv, _, err := crypto.GenerateKeyPair(kt)
	if err != nil {
		return nil, err
	}
	return New(priv)
}

// FromConfig 按配置加载或生成身份
func FromConfig(cfg config.IdentityConfig) (*Identity, error) {
	if cfg.PrivateKey != "" {
		data, err := base64.StdEncoding.DecodeString(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("decode private key: %w", err)
		}
		defer crypto.Zero(data)
		priv, err := crypto.UnmarshalPrivateKeyBytes(data)
		if err != nil {
			return nil, fmt.Errorf("unmarshal private key: %w", err)
		}
		return New(priv)
	}

	kt := crypto.KeyTypeEd25519
	if cfg.KeyType == "Secp256k1" {
		kt = crypto.KeyTypeSecp256k1
	}
	id, err := Generate(kt)
	if err != nil {
		return nil, err
	}
	logger.Debug("生成临时身份", "peer", id.PeerID().ShortString(), "keyType", kt)
	return id, nil
}

// PeerID 返回本地节点 ID
func (i *Identity) PeerID() types.PeerID { return i.id }

// PublicKey 返回身份公钥
func (i *Identity) PublicKey() crypto.PublicKey { return i.pub }

// PrivateKey 返回身份私钥
func (i *Identity) PrivateKey() crypto.PrivateKey { return i.priv }

// Sign 使用身份私钥签名
func (i *Identity) Sign(data []byte) ([]byte, error) {
	return i.priv.Sign(data)
}

// Export 以 base64 导出私钥记录，可写回 IdentityConfig.PrivateKey
func (i *Identity) Export() (string, error) {
	data, err := crypto.MarshalPrivateKey(i.priv)
	if err != nil {
		return "", err
	}
	defer crypto.Zero(data)
	return base64.StdEncoding.EncodeToString(data), nil
}
