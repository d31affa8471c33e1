package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"io"
)

// ============================================================================
//                              密钥类型定义
// ============================================================================

// KeyType 密钥类型
//
// 数值即 protobuf 编码中 type 字段的取值。
type KeyType int

const (
	// KeyTypeUnspecified 未指定密钥类型
	KeyTypeUnspecified KeyType = 0
	// KeyTypeEd25519 Ed25519 密钥（默认）
	KeyTypeEd25519 KeyType = 2
	// KeyTypeSecp256k1 Secp256k1 密钥
	KeyTypeSecp256k1 KeyType = 3
)

// String 返回密钥类型名称
func (kt KeyType) String() string {
	switch kt {
	case KeyTypeEd25519:
		return "Ed25519"
	case KeyTypeSecp256k1:
		return "Secp256k1"
	case KeyTypeUnspecified:
		return "Unspecified"
	default:
		return "Unknown"
	}
}

// ============================================================================
//                              密钥接口定义
// ============================================================================

// Key 基础密钥接口
type Key interface {
	// Raw 返回原始密钥字节
	Raw() ([]byte, error)

	// Type 返回密钥类型
	Type() KeyType

	// Equals 比较两个密钥是否相等
	Equals(Key) bool
}

// PublicKey 公钥接口
type PublicKey interface {
	Key

	// Verify 验证 sig 是否为 data 的有效签名
	Verify(data, sig []byte) (bool, error)
}

// PrivateKey 私钥接口
type PrivateKey interface {
	Key

	// Sign 签名数据
	Sign(data []byte) ([]byte, error)

	// GetPublic 返回对应的公钥
	GetPublic() PublicKey
}

// ============================================================================
//                              密钥工厂函数
// ============================================================================

// GenerateKeyPair 使用 crypto/rand 生成密钥对
func GenerateKeyPair(keyType KeyType) (PrivateKey, PublicKey, error) {
	return GenerateKeyPairWithReader(keyType, rand.Reader)
}

// GenerateKeyPairWithReader 使用指定随机源生成密钥对
func GenerateKeyPairWithReader(keyType KeyType, src io.Reader) (PrivateKey, PublicKey, error) {
	switch keyType {
	case KeyTypeEd25519:
		return GenerateEd25519Key(src)
	case KeyTypeSecp256k1:
		return GenerateSecp256k1Key(src)
	default:
		return nil, nil, ErrBadKeyType
	}
}

// UnmarshalPublicKey 按类型从原始字节恢复公钥
func UnmarshalPublicKey(keyType KeyType, data []byte) (PublicKey, error) {
	switch keyType {
	case KeyTypeEd25519:
		return UnmarshalEd25519PublicKey(data)
	case KeyTypeSecp256k1:
		return UnmarshalSecp256k1PublicKey(data)
	default:
		return nil, ErrBadKeyType
	}
}

// UnmarshalPrivateKey 按类型从原始字节恢复私钥
func UnmarshalPrivateKey(keyType KeyType, data []byte) (PrivateKey, error) {
	switch keyType {
	case KeyTypeEd25519:
		return UnmarshalEd25519PrivateKey(data)
	case KeyTypeSecp256k1:
		return UnmarshalSecp256k1PrivateKey(data)
	default:
		return nil, ErrBadKeyType
	}
}

// KeyEqual 使用常量时间比较两个密钥
func KeyEqual(k1, k2 Key) bool {
	if k1 == nil || k2 == nil || k1.Type() != k2.Type() {
		return false
	}
	b1, err1 := k1.Raw()
	b2, err2 := k2.Raw()
	if err1 != nil || err2 != nil {
		return false
	}
	return subtle.ConstantTimeCompare(b1, b2) == 1
}

// Zero 将敏感字节清零
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
