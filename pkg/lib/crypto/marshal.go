package crypto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// 公钥/私钥的 protobuf 记录：
//
//	message PublicKey  { KeyType type = 1; bytes data = 2; }
//	message PrivateKey { KeyType type = 1; bytes data = 2; }
const (
	keyFieldType protowire.Number = 1
	keyFieldData protowire.Number = 2
)

// MarshalPublicKey 将公钥编码为 protobuf 记录
//
// 该编码即握手负载中的 identity_key，也是 PeerID 派生的输入。
func MarshalPublicKey(key PublicKey) ([]byte, error) {
	if key == nil {
		return nil, ErrNilPublicKey
	}
	return marshalKey(key)
}

// UnmarshalPublicKeyBytes 从 protobuf 记录解码公钥
func UnmarshalPublicKeyBytes(data []byte) (PublicKey, error) {
	kt, raw, err := unmarshalKey(data)
	if err != nil {
		return nil, err
	}
	return UnmarshalPublicKey(kt, raw)
}

// MarshalPrivateKey 将私钥编码为 protobuf 记录
func MarshalPrivateKey(key PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, ErrNilPrivateKey
	}
	return marshalKey(key)
}

// UnmarshalPrivateKeyBytes 从 protobuf 记录解码私钥
func UnmarshalPrivateKeyBytes(data []byte) (PrivateKey, error) {
	kt, raw, err := unmarshalKey(data)
	if err != nil {
		return nil, err
	}
	defer Zero(raw)
	return UnmarshalPrivateKey(kt, raw)
}

func marshalKey(key Key) ([]byte, error) {
	raw, err := key.Raw()
	if err != nil {
		return nil, err
	}
	b := make([]byte, 0, len(raw)+8)
	b = protowire.AppendTag(b, keyFieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(key.Type()))
	b = protowire.AppendTag(b, keyFieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, raw)
	return b, nil
}

func unmarshalKey(b []byte) (KeyType, []byte, error) {
	var (
		kt      = KeyTypeUnspecified
		raw     []byte
		sawData bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, nil, fmt.Errorf("%w: %v", ErrUnmarshalFailed, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == keyFieldType && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return 0, nil, fmt.Errorf("%w: %v", ErrUnmarshalFailed, protowire.ParseError(m))
			}
			kt = KeyType(v)
			n = m
		case num == keyFieldData && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return 0, nil, fmt.Errorf("%w: %v", ErrUnmarshalFailed, protowire.ParseError(m))
			}
			raw = append([]byte(nil), v...)
			sawData = true
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return 0, nil, fmt.Errorf("%w: %v", ErrUnmarshalFailed, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	if !sawData {
		return 0, nil, fmt.Errorf("%w: missing key data", ErrUnmarshalFailed)
	}
	return kt, raw, nil
}
