// Package noise 定义 Noise 握手负载的 wire format
//
//	message NoiseExtensions {
//	    repeated bytes  webtransport_certhashes = 1;
//	    repeated string stream_muxers           = 2;
//	}
//
//	message NoiseHandshakePayload {
//	    bytes           identity_key = 1;
//	    bytes           identity_sig = 2;
//	    NoiseExtensions extensions   = 4;
//	}
//
// 编解码直接基于 protowire，未知字段被跳过。
package noise

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrInvalidPayload 表示无效的 payload 数据
var ErrInvalidPayload = errors.New("invalid noise payload data")

const (
	fieldIdentityKey protowire.Number = 1
	fieldIdentitySig protowire.Number = 2
	fieldExtensions  protowire.Number = 4

	fieldCerthashes   protowire.Number = 1
	fieldStreamMuxers protowire.Number = 2
)

// NoiseExtensions 握手扩展数据
type NoiseExtensions struct {
	// WebtransportCerthashes 传输层自签名证书的 multihash
	WebtransportCerthashes [][]byte
	// StreamMuxers 支持的多路复用器，按偏好排序
	StreamMuxers []string
}

// NoiseHandshakePayload 握手负载
type NoiseHandshakePayload struct {
	// IdentityKey protobuf 编码的身份公钥
	IdentityKey []byte
	// IdentitySig 对 "noise-libp2p-static-key:" + Noise 静态公钥 的签名
	IdentitySig []byte
	// Extensions 可选扩展
	Extensions *NoiseExtensions
}

// Marshal 序列化扩展
func (e *NoiseExtensions) Marshal() []byte {
	var b []byte
	for _, h := range e.WebtransportCerthashes {
		b = protowire.AppendTag(b, fieldCerthashes, protowire.BytesType)
		b = protowire.AppendBytes(b, h)
	}
	for _, m := range e.StreamMuxers {
		b = protowire.AppendTag(b, fieldStreamMuxers, protowire.BytesType)
		b = protowire.AppendString(b, m)
	}
	return b
}

// Unmarshal 反序列化扩展
func (e *NoiseExtensions) Unmarshal(b []byte) error {
	*e = NoiseExtensions{}
	return walk(b, func(num protowire.Number, v []byte) error {
		switch num {
		case fieldCerthashes:
			e.WebtransportCerthashes = append(e.WebtransportCerthashes, append([]byte(nil), v...))
		case fieldStreamMuxers:
			if !utf8.Valid(v) {
				return fmt.Errorf("%w: stream muxer is not utf-8", ErrInvalidPayload)
			}
			e.StreamMuxers = append(e.StreamMuxers, string(v))
		}
		return nil
	})
}

// Marshal 序列化握手负载
func (p *NoiseHandshakePayload) Marshal() ([]byte, error) {
	b := make([]byte, 0, len(p.IdentityKey)+len(p.IdentitySig)+16)
	if len(p.IdentityKey) > 0 {
		b = protowire.AppendTag(b, fieldIdentityKey, protowire.BytesType)
		b = protowire.AppendBytes(b, p.IdentityKey)
	}
	if len(p.IdentitySig) > 0 {
		b = protowire.AppendTag(b, fieldIdentitySig, protowire.BytesType)
		b = protowire.AppendBytes(b, p.IdentitySig)
	}
	if p.Extensions != nil {
		b = protowire.AppendTag(b, fieldExtensions, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Extensions.Marshal())
	}
	return b, nil
}

// Unmarshal 反序列化握手负载
func (p *NoiseHandshakePayload) Unmarshal(b []byte) error {
	*p = NoiseHandshakePayload{}
	return walk(b, func(num protowire.Number, v []byte) error {
		switch num {
		case fieldIdentityKey:
			p.IdentityKey = append([]byte(nil), v...)
		case fieldIdentitySig:
			p.IdentitySig = append([]byte(nil), v...)
		case fieldExtensions:
			ext := &NoiseExtensions{}
			if err := ext.Unmarshal(v); err != nil {
				return err
			}
			p.Extensions = ext
		}
		return nil
	})
}

// walk 遍历所有字段，对 length-delimited 字段回调 fn，其他类型跳过
func walk(b []byte, fn func(protowire.Number, []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrInvalidPayload, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		v, m := protowire.ConsumeBytes(b)
		if m < 0 {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, protowire.ParseError(m))
		}
		if err := fn(num, v); err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}
