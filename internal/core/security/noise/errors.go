package noise

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-substrate/pkg/types"
)

// HandshakeErrorKind 握手失败类型
type HandshakeErrorKind int

const (
	// KindTimeout 上下文截止或网络超时
	KindTimeout HandshakeErrorKind = iota + 1
	// KindSignatureInvalid 签名不能用声明的身份公钥验证
	KindSignatureInvalid
	// KindMalformed 帧或 payload 无法解码
	KindMalformed
	// KindAborted 对端提前关闭或上下文被取消
	KindAborted
	// KindIdentityMismatch 已验证身份与期望身份不一致
	KindIdentityMismatch
	// KindCertHashMismatch 传输层观察到的证书哈希不在对端声明集合中
	KindCertHashMismatch
)

// String 返回类型名称
func (k HandshakeErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindSignatureInvalid:
		return "signature-invalid"
	case KindMalformed:
		return "malformed"
	case KindAborted:
		return "aborted"
	case KindIdentityMismatch:
		return "identity-mismatch"
	case KindCertHashMismatch:
		return "certhash-mismatch"
	default:
		return "unknown"
	}
}

// 每种握手失败对应的哨兵错误，可用 errors.Is 判断
var (
	ErrHandshakeTimeout = errors.New("noise: handshake timeout")
	ErrSignatureInvalid = errors.New("noise: invalid identity signature")
	ErrMalformed        = errors.New("noise: malformed handshake message")
	ErrAborted          = errors.New("noise: handshake aborted")
	ErrIdentityMismatch = errors.New("noise: peer identity mismatch")
	ErrCertHashMismatch = errors.New("noise: certificate hash mismatch")
)

// 传输阶段错误
var (
	// ErrAuthenticationFailed 帧认证失败（篡改、重放或乱序）
	ErrAuthenticationFailed = errors.New("noise: message authentication failed")

	// ErrNonceExhausted 计数器耗尽，连接必须关闭
	ErrNonceExhausted = errors.New("noise: nonce exhausted")

	// ErrFrameTooLarge 帧超过 65535 字节
	ErrFrameTooLarge = errors.New("noise: frame too large")

	// ErrClosed 连接已关闭，密钥已清零
	ErrClosed = errors.New("noise: connection closed")

	// ErrNilIdentity 缺少本地身份
	ErrNilIdentity = errors.New("noise: nil identity")
)

func (k HandshakeErrorKind) sentinel() error {
	switch k {
	case KindTimeout:
		return ErrHandshakeTimeout
	case KindSignatureInvalid:
		return ErrSignatureInvalid
	case KindMalformed:
		return ErrMalformed
	case KindAborted:
		return ErrAborted
	case KindIdentityMismatch:
		return ErrIdentityMismatch
	case KindCertHashMismatch:
		return ErrCertHashMismatch
	default:
		return nil
	}
}

// HandshakeError 握手失败
type HandshakeError struct {
	Kind HandshakeErrorKind

	// Op 失败时所处的握手步骤
	Op string

	// Expected/Actual 仅在 KindIdentityMismatch 时有值
	Expected types.PeerID
	Actual   types.PeerID

	Err error
}

func (e *HandshakeError) Error() string {
	msg := fmt.Sprintf("noise handshake failed (%s)", e.Kind)
	if e.Op != "" {
		msg += " during " + e.Op
	}
	if e.Kind == KindIdentityMismatch {
		msg += fmt.Sprintf(": expected %s, got %s", e.Expected.ShortString(), e.Actual.ShortString())
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap 同时暴露类型哨兵与底层错误
func (e *HandshakeError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsAuthFailure 是否为认证失败（签名、身份或证书哈希不符）
func (e *HandshakeError) IsAuthFailure() bool {
	switch e.Kind {
	case KindSignatureInvalid, KindIdentityMismatch, KindCertHashMismatch:
		return true
	}
	return false
}

// IsAuthFailure 检查错误链中是否含认证失败的握手错误
func IsAuthFailure(err error) bool {
	var he *HandshakeError
	return errors.As(err, &he) && he.IsAuthFailure()
}

// DecryptError 传输帧解密失败，对连接是致命的
type DecryptError struct {
	// Nonce 失败时期望的计数器值
	Nonce uint64
	Err   error
}

func (e *DecryptError) Error() string {
	return fmt.Sprintf("noise: decrypt frame at nonce %d: %v", e.Nonce, e.Err)
}

func (e *DecryptError) Unwrap() error { return e.Err }
