package noise

import (
	"crypto/cipher"
	"encoding/binary"
	"math"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/dep2p/go-substrate/pkg/lib/crypto"
)

const (
	// MaxFrameSize 单个密文帧最大长度（不含 2 字节长度前缀）
	MaxFrameSize = math.MaxUint16

	// MaxPlaintextSize 单帧可承载的最大明文
	MaxPlaintextSize = MaxFrameSize - chacha20poly1305.Overhead

	frameHeaderSize = 2
)

// cipherState 单方向的传输密钥与计数器
//
// 计数器按 Noise 规则编码为 12 字节 nonce：4 个零字节 + 8 字节小端计数。
// 一次解密失败后状态永久失效。
type cipherState struct {
	mu     sync.Mutex
	key    [32]byte
	aead   cipher.AEAD
	nonce  uint64
	broken bool
}

func newCipherState(key [32]byte) (*cipherState, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	return &cipherState{key: key, aead: aead}, nil
}

func nonceBytes(n uint64) [chacha20poly1305.NonceSize]byte {
	var b [chacha20poly1305.NonceSize]byte
	binary.LittleEndian.PutUint64(b[4:], n)
	return b
}

// encrypt 将密文追加到 dst
func (c *cipherState) encrypt(dst, plaintext []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.aead == nil {
		return nil, ErrClosed
	}
	// MaxUint64 为 Noise 保留值
	if c.nonce == math.MaxUint64 {
		return nil, ErrNonceExhausted
	}
	n := nonceBytes(c.nonce)
	out := c.aead.Seal(dst, n[:], plaintext, nil)
	c.nonce++
	return out, nil
}

// decrypt 将明文追加到 dst，dst 可与 ciphertext 共用底层数组（原地解密）
func (c *cipherState) decrypt(dst, ciphertext []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.aead == nil {
		return nil, ErrClosed
	}
	if c.broken {
		return nil, &DecryptError{Nonce: c.nonce, Err: ErrAuthenticationFailed}
	}
	if c.nonce == math.MaxUint64 {
		c.broken = true
		return nil, &DecryptError{Nonce: c.nonce, Err: ErrNonceExhausted}
	}
	n := nonceBytes(c.nonce)
	out, err := c.aead.Open(dst, n[:], ciphertext, nil)
	if err != nil {
		c.broken = true
		return nil, &DecryptError{Nonce: c.nonce, Err: ErrAuthenticationFailed}
	}
	c.nonce++
	return out, nil
}

// zero 清零密钥并释放 AEAD
func (c *cipherState) zero() {
	c.mu.Lock()
	defer c.mu.Unlock()
	crypto.Zero(c.key[:])
	c.aead = nil
}

func (c *cipherState) current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonce
}
