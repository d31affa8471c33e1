package noise

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecryptFrame_InOrder(t *testing.T) {
	ca, cb := securePair(t, newTransport(t), newTransport(t))

	for _, msg := range []string{"one", "two", "three"} {
		f, err := ca.EncryptFrame([]byte(msg))
		require.NoError(t, err)
		pt, err := cb.DecryptFrame(f)
		require.NoError(t, err)
		assert.Equal(t, msg, string(pt))
	}
}

func TestDecryptFrame_Replay(t *testing.T) {
	ca, cb := securePair(t, newTransport(t), newTransport(t))

	f1, err := ca.EncryptFrame([]byte("one"))
	require.NoError(t, err)

	_, err = cb.DecryptFrame(f1)
	require.NoError(t, err)

	_, err = cb.DecryptFrame(f1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	var de *DecryptError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, uint64(1), de.Nonce)
}

func TestDecryptFrame_OutOfOrder(t *testing.T) {
	ca, cb := securePair(t, newTransport(t), newTransport(t))

	f1, err := ca.EncryptFrame([]byte("one"))
	require.NoError(t, err)
	f2, err := ca.EncryptFrame([]byte("two"))
	require.NoError(t, err)

	_, err = cb.DecryptFrame(f2)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	// 失败是致命的：连接关闭，后续帧不再可解
	_, err = cb.DecryptFrame(f1)
	assert.Error(t, err)
}

func TestDecryptFrame_Tampered(t *testing.T) {
	ca, cb := securePair(t, newTransport(t), newTransport(t))

	f, err := ca.EncryptFrame([]byte("payload"))
	require.NoError(t, err)
	f[len(f)-1] ^= 0x80

	_, err = cb.DecryptFrame(f)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestDecryptFrame_BadLength(t *testing.T) {
	ca, cb := securePair(t, newTransport(t), newTransport(t))

	f, err := ca.EncryptFrame([]byte("payload"))
	require.NoError(t, err)

	_, err = cb.DecryptFrame(f[:len(f)-1])
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestEncryptFrame_TooLarge(t *testing.T) {
	ca, _ := securePair(t, newTransport(t), newTransport(t))

	_, err := ca.EncryptFrame(make([]byte, MaxPlaintextSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	f, err := ca.EncryptFrame(make([]byte, MaxPlaintextSize))
	require.NoError(t, err)
	assert.Len(t, f, frameHeaderSize+MaxFrameSize)
}

func TestSecureConn_ReadCorruptFrame(t *testing.T) {
	ca, cb := securePair(t, newTransport(t), newTransport(t))

	// 绕过加密直接写入伪造帧
	go func() {
		_ = writeFrame(ca.Conn, make([]byte, 32))
	}()

	_, err := cb.Read(make([]byte, 64))
	var de *DecryptError
	require.True(t, errors.As(err, &de))
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	// 连接已关闭，密钥已清零
	assert.Equal(t, [32]byte{}, cb.recv.key)
	_, err = cb.Write([]byte("x"))
	assert.Error(t, err)
}

func TestSecureConn_CloseZeroizes(t *testing.T) {
	ca, _ := securePair(t, newTransport(t), newTransport(t))

	require.NotEqual(t, [32]byte{}, ca.send.key)
	require.NoError(t, ca.Close())
	assert.Equal(t, [32]byte{}, ca.send.key)
	assert.Equal(t, [32]byte{}, ca.recv.key)

	// 幂等
	assert.NoError(t, ca.Close())

	_, err := ca.EncryptFrame([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCipherState_NonceExhausted(t *testing.T) {
	var key [32]byte
	key[0] = 1

	enc, err := newCipherState(key)
	require.NoError(t, err)
	enc.nonce = math.MaxUint64
	_, err = enc.encrypt(nil, []byte("x"))
	assert.ErrorIs(t, err, ErrNonceExhausted)

	dec, err := newCipherState(key)
	require.NoError(t, err)
	dec.nonce = math.MaxUint64
	_, err = dec.decrypt(nil, make([]byte, 32))
	assert.ErrorIs(t, err, ErrNonceExhausted)
}

func TestCipherState_NonceEncoding(t *testing.T) {
	n := nonceBytes(0x0102030405060708)
	assert.Equal(t, []byte{0, 0, 0, 0, 8, 7, 6, 5, 4, 3, 2, 1}, n[:])
}
