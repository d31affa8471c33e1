package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPair_SignVerify(t *testing.T) {
	for _, kt := range []KeyType{KeyTypeEd25519, KeyTypeSecp256k1} {
		t.Run(kt.String(), func(t *testing.T) {
			priv, pub, err := GenerateKeyPair(kt)
			require.NoError(t, err)
			assert.Equal(t, kt, priv.Type())
			assert.True(t, priv.GetPublic().Equals(pub))

			msg := []byte("noise-libp2p-static-key:abc")
			sig, err := priv.Sign(msg)
			require.NoError(t, err)

			ok, err := pub.Verify(msg, sig)
			require.NoError(t, err)
			assert.True(t, ok)

			tampered := append([]byte(nil), sig...)
			tampered[len(tampered)-1] ^= 0x01
			ok, _ = pub.Verify(msg, tampered)
			assert.False(t, ok)

			ok, _ = pub.Verify([]byte("other"), sig)
			assert.False(t, ok)
		})
	}
}

func TestGenerateKeyPair_BadType(t *testing.T) {
	_, _, err := GenerateKeyPair(KeyType(42))
	assert.ErrorIs(t, err, ErrBadKeyType)
}

func TestMarshalPublicKey_RoundTrip(t *testing.T) {
	for _, kt := range []KeyType{KeyTypeEd25519, KeyTypeSecp256k1} {
		priv, pub, err := GenerateKeyPair(kt)
		require.NoError(t, err)

		data, err := MarshalPublicKey(pub)
		require.NoError(t, err)
		got, err := UnmarshalPublicKeyBytes(data)
		require.NoError(t, err)
		assert.True(t, pub.Equals(got))

		pdata, err := MarshalPrivateKey(priv)
		require.NoError(t, err)
		gotPriv, err := UnmarshalPrivateKeyBytes(pdata)
		require.NoError(t, err)
		assert.True(t, priv.Equals(gotPriv))
	}
}

func TestUnmarshalPublicKeyBytes_Invalid(t *testing.T) {
	_, err := UnmarshalPublicKeyBytes([]byte{0x08, 0x02})
	assert.ErrorIs(t, err, ErrUnmarshalFailed)

	_, err = UnmarshalPublicKeyBytes([]byte{0xff})
	assert.ErrorIs(t, err, ErrUnmarshalFailed)

	// type=2 (Ed25519) 但数据长度错误
	_, err = UnmarshalPublicKeyBytes([]byte{0x08, 0x02, 0x12, 0x01, 0x00})
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestPeerIDFromPublicKey(t *testing.T) {
	seed := bytes.Repeat([]byte{0x11}, 32)
	priv, err := UnmarshalEd25519PrivateKey(seed)
	require.NoError(t, err)

	id1, err := PeerIDFromPrivateKey(priv)
	require.NoError(t, err)
	id2, err := PeerIDFromPublicKey(priv.GetPublic())
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.NoError(t, id1.Validate())
	assert.True(t, MatchesPublicKey(id1, priv.GetPublic()))

	_, other, _ := GenerateKeyPair(KeyTypeEd25519)
	assert.False(t, MatchesPublicKey(id1, other))

	_, err = PeerIDFromPublicKey(nil)
	assert.ErrorIs(t, err, ErrNilPublicKey)
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3}
	Zero(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
}
