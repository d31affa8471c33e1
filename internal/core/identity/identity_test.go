package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/pkg/lib/crypto"
)

func TestGenerate(t *testing.T) {
	id, err := Generate(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	assert.NoError(t, id.PeerID().Validate())
	assert.True(t, crypto.MatchesPublicKey(id.PeerID(), id.PublicKey()))

	sig, err := id.Sign([]byte("msg"))
	require.NoError(t, err)
	ok, err := id.PublicKey().Verify([]byte("msg"), sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFromConfig_ExportRoundTrip(t *testing.T) {
	orig, err := Generate(crypto.KeyTypeSecp256k1)
	require.NoError(t, err)
	exported, err := orig.Export()
	require.NoError(t, err)

	loaded, err := FromConfig(config.IdentityConfig{KeyType: "Secp256k1", PrivateKey: exported})
	require.NoError(t, err)
	assert.Equal(t, orig.PeerID(), loaded.PeerID())

	_, err = FromConfig(config.IdentityConfig{KeyType: "Ed25519", PrivateKey: "!!"})
	assert.Error(t, err)
}

func TestProvideIdentity(t *testing.T) {
	preset, err := Generate(crypto.KeyTypeEd25519)
	require.NoError(t, err)

	got, err := ProvideIdentity(Params{Preset: preset})
	require.NoError(t, err)
	assert.Equal(t, preset.PeerID(), got.PeerID())

	got, err = ProvideIdentity(Params{UnifiedCfg: config.NewConfig()})
	require.NoError(t, err)
	assert.NotEqual(t, preset.PeerID(), got.PeerID())

	_, err = New(nil)
	assert.ErrorIs(t, err, ErrNilPrivateKey)
}
