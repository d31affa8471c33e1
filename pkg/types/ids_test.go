package types

import (
	"bytes"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerID_Validate(t *testing.T) {
	digest := bytes.Repeat([]byte{0x42}, PeerIDLen)
	id, err := PeerIDFromBytes(digest)
	require.NoError(t, err)
	assert.NoError(t, id.Validate())
	assert.Equal(t, digest, id.Bytes())

	assert.ErrorIs(t, EmptyPeerID.Validate(), ErrEmptyPeerID)
	assert.ErrorIs(t, PeerID("0OIl").Validate(), ErrInvalidPeerID)
	assert.ErrorIs(t, PeerID(base58.Encode([]byte{1, 2, 3})).Validate(), ErrInvalidPeerID)

	_, err = PeerIDFromBytes([]byte{1})
	assert.ErrorIs(t, err, ErrInvalidPeerID)
}

func TestPeerID_Less(t *testing.T) {
	lo, _ := PeerIDFromBytes(bytes.Repeat([]byte{0x01}, PeerIDLen))
	hi, _ := PeerIDFromBytes(bytes.Repeat([]byte{0xfe}, PeerIDLen))

	assert.True(t, lo.Less(hi))
	assert.False(t, hi.Less(lo))
	assert.False(t, lo.Less(lo))
}

func TestParsePeerID(t *testing.T) {
	want, _ := PeerIDFromBytes(bytes.Repeat([]byte{0x07}, PeerIDLen))

	got, err := ParsePeerID("  " + want.String() + "\n")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Len(t, got.ShortString(), 8)

	_, err = ParsePeerID("")
	assert.ErrorIs(t, err, ErrEmptyPeerID)
}

func TestEnums_String(t *testing.T) {
	assert.Equal(t, "outbound", DirOutbound.String())
	assert.Equal(t, "half-closed-local", StreamStateHalfClosedLocal.String())
	assert.Equal(t, "closing", ConnStateClosing.String())
	assert.Equal(t, "quic", TransportQUIC.String())
	assert.Equal(t, "unknown", TransportKind(99).String())
}
