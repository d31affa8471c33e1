package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/protocolids"
	"github.com/dep2p/go-substrate/pkg/types"
)

func noopHandler(interfaces.Stream) {}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("/ping/1", noopHandler))
	assert.ErrorIs(t, r.Register("/ping/1", noopHandler), ErrDuplicateProtocol)
	assert.ErrorIs(t, r.Register("", noopHandler), types.ErrEmptyProtocolID)

	h, ok := r.GetHandler("/ping/1")
	assert.True(t, ok)
	assert.NotNil(t, h)

	_, ok = r.GetHandler("/echo/1")
	assert.False(t, ok)
}

func TestRegistry_SetHandlerReplaces(t *testing.T) {
	r := NewRegistry()
	var called string
	r.SetHandler("/ping/1", func(interfaces.Stream) { called = "first" })
	r.SetHandler("/ping/1", func(interfaces.Stream) { called = "second" })

	h, ok := r.GetHandler("/ping/1")
	require.True(t, ok)
	h(nil)
	assert.Equal(t, "second", called)
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("/ping/1", noopHandler))

	require.NoError(t, r.Unregister("/ping/1"))
	assert.ErrorIs(t, r.Unregister("/ping/1"), ErrProtocolNotRegistered)
	assert.False(t, r.Match("/ping/1"))
}

func TestRegistry_Matcher(t *testing.T) {
	r := NewRegistry()
	r.AddMatcher("/chat/1", func(p types.ProtocolID) bool {
		return strings.HasPrefix(string(p), "/chat/1")
	}, noopHandler)

	assert.True(t, r.Match("/chat/1/room-a"))
	assert.False(t, r.Match("/chat/2"))

	r.RemoveMatcher("/chat/1")
	assert.False(t, r.Match("/chat/1/room-a"))
}

func TestRegistry_ExactBeforeMatcher(t *testing.T) {
	r := NewRegistry()
	var called string
	r.AddMatcher("/ping", func(types.ProtocolID) bool { return true }, func(interfaces.Stream) { called = "matcher" })
	require.NoError(t, r.Register("/ping/1", func(interfaces.Stream) { called = "exact" }))

	h, ok := r.GetHandler("/ping/1")
	require.True(t, ok)
	h(nil)
	assert.Equal(t, "exact", called)
}

func TestRegistry_ProtocolsSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("/b/1", noopHandler))
	require.NoError(t, r.Register("/a/1", noopHandler))
	r.AddMatcher("/c/1", func(types.ProtocolID) bool { return false }, noopHandler)
	r.AddMatcher("/a/1", func(types.ProtocolID) bool { return false }, noopHandler)

	assert.Equal(t, []types.ProtocolID{"/a/1", "/b/1", "/c/1"}, r.Protocols())

	r.Clear()
	assert.Empty(t, r.Protocols())
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Register("ping/1", noopHandler), protocolids.ErrInvalidProtocolID)
	assert.ErrorIs(t, r.Register(protocolids.Noise, noopHandler), protocolids.ErrReservedProtocolID)
	assert.Empty(t, r.Protocols())
}
