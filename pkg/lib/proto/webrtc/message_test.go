package webrtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_FlagOnly(t *testing.T) {
	// FIN 的枚举值为 0，仍需显式编码
	in := &Message{Flag: FlagPtr(FlagFIN)}
	data := in.Marshal()
	require.NotEmpty(t, data)

	var out Message
	require.NoError(t, out.Unmarshal(data))
	require.NotNil(t, out.Flag)
	assert.Equal(t, FlagFIN, *out.Flag)
	assert.Nil(t, out.Message)
}

func TestMessage_DataOnly(t *testing.T) {
	var out Message
	require.NoError(t, out.Unmarshal((&Message{Message: []byte("hi")}).Marshal()))
	assert.Nil(t, out.Flag)
	assert.Equal(t, []byte("hi"), out.Message)
}

func TestMessage_ResetWithCode(t *testing.T) {
	code := uint32(7)
	var out Message
	require.NoError(t, out.Unmarshal((&Message{Flag: FlagPtr(FlagResetStream), ErrorCode: &code}).Marshal()))
	assert.Equal(t, FlagResetStream, *out.Flag)
	assert.Equal(t, uint32(7), *out.ErrorCode)
	assert.Equal(t, "RESET_STREAM", out.Flag.String())
}

func TestMessage_Malformed(t *testing.T) {
	var out Message
	assert.ErrorIs(t, out.Unmarshal([]byte{0x12, 0x05, 0x01}), ErrInvalidMessage)
}
