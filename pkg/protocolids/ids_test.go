package protocolids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dep2p/go-substrate/pkg/types"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		id   types.ProtocolID
		want error
	}{
		{Ping, nil},
		{"/chat/1.0.0", nil},
		{"/中文/1", nil},
		{"", types.ErrEmptyProtocolID},
		{"ping/1", ErrInvalidProtocolID},
		{"/bad\nid", ErrInvalidProtocolID},
		{types.ProtocolID("/\xff"), ErrInvalidProtocolID},
		{types.ProtocolID("/" + strings.Repeat("a", MaxLength)), ErrInvalidProtocolID},
		{Noise, ErrReservedProtocolID},
		{Multistream, ErrReservedProtocolID},
	}

	for _, tt := range tests {
		err := Validate(tt.id)
		if tt.want == nil {
			assert.NoError(t, err, tt.id)
			continue
		}
		assert.ErrorIs(t, err, tt.want, tt.id)
	}
}

func TestIsReserved(t *testing.T) {
	assert.True(t, IsReserved(Dmux))
	assert.True(t, IsReserved(Yamux))
	assert.False(t, IsReserved(Ping))
}
