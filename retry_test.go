package substrate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-substrate/internal/core/security/noise"
	"github.com/dep2p/go-substrate/internal/core/swarm"
	"github.com/dep2p/go-substrate/internal/core/transport"
)

// deadAddr 返回一个已无人监听的地址
func deadAddr(t *testing.T) string {
	t.Helper()
	n := newTestNode(t)
	addr := n.ListenAddrs()[0].String()
	require.NoError(t, n.Close())
	return addr
}

func TestConnectWithRetry_TransportErrorsRetried(t *testing.T) {
	b := newTestNode(t)
	addr := deadAddr(t)

	policy := RetryPolicy{Min: 20 * time.Millisecond, Max: time.Second, Factor: 2, MaxAttempts: 3}
	start := time.Now()
	_, err := b.ConnectWithRetry(testCtx(t), addr, "", policy)
	require.Error(t, err)

	var te *TransportError
	assert.True(t, errors.As(err, &te))
	// 三次尝试之间等待 20ms + 40ms
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestConnectWithRetry_ContextCancel(t *testing.T) {
	b := newTestNode(t)
	addr := deadAddr(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	policy := RetryPolicy{Min: 10 * time.Millisecond, Max: 20 * time.Millisecond, Factor: 2}
	_, err := b.ConnectWithRetry(ctx, addr, "", policy)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnectWithRetry_HandshakeNotRetried(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	other := newTestNode(t)

	policy := DefaultRetryPolicy()
	start := time.Now()
	_, err := b.ConnectWithRetry(testCtx(t), a.ListenAddrs()[0].String(), other.ID(), policy)
	require.Error(t, err)

	var he *HandshakeError
	assert.True(t, errors.As(err, &he))
	// 第二次尝试会命中隔离期
	assert.NotErrorIs(t, err, ErrQuarantined)
	assert.Less(t, time.Since(start), policy.Min+5*time.Second)
}

func TestConnectWithRetry_Success(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	c, err := b.ConnectWithRetry(testCtx(t), a.Addrs()[0], "", DefaultRetryPolicy())
	require.NoError(t, err)
	assert.Equal(t, a.ID(), c.RemotePeer())
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", &swarm.DialError{Err: transport.NewError("dial", nil, errors.New("refused"))}, true},
		{"handshake", &swarm.DialError{Err: &noise.HandshakeError{Kind: noise.KindTimeout}}, false},
		{"quarantine", &swarm.AuthFailureError{Err: errors.New("bad")}, false},
		{"self", fmt.Errorf("dial: %w", ErrDialToSelf), false},
		{"closed", ErrNodeClosed, false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}
