package muxer

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-substrate/pkg/types"
)

// streamPair 打开一条流并在对端接受
func streamPair(t *testing.T, client, server *Session) (*Stream, *Stream) {
	t.Helper()
	cs, err := client.openStream(context.Background())
	require.NoError(t, err)
	ss, err := server.acceptStream(context.Background())
	require.NoError(t, err)
	return cs, ss
}

func TestStream_ReadWriteFIN(t *testing.T) {
	client, server := sessionPair(t, testConfig())
	cs, ss := streamPair(t, client, server)

	_, err := cs.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, cs.CloseWrite())
	assert.Equal(t, types.StreamStateHalfClosedLocal, cs.State())

	got, err := io.ReadAll(ss)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	assert.Equal(t, types.StreamStateHalfClosedRemote, ss.State())

	_, err = ss.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, ss.CloseWrite())

	got, err = io.ReadAll(cs)
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))

	assert.Equal(t, types.StreamStateClosed, cs.State())
	assert.Equal(t, types.StreamStateClosed, ss.State())

	// 两个方向都结束后流从会话中移除
	require.Eventually(t, func() bool {
		return client.NumStreams() == 0 && server.NumStreams() == 0
	}, time.Second, 5*time.Millisecond)

	// FIN 幂等
	assert.NoError(t, cs.CloseWrite())
	_, err = cs.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestStream_State(t *testing.T) {
	client, server := sessionPair(t, testConfig())

	st := newStream(client, 99, false)
	assert.Equal(t, types.StreamStateOpening, st.State())

	cs, ss := streamPair(t, client, server)
	assert.Equal(t, types.StreamStateOpen, ss.State())

	// 收到 ACK 后进入 Open
	require.Eventually(t, func() bool {
		return cs.State() == types.StreamStateOpen
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, cs.Reset())
	assert.Equal(t, types.StreamStateClosed, cs.State())
}

func TestStream_Reset(t *testing.T) {
	client, server := sessionPair(t, testConfig())
	cs, ss := streamPair(t, client, server)

	_, err := cs.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, cs.Reset())

	_, err = cs.Write([]byte("y"))
	assert.ErrorIs(t, err, ErrStreamClosed)
	_, err = cs.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrStreamClosed)

	// 幂等
	assert.NoError(t, cs.Reset())
	assert.NoError(t, cs.ResetWithError(5))
	assert.NoError(t, cs.CloseWrite())

	// 对端看到远端重置
	_, err = io.ReadAll(ss)
	var resetErr *StreamResetError
	require.ErrorAs(t, err, &resetErr)
	assert.True(t, resetErr.Remote)
	assert.Equal(t, CodeCancel, resetErr.Code)
	assert.ErrorIs(t, err, ErrStreamReset)

	_, err = ss.Write([]byte("z"))
	assert.ErrorIs(t, err, ErrStreamReset)
	assert.Equal(t, types.StreamStateClosed, ss.State())

	require.Eventually(t, func() bool {
		return client.NumStreams() == 0 && server.NumStreams() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestStream_ResetWithError(t *testing.T) {
	client, server := sessionPair(t, testConfig())
	cs, ss := streamPair(t, client, server)

	require.NoError(t, ss.ResetWithError(42))

	_, err := cs.Read(make([]byte, 1))
	var resetErr *StreamResetError
	require.ErrorAs(t, err, &resetErr)
	assert.Equal(t, uint32(42), resetErr.Code)
	assert.True(t, resetErr.Remote)

	// 远端重置后本地 Reset 不再发送
	assert.NoError(t, cs.Reset())
}

func TestStream_ResetWakesBlockedRead(t *testing.T) {
	client, server := sessionPair(t, testConfig())
	cs, _ := streamPair(t, client, server)

	done := make(chan error, 1)
	go func() {
		_, err := cs.Read(make([]byte, 1))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cs.Reset())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStreamClosed)
	case <-time.After(time.Second):
		t.Fatal("Read 未被唤醒")
	}
}

func TestStream_StopSending(t *testing.T) {
	client, server := sessionPair(t, testConfig())
	cs, ss := streamPair(t, client, server)

	require.NoError(t, ss.StopSending(7))
	_, err := ss.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrStreamClosed)

	var werr error
	require.Eventually(t, func() bool {
		_, werr = cs.Write([]byte("data"))
		return werr != nil
	}, time.Second, 5*time.Millisecond)

	var stopErr *StopSendingError
	require.ErrorAs(t, werr, &stopErr)
	assert.Equal(t, uint32(7), stopErr.Code)
	assert.ErrorIs(t, werr, ErrStopSending)

	// 停止接收后丢弃的数据归还连接额度
	require.Eventually(t, func() bool {
		server.connRecvMu.Lock()
		defer server.connRecvMu.Unlock()
		return server.connRecvCredit+server.connConsumed == server.config.ConnWindow
	}, time.Second, 5*time.Millisecond)
}

func TestStream_CloseRead(t *testing.T) {
	client, server := sessionPair(t, testConfig())
	cs, ss := streamPair(t, client, server)

	_, err := cs.Write([]byte("discarded"))
	require.NoError(t, err)

	require.NoError(t, ss.CloseRead())
	_, err = ss.Read(make([]byte, 16))
	assert.ErrorIs(t, err, ErrStreamClosed)

	// 写方向不受影响
	_, err = ss.Write([]byte("reply"))
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(cs, buf)
	require.NoError(t, err)
	assert.Equal(t, "reply", string(buf))
}

func TestStream_Close(t *testing.T) {
	client, server := sessionPair(t, testConfig())
	cs, ss := streamPair(t, client, server)

	require.NoError(t, cs.Close())
	assert.Equal(t, types.StreamStateClosed, cs.State())
	assert.NoError(t, cs.Close())

	_, err := io.ReadAll(ss)
	require.NoError(t, err)
	assert.Equal(t, 0, client.NumStreams())
}

func TestStream_Backpressure(t *testing.T) {
	client, server := sessionPair(t, testConfig())
	cs, ss := streamPair(t, client, server)

	data := make([]byte, 2*int(initialStreamWindow))
	_, err := rand.Read(data)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := cs.Write(data)
		done <- err
	}()

	// 对端不读时写入停在窗口耗尽处
	select {
	case err := <-done:
		t.Fatalf("窗口耗尽时 Write 不应返回: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	got := make([]byte, len(data))
	_, err = io.ReadFull(ss, got)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("窗口更新后 Write 未恢复")
	}
}

func TestStream_ZeroWindowResumesOnUpdate(t *testing.T) {
	client, server := sessionPair(t, testConfig())
	cs, ss := streamPair(t, client, server)

	cs.mu.Lock()
	cs.sendWindow = 0
	cs.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := cs.Write([]byte("hello"))
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("零窗口时 Write 应挂起")
	case <-time.After(50 * time.Millisecond):
	}

	cs.receive(typeWindowUpdate, 0, 1024, nil)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("窗口更新后 Write 未恢复")
	}

	buf := make([]byte, 5)
	_, err := io.ReadFull(ss, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestStream_ZeroConnWindowResumesOnUpdate(t *testing.T) {
	client, server := sessionPair(t, testConfig())
	cs, ss := streamPair(t, client, server)

	// 流窗口仍然打开，只关掉连接窗口
	client.connSendMu.Lock()
	client.connSendWindow = 0
	client.connSendMu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := cs.Write([]byte("hello"))
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("连接窗口为 0 时 Write 应挂起")
	case <-time.After(50 * time.Millisecond):
	}
	cs.mu.Lock()
	assert.NotZero(t, cs.sendWindow)
	cs.mu.Unlock()

	// 流 0 上的窗口更新
	require.NoError(t, client.handleStreamMessage(encode(typeWindowUpdate, 0, 0, 1024)))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("连接窗口更新后 Write 未恢复")
	}

	buf := make([]byte, 5)
	_, err := io.ReadFull(ss, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	client.connSendMu.Lock()
	assert.Equal(t, uint32(1024-5), client.connSendWindow)
	client.connSendMu.Unlock()
}

func TestStream_Done(t *testing.T) {
	client, server := sessionPair(t, testConfig())

	closed := func(st *Stream) bool {
		select {
		case <-st.Done():
			return true
		default:
			return false
		}
	}

	t.Run("FIN both ways", func(t *testing.T) {
		cs, ss := streamPair(t, client, server)
		require.NoError(t, cs.CloseWrite())
		_, err := io.ReadAll(ss)
		require.NoError(t, err)
		assert.False(t, closed(ss))

		require.NoError(t, ss.CloseWrite())
		assert.True(t, closed(ss))
		_, err = io.ReadAll(cs)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return closed(cs) }, time.Second, 5*time.Millisecond)
	})

	t.Run("remote reset", func(t *testing.T) {
		cs, ss := streamPair(t, client, server)
		require.NoError(t, ss.Reset())
		assert.True(t, closed(ss))
		require.Eventually(t, func() bool { return closed(cs) }, time.Second, 5*time.Millisecond)
	})

	t.Run("session close", func(t *testing.T) {
		cs, _ := streamPair(t, client, server)
		assert.False(t, closed(cs))
		require.NoError(t, client.Close())
		assert.True(t, closed(cs))
	})
}

func TestStream_ZeroWindowFailsOnReset(t *testing.T) {
	client, server := sessionPair(t, testConfig())
	cs, _ := streamPair(t, client, server)

	cs.mu.Lock()
	cs.sendWindow = 0
	cs.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := cs.Write([]byte("hello"))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cs.Reset())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStreamClosed)
	case <-time.After(time.Second):
		t.Fatal("重置后 Write 未返回")
	}
}

func TestStream_Deadlines(t *testing.T) {
	client, server := sessionPair(t, testConfig())
	cs, _ := streamPair(t, client, server)

	require.NoError(t, cs.SetReadDeadline(time.Now().Add(30*time.Millisecond)))
	_, err := cs.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)

	cs.mu.Lock()
	cs.sendWindow = 0
	cs.mu.Unlock()
	require.NoError(t, cs.SetWriteDeadline(time.Now().Add(30*time.Millisecond)))
	_, err = cs.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)

	// 清除截止时间后恢复
	require.NoError(t, cs.SetDeadline(time.Time{}))
	cs.receive(typeWindowUpdate, 0, 16, nil)
	_, err = cs.Write([]byte("x"))
	assert.NoError(t, err)
}

func TestStream_FlowControlViolation(t *testing.T) {
	raw, server := rawServerPair(t, testConfig())

	go func() {
		raw.write(encode(typeWindowUpdate, flagSYN, 1, 0), nil)
		body := make([]byte, initialStreamWindow+1)
		raw.write(encode(typeData, 0, 1, uint32(len(body))), body)
	}()

	ss, err := server.acceptStream(context.Background())
	require.NoError(t, err)

	// ACK 之后收到 RST(FlowControlError)
	ack := raw.readHeader(t)
	assert.Equal(t, flagACK, ack.Flags())
	rst := raw.readHeader(t)
	assert.Equal(t, typeWindowUpdate, rst.MsgType())
	assert.Equal(t, flagRST, rst.Flags())
	assert.Equal(t, CodeFlowControlError, rst.Length())

	_, err = ss.Read(make([]byte, 1))
	var resetErr *StreamResetError
	require.ErrorAs(t, err, &resetErr)
	assert.False(t, resetErr.Remote)
	assert.Equal(t, CodeFlowControlError, resetErr.Code)

	// 只影响该流
	assert.False(t, server.IsClosed())
}

func TestStream_DataAfterFIN(t *testing.T) {
	raw, server := rawServerPair(t, testConfig())

	go func() {
		raw.write(encode(typeWindowUpdate, flagSYN, 1, 0), nil)
		raw.write(encode(typeWindowUpdate, flagFIN, 1, 0), nil)
		raw.write(encode(typeData, 0, 1, 3), []byte("bad"))
	}()

	_, err := server.acceptStream(context.Background())
	require.NoError(t, err)

	_ = raw.readHeader(t)
	rst := raw.readHeader(t)
	assert.Equal(t, flagRST, rst.Flags())
	assert.Equal(t, CodeProtocolError, rst.Length())
	assert.False(t, server.IsClosed())
}

func TestStream_IgnoresFramesAfterReset(t *testing.T) {
	client, server := sessionPair(t, testConfig())
	cs, _ := streamPair(t, client, server)

	require.NoError(t, cs.Reset())

	// 已终止的流忽略后续控制帧
	assert.False(t, cs.receive(typeWindowUpdate, flagFIN, 0, nil))
	assert.False(t, cs.receive(typeWindowUpdate, flagRST, 3, nil))
	_, err := cs.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestStream_LargeTransfer(t *testing.T) {
	client, server := sessionPair(t, testConfig())
	cs, ss := streamPair(t, client, server)

	data := make([]byte, 4<<20)
	_, err := rand.Read(data)
	require.NoError(t, err)

	go func() {
		_, _ = cs.Write(data)
		_ = cs.CloseWrite()
	}()

	got, err := io.ReadAll(ss)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
}
