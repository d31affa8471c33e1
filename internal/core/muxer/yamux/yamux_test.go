package yamux

import (
	"context"
	"io"
	"math"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/internal/core/muxer"
	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/types"
)

// testConnPair 创建测试用的 TCP 连接对
func testConnPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var serverConn net.Conn
	done := make(chan struct{})
	go func() {
		serverConn, _ = ln.Accept()
		close(done)
	}()

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	<-done
	require.NotNil(t, serverConn)
	return clientConn, serverConn
}

func connPair(t *testing.T) (interfaces.MuxedConn, interfaces.MuxedConn) {
	t.Helper()
	tr, err := NewTransport(nil)
	require.NoError(t, err)

	a, b := testConnPair(t)
	client, err := tr.NewConn(a, false)
	require.NoError(t, err)
	server, err := tr.NewConn(b, true)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func streamPair(t *testing.T, client, server interfaces.MuxedConn) (interfaces.MuxedStream, interfaces.MuxedStream) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cs, err := client.OpenStream(ctx)
	require.NoError(t, err)
	// 读到首字节后双方流都已建立
	_, err = cs.Write([]byte{0})
	require.NoError(t, err)

	ss, err := server.AcceptStream(ctx)
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = io.ReadFull(ss, buf)
	require.NoError(t, err)
	return cs, ss
}

func TestConfigFromUnified(t *testing.T) {
	cfg := ConfigFromUnified(nil)
	assert.Equal(t, io.Discard, cfg.LogOutput)
	assert.Equal(t, 0, cfg.ReadBufSize)
	assert.Equal(t, uint32(math.MaxUint32), cfg.MaxIncomingStreams)
	assert.Equal(t, uint32(maxStreamWindow), cfg.MaxStreamWindowSize)

	unified := config.NewConfig()
	unified.Muxer.InitialStreamWindow = 1 << 20
	unified.Muxer.AcceptBacklog = 16
	cfg = ConfigFromUnified(unified)
	assert.Equal(t, uint32(1<<20), cfg.InitialStreamWindowSize)
	assert.Equal(t, 16, cfg.AcceptBacklog)
}

func TestTransport_ID(t *testing.T) {
	tr, err := NewTransport(nil)
	require.NoError(t, err)
	assert.Equal(t, ID, tr.ID())
	assert.Equal(t, config.MuxerYamux, tr.ID())
}

func TestStream_ReadWrite(t *testing.T) {
	client, server := connPair(t)
	cs, ss := streamPair(t, client, server)

	_, err := cs.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, cs.CloseWrite())
	assert.Equal(t, types.StreamStateHalfClosedLocal, cs.State())

	got, err := io.ReadAll(ss)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
	assert.Equal(t, types.StreamStateHalfClosedRemote, ss.State())
}

func TestStream_Reset(t *testing.T) {
	client, server := connPair(t)
	cs, ss := streamPair(t, client, server)

	require.NoError(t, cs.ResetWithError(42))
	assert.Equal(t, types.StreamStateClosed, cs.State())

	_, err := cs.Write([]byte("x"))
	assert.ErrorIs(t, err, muxer.ErrStreamClosed)

	_, err = ss.Read(make([]byte, 1))
	var resetErr *muxer.StreamResetError
	require.ErrorAs(t, err, &resetErr)
	assert.Equal(t, uint32(42), resetErr.Code)
	assert.True(t, resetErr.Remote)
	assert.ErrorIs(t, err, muxer.ErrStreamReset)
}

func isDone(st interfaces.MuxedStream) bool {
	select {
	case <-st.Done():
		return true
	default:
		return false
	}
}

func TestStream_Done(t *testing.T) {
	client, server := connPair(t)

	cs, ss := streamPair(t, client, server)
	require.NoError(t, cs.CloseWrite())
	_, err := io.ReadAll(ss)
	require.NoError(t, err)
	assert.False(t, isDone(ss))
	require.NoError(t, ss.CloseWrite())
	assert.True(t, isDone(ss))
	_, err = io.ReadAll(cs)
	require.NoError(t, err)
	assert.True(t, isDone(cs))

	// 远端重置在下一次读时发现
	cs, ss = streamPair(t, client, server)
	require.NoError(t, cs.Reset())
	assert.True(t, isDone(cs))
	_, err = ss.Read(make([]byte, 1))
	assert.ErrorIs(t, err, muxer.ErrStreamReset)
	assert.True(t, isDone(ss))
}

func TestStream_CloseRead(t *testing.T) {
	client, server := connPair(t)
	_, ss := streamPair(t, client, server)

	require.NoError(t, ss.CloseRead())
	_, err := ss.Read(make([]byte, 1))
	assert.ErrorIs(t, err, muxer.ErrStreamClosed)
}

func TestStream_ReadDeadline(t *testing.T) {
	client, server := connPair(t)
	cs, _ := streamPair(t, client, server)

	require.NoError(t, cs.SetReadDeadline(time.Now().Add(30*time.Millisecond)))
	_, err := cs.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestConn_AcceptContext(t *testing.T) {
	_, server := connPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := server.AcceptStream(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConn_Close(t *testing.T) {
	client, server := connPair(t)

	require.NoError(t, server.Close())
	assert.True(t, server.IsClosed())

	_, err := server.AcceptStream(context.Background())
	assert.ErrorIs(t, err, muxer.ErrConnectionClosed)
	assert.ErrorIs(t, server.CloseErr(), muxer.ErrConnectionClosed)

	select {
	case <-client.CloseChan():
	case <-time.After(5 * time.Second):
		t.Fatal("对端未关闭")
	}
	assert.NoError(t, server.Close())
}

func TestConn_Ping(t *testing.T) {
	client, _ := connPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.(*muxedConn).Ping(ctx)
	require.NoError(t, err)
}

func TestConn_CloseGracefully(t *testing.T) {
	client, server := connPair(t)
	cs, ss := streamPair(t, client, server)

	done := make(chan error, 1)
	go func() { done <- client.(interfaces.GracefulCloser).CloseGracefully(context.Background()) }()

	select {
	case <-done:
		t.Fatal("仍有活跃流时不应关闭")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, cs.Close())
	require.NoError(t, ss.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("优雅关闭未完成")
	}
	assert.True(t, client.IsClosed())
}
