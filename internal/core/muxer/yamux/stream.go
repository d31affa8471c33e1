package yamux

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/libp2p/go-yamux/v5"

	"github.com/dep2p/go-substrate/internal/core/muxer"
	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/types"
)

// muxedStream 包装 yamux.Stream，实现 MuxedStream 接口
//
// yamux 不公开流状态，这里根据本地调用和读写结果推导。
type muxedStream struct {
	stream *yamux.Stream

	mu          sync.Mutex
	writeClosed bool
	readClosed  bool
	reset       bool

	done     chan struct{}
	doneOnce sync.Once
}

var _ interfaces.MuxedStream = (*muxedStream)(nil)

func newStream(s *yamux.Stream) *muxedStream {
	return &muxedStream{stream: s, done: make(chan struct{})}
}

// Read 从流中读取数据
func (s *muxedStream) Read(p []byte) (int, error) {
	n, err := s.stream.Read(p)
	if err == nil {
		return n, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.checkDoneLocked()
	if errors.Is(err, io.EOF) {
		s.readClosed = true
		return n, io.EOF
	}
	// yamux 在本地 CloseRead 后返回 ErrStreamReset
	if s.readClosed || s.reset {
		return n, muxer.ErrStreamClosed
	}
	err = parseError(err)
	if errors.Is(err, muxer.ErrStreamReset) {
		s.reset = true
	}
	return n, err
}

// Write 向流中写入数据
func (s *muxedStream) Write(p []byte) (int, error) {
	n, err := s.stream.Write(p)
	if err == nil {
		return n, nil
	}

	err = parseError(err)
	if errors.Is(err, muxer.ErrStreamReset) {
		s.mu.Lock()
		s.reset = true
		s.checkDoneLocked()
		s.mu.Unlock()
	}
	return n, err
}

// Close 关闭写端并停止接收
func (s *muxedStream) Close() error {
	s.mu.Lock()
	s.writeClosed, s.readClosed = true, true
	s.checkDoneLocked()
	s.mu.Unlock()
	return parseError(s.stream.Close())
}

// CloseWrite 关闭写端
func (s *muxedStream) CloseWrite() error {
	s.mu.Lock()
	s.writeClosed = true
	s.checkDoneLocked()
	s.mu.Unlock()
	return parseError(s.stream.CloseWrite())
}

// CloseRead 关闭读端
func (s *muxedStream) CloseRead() error {
	s.mu.Lock()
	s.readClosed = true
	s.checkDoneLocked()
	s.mu.Unlock()
	return parseError(s.stream.CloseRead())
}

// Reset 重置流
func (s *muxedStream) Reset() error {
	return s.ResetWithError(muxer.CodeCancel)
}

// ResetWithError 以错误码重置流
func (s *muxedStream) ResetWithError(code uint32) error {
	s.mu.Lock()
	s.reset = true
	s.checkDoneLocked()
	s.mu.Unlock()
	return parseError(s.stream.ResetWithError(code))
}

// Done 两个方向都结束或流被重置后关闭
//
// yamux 不通知远端重置，远端重置在下一次读写时才被发现。
func (s *muxedStream) Done() <-chan struct{} { return s.done }

func (s *muxedStream) checkDoneLocked() {
	if s.reset || (s.writeClosed && s.readClosed) {
		s.doneOnce.Do(func() { close(s.done) })
	}
}

// ID 返回流 ID
func (s *muxedStream) ID() uint64 {
	return uint64(s.stream.StreamID())
}

// State 返回流状态
func (s *muxedStream) State() types.StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.reset, s.writeClosed && s.readClosed:
		return types.StreamStateClosed
	case s.writeClosed:
		return types.StreamStateHalfClosedLocal
	case s.readClosed:
		return types.StreamStateHalfClosedRemote
	default:
		return types.StreamStateOpen
	}
}

// SetDeadline 设置读写截止时间
func (s *muxedStream) SetDeadline(t time.Time) error {
	return s.stream.SetDeadline(t)
}

// SetReadDeadline 设置读截止时间
func (s *muxedStream) SetReadDeadline(t time.Time) error {
	return s.stream.SetReadDeadline(t)
}

// SetWriteDeadline 设置写截止时间
func (s *muxedStream) SetWriteDeadline(t time.Time) error {
	return s.stream.SetWriteDeadline(t)
}
