package datachannel

import (
	"bufio"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/multiformats/go-varint"
	"github.com/pion/datachannel"

	"github.com/dep2p/go-substrate/internal/core/muxer"
	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/lib/log"
	pb "github.com/dep2p/go-substrate/pkg/lib/proto/webrtc"
	"github.com/dep2p/go-substrate/pkg/types"
)

var logger = log.Logger("core/muxer/datachannel")

const (
	// MaxMessageSize 单条消息上限（含长度前缀）
	MaxMessageSize = 16 << 10

	// protoOverhead 长度前缀与 protobuf 字段头的上限
	protoOverhead = 5 + 2 + 3 + 2 + 6

	// MaxPayloadSize 单条消息可携带的最大数据
	MaxPayloadSize = MaxMessageSize - protoOverhead

	// DefaultFinAckTimeout 等待 FIN_ACK 的时间，超时后直接关闭通道
	DefaultFinAckTimeout = 10 * time.Second
)

// ErrMessageTooLarge 收到超出上限的消息
var ErrMessageTooLarge = errors.New("datachannel: message too large")

type sendState uint8

const (
	sendOpen sendState = iota
	sendFINSent
	sendFINAcked
	sendStopped
	sendReset
)

type recvState uint8

const (
	recvOpen recvState = iota
	recvFIN
	recvStopped
	recvReset
)

// Stream 数据通道流
type Stream struct {
	id     uint64
	rwc    io.ReadWriteCloser
	reader *bufio.Reader

	writeMu sync.Mutex

	mu        sync.Mutex
	send      sendState
	recv      recvState
	localErr  bool
	resetErr  *muxer.StreamResetError
	stopErr   *muxer.StopSendingError
	closeErr  error
	chClosed  bool
	recvBuf   [][]byte
	readCh    chan struct{}
	readDL    time.Time
	writeDL   time.Time
	finTimer  *time.Timer
	finAckTTL time.Duration

	done chan struct{}
}

var _ interfaces.MuxedStream = (*Stream)(nil)

// Option 流选项
type Option func(*Stream)

// WithFinAckTimeout 设置等待 FIN_ACK 的时间
func WithFinAckTimeout(d time.Duration) Option {
	return func(s *Stream) { s.finAckTTL = d }
}

// New 在保持消息边界的通道上创建流，并启动接收协程
func New(rwc io.ReadWriteCloser, id uint64, opts ...Option) *Stream {
	s := &Stream{
		id:        id,
		rwc:       rwc,
		reader:    bufio.NewReaderSize(rwc, MaxMessageSize+varint.MaxLenUvarint63),
		readCh:    make(chan struct{}),
		finAckTTL: DefaultFinAckTimeout,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.readLoop()
	return s
}

// FromDataChannel 将 pion 数据通道包装为流，流 ID 取 SCTP 流标识
func FromDataChannel(dc *datachannel.DataChannel, opts ...Option) *Stream {
	return New(dc, uint64(dc.StreamIdentifier()), opts...)
}

// ID 返回流 ID
func (s *Stream) ID() uint64 { return s.id }

// Done 通道关闭后关闭
func (s *Stream) Done() <-chan struct{} { return s.done }

// State 返回流状态
func (s *Stream) State() types.StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()

	writeDone := s.send != sendOpen
	readDone := s.recv != recvOpen
	switch {
	case s.send == sendReset || s.recv == recvReset:
		return types.StreamStateClosed
	case writeDone && readDone:
		return types.StreamStateClosed
	case writeDone:
		return types.StreamStateHalfClosedLocal
	case readDone:
		return types.StreamStateHalfClosedRemote
	default:
		return types.StreamStateOpen
	}
}

// ============================================================================
//                              读
// ============================================================================

// Read 读取数据，收到 FIN 且缓冲读空后返回 io.EOF
func (s *Stream) Read(b []byte) (int, error) {
	for {
		s.mu.Lock()
		// 停止接收或重置时缓冲已清空
		if len(s.recvBuf) > 0 {
			n := copy(b, s.recvBuf[0])
			if n == len(s.recvBuf[0]) {
				s.recvBuf[0] = nil
				s.recvBuf = s.recvBuf[1:]
			} else {
				s.recvBuf[0] = s.recvBuf[0][n:]
			}
			s.mu.Unlock()
			return n, nil
		}
		if err := s.readErrLocked(); err != nil {
			s.mu.Unlock()
			return 0, err
		}
		wait := s.readCh
		deadline := s.readDL
		s.mu.Unlock()

		if err := waitUntil(wait, deadline); err != nil {
			return 0, err
		}
	}
}

func (s *Stream) readErrLocked() error {
	switch s.recv {
	case recvReset:
		if s.localErr || s.resetErr == nil {
			return muxer.ErrStreamClosed
		}
		return s.resetErr
	case recvStopped:
		return muxer.ErrStreamClosed
	case recvFIN:
		return io.EOF
	}
	if s.chClosed {
		return s.closeErr
	}
	return nil
}

// waitUntil 等待 wait 关闭或到达截止时间
func waitUntil(wait <-chan struct{}, deadline time.Time) error {
	if deadline.IsZero() {
		<-wait
		return nil
	}
	d := time.Until(deadline)
	if d <= 0 {
		return os.ErrDeadlineExceeded
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-wait:
		return nil
	case <-timer.C:
		return os.ErrDeadlineExceeded
	}
}

func (s *Stream) notifyLocked() {
	close(s.readCh)
	s.readCh = make(chan struct{})
}

// ============================================================================
//                              写
// ============================================================================

// Write 按 MaxPayloadSize 分片写入
func (s *Stream) Write(b []byte) (int, error) {
	total := 0
	for total < len(b) {
		s.mu.Lock()
		err := s.writeErrLocked()
		deadline := s.writeDL
		s.mu.Unlock()
		if err != nil {
			return total, err
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return total, os.ErrDeadlineExceeded
		}

		end := min(total+MaxPayloadSize, len(b))
		if err := s.writeMessage(&pb.Message{Message: b[total:end]}); err != nil {
			return total, err
		}
		total = end
	}
	return total, nil
}

func (s *Stream) writeErrLocked() error {
	switch s.send {
	case sendReset:
		if s.localErr || s.resetErr == nil {
			return muxer.ErrStreamClosed
		}
		return s.resetErr
	case sendFINSent, sendFINAcked:
		return muxer.ErrStreamClosed
	case sendStopped:
		return s.stopErr
	}
	if s.chClosed {
		return s.closeErr
	}
	return nil
}

func (s *Stream) writeMessage(msg *pb.Message) error {
	body := msg.Marshal()
	buf := varint.ToUvarint(uint64(len(body)))
	buf = append(buf, body...)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.rwc.Write(buf)
	return err
}

func (s *Stream) writeFlag(flag pb.Flag, code *uint32) error {
	return s.writeMessage(&pb.Message{Flag: pb.FlagPtr(flag), ErrorCode: code})
}

// ============================================================================
//                              关闭与重置
// ============================================================================

// CloseWrite 发送 FIN，幂等
func (s *Stream) CloseWrite() error {
	s.mu.Lock()
	if s.send != sendOpen {
		s.mu.Unlock()
		return nil
	}
	if s.chClosed {
		s.mu.Unlock()
		return s.closeErr
	}
	s.send = sendFINSent
	s.finTimer = time.AfterFunc(s.finAckTTL, s.finAckTimeout)
	s.mu.Unlock()

	err := s.writeFlag(pb.FlagFIN, nil)
	s.maybeClose()
	return err
}

func (s *Stream) finAckTimeout() {
	s.mu.Lock()
	if s.send != sendFINSent {
		s.mu.Unlock()
		return
	}
	logger.Debug("等待 FIN_ACK 超时", "id", s.id)
	s.send = sendFINAcked
	s.mu.Unlock()
	s.maybeClose()
}

// CloseRead 停止接收，等价于 StopSending(CodeCancel)
func (s *Stream) CloseRead() error {
	return s.StopSending(muxer.CodeCancel)
}

// StopSending 发送 STOP_SENDING，丢弃已缓冲和后续到达的数据
func (s *Stream) StopSending(code uint32) error {
	s.mu.Lock()
	if s.recv == recvStopped || s.recv == recvReset {
		s.mu.Unlock()
		return nil
	}
	remoteDone := s.recv == recvFIN
	s.recv = recvStopped
	s.recvBuf = nil
	closed := s.chClosed
	s.notifyLocked()
	s.mu.Unlock()

	var err error
	if !remoteDone && !closed {
		err = s.writeFlag(pb.FlagStopSending, &code)
	}
	s.maybeClose()
	return err
}

// Close 关闭写端并停止接收
func (s *Stream) Close() error {
	werr := s.CloseWrite()
	rerr := s.CloseRead()
	if werr != nil {
		return werr
	}
	return rerr
}

// Reset 以 CodeCancel 重置流
func (s *Stream) Reset() error {
	return s.ResetWithError(muxer.CodeCancel)
}

// ResetWithError 发送 RESET_STREAM 并关闭通道，幂等
func (s *Stream) ResetWithError(code uint32) error {
	s.mu.Lock()
	if s.send == sendReset || s.recv == recvReset || s.chClosed {
		s.mu.Unlock()
		return nil
	}
	s.send, s.recv = sendReset, recvReset
	s.localErr = true
	s.resetErr = &muxer.StreamResetError{Code: code}
	s.recvBuf = nil
	s.notifyLocked()
	s.mu.Unlock()

	err := s.writeFlag(pb.FlagResetStream, &code)
	s.closeChannel(muxer.ErrStreamClosed)
	return err
}

// maybeClose 两个方向都结束后关闭通道
func (s *Stream) maybeClose() {
	s.mu.Lock()
	sendDone := s.send == sendFINAcked || s.send == sendStopped
	recvDone := s.recv == recvFIN || s.recv == recvStopped
	s.mu.Unlock()
	if sendDone && recvDone {
		s.closeChannel(muxer.ErrStreamClosed)
	}
}

func (s *Stream) closeChannel(reason error) {
	s.mu.Lock()
	if s.chClosed {
		s.mu.Unlock()
		return
	}
	s.chClosed = true
	s.closeErr = reason
	if s.finTimer != nil {
		s.finTimer.Stop()
	}
	s.notifyLocked()
	s.mu.Unlock()

	_ = s.rwc.Close()
}

// ============================================================================
//                              接收
// ============================================================================

func (s *Stream) readLoop() {
	defer close(s.done)
	for {
		msg, err := s.readMessage()
		if err != nil {
			s.mu.Lock()
			if !s.chClosed {
				logger.Debug("数据通道读取结束", "id", s.id, "error", err)
			}
			s.mu.Unlock()
			s.closeChannel(muxer.ErrConnectionClosed)
			return
		}
		s.handle(msg)
	}
}

func (s *Stream) readMessage() (*pb.Message, error) {
	size, err := varint.ReadUvarint(s.reader)
	if err != nil {
		return nil, err
	}
	if size > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(s.reader, buf); err != nil {
		return nil, err
	}
	var msg pb.Message
	if err := msg.Unmarshal(buf); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *Stream) handle(msg *pb.Message) {
	s.mu.Lock()
	if len(msg.Message) > 0 && s.recv == recvOpen {
		s.recvBuf = append(s.recvBuf, msg.Message)
		s.notifyLocked()
	}
	if msg.Flag == nil {
		s.mu.Unlock()
		return
	}

	code := uint32(0)
	if msg.ErrorCode != nil {
		code = *msg.ErrorCode
	}

	switch *msg.Flag {
	case pb.FlagFIN:
		if s.recv == recvOpen {
			s.recv = recvFIN
			s.notifyLocked()
		}
		s.mu.Unlock()
		if err := s.writeFlag(pb.FlagFINAck, nil); err != nil {
			logger.Debug("发送 FIN_ACK 失败", "id", s.id, "error", err)
		}
		s.maybeClose()

	case pb.FlagFINAck:
		if s.send == sendFINSent {
			s.send = sendFINAcked
			s.finTimer.Stop()
		}
		s.mu.Unlock()
		s.maybeClose()

	case pb.FlagStopSending:
		if s.send == sendOpen || s.send == sendFINSent {
			s.send = sendStopped
			s.stopErr = &muxer.StopSendingError{Code: code}
		}
		s.mu.Unlock()
		s.maybeClose()

	case pb.FlagResetStream:
		if s.send != sendReset {
			s.send, s.recv = sendReset, recvReset
			s.resetErr = &muxer.StreamResetError{Code: code, Remote: true}
			s.recvBuf = nil
			s.notifyLocked()
		}
		reason := s.resetErr
		s.mu.Unlock()
		s.closeChannel(reason)

	default:
		s.mu.Unlock()
	}
}

// ============================================================================
//                              截止时间
// ============================================================================

// SetDeadline 同时设置读写截止时间
func (s *Stream) SetDeadline(t time.Time) error {
	s.mu.Lock()
	s.readDL, s.writeDL = t, t
	s.notifyLocked()
	s.mu.Unlock()
	return nil
}

// SetReadDeadline 设置读截止时间
func (s *Stream) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	s.readDL = t
	s.notifyLocked()
	s.mu.Unlock()
	return nil
}

// SetWriteDeadline 设置写截止时间
func (s *Stream) SetWriteDeadline(t time.Time) error {
	s.mu.Lock()
	s.writeDL = t
	s.mu.Unlock()
	return nil
}
