package muxer

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	pool "github.com/libp2p/go-buffer-pool"

	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/types"
)

// Stream dmux 流
//
// 状态由各方向的标志推导：本地 FIN、远端 FIN、本地 STOP_SENDING、
// 重置以及会话关闭。
type Stream struct {
	id      uint32
	session *Session

	mu sync.Mutex

	established   bool
	writeClosed   bool
	remoteFIN     bool
	readStopped   bool
	localReset    bool
	resetErr      *StreamResetError
	stopErr       *StopSendingError
	sessionClosed bool
	removed       bool

	// 接收缓冲：池化的数据块
	recvBuf    [][]byte
	recvOff    int
	recvLen    int
	recvWindow uint32
	recvCredit uint32
	consumed   uint32

	sendWindow uint32

	// 状态变化时关闭并替换，唤醒所有等待者
	readCh chan struct{}
	sendCh chan struct{}

	readDeadline  pipeDeadline
	writeDeadline pipeDeadline

	writeMu sync.Mutex

	done     chan struct{}
	doneOnce sync.Once
}

var _ interfaces.MuxedStream = (*Stream)(nil)

func newStream(s *Session, id uint32, established bool) *Stream {
	return &Stream{
		id:            id,
		session:       s,
		established:   established,
		recvWindow:    s.config.StreamWindow,
		recvCredit:    s.config.StreamWindow,
		sendWindow:    initialStreamWindow,
		readCh:        make(chan struct{}),
		sendCh:        make(chan struct{}),
		readDeadline:  makePipeDeadline(),
		writeDeadline: makePipeDeadline(),
		done:          make(chan struct{}),
	}
}

// ID 返回流 ID
func (st *Stream) ID() uint64 { return uint64(st.id) }

// Done 流结束后关闭
func (st *Stream) Done() <-chan struct{} { return st.done }

func (st *Stream) finish() {
	st.doneOnce.Do(func() { close(st.done) })
}

// State 返回流状态
func (st *Stream) State() types.StreamState {
	st.mu.Lock()
	defer st.mu.Unlock()

	writeDone := st.writeClosed
	readDone := st.remoteFIN || st.readStopped
	switch {
	case st.localReset, st.resetErr != nil, st.sessionClosed:
		return types.StreamStateClosed
	case writeDone && readDone:
		return types.StreamStateClosed
	case writeDone:
		return types.StreamStateHalfClosedLocal
	case readDone:
		return types.StreamStateHalfClosedRemote
	case !st.established:
		return types.StreamStateOpening
	default:
		return types.StreamStateOpen
	}
}

// ============================================================================
//                              读
// ============================================================================

// Read 读取数据，远端 FIN 且缓冲读空后返回 io.EOF
func (st *Stream) Read(b []byte) (int, error) {
	for {
		st.mu.Lock()
		if st.recvLen > 0 && !st.localReset && !st.readStopped {
			n := st.copyOutLocked(b)
			delta := st.consumeLocked(uint32(n))
			st.mu.Unlock()

			if delta > 0 {
				st.session.queueCtrl(encode(typeWindowUpdate, 0, st.id, delta))
			}
			st.session.returnConnCredit(uint32(n))
			return n, nil
		}
		if err := st.readErrLocked(); err != nil {
			st.mu.Unlock()
			return 0, err
		}
		wait := st.readCh
		st.mu.Unlock()

		select {
		case <-wait:
		case <-st.readDeadline.wait():
			return 0, os.ErrDeadlineExceeded
		}
	}
}

func (st *Stream) readErrLocked() error {
	switch {
	case st.localReset:
		return ErrStreamClosed
	case st.resetErr != nil:
		return st.resetErr
	case st.readStopped:
		return ErrStreamClosed
	case st.remoteFIN:
		return io.EOF
	case st.sessionClosed:
		return ErrConnectionClosed
	}
	return nil
}

func (st *Stream) copyOutLocked(b []byte) int {
	n := 0
	for n < len(b) && len(st.recvBuf) > 0 {
		chunk := st.recvBuf[0]
		c := copy(b[n:], chunk[st.recvOff:])
		n += c
		st.recvOff += c
		if st.recvOff == len(chunk) {
			pool.Put(chunk)
			st.recvBuf[0] = nil
			st.recvBuf = st.recvBuf[1:]
			st.recvOff = 0
		}
	}
	st.recvLen -= n
	return n
}

// consumeLocked 记录应用已读字节，累计达到半个窗口时返回需要通告的额度
func (st *Stream) consumeLocked(n uint32) uint32 {
	st.consumed += n
	if st.remoteFIN || st.consumed < st.recvWindow/2 {
		return 0
	}
	delta := st.consumed
	st.recvCredit += delta
	st.consumed = 0
	return delta
}

// discardLocked 丢弃接收缓冲，返回丢弃的字节数
func (st *Stream) discardLocked() uint32 {
	n := st.recvLen
	for _, chunk := range st.recvBuf {
		pool.Put(chunk)
	}
	st.recvBuf = nil
	st.recvOff = 0
	st.recvLen = 0
	return uint32(n)
}

// ============================================================================
//                              写
// ============================================================================

// Write 写入数据，窗口为 0 时阻塞直到收到窗口更新、超时、重置或会话关闭
func (st *Stream) Write(b []byte) (int, error) {
	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	total := 0
	for total < len(b) {
		n, err := st.write(b[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (st *Stream) write(b []byte) (int, error) {
	s := st.session
	for {
		st.mu.Lock()
		if err := st.writeErrLocked(); err != nil {
			st.mu.Unlock()
			return 0, err
		}
		window := st.sendWindow
		wait := st.sendCh
		st.mu.Unlock()

		if window == 0 {
			select {
			case <-wait:
				continue
			case <-st.writeDeadline.wait():
				return 0, os.ErrDeadlineExceeded
			}
		}

		want := min(window, s.config.MaxFrameSize, uint32(len(b)))
		n, connWait := s.reserveConnWindow(want)
		if n == 0 {
			select {
			case <-connWait:
				continue
			case <-wait:
				continue
			case <-st.writeDeadline.wait():
				return 0, os.ErrDeadlineExceeded
			}
		}

		st.mu.Lock()
		if err := st.writeErrLocked(); err != nil {
			st.mu.Unlock()
			s.addConnWindow(n)
			return 0, err
		}
		st.sendWindow -= n
		st.mu.Unlock()

		frame := newFrame(encode(typeData, 0, st.id, n), b[:n])
		if err := s.enqueue(frame, st.writeDeadline.wait()); err != nil {
			st.mu.Lock()
			st.sendWindow += n
			st.mu.Unlock()
			s.addConnWindow(n)
			if errors.Is(err, errCanceled) {
				return 0, os.ErrDeadlineExceeded
			}
			return 0, err
		}
		return int(n), nil
	}
}

func (st *Stream) writeErrLocked() error {
	switch {
	case st.localReset:
		return ErrStreamClosed
	case st.resetErr != nil:
		return st.resetErr
	case st.writeClosed:
		return ErrStreamClosed
	case st.stopErr != nil:
		return st.stopErr
	case st.sessionClosed:
		return ErrConnectionClosed
	}
	return nil
}

// ============================================================================
//                              关闭与重置
// ============================================================================

// CloseWrite 发送 FIN，幂等
func (st *Stream) CloseWrite() error {
	st.mu.Lock()
	if st.writeClosed || st.localReset || st.resetErr != nil {
		st.mu.Unlock()
		return nil
	}
	if st.sessionClosed {
		st.mu.Unlock()
		return ErrConnectionClosed
	}
	st.writeClosed = true
	st.notifySendLocked()
	st.mu.Unlock()

	err := st.session.enqueue(newFrame(encode(typeWindowUpdate, flagFIN, st.id, 0), nil), nil)
	st.maybeRemove()
	return err
}

// CloseRead 停止接收，等价于 StopSending(CodeCancel)
func (st *Stream) CloseRead() error {
	return st.StopSending(CodeCancel)
}

// StopSending 通知对端停止发送，丢弃已缓冲和后续到达的数据
func (st *Stream) StopSending(code uint32) error {
	st.mu.Lock()
	if st.readStopped || st.localReset || st.resetErr != nil || st.sessionClosed {
		st.mu.Unlock()
		return nil
	}
	st.readStopped = true
	discarded := st.discardLocked()
	remoteDone := st.remoteFIN
	st.notifyReadLocked()
	st.mu.Unlock()

	st.session.returnConnCredit(discarded)

	var err error
	if !remoteDone {
		err = st.session.enqueue(newFrame(encode(typeWindowUpdate, flagStopSending, st.id, code), nil), nil)
	}
	st.maybeRemove()
	return err
}

// Close 关闭写端并停止接收
func (st *Stream) Close() error {
	werr := st.CloseWrite()
	rerr := st.CloseRead()
	if werr != nil {
		return werr
	}
	return rerr
}

// Reset 以 CodeCancel 重置流
func (st *Stream) Reset() error {
	return st.ResetWithError(CodeCancel)
}

// ResetWithError 发送 RESET_STREAM 并立即终止两个方向，幂等
func (st *Stream) ResetWithError(code uint32) error {
	st.mu.Lock()
	if st.localReset || st.resetErr != nil || (st.writeClosed && st.remoteFIN) {
		st.mu.Unlock()
		return nil
	}
	st.localReset = true
	sessionClosed := st.sessionClosed
	discarded := st.discardLocked()
	st.notifyReadLocked()
	st.notifySendLocked()
	st.mu.Unlock()

	st.session.returnConnCredit(discarded)
	st.session.removeStream(st.id)
	st.finish()
	if sessionClosed {
		return nil
	}
	err := st.session.enqueue(newFrame(encode(typeWindowUpdate, flagRST, st.id, code), nil), nil)
	if errors.Is(err, ErrConnectionClosed) {
		return nil
	}
	return err
}

// resetByProtocol 流级协议错误：本地终止并经优先队列通知对端
func (st *Stream) resetByProtocolLocked(code uint32) uint32 {
	st.resetErr = &StreamResetError{Code: code}
	discarded := st.discardLocked()
	st.notifyReadLocked()
	st.notifySendLocked()
	st.session.queueCtrl(encode(typeWindowUpdate, flagRST, st.id, code))
	return discarded
}

// maybeRemove 两个方向都结束后从会话中移除
func (st *Stream) maybeRemove() {
	st.mu.Lock()
	done := st.localReset || st.resetErr != nil ||
		((st.writeClosed || st.stopErr != nil) && (st.remoteFIN || st.readStopped))
	if !done || st.removed {
		st.mu.Unlock()
		return
	}
	st.removed = true
	st.mu.Unlock()
	st.session.removeStream(st.id)
	st.finish()
}

// sessionClose 会话关闭时调用，已缓冲的数据仍可读出
func (st *Stream) sessionClose() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.sessionClosed {
		return
	}
	st.sessionClosed = true
	st.removed = true
	st.notifyReadLocked()
	st.notifySendLocked()
	st.finish()
}

// ============================================================================
//                              入站帧
// ============================================================================

// receive 处理发往本流的帧，返回 body 是否被流接收
func (st *Stream) receive(typ frameType, flags uint16, length uint32, body []byte) bool {
	var returned uint32
	kept := false

	st.mu.Lock()
	if st.localReset || st.resetErr != nil || st.sessionClosed {
		st.mu.Unlock()
		return false
	}
	st.established = true

	// RST 优先：丢弃一切
	if flags&flagRST != 0 {
		code := uint32(0)
		if typ == typeWindowUpdate {
			code = length
		}
		st.resetErr = &StreamResetError{Code: code, Remote: true}
		returned = st.discardLocked()
		st.notifyReadLocked()
		st.notifySendLocked()
		st.mu.Unlock()

		st.session.returnConnCredit(returned)
		st.maybeRemove()
		return false
	}

	if typ == typeData && len(body) > 0 {
		n := uint32(len(body))
		switch {
		case st.readStopped:
		case st.remoteFIN:
			returned = st.resetByProtocolLocked(CodeProtocolError)
		case n > st.recvCredit:
			logger.Debug("流超出接收窗口，重置", "id", st.id, "len", n, "credit", st.recvCredit)
			returned = st.resetByProtocolLocked(CodeFlowControlError)
		default:
			st.recvCredit -= n
			st.recvBuf = append(st.recvBuf, body)
			st.recvLen += len(body)
			st.notifyReadLocked()
			kept = true
		}
		if st.resetErr != nil {
			st.mu.Unlock()
			st.session.returnConnCredit(returned)
			st.maybeRemove()
			return false
		}
	}

	if flags&flagStopSending != 0 {
		code := uint32(0)
		if typ == typeWindowUpdate {
			code = length
		}
		if st.stopErr == nil {
			st.stopErr = &StopSendingError{Code: code}
			st.notifySendLocked()
		}
	} else if typ == typeWindowUpdate && length > 0 {
		st.sendWindow += length
		st.notifySendLocked()
	}

	if flags&flagFIN != 0 && !st.remoteFIN {
		st.remoteFIN = true
		st.notifyReadLocked()
	}
	st.mu.Unlock()

	st.maybeRemove()
	return kept
}

func (st *Stream) notifyReadLocked() {
	close(st.readCh)
	st.readCh = make(chan struct{})
}

func (st *Stream) notifySendLocked() {
	close(st.sendCh)
	st.sendCh = make(chan struct{})
}

// ============================================================================
//                              截止时间
// ============================================================================

// SetDeadline 同时设置读写截止时间
func (st *Stream) SetDeadline(t time.Time) error {
	st.readDeadline.set(t)
	st.writeDeadline.set(t)
	return nil
}

// SetReadDeadline 设置读截止时间
func (st *Stream) SetReadDeadline(t time.Time) error {
	st.readDeadline.set(t)
	return nil
}

// SetWriteDeadline 设置写截止时间
func (st *Stream) SetWriteDeadline(t time.Time) error {
	st.writeDeadline.set(t)
	return nil
}
