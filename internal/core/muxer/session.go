package muxer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	pool "github.com/libp2p/go-buffer-pool"

	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/lib/log"
)

var logger = log.Logger("core/muxer")

// closeFlushTimeout 关闭时等待发送协程写出剩余控制帧的上限
const closeFlushTimeout = time.Second

var errCanceled = errors.New("dmux: enqueue canceled")

// Session dmux 会话
type Session struct {
	config   Config
	conn     net.Conn
	reader   *bufio.Reader
	isClient bool

	streamLock sync.Mutex
	streams    map[uint32]*Stream
	nextID     uint32
	lastRemote uint32
	streamGone chan struct{}

	acceptCh chan *Stream

	// 连接级发送窗口
	connSendMu     sync.Mutex
	connSendWindow uint32
	connSendCh     chan struct{}

	// 连接级接收窗口
	connRecvMu     sync.Mutex
	connRecvCredit uint32
	connConsumed   uint32

	// 数据队列：用户调用产生的帧，按入队顺序写出
	sendCh chan []byte

	// 优先队列：窗口更新、协议错误 RST、Ping
	ctrlMu    sync.Mutex
	ctrlQueue []header
	ctrlReady chan struct{}

	pingMu sync.Mutex
	pings  map[uint32]chan struct{}
	pingID uint32
	rtt    atomic.Int64

	goAwaySent   atomic.Bool
	localGoAway  atomic.Bool
	remoteGoAway atomic.Bool

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	shutdownErr  error
	sendDone     chan struct{}
}

var (
	_ interfaces.MuxedConn      = (*Session)(nil)
	_ interfaces.GracefulCloser = (*Session)(nil)
)

// NewSession 在 conn 上创建会话，客户端使用奇数流 ID
func NewSession(conn net.Conn, cfg Config, isClient bool) *Session {
	cfg = cfg.normalize()
	s := &Session{
		config:         cfg,
		conn:           conn,
		reader:         bufio.NewReaderSize(conn, 4096),
		isClient:       isClient,
		streams:        make(map[uint32]*Stream),
		streamGone:     make(chan struct{}),
		acceptCh:       make(chan *Stream, cfg.AcceptBacklog),
		connSendWindow: initialConnWindow,
		connSendCh:     make(chan struct{}),
		connRecvCredit: cfg.ConnWindow,
		sendCh:         make(chan []byte),
		ctrlReady:      make(chan struct{}, 1),
		pings:          make(map[uint32]chan struct{}),
		shutdownCh:     make(chan struct{}),
		sendDone:       make(chan struct{}),
	}
	if isClient {
		s.nextID = 1
	} else {
		s.nextID = 2
	}

	if delta := cfg.ConnWindow - initialConnWindow; delta > 0 {
		s.queueCtrl(encode(typeWindowUpdate, 0, 0, delta))
	}

	go s.recv()
	go s.send()
	if cfg.EnableKeepAlive {
		go s.keepalive()
	}
	return s
}

// ============================================================================
//                              流管理
// ============================================================================

// OpenStream 分配新 ID 并发送 SYN，不等待 ACK
func (s *Session) OpenStream(ctx context.Context) (interfaces.MuxedStream, error) {
	return s.openStream(ctx)
}

func (s *Session) openStream(ctx context.Context) (*Stream, error) {
	if s.IsClosed() {
		return nil, ErrConnectionClosed
	}
	if s.remoteGoAway.Load() {
		return nil, ErrRemoteGoAway
	}
	if s.localGoAway.Load() {
		return nil, ErrLocalGoAway
	}

	s.streamLock.Lock()
	id := s.nextID
	if id >= math.MaxUint32-1 {
		s.streamLock.Unlock()
		return nil, ErrStreamsExhausted
	}
	s.nextID += 2
	st := newStream(s, id, false)
	s.streams[id] = st
	s.streamLock.Unlock()

	syn := newFrame(encode(typeWindowUpdate, flagSYN, id, st.recvWindow-initialStreamWindow), nil)
	if err := s.enqueue(syn, ctx.Done()); err != nil {
		s.removeStream(id)
		if errors.Is(err, errCanceled) {
			return nil, ctx.Err()
		}
		return nil, err
	}
	logger.Debug("打开流", "id", id)
	return st, nil
}

// AcceptStream 按 SYN 到达顺序返回对端打开的流
func (s *Session) AcceptStream(ctx context.Context) (interfaces.MuxedStream, error) {
	return s.acceptStream(ctx)
}

func (s *Session) acceptStream(ctx context.Context) (*Stream, error) {
	select {
	case st := <-s.acceptCh:
		return st, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.shutdownCh:
		return nil, ErrConnectionClosed
	}
}

// incomingStream 处理对端的 SYN
func (s *Session) incomingStream(id uint32) error {
	// 对端只能使用与本地相反奇偶性的 ID
	if (id%2 == 1) == s.isClient {
		return ErrInvalidStreamID
	}

	s.streamLock.Lock()
	if id <= s.lastRemote {
		s.streamLock.Unlock()
		return ErrDuplicateStream
	}
	s.lastRemote = id

	if s.localGoAway.Load() || len(s.acceptCh) >= cap(s.acceptCh) {
		s.streamLock.Unlock()
		logger.Debug("拒绝入站流", "id", id, "backlog", len(s.acceptCh))
		s.queueCtrl(encode(typeWindowUpdate, flagRST, id, CodeRefusedStream))
		return nil
	}

	st := newStream(s, id, true)
	s.streams[id] = st
	s.queueCtrl(encode(typeWindowUpdate, flagACK, id, st.recvWindow-initialStreamWindow))
	// 只有接收协程写入 acceptCh，容量已检查
	s.acceptCh <- st
	s.streamLock.Unlock()
	return nil
}

func (s *Session) getStream(id uint32) *Stream {
	s.streamLock.Lock()
	defer s.streamLock.Unlock()
	return s.streams[id]
}

func (s *Session) removeStream(id uint32) {
	s.streamLock.Lock()
	defer s.streamLock.Unlock()
	if _, ok := s.streams[id]; !ok {
		return
	}
	delete(s.streams, id)
	close(s.streamGone)
	s.streamGone = make(chan struct{})
}

// NumStreams 返回活跃流数量
func (s *Session) NumStreams() int {
	s.streamLock.Lock()
	defer s.streamLock.Unlock()
	return len(s.streams)
}

// ============================================================================
//                              流量控制
// ============================================================================

// reserveConnWindow 从连接发送窗口预留至多 want 字节
func (s *Session) reserveConnWindow(want uint32) (uint32, <-chan struct{}) {
	s.connSendMu.Lock()
	defer s.connSendMu.Unlock()
	n := min(want, s.connSendWindow)
	s.connSendWindow -= n
	return n, s.connSendCh
}

// addConnWindow 增加连接发送窗口并唤醒等待者
func (s *Session) addConnWindow(n uint32) {
	if n == 0 {
		return
	}
	s.connSendMu.Lock()
	s.connSendWindow += n
	close(s.connSendCh)
	s.connSendCh = make(chan struct{})
	s.connSendMu.Unlock()
}

func (s *Session) consumeConnCredit(n uint32) error {
	s.connRecvMu.Lock()
	defer s.connRecvMu.Unlock()
	if n > s.connRecvCredit {
		return ErrConnWindowExceeded
	}
	s.connRecvCredit -= n
	return nil
}

// returnConnCredit 应用读取或丢弃数据后归还连接额度，累计过半时通告对端
func (s *Session) returnConnCredit(n uint32) {
	if n == 0 {
		return
	}
	s.connRecvMu.Lock()
	s.connConsumed += n
	var delta uint32
	if s.connConsumed >= s.config.ConnWindow/2 {
		delta = s.connConsumed
		s.connRecvCredit += delta
		s.connConsumed = 0
	}
	s.connRecvMu.Unlock()

	if delta > 0 {
		s.queueCtrl(encode(typeWindowUpdate, 0, 0, delta))
	}
}

// ============================================================================
//                              发送
// ============================================================================

func newFrame(h header, body []byte) []byte {
	buf := pool.Get(headerSize + len(body))
	copy(buf, h[:])
	copy(buf[headerSize:], body)
	return buf
}

// enqueue 将帧放入数据队列，cancel 关闭或会话关闭时放弃
func (s *Session) enqueue(frame []byte, cancel <-chan struct{}) error {
	select {
	case s.sendCh <- frame:
		return nil
	case <-cancel:
		pool.Put(frame)
		return errCanceled
	case <-s.shutdownCh:
		pool.Put(frame)
		return ErrConnectionClosed
	}
}

// queueCtrl 将控制帧放入优先队列，不阻塞
func (s *Session) queueCtrl(h header) {
	s.ctrlMu.Lock()
	s.ctrlQueue = append(s.ctrlQueue, h)
	s.ctrlMu.Unlock()

	select {
	case s.ctrlReady <- struct{}{}:
	default:
	}
}

func (s *Session) popCtrl() (header, bool) {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()
	if len(s.ctrlQueue) == 0 {
		return header{}, false
	}
	h := s.ctrlQueue[0]
	s.ctrlQueue = s.ctrlQueue[1:]
	return h, true
}

func (s *Session) send() {
	err := s.sendLoop()
	close(s.sendDone)
	if err != nil {
		s.exit(err)
	}
}

func (s *Session) sendLoop() error {
	for {
		if h, ok := s.popCtrl(); ok {
			if err := s.write(h[:]); err != nil {
				return err
			}
			continue
		}

		select {
		case <-s.ctrlReady:
		case frame := <-s.sendCh:
			err := s.write(frame)
			pool.Put(frame)
			if err != nil {
				return err
			}
		case <-s.shutdownCh:
			// 尽量写出剩余控制帧（GoAway、RST）
			for {
				h, ok := s.popCtrl()
				if !ok {
					return nil
				}
				if err := s.write(h[:]); err != nil {
					return nil
				}
			}
		}
	}
}

func (s *Session) write(b []byte) error {
	if s.config.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	_, err := s.conn.Write(b)
	return err
}

// ============================================================================
//                              接收
// ============================================================================

func (s *Session) recv() {
	err := s.recvLoop()
	if errors.Is(err, ErrProtocol) {
		logger.Warn("协议错误，关闭会话", "error", err)
		s.queueCtrl(encode(typeGoAway, 0, 0, goAwayProtocolError))
	}
	s.exit(err)
}

func (s *Session) recvLoop() error {
	var hdr header
	for {
		if _, err := io.ReadFull(s.reader, hdr[:]); err != nil {
			return err
		}
		if hdr.Version() != protoVersion {
			return ErrInvalidVersion
		}

		var err error
		switch hdr.MsgType() {
		case typeData, typeWindowUpdate:
			err = s.handleStreamMessage(hdr)
		case typePing:
			s.handlePing(hdr)
		case typeGoAway:
			err = s.handleGoAway(hdr)
		default:
			return ErrInvalidFrameType
		}
		if err != nil {
			return err
		}
	}
}

func (s *Session) handleStreamMessage(hdr header) error {
	id := hdr.StreamID()
	flags := hdr.Flags()
	typ := hdr.MsgType()

	if id == 0 {
		if typ == typeData {
			return ErrUnexpectedStreamID0
		}
		s.addConnWindow(hdr.Length())
		return nil
	}

	if flags&flagSYN != 0 {
		if err := s.incomingStream(id); err != nil {
			return err
		}
	}
	st := s.getStream(id)

	var body []byte
	if typ == typeData {
		length := hdr.Length()
		if err := s.consumeConnCredit(length); err != nil {
			return err
		}
		if length > 0 {
			body = pool.Get(int(length))
			if _, err := io.ReadFull(s.reader, body); err != nil {
				pool.Put(body)
				return err
			}
		}
	}

	kept := false
	if st != nil {
		kept = st.receive(typ, flags, hdr.Length(), body)
	}
	if !kept && body != nil {
		// 未被流接收的数据也要归还连接额度
		pool.Put(body)
		s.returnConnCredit(hdr.Length())
	}
	return nil
}

func (s *Session) handlePing(hdr header) {
	flags := hdr.Flags()
	id := hdr.Length()
	if flags&flagSYN != 0 {
		s.queueCtrl(encode(typePing, flagACK, 0, id))
		return
	}
	if flags&flagACK != 0 {
		s.pingMu.Lock()
		if ch, ok := s.pings[id]; ok {
			close(ch)
			delete(s.pings, id)
		}
		s.pingMu.Unlock()
	}
}

func (s *Session) handleGoAway(hdr header) error {
	switch code := hdr.Length(); code {
	case goAwayNormal:
		logger.Debug("收到 GoAway")
		s.remoteGoAway.Store(true)
		return nil
	case goAwayProtocolError:
		return errors.New("dmux: remote reported protocol error")
	default:
		return fmt.Errorf("remote go away with code %d", code)
	}
}

// ============================================================================
//                              Ping / 保活
// ============================================================================

// Ping 测量往返时延
func (s *Session) Ping(ctx context.Context) (time.Duration, error) {
	s.pingMu.Lock()
	s.pingID++
	id := s.pingID
	ch := make(chan struct{})
	s.pings[id] = ch
	s.pingMu.Unlock()

	defer func() {
		s.pingMu.Lock()
		delete(s.pings, id)
		s.pingMu.Unlock()
	}()

	start := s.config.Clock.Now()
	s.queueCtrl(encode(typePing, flagSYN, 0, id))

	select {
	case <-ch:
		rtt := s.config.Clock.Since(start)
		s.rtt.Store(int64(rtt))
		return rtt, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.shutdownCh:
		return 0, ErrConnectionClosed
	}
}

// RTT 返回最近一次 Ping 的往返时延
func (s *Session) RTT() time.Duration {
	return time.Duration(s.rtt.Load())
}

func (s *Session) keepalive() {
	clk := s.config.Clock
	ticker := clk.Ticker(s.config.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := clk.WithTimeout(context.Background(), s.config.KeepAliveInterval)
			_, err := s.Ping(ctx)
			cancel()
			if err != nil {
				if !s.IsClosed() {
					logger.Debug("保活超时，关闭会话", "error", err)
					s.exit(ErrKeepAliveTimeout)
				}
				return
			}
		case <-s.shutdownCh:
			return
		}
	}
}

// ============================================================================
//                              关闭
// ============================================================================

// Close 发送 GoAway，终止所有流并关闭底层连接
func (s *Session) Close() error {
	if s.IsClosed() {
		return nil
	}
	if !s.goAwaySent.Swap(true) {
		s.queueCtrl(encode(typeGoAway, 0, 0, goAwayNormal))
	}
	s.exit(ErrConnectionClosed)
	return nil
}

// CloseGracefully 发送 GoAway 并拒绝新流，等待已有流结束（或 ctx 结束）后关闭
func (s *Session) CloseGracefully(ctx context.Context) error {
	s.localGoAway.Store(true)
	if !s.goAwaySent.Swap(true) {
		frame := newFrame(encode(typeGoAway, 0, 0, goAwayNormal), nil)
		if err := s.enqueue(frame, ctx.Done()); err != nil {
			_ = s.Close()
			if errors.Is(err, errCanceled) {
				return ctx.Err()
			}
			return nil
		}
	}

	for {
		s.streamLock.Lock()
		n := len(s.streams)
		gone := s.streamGone
		s.streamLock.Unlock()
		if n == 0 {
			break
		}
		select {
		case <-gone:
		case <-ctx.Done():
			_ = s.Close()
			return ctx.Err()
		case <-s.shutdownCh:
			return nil
		}
	}
	return s.Close()
}

// exit 以 err 为原因终止会话，只有第一次调用生效
func (s *Session) exit(err error) {
	s.shutdownOnce.Do(func() {
		if !errors.Is(err, ErrConnectionClosed) {
			err = fmt.Errorf("%w: %w", ErrConnectionClosed, err)
		}
		s.shutdownErr = err
		close(s.shutdownCh)

		timer := time.NewTimer(closeFlushTimeout)
		select {
		case <-s.sendDone:
		case <-timer.C:
		}
		timer.Stop()
		_ = s.conn.Close()

		s.streamLock.Lock()
		streams := s.streams
		s.streams = make(map[uint32]*Stream)
		s.streamLock.Unlock()
		for _, st := range streams {
			st.sessionClose()
		}
		logger.Debug("会话已关闭", "streams", len(streams), "reason", err)
	})
}

// IsClosed 检查会话是否已关闭
func (s *Session) IsClosed() bool {
	select {
	case <-s.shutdownCh:
		return true
	default:
		return false
	}
}

// CloseChan 会话关闭时关闭的通道
func (s *Session) CloseChan() <-chan struct{} { return s.shutdownCh }

// CloseErr 返回会话关闭原因，均可用 errors.Is(err, ErrConnectionClosed) 匹配
func (s *Session) CloseErr() error {
	if !s.IsClosed() {
		return nil
	}
	return s.shutdownErr
}
