package swarm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dep2p/go-substrate/internal/core/metrics"
	"github.com/dep2p/go-substrate/internal/core/protocol"
	"github.com/dep2p/go-substrate/internal/core/transport"
	"github.com/dep2p/go-substrate/internal/core/upgrader"
	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/lib/log"
	"github.com/dep2p/go-substrate/pkg/types"
)

var logger = log.Logger("core/swarm")

// 安全事件类型，认证失败时取握手错误的 Kind 字符串
const (
	SecurityEventDecryptFailed = "decrypt-failed"
)

// closeConcurrency Close 时并发关闭连接的上限
const closeConcurrency = 16

// Swarm 连接管理器
//
// 按已验证的 PeerID 登记连接。mu 只保护注册与查找，
// 握手和 I/O 都在锁外进行。
type Swarm struct {
	local types.PeerID
	cfg   Config

	transports *transport.Registry
	upgrader   *upgrader.Upgrader
	negotiator *protocol.Negotiator
	handlers   *protocol.Registry
	metrics    metrics.Reporter
	clock      clock.Clock

	mu        sync.RWMutex
	conns     map[types.PeerID][]*Conn
	listeners map[interfaces.Listener]struct{}

	notifyMu  sync.RWMutex
	notifiees map[interfaces.Notifiee]struct{}

	dials        singleflight.Group
	authFailures *lru.Cache[types.PeerID, authFailure]
	inbound      chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
	wg     sync.WaitGroup
}

type authFailure struct {
	until time.Time
	err   error
}

// Option Swarm 选项
type Option func(*Swarm)

// WithMetrics 设置指标接收方
func WithMetrics(r metrics.Reporter) Option {
	return func(s *Swarm) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithClock 设置时钟，测试中用于推进隔离期
func WithClock(c clock.Clock) Option {
	return func(s *Swarm) {
		if c != nil {
			s.clock = c
		}
	}
}

// New 创建 Swarm
//
// negotiator 与 handlers 可为 nil，此时使用默认协商器和空注册表。
func New(
	local types.PeerID,
	transports *transport.Registry,
	up *upgrader.Upgrader,
	negotiator *protocol.Negotiator,
	handlers *protocol.Registry,
	cfg Config,
	opts ...Option,
) (*Swarm, error) {
	if local.IsEmpty() {
		return nil, errors.New("swarm: local peer id is empty")
	}
	if transports == nil {
		return nil, errors.New("swarm: transport registry is nil")
	}
	if up == nil {
		return nil, errors.New("swarm: upgrader is nil")
	}
	if negotiator == nil {
		negotiator = protocol.NewNegotiator(protocol.DefaultConfig())
	}
	if handlers == nil {
		handlers = protocol.NewRegistry()
	}
	cfg = cfg.normalize()

	cache, err := lru.New[types.PeerID, authFailure](cfg.AuthFailureCacheSize)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Swarm{
		local:        local,
		cfg:          cfg,
		transports:   transports,
		upgrader:     up,
		negotiator:   negotiator,
		handlers:     handlers,
		metrics:      metrics.Nop{},
		clock:        clock.New(),
		conns:        make(map[types.PeerID][]*Conn),
		listeners:    make(map[interfaces.Listener]struct{}),
		notifiees:    make(map[interfaces.Notifiee]struct{}),
		authFailures: cache,
		inbound:      make(chan struct{}, cfg.MaxInboundPending),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LocalPeer 返回本地节点 ID
func (s *Swarm) LocalPeer() types.PeerID { return s.local }

// Config 返回配置
func (s *Swarm) Config() Config { return s.cfg }

// Peers 返回有连接的节点
func (s *Swarm) Peers() []types.PeerID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.PeerID, 0, len(s.conns))
	for p := range s.conns {
		out = append(out, p)
	}
	return out
}

// Conns 返回所有连接
func (s *Swarm) Conns() []*Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Conn
	for _, cs := range s.conns {
		out = append(out, cs...)
	}
	return out
}

// ConnsToPeer 返回到某节点的连接
func (s *Swarm) ConnsToPeer(p types.PeerID) []*Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Conn(nil), s.conns[p]...)
}

// bestConn 返回到某节点的第一条已建立连接
func (s *Swarm) bestConn(p types.PeerID) *Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveConnLocked(p)
}

func (s *Swarm) liveConnLocked(p types.PeerID) *Conn {
	for _, c := range s.conns[p] {
		if c.State() == types.ConnStateEstablished {
			return c
		}
	}
	return nil
}

// ============================================================================
//                              注册表
// ============================================================================

// addConn 按去重策略登记升级完成的连接
//
// 新连接被丢弃时关闭它并返回已有连接。
func (s *Swarm) addConn(uc *upgrader.Conn) (*Conn, error) {
	c := newConn(s, uc)
	peer := c.RemotePeer()

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		_ = uc.Close()
		return nil, ErrSwarmClosed
	}
	var replaced *Conn
	if existing := s.liveConnLocked(peer); existing != nil && s.cfg.DedupPolicy == KeepExisting {
		if !keepNewConn(s.local, peer, existing.Direction(), c.Direction()) {
			s.mu.Unlock()
			logger.Debug("丢弃重复连接",
				"peer", peer.ShortString(),
				"direction", c.Direction(),
				"existing", existing.ID())
			_ = uc.Close()
			return existing, nil
		}
		replaced = existing
	}
	s.conns[peer] = append(s.conns[peer], c)
	s.mu.Unlock()

	if replaced != nil {
		logger.Debug("同时互拨，替换已有连接", "peer", peer.ShortString(), "replaced", replaced.ID())
		_ = replaced.closeWithReason(ErrDuplicateConn)
	}

	s.metrics.ConnOpened(c.Direction(), c.Transport())
	logger.Info("连接已建立",
		"peer", peer.ShortString(),
		"direction", c.Direction(),
		"transport", c.Transport(),
		"muxer", c.Muxer())
	s.notifyAll(func(n interfaces.Notifiee) { n.Connected(c) })

	go c.watch()
	go c.acceptStreams()
	return c, nil
}

// keepNewConn 判断新连接是否替换方向相反的已有连接
//
// 同时互拨时保留 PeerID 较小一方拨出的连接，两端得出相同结论。
// 方向相同的重复连接总是被丢弃。
func keepNewConn(local, remote types.PeerID, existingDir, newDir types.Direction) bool {
	if existingDir == newDir {
		return false
	}
	dialer := remote
	if newDir == types.DirOutbound {
		dialer = local
	}
	lower := local
	if remote.Less(local) {
		lower = remote
	}
	return dialer == lower
}

// removeConn 注销连接并通知 Disconnected，重复调用无效果
func (s *Swarm) removeConn(c *Conn, reason error) {
	peer := c.RemotePeer()

	s.mu.Lock()
	cs := s.conns[peer]
	found := false
	for i, x := range cs {
		if x == c {
			cs = append(cs[:i:i], cs[i+1:]...)
			found = true
			break
		}
	}
	if len(cs) == 0 {
		delete(s.conns, peer)
	} else {
		s.conns[peer] = cs
	}
	s.mu.Unlock()

	if !found {
		return
	}
	s.metrics.ConnClosed(c.Direction(), c.Transport())
	logger.Info("连接已断开", "peer", peer.ShortString(), "reason", reason)
	s.notifyAll(func(n interfaces.Notifiee) { n.Disconnected(c, reason) })
}

// ClosePeer 关闭到某节点的所有连接，幂等
func (s *Swarm) ClosePeer(p types.PeerID, reason error) error {
	var err error
	for _, c := range s.ConnsToPeer(p) {
		err = multierr.Append(err, c.closeWithReason(reason))
	}
	return err
}

// ============================================================================
//                              认证失败隔离
// ============================================================================

// quarantined 返回仍在隔离期内的记录
func (s *Swarm) quarantined(p types.PeerID) *AuthFailureError {
	f, ok := s.authFailures.Get(p)
	if !ok {
		return nil
	}
	if !s.clock.Now().Before(f.until) {
		s.authFailures.Remove(p)
		return nil
	}
	return &AuthFailureError{Peer: p, Until: f.until, Err: f.err}
}

// IsQuarantined 节点是否因认证失败处于隔离期
func (s *Swarm) IsQuarantined(p types.PeerID) bool {
	return s.quarantined(p) != nil
}

func (s *Swarm) recordAuthFailure(p types.PeerID, err error) {
	if s.cfg.AuthFailureQuarantine <= 0 || p.IsEmpty() {
		return
	}
	s.authFailures.Add(p, authFailure{until: s.clock.Now().Add(s.cfg.AuthFailureQuarantine), err: err})
}

func (s *Swarm) emitSecurityEvent(ev interfaces.SecurityEvent) {
	logger.Warn("安全事件", "kind", ev.Kind, "peer", ev.Peer.ShortString(), "addr", ev.Addr, "err", ev.Err)
	s.notifyAll(func(n interfaces.Notifiee) { n.SecurityEvent(ev) })
}

// ============================================================================
//                              协议处理
// ============================================================================

// SetStreamHandler 注册入站流处理器，同名覆盖
func (s *Swarm) SetStreamHandler(proto types.ProtocolID, handler interfaces.StreamHandler) {
	s.handlers.SetHandler(proto, handler)
}

// RemoveStreamHandler 移除入站流处理器
func (s *Swarm) RemoveStreamHandler(proto types.ProtocolID) {
	_ = s.handlers.Unregister(proto)
}

// Protocols 返回已注册的协议
func (s *Swarm) Protocols() []types.ProtocolID {
	return s.handlers.Protocols()
}

// NewStream 在到 p 的连接上打开流并协商协议
func (s *Swarm) NewStream(ctx context.Context, p types.PeerID, protos ...types.ProtocolID) (*Stream, error) {
	if s.closed.Load() {
		return nil, ErrSwarmClosed
	}
	c := s.bestConn(p)
	if c == nil {
		return nil, ErrNoConnection
	}
	return c.newStream(ctx, protos)
}

// ============================================================================
//                              关闭
// ============================================================================

// Close 关闭监听器与所有连接并清空注册表
func (s *Swarm) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()

	s.mu.Lock()
	listeners := make([]interfaces.Listener, 0, len(s.listeners))
	for l := range s.listeners {
		listeners = append(listeners, l)
	}
	var conns []*Conn
	for _, cs := range s.conns {
		conns = append(conns, cs...)
	}
	s.mu.Unlock()

	var err error
	for _, l := range listeners {
		err = multierr.Append(err, l.Close())
	}
	// 连接关闭可能阻塞在 GoAway 写入上，并发关闭
	var g errgroup.Group
	g.SetLimit(closeConcurrency)
	errs := make([]error, len(conns))
	for i, c := range conns {
		g.Go(func() error {
			errs[i] = c.Close()
			return nil
		})
	}
	_ = g.Wait()
	err = multierr.Append(err, multierr.Combine(errs...))
	s.wg.Wait()

	logger.Info("Swarm 已关闭", "conns", len(conns), "listeners", len(listeners))
	return err
}

// IsClosed 是否已关闭
func (s *Swarm) IsClosed() bool { return s.closed.Load() }
