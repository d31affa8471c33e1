// Package tcp 提供基于 TCP 的传输适配器
//
// 地址形如 /ip4/127.0.0.1/tcp/4001。TCP 不提供加密与多路复用，
// 产生的 RawConn 需要经过 upgrader 升级。
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"go.uber.org/multierr"

	"github.com/dep2p/go-substrate/pkg/interfaces"
	maddr "github.com/dep2p/go-substrate/pkg/lib/multiaddr"
	"github.com/dep2p/go-substrate/pkg/lib/log"
	"github.com/dep2p/go-substrate/pkg/types"
)

var logger = log.Logger("core/transport/tcp")

var (
	// ErrClosed 传输已关闭
	ErrClosed = errors.New("tcp transport closed")

	// ErrUnsupportedAddr 地址不是 TCP 地址
	ErrUnsupportedAddr = errors.New("not a tcp multiaddr")
)

// Config TCP 传输配置
type Config struct {
	// DialTimeout 拨号超时，ctx 更早截止时以 ctx 为准
	DialTimeout time.Duration

	// KeepAlive TCP keepalive 周期，0 使用系统默认
	KeepAlive time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		DialTimeout: 10 * time.Second,
		KeepAlive:   15 * time.Second,
	}
}

// Transport TCP 传输
type Transport struct {
	cfg Config

	listenersMu sync.Mutex
	listeners   map[*Listener]struct{}

	connsMu sync.Mutex
	conns   map[*Conn]struct{}

	closed atomic.Bool
}

var _ interfaces.Transport = (*Transport)(nil)

// New 创建 TCP 传输
func New(cfg Config) *Transport {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultConfig().DialTimeout
	}
	return &Transport{
		cfg:       cfg,
		listeners: make(map[*Listener]struct{}),
		conns:     make(map[*Conn]struct{}),
	}
}

// Dial 建立出站连接
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr) (interfaces.RawConn, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if !maddr.TCP.Match(raddr) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAddr, raddr)
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
	defer cancel()

	d := manet.Dialer{Dialer: net.Dialer{KeepAlive: t.cfg.KeepAlive}}
	c, err := d.DialContext(ctx, raddr)
	if err != nil {
		return nil, err
	}
	logger.Debug("TCP 拨号成功", "remote", raddr)
	return t.track(c), nil
}

// Listen 监听入站连接
func (t *Transport) Listen(laddr ma.Multiaddr) (interfaces.Listener, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if !maddr.TCP.Match(laddr) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAddr, laddr)
	}

	ml, err := manet.Listen(laddr)
	if err != nil {
		return nil, err
	}
	l := &Listener{Listener: ml, transport: t}

	t.listenersMu.Lock()
	t.listeners[l] = struct{}{}
	t.listenersMu.Unlock()

	logger.Debug("TCP 开始监听", "addr", ml.Multiaddr())
	return l, nil
}

// CanDial 检查是否可以拨号到指定地址
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	return !t.closed.Load() && maddr.TCP.Match(addr)
}

// Protocols 返回支持的协议
func (t *Transport) Protocols() []string {
	return []string{"tcp"}
}

// Kind 返回传输类型
func (t *Transport) Kind() types.TransportKind {
	return types.TransportTCP
}

// Close 关闭传输层，同时关闭所有监听器与未关闭的连接
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error

	t.listenersMu.Lock()
	ls := t.listeners
	t.listeners = make(map[*Listener]struct{})
	t.listenersMu.Unlock()
	for l := range ls {
		err = multierr.Append(err, l.Close())
	}

	t.connsMu.Lock()
	cs := t.conns
	t.conns = make(map[*Conn]struct{})
	t.connsMu.Unlock()
	for c := range cs {
		if cerr := c.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	return err
}

// ListenerCount 返回监听器数量
func (t *Transport) ListenerCount() int {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	return len(t.listeners)
}

// IsClosed 检查是否已关闭
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}

// ConnCount 返回未关闭的连接数量
func (t *Transport) ConnCount() int {
	t.connsMu.Lock()
	defer t.connsMu.Unlock()
	return len(t.conns)
}

func (t *Transport) track(c manet.Conn) *Conn {
	conn := &Conn{Conn: c, transport: t}
	t.connsMu.Lock()
	t.conns[conn] = struct{}{}
	t.connsMu.Unlock()
	return conn
}

func (t *Transport) untrackConn(c *Conn) {
	t.connsMu.Lock()
	delete(t.conns, c)
	t.connsMu.Unlock()
}

func (t *Transport) untrackListener(l *Listener) {
	t.listenersMu.Lock()
	delete(t.listeners, l)
	t.listenersMu.Unlock()
}

