// Package websocket 提供基于 WebSocket 的传输适配器
//
// 地址形如 /ip4/127.0.0.1/tcp/4001/ws。每个 WebSocket 连接承载一条有序字节流：
// 写入的数据作为二进制消息发送，读取时按顺序拼接二进制消息。
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"go.uber.org/multierr"

	"github.com/dep2p/go-substrate/pkg/interfaces"
	maddr "github.com/dep2p/go-substrate/pkg/lib/multiaddr"
	"github.com/dep2p/go-substrate/pkg/lib/log"
	"github.com/dep2p/go-substrate/pkg/types"
)

var logger = log.Logger("core/transport/websocket")

// Subprotocol WebSocket 子协议，双方必须一致
const Subprotocol = "substrate"

var (
	// ErrClosed 传输或监听器已关闭
	ErrClosed = errors.New("websocket transport closed")

	// ErrUnsupportedAddr 地址不是 WebSocket 地址
	ErrUnsupportedAddr = errors.New("not a websocket multiaddr")
)

// Config WebSocket 传输配置
type Config struct {
	// Path HTTP 升级路径
	Path string

	// HandshakeTimeout HTTP 升级超时
	HandshakeTimeout time.Duration

	// DialTimeout 拨号超时，包含 TCP 建连与升级
	DialTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Path:             "/",
		HandshakeTimeout: 10 * time.Second,
		DialTimeout:      10 * time.Second,
	}
}

// Transport WebSocket 传输
type Transport struct {
	cfg Config

	mu        sync.Mutex
	listeners map[*Listener]struct{}
	conns     map[*Conn]struct{}

	closed atomic.Bool
}

var _ interfaces.Transport = (*Transport)(nil)

// New 创建 WebSocket 传输
func New(cfg Config) *Transport {
	def := DefaultConfig()
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
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
	if !maddr.WebSocket.Match(raddr) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAddr, raddr)
	}
	tcpAddr, _ := ma.SplitLast(raddr)
	_, host, err := manet.DialArgs(tcpAddr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
	defer cancel()

	d := ws.Dialer{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: t.cfg.HandshakeTimeout,
		Subprotocols:     []string{Subprotocol},
		NetDialContext:   (&net.Dialer{}).DialContext,
	}
	url := "ws://" + host + t.cfg.Path
	c, resp, err := d.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, err
	}
	if c.Subprotocol() != Subprotocol {
		c.Close()
		return nil, fmt.Errorf("websocket dial %s: unexpected subprotocol %q", url, c.Subprotocol())
	}

	laddr, err := maddr.FromNetAddr(c.LocalAddr(), "/ws")
	if err != nil {
		c.Close()
		return nil, err
	}

	logger.Debug("WebSocket 拨号成功", "remote", raddr)
	return t.track(newConn(c, laddr, raddr)), nil
}

// Listen 监听入站连接
func (t *Transport) Listen(laddr ma.Multiaddr) (interfaces.Listener, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if !maddr.WebSocket.Match(laddr) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAddr, laddr)
	}
	tcpAddr, _ := ma.SplitLast(laddr)
	network, host, err := manet.DialArgs(tcpAddr)
	if err != nil {
		return nil, err
	}
	nl, err := net.Listen(network, host)
	if err != nil {
		return nil, err
	}
	bound, err := maddr.FromNetAddr(nl.Addr(), "/ws")
	if err != nil {
		nl.Close()
		return nil, err
	}

	l := newListener(t, nl, bound)
	t.mu.Lock()
	t.listeners[l] = struct{}{}
	t.mu.Unlock()

	logger.Debug("WebSocket 开始监听", "addr", bound)
	return l, nil
}

// CanDial 检查是否可以拨号到指定地址
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	return !t.closed.Load() && maddr.WebSocket.Match(addr)
}

// Protocols 返回支持的协议
func (t *Transport) Protocols() []string {
	return []string{"ws"}
}

// Kind 返回传输类型
func (t *Transport) Kind() types.TransportKind {
	return types.TransportWebSocket
}

// Close 关闭传输层，同时关闭所有监听器与未关闭的连接
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.mu.Lock()
	ls, cs := t.listeners, t.conns
	t.listeners = make(map[*Listener]struct{})
	t.conns = make(map[*Conn]struct{})
	t.mu.Unlock()

	var err error
	for l := range ls {
		err = multierr.Append(err, l.Close())
	}
	for c := range cs {
		if cerr := c.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	return err
}

// ConnCount 返回未关闭的连接数量
func (t *Transport) ConnCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *Transport) track(c *Conn) *Conn {
	c.onClose = func() {
		t.mu.Lock()
		delete(t.conns, c)
		t.mu.Unlock()
	}
	t.mu.Lock()
	t.conns[c] = struct{}{}
	t.mu.Unlock()
	return c
}

func (t *Transport) untrackListener(l *Listener) {
	t.mu.Lock()
	delete(t.listeners, l)
	t.mu.Unlock()
}

func (t *Transport) upgrader() *ws.Upgrader {
	return &ws.Upgrader{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: t.cfg.HandshakeTimeout,
		Subprotocols:     []string{Subprotocol},
		// 身份由 Noise 认证，不依赖 Origin
		CheckOrigin: func(*http.Request) bool { return true },
	}
}
