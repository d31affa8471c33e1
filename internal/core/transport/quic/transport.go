// Package quic 提供基于 QUIC 的传输适配器
//
// 地址形如 /ip4/127.0.0.1/udp/4001/quic-v1。每个 QUIC 连接只使用一条双向流，
// 这条流作为 RawConn 交给 upgrader，在其上再跑 Noise 与多路复用。
//
// TLS 证书是内存中生成的自签名证书，发起方把观察到的证书哈希交给 Noise，
// 与响应方在握手扩展中声明的哈希比对。
package quic

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/quic-go/quic-go"
	"go.uber.org/multierr"

	"github.com/dep2p/go-substrate/pkg/interfaces"
	maddr "github.com/dep2p/go-substrate/pkg/lib/multiaddr"
	"github.com/dep2p/go-substrate/pkg/lib/log"
	"github.com/dep2p/go-substrate/pkg/types"
)

var logger = log.Logger("core/transport/quic")

var (
	// ErrClosed 传输或监听器已关闭
	ErrClosed = errors.New("quic transport closed")

	// ErrUnsupportedAddr 地址不是 QUIC 地址
	ErrUnsupportedAddr = errors.New("not a quic-v1 multiaddr")

	// ErrAlreadyListening 共享 socket 上已有监听器
	ErrAlreadyListening = errors.New("quic transport already listening")

	// ErrSocketBound 共享 socket 已绑定到其他端口
	ErrSocketBound = errors.New("quic socket already bound")
)

// Config QUIC 传输配置
type Config struct {
	// MaxIdleTimeout 连接空闲超时
	MaxIdleTimeout time.Duration

	// KeepAlivePeriod 保活周期，0 表示关闭
	KeepAlivePeriod time.Duration

	// CertValidity 自签名证书有效期
	CertValidity time.Duration

	// DialTimeout 拨号超时，包含 QUIC 握手与打开流
	DialTimeout time.Duration

	// AcceptStreamTimeout 入站连接等待首条流的时间
	AcceptStreamTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxIdleTimeout:      30 * time.Second,
		KeepAlivePeriod:     15 * time.Second,
		CertValidity:        14 * 24 * time.Hour,
		DialTimeout:         10 * time.Second,
		AcceptStreamTimeout: 10 * time.Second,
	}
}

// Transport QUIC 传输
//
// 监听与拨号共用同一个 UDP socket 与 quic.Transport，出站连接的源端口即监听端口。
type Transport struct {
	cfg  Config
	cert *certificate
	qcfg *quic.Config

	mu       sync.Mutex
	udpConn  *net.UDPConn
	qt       *quic.Transport
	listener *Listener
	closed   bool
}

var _ interfaces.Transport = (*Transport)(nil)

// New 创建 QUIC 传输并生成证书
func New(cfg Config) (*Transport, error) {
	def := DefaultConfig()
	if cfg.MaxIdleTimeout <= 0 {
		cfg.MaxIdleTimeout = def.MaxIdleTimeout
	}
	if cfg.CertValidity <= 0 {
		cfg.CertValidity = def.CertValidity
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.AcceptStreamTimeout <= 0 {
		cfg.AcceptStreamTimeout = def.AcceptStreamTimeout
	}

	cert, err := generateCert(cfg.CertValidity)
	if err != nil {
		return nil, err
	}
	return &Transport{
		cfg:  cfg,
		cert: cert,
		qcfg: &quic.Config{
			MaxIdleTimeout:  cfg.MaxIdleTimeout,
			KeepAlivePeriod: cfg.KeepAlivePeriod,
			// 每个连接只用一条双向流
			MaxIncomingStreams:    1,
			MaxIncomingUniStreams: -1,
		},
	}, nil
}

// CertHash 返回本地证书哈希
func (t *Transport) CertHash() []byte {
	return t.cert.hash
}

// Dial 建立出站连接并打开数据流
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr) (interfaces.RawConn, error) {
	if !maddr.QUIC.Match(raddr) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAddr, raddr)
	}
	udpAddr, err := resolveUDP(raddr)
	if err != nil {
		return nil, err
	}

	qt, err := t.shared(nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
	defer cancel()

	qconn, err := qt.Dial(ctx, udpAddr, clientTLSConfig(), t.qcfg)
	if err != nil {
		return nil, err
	}
	observed, err := peerCertHash(qconn.ConnectionState().TLS)
	if err != nil {
		_ = qconn.CloseWithError(errCodeProtocol, err.Error())
		return nil, err
	}
	// 对端在流上收到首个字节后才会感知到这条流，发起方总是先写
	str, err := qconn.OpenStreamSync(ctx)
	if err != nil {
		_ = qconn.CloseWithError(errCodeProtocol, "open stream")
		return nil, err
	}

	c, err := newConn(qconn, str)
	if err != nil {
		return nil, err
	}
	logger.Debug("QUIC 拨号成功", "remote", raddr)
	return &outboundConn{Conn: c, observed: [][]byte{observed}}, nil
}

// Listen 在共享 socket 上监听
func (t *Transport) Listen(laddr ma.Multiaddr) (interfaces.Listener, error) {
	if !maddr.QUIC.Match(laddr) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAddr, laddr)
	}
	udpAddr, err := resolveUDP(laddr)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.listener != nil {
		return nil, ErrAlreadyListening
	}
	qt, err := t.sharedLocked(udpAddr)
	if err != nil {
		return nil, err
	}
	ql, err := qt.Listen(t.cert.serverTLSConfig(), t.qcfg)
	if err != nil {
		return nil, err
	}
	bound, err := maddr.FromNetAddr(t.udpConn.LocalAddr(), "/quic-v1")
	if err != nil {
		ql.Close()
		return nil, err
	}

	l := newListener(t, ql, bound)
	t.listener = l
	logger.Debug("QUIC 开始监听", "addr", bound)
	return l, nil
}

// shared 返回共享的 quic.Transport，不存在时按 bind 创建；bind 为 nil 时绑定随机端口
func (t *Transport) shared(bind *net.UDPAddr) (*quic.Transport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sharedLocked(bind)
}

func (t *Transport) sharedLocked(bind *net.UDPAddr) (*quic.Transport, error) {
	if t.closed {
		return nil, ErrClosed
	}
	if t.qt != nil {
		if bind != nil && bind.Port != 0 {
			if cur := t.udpConn.LocalAddr().(*net.UDPAddr); cur.Port != bind.Port {
				return nil, fmt.Errorf("%w: %s", ErrSocketBound, cur)
			}
		}
		return t.qt, nil
	}
	network := "udp"
	if bind == nil {
		bind = &net.UDPAddr{}
	} else if bind.IP.To4() != nil {
		network = "udp4"
	}
	conn, err := net.ListenUDP(network, bind)
	if err != nil {
		return nil, err
	}
	t.udpConn = conn
	t.qt = &quic.Transport{Conn: conn}
	return t.qt, nil
}

func (t *Transport) removeListener(l *Listener) {
	t.mu.Lock()
	if t.listener == l {
		t.listener = nil
	}
	t.mu.Unlock()
}

// CanDial 检查是否可以拨号到指定地址
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	return !closed && maddr.QUIC.Match(addr)
}

// Protocols 返回支持的协议
func (t *Transport) Protocols() []string {
	return []string{"quic-v1"}
}

// Kind 返回传输类型
func (t *Transport) Kind() types.TransportKind {
	return types.TransportQUIC
}

// Close 关闭监听器与共享 socket，所有 QUIC 连接随之关闭
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	l, qt, udp := t.listener, t.qt, t.udpConn
	t.listener, t.qt, t.udpConn = nil, nil, nil
	t.mu.Unlock()

	var err error
	if l != nil {
		err = multierr.Append(err, l.Close())
	}
	if qt != nil {
		err = multierr.Append(err, qt.Close())
	}
	if udp != nil {
		if cerr := udp.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	return err
}

// resolveUDP 解析 /ip4/.../udp/N/quic-v1 的 UDP 部分
func resolveUDP(addr ma.Multiaddr) (*net.UDPAddr, error) {
	udpPart, _ := ma.SplitLast(addr)
	network, host, err := manet.DialArgs(udpPart)
	if err != nil {
		return nil, err
	}
	return net.ResolveUDPAddr(network, host)
}
