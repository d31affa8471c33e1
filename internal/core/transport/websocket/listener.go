package websocket

import (
	"errors"
	"net"
	"net/http"
	"sync"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-substrate/pkg/interfaces"
	maddr "github.com/dep2p/go-substrate/pkg/lib/multiaddr"
)

// Listener WebSocket 监听器
//
// 内部运行一个 http.Server，升级成功的连接经 incoming 交给 Accept。
type Listener struct {
	transport *Transport
	nl        net.Listener
	server    *http.Server
	laddr     ma.Multiaddr

	incoming chan *Conn
	closed   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

var _ interfaces.Listener = (*Listener)(nil)

func newListener(t *Transport, nl net.Listener, laddr ma.Multiaddr) *Listener {
	l := &Listener{
		transport: t,
		nl:        nl,
		laddr:     laddr,
		incoming:  make(chan *Conn),
		closed:    make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.Handle(t.cfg.Path, l)
	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: t.cfg.HandshakeTimeout,
	}

	go func() {
		if err := l.server.Serve(nl); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("WebSocket 服务退出", "addr", laddr, "err", err)
		}
		l.Close()
	}()
	return l
}

// ServeHTTP 升级 HTTP 请求
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := l.transport.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已写回错误响应
		logger.Debug("WebSocket 升级失败", "remote", r.RemoteAddr, "err", err)
		return
	}
	laddr, err := maddr.FromNetAddr(c.LocalAddr(), "/ws")
	if err != nil {
		c.Close()
		return
	}
	raddr, err := maddr.FromNetAddr(c.RemoteAddr(), "/ws")
	if err != nil {
		c.Close()
		return
	}

	conn := l.transport.track(newConn(c, laddr, raddr))
	select {
	case l.incoming <- conn:
	case <-l.closed:
		conn.Close()
	}
}

// Accept 接受下一个已升级的连接
func (l *Listener) Accept() (interfaces.RawConn, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case <-l.closed:
		return nil, ErrClosed
	}
}

// Close 停止监听，已接受的连接不受影响
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		// Close 只关闭监听套接字与未升级的连接，已劫持的连接不在其管理范围
		l.closeErr = l.server.Close()
		l.transport.untrackListener(l)
	})
	return l.closeErr
}

// Addr 返回监听的网络地址
func (l *Listener) Addr() net.Addr {
	return l.nl.Addr()
}

// Multiaddr 返回监听的多地址
func (l *Listener) Multiaddr() ma.Multiaddr {
	return l.laddr
}
