package quic

import (
	"context"
	"net"
	"sync"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-substrate/pkg/interfaces"
)

// Listener QUIC 监听器
//
// 后台循环接受 QUIC 连接，并在每个连接上等待发起方打开的数据流。
type Listener struct {
	transport *Transport
	ql        *quic.Listener
	laddr     ma.Multiaddr

	incoming chan *inboundConn
	ctx      context.Context
	cancel   context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

var _ interfaces.Listener = (*Listener)(nil)

func newListener(t *Transport, ql *quic.Listener, laddr ma.Multiaddr) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		transport: t,
		ql:        ql,
		laddr:     laddr,
		incoming:  make(chan *inboundConn),
		ctx:       ctx,
		cancel:    cancel,
	}
	go l.acceptLoop()
	return l
}

func (l *Listener) acceptLoop() {
	for {
		qconn, err := l.ql.Accept(l.ctx)
		if err != nil {
			if l.ctx.Err() == nil {
				logger.Debug("QUIC 接受循环退出", "addr", l.laddr, "err", err)
			}
			l.Close()
			return
		}
		go l.handle(qconn)
	}
}

// handle 等待首条流，超时未打开流的连接被关闭
func (l *Listener) handle(qconn quic.Connection) {
	ctx, cancel := context.WithTimeout(l.ctx, l.transport.cfg.AcceptStreamTimeout)
	defer cancel()

	str, err := qconn.AcceptStream(ctx)
	if err != nil {
		_ = qconn.CloseWithError(errCodeProtocol, "no stream")
		return
	}
	c, err := newConn(qconn, str)
	if err != nil {
		return
	}
	conn := &inboundConn{Conn: c, local: [][]byte{l.transport.cert.hash}}

	select {
	case l.incoming <- conn:
	case <-l.ctx.Done():
		conn.Close()
	}
}

// Accept 接受下一个入站连接
func (l *Listener) Accept() (interfaces.RawConn, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case <-l.ctx.Done():
		return nil, ErrClosed
	}
}

// Close 停止监听，已接受的连接不受影响
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.cancel()
		l.closeErr = l.ql.Close()
		l.transport.removeListener(l)
	})
	return l.closeErr
}

// Addr 返回监听的 UDP 地址
func (l *Listener) Addr() net.Addr {
	return l.ql.Addr()
}

// Multiaddr 返回监听的多地址
func (l *Listener) Multiaddr() ma.Multiaddr {
	return l.laddr
}
