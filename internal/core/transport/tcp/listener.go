package tcp

import (
	"sync"

	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-substrate/pkg/interfaces"
)

// Listener TCP 监听器
type Listener struct {
	manet.Listener

	transport *Transport
	closeOnce sync.Once
	closeErr  error
}

var _ interfaces.Listener = (*Listener)(nil)

// Accept 接受连接
func (l *Listener) Accept() (interfaces.RawConn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return l.transport.track(c), nil
}

// Close 关闭监听器，已接受的连接不受影响
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.Listener.Close()
		l.transport.untrackListener(l)
	})
	return l.closeErr
}
