package transport

import (
	"context"
	"sync"

	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/multierr"

	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/types"
)

// Registry 按地址选择传输
//
// 所有经过 Registry 的拨号与监听失败都包装为 *Error。
type Registry struct {
	mu         sync.RWMutex
	transports []interfaces.Transport
	closed     bool
}

// NewRegistry 创建注册表
func NewRegistry(transports ...interfaces.Transport) *Registry {
	r := &Registry{}
	for _, t := range transports {
		if t != nil {
			r.transports = append(r.transports, t)
		}
	}
	return r
}

// Add 添加传输
func (r *Registry) Add(t interfaces.Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrTransportClosed
	}
	r.transports = append(r.transports, t)
	return nil
}

// Transports 返回已注册的传输
func (r *Registry) Transports() []interfaces.Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]interfaces.Transport(nil), r.transports...)
}

// TransportFor 返回第一个能处理 addr 的传输
func (r *Registry) TransportFor(addr ma.Multiaddr) (interfaces.Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrTransportClosed
	}
	for _, t := range r.transports {
		if t.CanDial(addr) {
			return t, nil
		}
	}
	return nil, ErrNoTransport
}

// Kind 返回 addr 对应的传输类型
func (r *Registry) Kind(addr ma.Multiaddr) types.TransportKind {
	t, err := r.TransportFor(addr)
	if err != nil {
		return types.TransportUnknown
	}
	return t.Kind()
}

// Dial 选择传输并拨号
func (r *Registry) Dial(ctx context.Context, addr ma.Multiaddr) (interfaces.RawConn, error) {
	t, err := r.TransportFor(addr)
	if err != nil {
		return nil, NewError("dial", addr, err)
	}
	c, err := t.Dial(ctx, addr)
	if err != nil {
		return nil, NewError("dial", addr, err)
	}
	return c, nil
}

// Listen 选择传输并监听
func (r *Registry) Listen(addr ma.Multiaddr) (interfaces.Listener, error) {
	t, err := r.TransportFor(addr)
	if err != nil {
		return nil, NewError("listen", addr, err)
	}
	l, err := t.Listen(addr)
	if err != nil {
		return nil, NewError("listen", addr, err)
	}
	return l, nil
}

// Close 关闭所有传输
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	ts := r.transports
	r.mu.Unlock()

	var err error
	for _, t := range ts {
		err = multierr.Append(err, t.Close())
	}
	return err
}
