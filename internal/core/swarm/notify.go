package swarm

import (
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-substrate/pkg/interfaces"
)

// NotifyBundle 用函数字段实现 Notifiee，未设置的事件被忽略
type NotifyBundle struct {
	ListenF        func(ma.Multiaddr)
	ListenCloseF   func(ma.Multiaddr)
	ConnectedF     func(interfaces.Conn)
	DisconnectedF  func(interfaces.Conn, error)
	SecurityEventF func(interfaces.SecurityEvent)
}

var _ interfaces.Notifiee = (*NotifyBundle)(nil)

func (nb *NotifyBundle) Listen(a ma.Multiaddr) {
	if nb.ListenF != nil {
		nb.ListenF(a)
	}
}

func (nb *NotifyBundle) ListenClose(a ma.Multiaddr) {
	if nb.ListenCloseF != nil {
		nb.ListenCloseF(a)
	}
}

func (nb *NotifyBundle) Connected(c interfaces.Conn) {
	if nb.ConnectedF != nil {
		nb.ConnectedF(c)
	}
}

// Disconnected reason 为 nil 表示本地正常关闭
func (nb *NotifyBundle) Disconnected(c interfaces.Conn, reason error) {
	if nb.DisconnectedF != nil {
		nb.DisconnectedF(c, reason)
	}
}

func (nb *NotifyBundle) SecurityEvent(ev interfaces.SecurityEvent) {
	if nb.SecurityEventF != nil {
		nb.SecurityEventF(ev)
	}
}

// Notify 注册订阅者
func (s *Swarm) Notify(n interfaces.Notifiee) {
	s.notifyMu.Lock()
	s.notifiees[n] = struct{}{}
	s.notifyMu.Unlock()
}

// StopNotify 取消订阅
func (s *Swarm) StopNotify(n interfaces.Notifiee) {
	s.notifyMu.Lock()
	delete(s.notifiees, n)
	s.notifyMu.Unlock()
}

// notifyAll 在锁外依次调用订阅者
func (s *Swarm) notifyAll(fn func(interfaces.Notifiee)) {
	s.notifyMu.RLock()
	ns := make([]interfaces.Notifiee, 0, len(s.notifiees))
	for n := range s.notifiees {
		ns = append(ns, n)
	}
	s.notifyMu.RUnlock()

	for _, n := range ns {
		fn(n)
	}
}
