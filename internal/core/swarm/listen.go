package swarm

import (
	tec "github.com/jbenet/go-temp-err-catcher"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/multierr"

	"github.com/dep2p/go-substrate/pkg/interfaces"
)

// Listen 在每个地址上启动监听与接受循环
//
// 至少一个地址监听成功即返回 nil，失败的地址只记录日志。
func (s *Swarm) Listen(addrs ...ma.Multiaddr) error {
	if s.closed.Load() {
		return ErrSwarmClosed
	}
	if len(addrs) == 0 {
		return ErrNoAddresses
	}

	var errs error
	succeeded := 0
	for _, addr := range addrs {
		l, err := s.transports.Listen(addr)
		if err != nil {
			logger.Warn("监听地址失败", "addr", addr, "err", err)
			errs = multierr.Append(errs, err)
			continue
		}

		s.mu.Lock()
		if s.closed.Load() {
			s.mu.Unlock()
			_ = l.Close()
			return ErrSwarmClosed
		}
		s.listeners[l] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		succeeded++
		logger.Info("开始监听", "addr", l.Multiaddr())
		s.notifyAll(func(n interfaces.Notifiee) { n.Listen(l.Multiaddr()) })
		go s.acceptLoop(l)
	}

	if succeeded == 0 {
		return errs
	}
	return nil
}

// ListenAddrs 返回实际监听的地址
func (s *Swarm) ListenAddrs() []ma.Multiaddr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ma.Multiaddr, 0, len(s.listeners))
	for l := range s.listeners {
		out = append(out, l.Multiaddr())
	}
	return out
}

// acceptLoop 接受原始连接并在独立协程中升级
//
// 临时错误按退避重试，其余错误结束循环。
func (s *Swarm) acceptLoop(l interfaces.Listener) {
	defer s.wg.Done()
	defer s.removeListener(l)

	var catcher tec.TempErrCatcher
	for {
		raw, err := l.Accept()
		if err != nil {
			if catcher.IsTemporary(err) {
				logger.Debug("临时接受错误", "addr", l.Multiaddr(), "err", err)
				continue
			}
			if !s.closed.Load() {
				logger.Warn("接受循环退出", "addr", l.Multiaddr(), "err", err)
			}
			return
		}

		select {
		case s.inbound <- struct{}{}:
		default:
			logger.Warn("入站升级过多，丢弃连接", "remote", raw.RemoteMultiaddr(), "err", ErrInboundLimit)
			_ = raw.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.inbound }()
			if _, err := s.Accept(s.ctx, raw); err != nil {
				logger.Debug("入站连接升级失败", "remote", raw.RemoteMultiaddr(), "err", err)
			}
		}()
	}
}

// removeListener 关闭并注销监听器，只通知一次 ListenClose
func (s *Swarm) removeListener(l interfaces.Listener) {
	_ = l.Close()

	s.mu.Lock()
	_, ok := s.listeners[l]
	delete(s.listeners, l)
	s.mu.Unlock()

	if ok {
		logger.Info("停止监听", "addr", l.Multiaddr())
		s.notifyAll(func(n interfaces.Notifiee) { n.ListenClose(l.Multiaddr()) })
	}
}
