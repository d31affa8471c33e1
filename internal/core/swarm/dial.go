package swarm

import (
	"context"
	"errors"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-substrate/internal/core/security/noise"
	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/types"
)

// Connect 拨号 addr 并以发起方身份升级
//
// expected 非空时由 Noise 校验对端身份，已有到该节点的连接时直接返回，
// 同一节点的并发拨号合并为一次。失败不在内部重试：
// 传输失败包装为 *DialError{Err: *TransportError}，握手失败为 *DialError{Err: *noise.HandshakeError}，
// 处于认证失败隔离期的节点返回 *AuthFailureError。
func (s *Swarm) Connect(ctx context.Context, addr ma.Multiaddr, expected types.PeerID) (*Conn, error) {
	if s.closed.Load() {
		return nil, ErrSwarmClosed
	}
	if addr == nil {
		return nil, ErrNoAddresses
	}

	key := "addr:" + addr.String()
	if !expected.IsEmpty() {
		if expected == s.local {
			return nil, ErrDialToSelf
		}
		if qe := s.quarantined(expected); qe != nil {
			return nil, qe
		}
		if c := s.bestConn(expected); c != nil {
			return c, nil
		}
		key = "peer:" + expected.String()
	}

	ch := s.dials.DoChan(key, func() (interface{}, error) {
		return s.dial(ctx, addr, expected)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Conn), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Swarm) dial(ctx context.Context, addr ma.Multiaddr, expected types.PeerID) (*Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	logger.Debug("拨号", "addr", addr, "peer", expected.ShortString())

	raw, err := s.transports.Dial(ctx, addr)
	if err != nil {
		return nil, &DialError{Peer: expected, Addr: addr, Err: err}
	}

	uc, err := s.upgrader.Upgrade(ctx, raw, types.DirOutbound, expected)
	if err != nil {
		s.upgradeFailed(err, addr, expected)
		return nil, &DialError{Peer: expected, Addr: addr, Err: err}
	}
	if uc.RemotePeer() == s.local {
		_ = uc.Close()
		return nil, &DialError{Peer: expected, Addr: addr, Err: ErrDialToSelf}
	}
	// 调用方已放弃，不再登记
	if err := ctx.Err(); err != nil {
		_ = uc.Close()
		return nil, &DialError{Peer: expected, Addr: addr, Err: err}
	}
	return s.addConn(uc)
}

// Accept 以响应方身份升级入站原始连接
//
// 监听循环为每个入站连接调用它；按 KeepExisting 被丢弃时返回已有连接。
func (s *Swarm) Accept(ctx context.Context, raw interfaces.RawConn) (*Conn, error) {
	if s.closed.Load() {
		_ = raw.Close()
		return nil, ErrSwarmClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AcceptTimeout)
	defer cancel()

	uc, err := s.upgrader.Upgrade(ctx, raw, types.DirInbound, "")
	if err != nil {
		s.upgradeFailed(err, raw.RemoteMultiaddr(), "")
		return nil, err
	}
	if uc.RemotePeer() == s.local {
		_ = uc.Close()
		return nil, ErrDialToSelf
	}
	return s.addConn(uc)
}

// upgradeFailed 记录握手失败，认证失败时隔离 expected 并发出安全事件
func (s *Swarm) upgradeFailed(err error, addr ma.Multiaddr, expected types.PeerID) {
	var he *noise.HandshakeError
	if !errors.As(err, &he) {
		logger.Debug("升级失败", "addr", addr, "err", err)
		return
	}
	s.metrics.HandshakeFailed(he.Kind.String())
	if !he.IsAuthFailure() {
		logger.Debug("握手失败", "addr", addr, "kind", he.Kind, "err", err)
		return
	}

	s.recordAuthFailure(expected, err)
	peer := expected
	if peer.IsEmpty() {
		peer = he.Actual
	}
	s.emitSecurityEvent(interfaces.SecurityEvent{
		Peer: peer,
		Addr: addr,
		Kind: he.Kind.String(),
		Err:  err,
		Time: s.clock.Now(),
	})
}
