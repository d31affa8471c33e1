package upgrader

import (
	"context"
	"fmt"

	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/lib/log"
	"github.com/dep2p/go-substrate/pkg/types"
)

var logger = log.Logger("core/upgrader")

// muxerAdvertiser 在握手扩展中声明多路复用器列表的安全传输
type muxerAdvertiser interface {
	Muxers() []string
}

// Upgrader 将原始连接升级为安全、多路复用的连接
type Upgrader struct {
	cfg      Config
	security []interfaces.SecureTransport
	muxers   []interfaces.StreamMuxer // 按偏好排序
}

// New 创建升级器
//
// muxers 按 cfg.Preferred 排序；Preferred 为空时保持传入顺序。
func New(security []interfaces.SecureTransport, muxers []interfaces.StreamMuxer, cfg Config) (*Upgrader, error) {
	if len(security) == 0 {
		return nil, ErrNoSecurityTransport
	}
	if cfg.NegotiateTimeout <= 0 {
		cfg.NegotiateTimeout = DefaultConfig().NegotiateTimeout
	}
	ordered := orderMuxers(muxers, cfg.Preferred)
	if len(ordered) == 0 {
		return nil, ErrNoStreamMuxer
	}
	return &Upgrader{cfg: cfg, security: security, muxers: ordered}, nil
}

func orderMuxers(muxers []interfaces.StreamMuxer, preferred []string) []interfaces.StreamMuxer {
	if len(preferred) == 0 {
		return append([]interfaces.StreamMuxer(nil), muxers...)
	}
	out := make([]interfaces.StreamMuxer, 0, len(preferred))
	for _, id := range preferred {
		for _, m := range muxers {
			if m.ID() == id {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// Muxers 返回按偏好排序的多路复用器 ID
func (u *Upgrader) Muxers() []string {
	ids := make([]string, len(u.muxers))
	for i, m := range u.muxers {
		ids[i] = m.ID()
	}
	return ids
}

// Upgrade 升级连接
//
// 升级流程：
//  1. multistream-select 协商安全协议
//  2. 安全握手，握手扩展携带本地多路复用器列表
//  3. 双方都声明了列表时直接取发起方偏好中第一个共同项，否则在安全连接上用 multistream 协商
//  4. 建立多路复用会话
//
// 任何失败都会关闭 raw。
func (u *Upgrader) Upgrade(ctx context.Context, raw interfaces.RawConn, dir types.Direction, expected types.PeerID) (*Conn, error) {
	isServer := dir == types.DirInbound

	st, err := u.negotiateSecurity(ctx, raw, isServer)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("security negotiation: %w", err)
	}

	var sc interfaces.SecureConn
	if isServer {
		sc, err = st.SecureInbound(ctx, raw, expected)
	} else {
		sc, err = st.SecureOutbound(ctx, raw, expected)
	}
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("security handshake: %w", err)
	}

	mux, early, err := u.selectMuxer(ctx, st, sc, isServer)
	if err != nil {
		sc.Close()
		return nil, fmt.Errorf("muxer selection: %w", err)
	}

	mc, err := mux.NewConn(sc, isServer)
	if err != nil {
		sc.Close()
		return nil, fmt.Errorf("muxer setup: %w", err)
	}
	if err := ctx.Err(); err != nil {
		mc.Close()
		return nil, err
	}

	logger.Debug("连接升级成功",
		"remotePeer", sc.RemotePeer().ShortString(),
		"direction", dir,
		"security", st.ID(),
		"muxer", mux.ID(),
		"early", early)

	return &Conn{
		MuxedConn: mc,
		raw:       raw,
		secure:    sc,
		security:  st.ID(),
		muxer:     mux.ID(),
		early:     early,
		dir:       dir,
	}, nil
}

// selectMuxer 先尝试早期协商，不可用时回退到 multistream
func (u *Upgrader) selectMuxer(ctx context.Context, st interfaces.SecureTransport, sc interfaces.SecureConn, isServer bool) (interfaces.StreamMuxer, bool, error) {
	var local []string
	if adv, ok := st.(muxerAdvertiser); ok {
		local = adv.Muxers()
	}
	remote := sc.RemoteMuxers()

	if len(local) > 0 && len(remote) > 0 {
		initiator, responder := local, remote
		if isServer {
			initiator, responder = remote, local
		}
		if id := selectEarly(initiator, responder); id != "" {
			m := u.muxer(id)
			if m == nil {
				return nil, false, fmt.Errorf("%w: %s", ErrMuxerUnavailable, id)
			}
			return m, true, nil
		}
	}

	m, err := u.negotiateMuxer(ctx, sc, isServer)
	return m, false, err
}

// selectEarly 返回发起方偏好中第一个响应方也声明的多路复用器
func selectEarly(initiator, responder []string) string {
	for _, id := range initiator {
		for _, r := range responder {
			if id == r {
				return id
			}
		}
	}
	return ""
}

func (u *Upgrader) muxer(id string) interfaces.StreamMuxer {
	for _, m := range u.muxers {
		if m.ID() == id {
			return m
		}
	}
	return nil
}
