package swarm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-substrate/internal/core/security/noise"
	"github.com/dep2p/go-substrate/internal/core/upgrader"
	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/lib/crypto"
	"github.com/dep2p/go-substrate/pkg/types"
)

// Conn Swarm 管理的连接
//
// 持有升级后的会话以及在其上协商完成的流。关闭时重置所有流，
// 底层安全连接随会话关闭并清零密钥。
type Conn struct {
	swarm  *Swarm
	conn   *upgrader.Conn
	id     string
	opened time.Time
	state  atomic.Int32

	streamsMu sync.Mutex
	streams   map[*Stream]struct{}

	closeOnce sync.Once
	closeErr  error
}

var _ interfaces.Conn = (*Conn)(nil)

func newConn(s *Swarm, uc *upgrader.Conn) *Conn {
	c := &Conn{
		swarm:   s,
		conn:    uc,
		id:      uuid.NewString(),
		opened:  s.clock.Now(),
		streams: make(map[*Stream]struct{}),
	}
	c.state.Store(int32(types.ConnStateEstablished))
	return c
}

// ID 返回连接唯一标识
func (c *Conn) ID() string { return c.id }

// LocalPeer 返回本地节点 ID
func (c *Conn) LocalPeer() types.PeerID { return c.conn.LocalPeer() }

// RemotePeer 返回握手验证过的远端节点 ID
func (c *Conn) RemotePeer() types.PeerID { return c.conn.RemotePeer() }

// RemotePublicKey 返回远端身份公钥
func (c *Conn) RemotePublicKey() crypto.PublicKey { return c.conn.RemotePublicKey() }

// LocalMultiaddr 返回本地地址
func (c *Conn) LocalMultiaddr() ma.Multiaddr { return c.conn.LocalMultiaddr() }

// RemoteMultiaddr 返回远端地址
func (c *Conn) RemoteMultiaddr() ma.Multiaddr { return c.conn.RemoteMultiaddr() }

// Direction 返回连接方向
func (c *Conn) Direction() types.Direction { return c.conn.Direction() }

// Transport 返回传输类型
func (c *Conn) Transport() types.TransportKind { return c.conn.Transport() }

// Security 返回安全协议
func (c *Conn) Security() types.ProtocolID { return c.conn.Security() }

// Muxer 返回多路复用器
func (c *Conn) Muxer() string { return c.conn.Muxer() }

// State 返回生命周期状态
func (c *Conn) State() types.ConnState { return types.ConnState(c.state.Load()) }

// Opened 返回建立时间
func (c *Conn) Opened() time.Time { return c.opened }

// Streams 返回当前流的快照
func (c *Conn) Streams() []*Stream {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()
	out := make([]*Stream, 0, len(c.streams))
	for st := range c.streams {
		out = append(out, st)
	}
	return out
}

// NewStream 打开流并按偏好顺序协商协议
func (c *Conn) NewStream(ctx context.Context, protos ...types.ProtocolID) (interfaces.Stream, error) {
	st, err := c.newStream(ctx, protos)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (c *Conn) newStream(ctx context.Context, protos []types.ProtocolID) (*Stream, error) {
	if len(protos) == 0 {
		return nil, ErrNoProtocols
	}
	if c.State() != types.ConnStateEstablished {
		return nil, ErrConnClosed
	}

	ms, err := c.conn.OpenStream(ctx)
	if err != nil {
		return nil, err
	}
	proto, err := c.swarm.negotiator.SelectOneOf(ctx, ms, protos)
	if err != nil {
		c.swarm.metrics.NegotiationFailed(negotiationKind(err))
		return nil, err
	}
	return c.addStream(ms, proto, types.DirOutbound)
}

// addStream 记录协商完成的流，连接不再是 Established 时重置它
func (c *Conn) addStream(ms interfaces.MuxedStream, proto types.ProtocolID, dir types.Direction) (*Stream, error) {
	st := &Stream{MuxedStream: ms, conn: c, proto: proto, dir: dir, opened: c.swarm.clock.Now()}

	c.streamsMu.Lock()
	if c.State() != types.ConnStateEstablished {
		c.streamsMu.Unlock()
		_ = ms.Reset()
		return nil, ErrConnClosed
	}
	c.streams[st] = struct{}{}
	c.streamsMu.Unlock()

	go c.reapStream(st)
	c.swarm.metrics.StreamOpened(dir, proto)
	return st, nil
}

// reapStream 流在复用层结束后移出集合，包括正常的 FIN/FIN 和远端重置
func (c *Conn) reapStream(st *Stream) {
	select {
	case <-st.MuxedStream.Done():
		st.remove()
	case <-c.conn.CloseChan():
	}
}

func (c *Conn) removeStream(st *Stream) {
	c.streamsMu.Lock()
	delete(c.streams, st)
	c.streamsMu.Unlock()
}

// Close 重置所有流并关闭连接，幂等
func (c *Conn) Close() error {
	return c.closeWithReason(nil)
}

// CloseGracefully 拒绝新流，等待已有流结束或 ctx 结束后关闭
func (c *Conn) CloseGracefully(ctx context.Context) error {
	c.state.CompareAndSwap(int32(types.ConnStateEstablished), int32(types.ConnStateClosing))
	err := c.conn.CloseGracefully(ctx)
	if cerr := c.closeWithReason(nil); err == nil {
		err = cerr
	}
	return err
}

func (c *Conn) closeWithReason(reason error) error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(types.ConnStateClosing))

		c.streamsMu.Lock()
		streams := c.streams
		c.streams = make(map[*Stream]struct{})
		c.streamsMu.Unlock()
		for st := range streams {
			_ = st.MuxedStream.Reset()
		}

		c.closeErr = c.conn.Close()
		c.state.Store(int32(types.ConnStateClosed))
		c.swarm.removeConn(c, reason)
	})
	return c.closeErr
}

// watch 等待会话结束，远端关闭或解密失败时拆除连接
func (c *Conn) watch() {
	<-c.conn.CloseChan()
	reason := c.conn.CloseErr()

	var de *noise.DecryptError
	if errors.As(reason, &de) {
		c.swarm.metrics.DecryptFailed()
		c.swarm.emitSecurityEvent(interfaces.SecurityEvent{
			Peer: c.RemotePeer(),
			Addr: c.RemoteMultiaddr(),
			Kind: SecurityEventDecryptFailed,
			Err:  reason,
			Time: c.swarm.clock.Now(),
		})
	}
	_ = c.closeWithReason(reason)
}

// acceptStreams 接受对端打开的流，每条流在独立协程中协商
func (c *Conn) acceptStreams() {
	for {
		ms, err := c.conn.AcceptStream(c.swarm.ctx)
		if err != nil {
			return
		}
		go c.swarm.handleInbound(c, ms)
	}
}
