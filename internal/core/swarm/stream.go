package swarm

import (
	"errors"
	"sync"
	"time"

	"github.com/dep2p/go-substrate/internal/core/protocol"
	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/types"
)

// Stream 协商完成的流
type Stream struct {
	interfaces.MuxedStream

	conn   *Conn
	proto  types.ProtocolID
	dir    types.Direction
	opened time.Time

	removeOnce sync.Once
}

var _ interfaces.Stream = (*Stream)(nil)

// Protocol 返回协商的协议
func (s *Stream) Protocol() types.ProtocolID { return s.proto }

// Conn 返回所属连接
func (s *Stream) Conn() interfaces.Conn { return s.conn }

// Direction 返回流方向
func (s *Stream) Direction() types.Direction { return s.dir }

// Opened 返回协商完成时间
func (s *Stream) Opened() time.Time { return s.opened }

// Close 发送 FIN 并停止接收
func (s *Stream) Close() error {
	err := s.MuxedStream.Close()
	s.remove()
	return err
}

// Reset 以默认错误码重置流
func (s *Stream) Reset() error {
	err := s.MuxedStream.Reset()
	s.remove()
	return err
}

// ResetWithError 以指定错误码重置流
func (s *Stream) ResetWithError(code uint32) error {
	err := s.MuxedStream.ResetWithError(code)
	s.remove()
	return err
}

func (s *Stream) remove() {
	s.removeOnce.Do(func() { s.conn.removeStream(s) })
}

// handleInbound 协商入站流并交给处理器，失败只重置这一条流
func (s *Swarm) handleInbound(c *Conn, ms interfaces.MuxedStream) {
	proto, err := s.negotiator.Negotiate(s.ctx, ms, s.handlers)
	if err != nil {
		s.metrics.NegotiationFailed(negotiationKind(err))
		logger.Debug("入站流协商失败", "peer", c.RemotePeer().ShortString(), "err", err)
		return
	}

	handler, ok := s.handlers.GetHandler(proto)
	if !ok {
		// 协商后处理器被移除
		_ = ms.Reset()
		return
	}
	st, err := c.addStream(ms, proto, types.DirInbound)
	if err != nil {
		return
	}
	handler(st)
}

// negotiationKind 协商失败的指标标签
func negotiationKind(err error) string {
	switch {
	case errors.Is(err, protocol.ErrNoCommonProtocol):
		return "no-common-protocol"
	case errors.Is(err, protocol.ErrNegotiationTimeout):
		return "timeout"
	case errors.Is(err, protocol.ErrFrameTooLarge):
		return "frame-too-large"
	case errors.Is(err, protocol.ErrMalformedMessage):
		return "malformed"
	default:
		return "io"
	}
}
