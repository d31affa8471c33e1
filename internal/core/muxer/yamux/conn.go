package yamux

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-yamux/v5"

	"github.com/dep2p/go-substrate/internal/core/muxer"
	"github.com/dep2p/go-substrate/pkg/interfaces"
)

// gracefulPollInterval 优雅关闭时检查活跃流数量的间隔
const gracefulPollInterval = 20 * time.Millisecond

// muxedConn 包装 yamux.Session，实现 MuxedConn 接口
//
// yamux 的 AcceptStream 不支持 context，由后台协程转发到 acceptCh。
type muxedConn struct {
	session *yamux.Session

	acceptCh chan *yamux.Stream
	done     chan struct{}

	errOnce sync.Once
	err     error
}

var (
	_ interfaces.MuxedConn      = (*muxedConn)(nil)
	_ interfaces.GracefulCloser = (*muxedConn)(nil)
)

func newConn(sess *yamux.Session) *muxedConn {
	c := &muxedConn{
		session:  sess,
		acceptCh: make(chan *yamux.Stream),
		done:     make(chan struct{}),
	}
	go c.acceptLoop()
	return c
}

func (c *muxedConn) acceptLoop() {
	defer close(c.done)
	for {
		s, err := c.session.AcceptStream()
		if err != nil {
			c.setErr(err)
			return
		}
		select {
		case c.acceptCh <- s:
		case <-c.session.CloseChan():
			_ = s.Reset()
			c.setErr(yamux.ErrSessionShutdown)
			return
		}
	}
}

func (c *muxedConn) setErr(err error) {
	c.errOnce.Do(func() {
		err = parseError(err)
		if !errors.Is(err, muxer.ErrConnectionClosed) {
			err = fmt.Errorf("%w: %w", muxer.ErrConnectionClosed, err)
		}
		c.err = err
	})
}

// OpenStream 打开新流
func (c *muxedConn) OpenStream(ctx context.Context) (interfaces.MuxedStream, error) {
	s, err := c.session.OpenStream(ctx)
	if err != nil {
		logger.Debug("打开流失败", "error", err)
		return nil, parseError(err)
	}
	return newStream(s), nil
}

// AcceptStream 接受对端打开的流
func (c *muxedConn) AcceptStream(ctx context.Context) (interfaces.MuxedStream, error) {
	select {
	case s := <-c.acceptCh:
		return newStream(s), nil
	case <-c.done:
		return nil, c.CloseErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ping 测量往返时延
func (c *muxedConn) Ping(ctx context.Context) (time.Duration, error) {
	type result struct {
		rtt time.Duration
		err error
	}
	ch := make(chan result, 1)
	go func() {
		rtt, err := c.session.Ping()
		ch <- result{rtt, err}
	}()

	select {
	case r := <-ch:
		return r.rtt, parseError(r.err)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close 关闭会话并重置所有流
func (c *muxedConn) Close() error {
	if c.session.IsClosed() {
		return nil
	}
	logger.Debug("关闭 yamux 会话")
	return c.session.Close()
}

// CloseGracefully 发送 GoAway，等待活跃流结束（或 ctx 结束）后关闭
func (c *muxedConn) CloseGracefully(ctx context.Context) error {
	if err := c.session.GoAway(); err != nil {
		_ = c.Close()
		return nil
	}

	ticker := time.NewTicker(gracefulPollInterval)
	defer ticker.Stop()
	for c.session.NumStreams() > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			_ = c.Close()
			return ctx.Err()
		case <-c.session.CloseChan():
			return nil
		}
	}
	return c.Close()
}

// IsClosed 检查会话是否已关闭
func (c *muxedConn) IsClosed() bool {
	return c.session.IsClosed()
}

// CloseChan 会话关闭时关闭的通道
func (c *muxedConn) CloseChan() <-chan struct{} {
	return c.session.CloseChan()
}

// CloseErr 返回会话关闭原因
func (c *muxedConn) CloseErr() error {
	if !c.session.IsClosed() {
		return nil
	}
	select {
	case <-c.done:
		return c.err
	case <-time.After(gracefulPollInterval):
		return muxer.ErrConnectionClosed
	}
}
