package upgrader

import (
	"context"
	"fmt"
	"net"
	"time"

	mss "github.com/multiformats/go-multistream"

	"github.com/dep2p/go-substrate/pkg/interfaces"
)

// withDeadline 为 multistream 协商设置截止时间，返回清除函数
//
// ctx 取消时把截止时间拨到过去，阻塞的读写立即返回。
func (u *Upgrader) withDeadline(ctx context.Context, conn net.Conn) (func(), error) {
	deadline := time.Now().Add(u.cfg.NegotiateTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		// 回调已在运行时等它结束，再清除截止时间
		if !stop() {
			<-fired
		}
		_ = conn.SetDeadline(time.Time{})
	}, nil
}

// ctxErr ctx 已结束时把 ctx 的错误包进读写超时
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w: %w", cerr, err)
	}
	return err
}

// negotiateSecurity 协商安全协议
//
// 服务器端使用 MultistreamMuxer.Negotiate，客户端使用 SelectOneOf。
func (u *Upgrader) negotiateSecurity(ctx context.Context, conn net.Conn, isServer bool) (interfaces.SecureTransport, error) {
	done, err := u.withDeadline(ctx, conn)
	if err != nil {
		return nil, err
	}
	defer done()

	var selected string
	if isServer {
		m := mss.NewMultistreamMuxer[string]()
		for _, st := range u.security {
			m.AddHandler(string(st.ID()), nil)
		}
		selected, _, err = m.Negotiate(conn)
	} else {
		protos := make([]string, len(u.security))
		for i, st := range u.security {
			protos[i] = string(st.ID())
		}
		selected, err = mss.SelectOneOf(protos, conn)
	}
	if err != nil {
		return nil, ctxErr(ctx, err)
	}

	for _, st := range u.security {
		if string(st.ID()) == selected {
			return st, nil
		}
	}
	return nil, fmt.Errorf("%w: security %s", ErrNegotiationFailed, selected)
}

// negotiateMuxer 在安全连接上用 multistream 协商多路复用器
func (u *Upgrader) negotiateMuxer(ctx context.Context, conn net.Conn, isServer bool) (interfaces.StreamMuxer, error) {
	done, err := u.withDeadline(ctx, conn)
	if err != nil {
		return nil, err
	}
	defer done()

	var selected string
	if isServer {
		m := mss.NewMultistreamMuxer[string]()
		for _, mux := range u.muxers {
			m.AddHandler(mux.ID(), nil)
		}
		selected, _, err = m.Negotiate(conn)
	} else {
		selected, err = mss.SelectOneOf(u.Muxers(), conn)
	}
	if err != nil {
		return nil, ctxErr(ctx, err)
	}

	if mux := u.muxer(selected); mux != nil {
		return mux, nil
	}
	return nil, fmt.Errorf("%w: muxer %s", ErrNegotiationFailed, selected)
}
