// Package ping 实现 /ping/1 回显协议
//
// 发起方写入若干 32 字节帧，响应方原样回显；发起方半关闭后响应方回显完剩余数据并关闭流。
package ping

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"time"

	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/lib/log"
	"github.com/dep2p/go-substrate/pkg/protocolids"
	"github.com/dep2p/go-substrate/pkg/types"
)

var logger = log.Logger("core/protocol/ping")

// ProtocolID Ping 协议 ID
const ProtocolID = protocolids.Ping

const (
	// PingSize 单帧大小
	PingSize = 32

	// PingTimeout 单次 Ping 的超时
	PingTimeout = 10 * time.Second

	// HandlerIdleTimeout 处理器空闲超时
	HandlerIdleTimeout = 60 * time.Second
)

// ErrDataMismatch 回显数据不一致
var ErrDataMismatch = errors.New("ping: echo data mismatch")

// Host 能够打开协商好协议的流
type Host interface {
	NewStream(ctx context.Context, peer types.PeerID, protos ...types.ProtocolID) (interfaces.Stream, error)
}

// Handler 响应方：逐帧回显，直到对端半关闭
func Handler(stream interfaces.Stream) {
	defer stream.Close()

	buf := make([]byte, PingSize)
	for {
		_ = stream.SetReadDeadline(time.Now().Add(HandlerIdleTimeout))

		n, err := io.ReadFull(stream, buf)
		if n > 0 {
			if _, werr := stream.Write(buf[:n]); werr != nil {
				logger.Debug("ping 回显失败", "err", werr)
				_ = stream.Reset()
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				logger.Debug("ping 读取失败", "err", err)
				_ = stream.Reset()
			}
			return
		}
	}
}

// Ping 发送一帧并返回往返时间
func Ping(ctx context.Context, h Host, peer types.PeerID) (time.Duration, error) {
	rtts, err := PingN(ctx, h, peer, 1)
	if err != nil {
		return 0, err
	}
	return rtts[0], nil
}

// PingN 在同一条流上依次发送 count 帧，返回每帧的往返时间
//
// 全部回显后半关闭写方向，并等待对端关闭。
func PingN(ctx context.Context, h Host, peer types.PeerID, count int) ([]time.Duration, error) {
	if count <= 0 {
		return nil, nil
	}
	stream, err := h.NewStream(ctx, peer, ProtocolID)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(PingTimeout * time.Duration(count))
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = stream.SetDeadline(deadline)

	rtts, err := exchange(stream, count)
	if err != nil {
		_ = stream.Reset()
		return nil, err
	}
	return rtts, nil
}

func exchange(stream interfaces.Stream, count int) ([]time.Duration, error) {
	out := make([]byte, PingSize)
	in := make([]byte, PingSize)
	rtts := make([]time.Duration, 0, count)

	for i := 0; i < count; i++ {
		if _, err := rand.Read(out); err != nil {
			return nil, err
		}
		start := time.Now()
		if _, err := stream.Write(out); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(stream, in); err != nil {
			return nil, err
		}
		if !bytes.Equal(out, in) {
			return nil, ErrDataMismatch
		}
		rtts = append(rtts, time.Since(start))
	}

	if err := stream.CloseWrite(); err != nil {
		return nil, err
	}
	// 对端读到 FIN 后关闭，这里应直接读到 EOF
	if n, err := stream.Read(in); n > 0 || !errors.Is(err, io.EOF) {
		if err == nil {
			err = ErrDataMismatch
		}
		return nil, err
	}
	_ = stream.Close()
	return rtts, nil
}
