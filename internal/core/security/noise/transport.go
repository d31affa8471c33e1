package noise

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/lib/log"
	noisepb "github.com/dep2p/go-substrate/pkg/lib/proto/noise"
	"github.com/dep2p/go-substrate/pkg/protocolids"
	"github.com/dep2p/go-substrate/pkg/types"
)

var logger = log.Logger("core/security/noise")

// ID 安全协议标识
const ID = protocolids.Noise

// DefaultHandshakeTimeout 默认握手超时
const DefaultHandshakeTimeout = 15 * time.Second

// Transport Noise 安全传输
type Transport struct {
	identity interfaces.Identity
	muxers   []string
	timeout  time.Duration

	// payloadHook 发送前修改 payload，仅测试使用
	payloadHook func(*noisepb.NoiseHandshakePayload)
}

var _ interfaces.SecureTransport = (*Transport)(nil)

// Option 传输选项
type Option func(*Transport)

// WithMuxers 在握手扩展中声明多路复用器（按偏好排序）
func WithMuxers(ids ...string) Option {
	return func(t *Transport) {
		t.muxers = append([]string(nil), ids...)
	}
}

// WithTimeout 设置握手超时
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// New 创建 Noise 传输
func New(identity interfaces.Identity, opts ...Option) (*Transport, error) {
	if identity == nil {
		return nil, ErrNilIdentity
	}
	t := &Transport{
		identity: identity,
		timeout:  DefaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// ID 返回协议标识
func (t *Transport) ID() types.ProtocolID { return ID }

// Muxers 返回本地声明的多路复用器
func (t *Transport) Muxers() []string { return t.muxers }

// SecureInbound 以响应方身份握手
func (t *Transport) SecureInbound(ctx context.Context, conn net.Conn, remotePeer types.PeerID) (interfaces.SecureConn, error) {
	return t.secure(ctx, conn, false, remotePeer)
}

// SecureOutbound 以发起方身份握手，remotePeer 非空时在发送第三条消息前校验身份
func (t *Transport) SecureOutbound(ctx context.Context, conn net.Conn, remotePeer types.PeerID) (interfaces.SecureConn, error) {
	return t.secure(ctx, conn, true, remotePeer)
}

func (t *Transport) secure(ctx context.Context, conn net.Conn, initiator bool, remotePeer types.PeerID) (interfaces.SecureConn, error) {
	if conn == nil {
		return nil, errors.New("noise: nil conn")
	}
	dir := "inbound"
	if initiator {
		dir = "outbound"
	}
	logger.Debug("开始 Noise 握手", "dir", dir, "expected", remotePeer.ShortString())

	sc, err := t.handshake(ctx, conn, initiator, remotePeer)
	if err != nil {
		logger.Debug("Noise 握手失败", "dir", dir, "expected", remotePeer.ShortString(), "error", err)
		return nil, err
	}

	logger.Debug("Noise 握手成功", "dir", dir, "remote", sc.RemotePeer().ShortString())
	return sc, nil
}
