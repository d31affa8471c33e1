package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/pkg/lib/log"
	"github.com/dep2p/go-substrate/pkg/types"
)

var logger = log.Logger("core/protocol")

// 默认协商参数
const (
	DefaultTimeout        = 10 * time.Second
	DefaultMaxMessageSize = 1024
	DefaultMaxAttempts    = 64
)

// Config 协商器配置
type Config struct {
	// Timeout 单次协商超时
	Timeout time.Duration

	// MaxMessageSize 单条消息上限（含结尾换行）
	MaxMessageSize int

	// MaxAttempts 响应方最多处理的消息数（含 ls）
	MaxAttempts int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Timeout:        DefaultTimeout,
		MaxMessageSize: DefaultMaxMessageSize,
		MaxAttempts:    DefaultMaxAttempts,
	}
}

// ConfigFromUnified 从统一配置提取协商配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		Timeout:        time.Duration(cfg.Negotiation.Timeout),
		MaxMessageSize: cfg.Negotiation.MaxMessageSize,
		MaxAttempts:    cfg.Negotiation.MaxAttempts,
	}
}

// Matcher 响应方用来判断是否支持某个协议
type Matcher interface {
	Match(types.ProtocolID) bool
	Protocols() []types.ProtocolID
}

// ProtocolList 固定协议列表
type ProtocolList []types.ProtocolID

// Match 实现 Matcher
func (l ProtocolList) Match(p types.ProtocolID) bool {
	for _, q := range l {
		if q == p {
			return true
		}
	}
	return false
}

// Protocols 实现 Matcher
func (l ProtocolList) Protocols() []types.ProtocolID { return l }

// Negotiator 在单个流上执行 multistream-select 协商
//
// 读取时逐字节解析长度前缀，协商结束后流上剩余的字节全部留给应用。
// 失败时流被重置（或关闭），不影响所在连接。
type Negotiator struct {
	cfg Config
}

// NewNegotiator 创建协商器，零值字段使用默认值
func NewNegotiator(cfg Config) *Negotiator {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Negotiator{cfg: cfg}
}

// Config 返回生效的配置
func (n *Negotiator) Config() Config { return n.cfg }

// SelectOneOf 作为发起方按偏好顺序提议协议，返回对端接受的第一个
func (n *Negotiator) SelectOneOf(ctx context.Context, rw io.ReadWriter, protos []types.ProtocolID) (types.ProtocolID, error) {
	if len(protos) == 0 {
		return "", n.fail(ctx, rw, true, protos, ErrNoCommonProtocol)
	}
	for _, p := range protos {
		if p == "" {
			return "", n.fail(ctx, rw, true, protos, types.ErrEmptyProtocolID)
		}
	}

	stop := n.watch(ctx, rw)
	proto, err := n.selectOneOf(rw, protos)
	stop()
	if err != nil {
		return "", n.fail(ctx, rw, true, protos, err)
	}
	return proto, nil
}

func (n *Negotiator) selectOneOf(rw io.ReadWriter, protos []types.ProtocolID) (types.ProtocolID, error) {
	limit := n.cfg.MaxMessageSize

	// 协议头与第一个提议一起发送
	buf, err := appendMessage(nil, MultistreamID, limit)
	if err != nil {
		return "", err
	}
	if buf, err = appendMessage(buf, string(protos[0]), limit); err != nil {
		return "", err
	}
	if _, err := rw.Write(buf); err != nil {
		return "", err
	}
	if err := n.readHeader(rw); err != nil {
		return "", err
	}

	for i, p := range protos {
		if i > 0 {
			if err := n.writeMessage(rw, string(p)); err != nil {
				return "", err
			}
		}
		resp, err := readMessage(rw, limit)
		if err != nil {
			return "", err
		}
		switch resp {
		case string(p):
			return p, nil
		case NA:
			logger.Debug("协议被拒绝", "protocol", p)
		default:
			return "", fmt.Errorf("%w: unexpected response %q to %q", ErrMalformedMessage, resp, p)
		}
	}
	return "", ErrNoCommonProtocol
}

// Negotiate 作为响应方回显第一个支持的提议，不支持的回复 na
func (n *Negotiator) Negotiate(ctx context.Context, rw io.ReadWriter, supported Matcher) (types.ProtocolID, error) {
	stop := n.watch(ctx, rw)
	proto, err := n.negotiate(rw, supported)
	stop()
	if err != nil {
		return "", n.fail(ctx, rw, false, nil, err)
	}
	return proto, nil
}

func (n *Negotiator) negotiate(rw io.ReadWriter, supported Matcher) (types.ProtocolID, error) {
	if err := n.readHeader(rw); err != nil {
		return "", err
	}
	if err := n.writeMessage(rw, MultistreamID); err != nil {
		return "", err
	}

	for i := 0; i < n.cfg.MaxAttempts; i++ {
		msg, err := readMessage(rw, n.cfg.MaxMessageSize)
		if err != nil {
			return "", err
		}
		if msg == LS {
			buf, err := encodeList(types.ProtocolIDs(supported.Protocols()), n.cfg.MaxMessageSize)
			if err != nil {
				return "", err
			}
			if _, err := rw.Write(buf); err != nil {
				return "", err
			}
			continue
		}
		p := types.ProtocolID(msg)
		if p != "" && supported.Match(p) {
			if err := n.writeMessage(rw, msg); err != nil {
				return "", err
			}
			return p, nil
		}
		if err := n.writeMessage(rw, NA); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: too many proposals", ErrNoCommonProtocol)
}

// ListProtocols 作为发起方请求对端列出支持的协议，用于诊断，返回后调用方应关闭流
func (n *Negotiator) ListProtocols(ctx context.Context, rw io.ReadWriter) ([]types.ProtocolID, error) {
	stop := n.watch(ctx, rw)
	list, err := n.listProtocols(rw)
	stop()
	if err != nil {
		return nil, n.fail(ctx, rw, true, nil, err)
	}
	return list, nil
}

func (n *Negotiator) listProtocols(rw io.ReadWriter) ([]types.ProtocolID, error) {
	limit := n.cfg.MaxMessageSize
	buf, err := appendMessage(nil, MultistreamID, limit)
	if err != nil {
		return nil, err
	}
	if buf, err = appendMessage(buf, LS, limit); err != nil {
		return nil, err
	}
	if _, err := rw.Write(buf); err != nil {
		return nil, err
	}
	if err := n.readHeader(rw); err != nil {
		return nil, err
	}
	body, err := readFrame(rw, maxListSize)
	if err != nil {
		return nil, err
	}
	names, err := decodeList(body, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.ProtocolID, len(names))
	for i, s := range names {
		out[i] = types.ProtocolID(s)
	}
	return out, nil
}

func (n *Negotiator) readHeader(r io.Reader) error {
	hdr, err := readMessage(r, n.cfg.MaxMessageSize)
	if err != nil {
		return err
	}
	if hdr != MultistreamID {
		return fmt.Errorf("%w: unexpected header %q", ErrMalformedMessage, hdr)
	}
	return nil
}

func (n *Negotiator) writeMessage(w io.Writer, msg string) error {
	buf, err := appendMessage(nil, msg, n.cfg.MaxMessageSize)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// deadliner 支持截止时间的流
type deadliner interface {
	SetDeadline(time.Time) error
}

// resetter 支持重置的流
type resetter interface {
	Reset() error
}

// watch 设置协商截止时间，ctx 取消时立即打断阻塞的读写
//
// 返回的函数撤销监视并清除截止时间。
func (n *Negotiator) watch(ctx context.Context, rw io.ReadWriter) func() {
	d, hasDeadline := rw.(deadliner)
	if hasDeadline {
		deadline := time.Now().Add(n.cfg.Timeout)
		if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
			deadline = dl
		}
		_ = d.SetDeadline(deadline)
	}

	fired := make(chan struct{})
	stopAfter := context.AfterFunc(ctx, func() {
		defer close(fired)
		if hasDeadline {
			_ = d.SetDeadline(time.Unix(1, 0))
			return
		}
		abort(rw)
	})
	return func() {
		if !stopAfter() {
			<-fired
		}
		if hasDeadline {
			_ = d.SetDeadline(time.Time{})
		}
	}
}

// fail 重置流并包装错误
func (n *Negotiator) fail(ctx context.Context, rw io.ReadWriter, initiator bool, protos []types.ProtocolID, err error) error {
	abort(rw)
	switch {
	case ctx.Err() != nil:
		err = fmt.Errorf("%w: %w", ErrNegotiationTimeout, ctx.Err())
	case isTimeout(err):
		err = fmt.Errorf("%w: %w", ErrNegotiationTimeout, err)
	}
	logger.Debug("协议协商失败", "initiator", initiator, "protocols", protos, "err", err)
	return &NegotiationError{Initiator: initiator, Protocols: protos, Err: err}
}

func abort(rw io.ReadWriter) {
	switch s := rw.(type) {
	case resetter:
		_ = s.Reset()
	case io.Closer:
		_ = s.Close()
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
