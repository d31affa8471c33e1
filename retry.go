package substrate

import (
	"context"
	"errors"
	"time"

	"github.com/jpillora/backoff"
)

// RetryPolicy 拨号重试策略
type RetryPolicy struct {
	// Min 第一次重试前的等待
	Min time.Duration
	// Max 等待上限
	Max time.Duration
	// Factor 每次重试的放大倍数
	Factor float64
	// Jitter 是否对等待时间加随机抖动
	Jitter bool
	// MaxAttempts 总尝试次数（含首次），<= 0 表示直到 ctx 结束
	MaxAttempts int
}

// DefaultRetryPolicy 默认重试策略
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Min:         200 * time.Millisecond,
		Max:         10 * time.Second,
		Factor:      2,
		Jitter:      true,
		MaxAttempts: 5,
	}
}

// ConnectWithRetry 按 policy 重试 Connect
//
// 只重试传输层失败。握手失败、身份隔离、拨自己以及节点关闭都立即返回。
func (n *Node) ConnectWithRetry(ctx context.Context, addr string, expected PeerID, policy RetryPolicy) (Conn, error) {
	b := &backoff.Backoff{
		Min:    policy.Min,
		Max:    policy.Max,
		Factor: policy.Factor,
		Jitter: policy.Jitter,
	}

	for {
		c, err := n.Connect(ctx, addr, expected)
		if err == nil {
			return c, nil
		}
		if !retryable(err) {
			return nil, err
		}
		attempt := int(b.Attempt()) + 1
		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return nil, err
		}

		d := b.Duration()
		logger.Debug("拨号失败，稍后重试",
			"addr", addr,
			"attempt", attempt,
			"wait", d,
			"error", err)

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, errors.Join(ctx.Err(), err)
		case <-t.C:
		}
	}
}

// retryable 只有传输层错误值得重试
func retryable(err error) bool {
	var he *HandshakeError
	var ae *AuthFailureError
	switch {
	case errors.As(err, &he), errors.As(err, &ae):
		return false
	case errors.Is(err, ErrDialToSelf), errors.Is(err, ErrNodeClosed), errors.Is(err, ErrSwarmClosed):
		return false
	}
	var te *TransportError
	return errors.As(err, &te)
}
