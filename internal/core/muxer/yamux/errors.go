package yamux

import (
	"errors"
	"fmt"
	"os"

	"github.com/libp2p/go-yamux/v5"

	"github.com/dep2p/go-substrate/internal/core/muxer"
)

// parseError 将 yamux 错误转换为 muxer 包的统一错误
//
// 本地重置后返回 muxer.ErrStreamClosed，远端重置返回 *muxer.StreamResetError，
// 会话关闭返回 muxer.ErrConnectionClosed。
func parseError(err error) error {
	if err == nil {
		return nil
	}

	var goAway *yamux.GoAwayError
	if errors.As(err, &goAway) {
		if goAway.Remote && goAway.ErrorCode == 0 {
			return fmt.Errorf("%w: %w", muxer.ErrConnectionClosed, muxer.ErrRemoteGoAway)
		}
		return fmt.Errorf("%w: %w", muxer.ErrConnectionClosed, err)
	}

	var streamErr *yamux.StreamError
	if errors.As(err, &streamErr) {
		if !streamErr.Remote {
			return muxer.ErrStreamClosed
		}
		return &muxer.StreamResetError{Code: streamErr.ErrorCode, Remote: true}
	}

	switch {
	case errors.Is(err, yamux.ErrTimeout):
		return os.ErrDeadlineExceeded
	case errors.Is(err, yamux.ErrStreamClosed):
		return muxer.ErrStreamClosed
	case errors.Is(err, yamux.ErrKeepAliveTimeout):
		return fmt.Errorf("%w: %w", muxer.ErrConnectionClosed, muxer.ErrKeepAliveTimeout)
	case errors.Is(err, yamux.ErrStreamsExhausted):
		return muxer.ErrStreamsExhausted
	case errors.Is(err, yamux.ErrStreamReset):
		// 不带错误码的重置只来自本地 CloseRead
		return muxer.ErrStreamClosed
	}
	return err
}
