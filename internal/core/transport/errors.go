package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"

	ma "github.com/multiformats/go-multiaddr"
)

var (
	// ErrNoTransport 没有可处理该地址的传输
	ErrNoTransport = errors.New("no suitable transport for address")

	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("transport closed")
)

// Error 传输适配器失败
type Error struct {
	// Op 操作：dial、listen、accept
	Op string
	// Addr 相关地址
	Addr ma.Multiaddr
	// Err 底层错误
	Err error
}

// NewError 包装传输错误，err 为 nil 时返回 nil
func NewError(op string, addr ma.Multiaddr, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return &Error{Op: op, Addr: addr, Err: err}
}

func (e *Error) Error() string {
	if e.Addr == nil {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout 是否为超时
func (e *Error) Timeout() bool {
	if errors.Is(e.Err, os.ErrDeadlineExceeded) || errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// Temporary 是否为可重试的瞬时错误：超时、对端重置或拒绝
func (e *Error) Temporary() bool {
	if e.Timeout() {
		return true
	}
	if errors.Is(e.Err, syscall.ECONNRESET) ||
		errors.Is(e.Err, syscall.ECONNREFUSED) ||
		errors.Is(e.Err, syscall.ECONNABORTED) {
		return true
	}
	var tmp interface{ Temporary() bool }
	return errors.As(e.Err, &tmp) && tmp.Temporary()
}
