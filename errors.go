package evloop

import (
	"errors"
	"fmt"

	"github.com/legamerdc/evloop/poller"
)

var (
	// ErrPlatformNotSupported 当前平台没有 epoll/kqueue
	ErrPlatformNotSupported = poller.ErrPlatformNotSupported

	// ErrInvalidArgument 参数非法
	ErrInvalidArgument = errors.New("evloop: invalid argument")

	// ErrAlreadyRegistered 同一个 fd 在注册表中只能有一条记录
	ErrAlreadyRegistered = errors.New("evloop: fd already registered")

	// ErrNotRegistered fd 不在注册表中
	ErrNotRegistered = errors.New("evloop: fd not registered")
)

// SetupError 为启动阶段的致命错误（socket/bind/listen/创建 poller/解析地址），
// 事件循环开始之前就会返回给调用方。
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("evloop: setup %s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// Setup 构造 SetupError，err 为 nil 时返回 nil
func Setup(op string, err error) error {
	if err == nil {
		return nil
	}
	return &SetupError{Op: op, Err: err}
}

// HandlerError 为单个 handler 的运行时错误，由 Run 捕获并记录，不会中断循环。
// Keep 为 false 时出错的 handler 随后被移出注册表
type HandlerError struct {
	FD   int
	Op   string
	Err  error
	Keep bool
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("evloop: handler fd=%d %s: %v", e.FD, e.Op, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Fail 构造 HandlerError，err 为 nil 时返回 nil
func Fail(fd int, op string, err error) error {
	if err == nil {
		return nil
	}
	return &HandlerError{FD: fd, Op: op, Err: err}
}

// Report 构造 Keep 的 HandlerError：错误照常记录，handler 保留在注册表中。
// 用于与 handler 自身无关的失败，例如 Acceptor 注册新连接失败
func Report(fd int, op string, err error) error {
	if err == nil {
		return nil
	}
	return &HandlerError{FD: fd, Op: op, Err: err, Keep: true}
}
