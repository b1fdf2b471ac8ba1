//go:build linux || darwin || freebsd

package server

import (
	"github.com/legamerdc/evloop"
	"github.com/legamerdc/evloop/internal/netutil"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// sockError 可在测试中替换
var sockError = netutil.SockError

// Acceptor 包装监听 socket，每次可读接受一个连接并注册新的 Connection。
// 新连接注册失败时关闭该连接并返回 Keep 的 *evloop.HandlerError，Acceptor 不会被移除
type Acceptor struct {
	fd     int
	o      *options
	closed bool
}

// NewAcceptor 接管一个非阻塞的监听 fd
func NewAcceptor(fd int, opts ...Option) *Acceptor {
	return &Acceptor{fd: fd, o: newOptions(opts)}
}

func (a *Acceptor) FD() int { return a.fd }

func (a *Acceptor) Interest() evloop.Interest { return evloop.Readable }

func (a *Acceptor) OnReadable(r *evloop.Reactor) error {
	fd, sa, err := accept(a.fd)
	if err != nil {
		// 连接在 accept 之前被对端放弃，或者被别人抢先接受
		if netutil.IsTemporary(err) || err == unix.ECONNABORTED {
			return nil
		}
		// 监听 socket 出错对整个服务是致命的，清空注册表让循环退出
		if derr := r.DeleteAll(); derr != nil {
			a.o.log.Warn("drain after accept failure", zap.Error(derr))
		}
		return evloop.Fail(a.fd, "accept", err)
	}
	_ = netutil.SetNoDelay(fd, true)
	c := newConnection(fd, a.o)
	if err := r.Add(c); err != nil {
		// 只丢弃这个连接，Acceptor 继续工作
		c.Close()
		return evloop.Report(a.fd, "register", err)
	}
	a.o.log.Info("client connected", zap.Int("fd", fd), zap.Stringer("peer", toTCPAddr(sa)))
	return nil
}

func (a *Acceptor) OnWritable(*evloop.Reactor) error { return nil }

func (a *Acceptor) OnError(r *evloop.Reactor) error {
	code, err := sockError(a.fd)
	if derr := r.DeleteAll(); derr != nil {
		a.o.log.Warn("drain after listener failure", zap.Error(derr))
	}
	if err != nil {
		return evloop.Fail(a.fd, "sockerror", err)
	}
	if code != 0 {
		return evloop.Fail(a.fd, "listener", code)
	}
	return nil
}

func (a *Acceptor) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	return unix.Close(a.fd)
}
