//go:build linux || darwin || freebsd

package server

import (
	"net"

	"github.com/legamerdc/evloop"
	"go.uber.org/zap"
)

// Server 把监听 socket、Acceptor 与 Reactor 组装在一起
type Server struct {
	cfg  Config
	o    *options
	r    *evloop.Reactor
	a    *Acceptor
	addr *net.TCPAddr
}

// New 创建 reactor 与监听 socket 并注册 Acceptor，失败时返回 *evloop.SetupError
func New(cfg Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, evloop.Setup("config", err)
	}
	o := newOptions(append([]Option{WithReadBufferSize(cfg.ReadBufferSize)}, opts...))
	r, err := evloop.New(evloop.WithConfig(cfg.Config), evloop.WithLogger(o.log), evloop.WithPoller(o.poller))
	if err != nil {
		return nil, err
	}
	lfd, err := Listen(cfg.Address, cfg.Backlog)
	if err != nil {
		r.Close()
		return nil, err
	}
	addr, err := localAddr(lfd)
	if err != nil {
		r.Close()
		closeFD(lfd)
		return nil, evloop.Setup("getsockname", err)
	}
	a := &Acceptor{fd: lfd, o: o}
	if err := r.Add(a); err != nil {
		r.Close()
		a.Close()
		return nil, evloop.Setup("register listener", err)
	}
	o.log.Info("server started", zap.Stringer("addr", addr))
	return &Server{cfg: cfg, o: o, r: r, a: a, addr: addr}, nil
}

// Addr 返回实际绑定的地址（Address 端口为 0 时有用）
func (s *Server) Addr() *net.TCPAddr { return s.addr }

// Reactor 返回内部的 reactor，只能在 Serve 所在 goroutine 或 Serve 之前使用
func (s *Server) Reactor() *evloop.Reactor { return s.r }

// AddHandler 额外注册一个 handler（例如本地控制台），须在 Serve 之前调用
func (s *Server) AddHandler(h evloop.Handler) error { return s.r.Add(h) }

// Serve 运行事件循环，直到注册表为空
func (s *Server) Serve() error {
	err := s.r.Run()
	s.o.log.Info("server stopped", zap.Error(err))
	return err
}

// Shutdown 清空注册表，Serve 随后返回。只能在回调中或 Serve 之前调用
func (s *Server) Shutdown() error { return s.r.DeleteAll() }

// Close 释放剩余的 handler 与 poller
func (s *Server) Close() error { return s.r.Close() }
