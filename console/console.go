// Package console 实现本地输入 handler：按行读取，遇到退出命令时清空 reactor，
// 否则把这一行交给 Sink 发送。
package console

import (
	"bytes"

	"github.com/legamerdc/evloop"
	"github.com/legamerdc/evloop/internal/netutil"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Sink 接收要发送的一行文本，通常是一个连接的发送路径
type Sink interface {
	Send(r *evloop.Reactor, p []byte) error
}

// Handler 为本地输入 handler
type Handler struct {
	fd      int
	keyword string
	sink    Sink
	log     *zap.Logger
	owned   bool
	closed  bool
	buf     []byte
	partial []byte // 还没遇到换行的部分，不超过 len(buf)
}

type Option func(*Handler)

// WithKeyword 设置退出命令，默认 "exit"
func WithKeyword(k string) Option {
	return func(h *Handler) {
		if k != "" {
			h.keyword = k
		}
	}
}

// WithSink 设置非退出命令的去处；不设置时忽略这些输入
func WithSink(s Sink) Option {
	return func(h *Handler) { h.sink = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithOwnership 让 handler 在离开 reactor 时关闭 fd
func WithOwnership() Option {
	return func(h *Handler) { h.owned = true }
}

func WithReadBufferSize(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.buf = make([]byte, n)
		}
	}
}

// New 在 fd（通常是 0）上创建本地输入 handler，默认不接管 fd
func New(fd int, opts ...Option) *Handler {
	h := &Handler{
		fd:      fd,
		keyword: evloop.DefaultConfig().ShutdownKeyword,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.buf == nil {
		h.buf = make([]byte, evloop.DefaultConfig().ReadBufferSize)
	}
	return h
}

func (h *Handler) FD() int { return h.fd }

func (h *Handler) Interest() evloop.Interest { return evloop.Readable }

func (h *Handler) OnReadable(r *evloop.Reactor) error {
	n, err := netutil.Read(h.fd, h.buf)
	if err != nil {
		if netutil.IsTemporary(err) {
			return nil
		}
		return evloop.Fail(h.fd, "read console", err)
	}
	if n == 0 {
		// 输入关闭：最后一行没有换行也照常处理
		if len(h.partial) > 0 {
			line := h.partial
			h.partial = nil
			if stop, err := h.line(r, line); stop || err != nil {
				return err
			}
		}
		h.log.Info("console closed", zap.Int("fd", h.fd))
		return r.Delete(h.fd)
	}
	h.partial = append(h.partial, h.buf[:n]...)
	for {
		var line []byte
		if i := bytes.IndexByte(h.partial, '\n'); i >= 0 {
			line = h.partial[:i]
			h.partial = h.partial[i+1:]
		} else if len(h.partial) >= len(h.buf) {
			// 一直没有换行：满一个缓冲就当作一行处理
			line = h.partial[:len(h.buf)]
			h.partial = h.partial[len(h.buf):]
		} else {
			return nil
		}
		if stop, err := h.line(r, line); stop || err != nil {
			return err
		}
	}
}

// line 处理一行，返回 true 表示已经请求退出
func (h *Handler) line(r *evloop.Reactor, line []byte) (bool, error) {
	line = bytes.TrimRight(line, "\r")
	if string(bytes.TrimSpace(line)) == h.keyword {
		h.log.Info("shutdown requested", zap.Int("fd", h.fd))
		return true, r.DeleteAll()
	}
	if h.sink == nil || len(line) == 0 {
		return false, nil
	}
	return false, evloop.Fail(h.fd, "forward", h.sink.Send(r, line))
}

func (h *Handler) OnWritable(*evloop.Reactor) error { return nil }

func (h *Handler) OnError(r *evloop.Reactor) error {
	return r.Delete(h.fd)
}

func (h *Handler) Close() error {
	if !h.owned || h.closed {
		return nil
	}
	h.closed = true
	return unix.Close(h.fd)
}
