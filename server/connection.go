package server

import (
	"fmt"

	"github.com/legamerdc/evloop"
	"github.com/legamerdc/evloop/internal/netutil"
	"github.com/legamerdc/evloop/internal/outbound"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Connection 为一个已接受的对端 socket。
// 收到的数据追加到发送缓冲并 re-arm，下一次可写通知时原样回写。
type Connection struct {
	fd      int
	o       *options
	readBuf []byte
	wb      *outbound.Buffer
	closed  bool
}

// NewConnection 接管一个非阻塞的已连接 fd
func NewConnection(fd int, opts ...Option) *Connection {
	return newConnection(fd, newOptions(opts))
}

func newConnection(fd int, o *options) *Connection {
	return &Connection{
		fd:      fd,
		o:       o,
		readBuf: make([]byte, o.readSize),
		wb:      outbound.New(),
	}
}

func (c *Connection) FD() int { return c.fd }

// Interest 从创建起就同时关注可读与可写，即使还没有数据要发
func (c *Connection) Interest() evloop.Interest { return evloop.Readable | evloop.Writable }

// Sent 为已发送的字节数（发送偏移）
func (c *Connection) Sent() int { return c.wb.Sent() }

// Pending 为尚未发送的字节数
func (c *Connection) Pending() int { return c.wb.Pending() }

// Send 追加待发送数据并 re-arm，确保之后能收到新的可写通知
func (c *Connection) Send(r *evloop.Reactor, p []byte) error {
	c.wb.Append(p)
	return r.ReArm(c.fd)
}

func (c *Connection) OnReadable(r *evloop.Reactor) error {
	n, err := netutil.Read(c.fd, c.readBuf)
	if err != nil {
		if netutil.IsTemporary(err) {
			return nil
		}
		return evloop.Fail(c.fd, "read", err)
	}
	if n == 0 {
		c.o.log.Info("client disconnected", zap.Int("fd", c.fd))
		return r.Delete(c.fd)
	}
	data := c.readBuf[:n]
	fmt.Fprintf(c.o.out, "Data from client: %d\n    %s\n\n", c.fd, data)
	c.o.log.Debug("client data", zap.Int("fd", c.fd), zap.Int("bytes", n))
	return c.Send(r, data)
}

func (c *Connection) OnWritable(r *evloop.Reactor) error {
	if c.wb.Pending() == 0 {
		return nil
	}
	n, err := c.wb.Flush(netutil.Writer(c.fd))
	c.o.log.Debug("client write", zap.Int("fd", c.fd), zap.Int("bytes", n), zap.Int("pending", c.wb.Pending()))
	return evloop.Fail(c.fd, "write", err)
}

func (c *Connection) OnError(r *evloop.Reactor) error {
	code, err := netutil.SockError(c.fd)
	derr := r.Delete(c.fd)
	if err != nil {
		return evloop.Fail(c.fd, "sockerror", err)
	}
	if code != 0 {
		return evloop.Fail(c.fd, "socket", code)
	}
	return derr
}

// Close 关闭 fd，重复调用无副作用
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return unix.Close(c.fd)
}
