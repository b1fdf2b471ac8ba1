//go:build linux || darwin || freebsd

package client

import (
	"fmt"
	"io"
	"net"
	"os"

	"github.com/legamerdc/evloop"
	"github.com/legamerdc/evloop/internal/netutil"
	"github.com/legamerdc/evloop/internal/outbound"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

type options struct {
	log      *zap.Logger
	out      io.Writer
	readSize int
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithOutput 设置服务端回复的输出位置，默认 os.Stdout
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.out = w
		}
	}
}

func WithReadBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readSize = n
		}
	}
}

// Peer 为客户端一侧唯一的连接 handler。
// 服务端断开或读出错都会清空整个 reactor，客户端随之退出。
type Peer struct {
	fd      int
	o       *options
	readBuf []byte
	wb      *outbound.Buffer
	closed  bool
}

// Dial 解析 host 并连接一次，连接建立后 fd 设为非阻塞。失败时返回 *evloop.SetupError
func Dial(host string, port int, opts ...Option) (*Peer, error) {
	addr, err := resolve(host, port)
	if err != nil {
		return nil, evloop.Setup("resolve", err)
	}
	fd, err := connect(addr)
	if err != nil {
		return nil, evloop.Setup("connect", err)
	}
	p := NewPeer(fd, opts...)
	p.o.log.Info("connected", zap.Int("fd", fd), zap.Stringer("addr", addr))
	return p, nil
}

// NewPeer 接管一个非阻塞的已连接 fd
func NewPeer(fd int, opts ...Option) *Peer {
	o := &options{
		log:      zap.NewNop(),
		out:      os.Stdout,
		readSize: evloop.DefaultConfig().ReadBufferSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Peer{fd: fd, o: o, readBuf: make([]byte, o.readSize), wb: outbound.New()}
}

func resolve(host string, port int) (*net.TCPAddr, error) {
	ip, err := net.ResolveIPAddr("ip4", host)
	if err != nil {
		if ip, err = net.ResolveIPAddr("ip", host); err != nil {
			return nil, err
		}
	}
	return &net.TCPAddr{IP: ip.IP, Port: port}, nil
}

func connect(addr *net.TCPAddr) (int, error) {
	fam := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa4 := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa4.Addr[:], ip4)
		sa = sa4
	} else {
		fam = unix.AF_INET6
		sa6 := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa6.Addr[:], addr.IP.To16())
		sa = sa6
	}
	fd, err := unix.Socket(fam, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	// 非阻塞 connect 后用 poll 等待完成，避免阻塞 connect 被信号打断
	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, err
	}
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		_, err := unix.Poll(pfd, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			unix.Close(fd)
			return -1, err
		}
		break
	}
	code, err := netutil.SockError(fd)
	if err == nil && code != 0 {
		err = code
	}
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func (p *Peer) FD() int { return p.fd }

func (p *Peer) Interest() evloop.Interest { return evloop.Readable | evloop.Writable }

// Send 追加待发送数据并 re-arm，实现 console.Sink
func (p *Peer) Send(r *evloop.Reactor, msg []byte) error {
	p.wb.Append(msg)
	return r.ReArm(p.fd)
}

// Pending 为尚未发送的字节数
func (p *Peer) Pending() int { return p.wb.Pending() }

func (p *Peer) OnReadable(r *evloop.Reactor) error {
	n, err := netutil.Read(p.fd, p.readBuf)
	if err != nil {
		if netutil.IsTemporary(err) {
			return nil
		}
		p.drain(r)
		return evloop.Fail(p.fd, "read", err)
	}
	if n == 0 {
		fmt.Fprint(p.o.out, "Server disconnected.\n\n")
		p.o.log.Info("server disconnected", zap.Int("fd", p.fd))
		return r.DeleteAll()
	}
	fmt.Fprintf(p.o.out, "Server answer: \n    %s\n\n", p.readBuf[:n])
	return nil
}

func (p *Peer) OnWritable(r *evloop.Reactor) error {
	if p.wb.Pending() == 0 {
		return nil
	}
	if _, err := p.wb.Flush(netutil.Writer(p.fd)); err != nil {
		p.drain(r)
		return evloop.Fail(p.fd, "write", err)
	}
	return nil
}

func (p *Peer) OnError(r *evloop.Reactor) error {
	code, err := netutil.SockError(p.fd)
	p.drain(r)
	if err != nil {
		return evloop.Fail(p.fd, "sockerror", err)
	}
	if code != 0 {
		return evloop.Fail(p.fd, "socket", code)
	}
	return nil
}

func (p *Peer) drain(r *evloop.Reactor) {
	if err := r.DeleteAll(); err != nil {
		p.o.log.Warn("drain", zap.Error(err))
	}
}

func (p *Peer) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.fd)
}
