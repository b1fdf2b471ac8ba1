//go:build linux || darwin || freebsd

package server

import (
	"net"

	"github.com/legamerdc/evloop"
	"github.com/legamerdc/evloop/internal/netutil"
	"golang.org/x/sys/unix"
)

// Listen 创建非阻塞的监听 socket，address 的 host 为空时绑定所有本地地址
func Listen(address string, backlog int) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return -1, evloop.Setup("resolve listen address", err)
	}
	fam := unix.AF_INET
	if addr.IP != nil && addr.IP.To4() == nil {
		fam = unix.AF_INET6
	}
	fd, err := unix.Socket(fam, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, evloop.Setup("socket", err)
	}
	unix.CloseOnExec(fd)
	_ = netutil.SetReuseAddr(fd, true)
	if err := netutil.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, evloop.Setup("set nonblock", err)
	}
	var sa unix.Sockaddr
	if fam == unix.AF_INET6 {
		var sa6 unix.SockaddrInet6
		copy(sa6.Addr[:], addr.IP.To16())
		sa6.Port = addr.Port
		sa = &sa6
	} else {
		var sa4 unix.SockaddrInet4
		if addr.IP != nil {
			copy(sa4.Addr[:], addr.IP.To4())
		}
		sa4.Port = addr.Port
		sa = &sa4
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, evloop.Setup("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, evloop.Setup("listen", err)
	}
	return fd, nil
}

// localAddr 返回 fd 绑定的地址
func localAddr(fd int) (*net.TCPAddr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, err
	}
	return toTCPAddr(sa), nil
}

func toTCPAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), a.Addr[:]...)), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), a.Addr[:]...)), Port: a.Port}
	}
	return nil
}

func closeFD(fd int) error { return unix.Close(fd) }
