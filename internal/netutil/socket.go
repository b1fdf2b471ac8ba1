package netutil

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func SetNonblock(fd int, nonblock bool) error {
	return unix.SetNonblock(fd, nonblock)
}

func SetReuseAddr(fd int, enable bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolInt(enable))
}

func SetNoDelay(fd int, enable bool) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolInt(enable))
}

func SetRecvBuf(fd int, n int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, n)
}

func SetSendBuf(fd int, n int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, n)
}

// SockError 读取并清除 fd 上挂起的 socket 错误（SO_ERROR），0 表示没有错误
func SockError(fd int) (syscall.Errno, error) {
	code, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return 0, err
	}
	return syscall.Errno(code), nil
}

// Writer 返回向 fd 做一次非阻塞 write 的函数
func Writer(fd int) func([]byte) (int, error) {
	return func(p []byte) (int, error) { return unix.Write(fd, p) }
}

// Read 做一次 read，EINTR 时重新发起
func Read(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// IsTemporary 判断是否为非阻塞 fd 上“暂无数据/暂不可写”的错误
func IsTemporary(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
