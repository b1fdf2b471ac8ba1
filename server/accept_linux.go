//go:build linux

package server

import (
	"golang.org/x/sys/unix"
)

// accept 接受一个连接，新 fd 直接是非阻塞、close-on-exec 的
func accept(lfd int) (int, unix.Sockaddr, error) {
	return unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
}
