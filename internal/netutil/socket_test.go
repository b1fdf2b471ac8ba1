//go:build linux || darwin || freebsd

package netutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSockErrorHealthySocket(t *testing.T) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fd)

	code, err := SockError(fd)
	require.NoError(t, err)
	assert.Zero(t, code)
}

func TestSockErrorBadFD(t *testing.T) {
	_, err := SockError(-1)
	assert.ErrorIs(t, err, unix.EBADF)
}

func TestSocketOptions(t *testing.T) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fd)

	require.NoError(t, SetNonblock(fd, true))
	require.NoError(t, SetReuseAddr(fd, true))
	require.NoError(t, SetNoDelay(fd, true))
	require.NoError(t, SetRecvBuf(fd, 4096))
	require.NoError(t, SetSendBuf(fd, 4096))

	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR)
	require.NoError(t, err)
	assert.NotZero(t, v)
}

func TestWriterAndRead(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	n, err := Writer(fds[0])([]byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	buf := make([]byte, 8)
	n, err = Read(fds[1], buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
}

func TestIsTemporary(t *testing.T) {
	assert.True(t, IsTemporary(unix.EAGAIN))
	assert.False(t, IsTemporary(unix.ECONNRESET))
	assert.False(t, IsTemporary(nil))
}
