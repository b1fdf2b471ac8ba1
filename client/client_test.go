//go:build linux || darwin || freebsd

package client

import (
	"bytes"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/legamerdc/evloop"
	"github.com/legamerdc/evloop/console"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"
)

func listen(t *testing.T) (*net.TCPListener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln.(*net.TCPListener), ln.Addr().(*net.TCPAddr).Port
}

func pipe(t *testing.T) (int, int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

// run 在后台运行 reactor，Run 返回后由同一个 goroutine 关闭它
func run(t *testing.T, r *evloop.Reactor) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		err := r.Run()
		r.Close()
		done <- err
	}()
	return done
}

func wait(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reactor did not stop")
	}
}

func TestDialUnresolvable(t *testing.T) {
	_, err := Dial("no-such-host.invalid", 1)
	var se *evloop.SetupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "resolve", se.Op)
}

func TestDialRefused(t *testing.T) {
	ln, port := listen(t)
	require.NoError(t, ln.Close())

	_, err := Dial("127.0.0.1", port)
	var se *evloop.SetupError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, unix.ECONNREFUSED)
}

func TestSendAndReceive(t *testing.T) {
	ln, port := listen(t)
	got := make(chan string, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			got <- err.Error()
			return
		}
		defer c.Close()
		buf := make([]byte, 16)
		n, _ := c.Read(buf)
		got <- string(buf[:n])
		c.Write([]byte("pong"))
	}()

	var out bytes.Buffer
	p, err := Dial("localhost", port, WithOutput(&out), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	rfd, wfd := pipe(t)
	r, err := evloop.New(evloop.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.NoError(t, r.Add(p))
	require.NoError(t, r.Add(console.New(rfd, console.WithSink(p))))

	done := run(t, r)
	_, err = unix.Write(wfd, []byte("ping\n"))
	require.NoError(t, err)

	select {
	case s := <-got:
		assert.Equal(t, "ping", s)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not receive the message")
	}
	wait(t, done)
	assert.Contains(t, out.String(), "Server answer: \n    pong\n")
	assert.Contains(t, out.String(), "Server disconnected.")
}

func TestLongReplyThenClose(t *testing.T) {
	ln, port := listen(t)
	payload := strings.Repeat("0123456789", 10)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		c.Write([]byte(payload))
		c.Close()
	}()

	var out bytes.Buffer
	p, err := Dial("127.0.0.1", port, WithOutput(&out), WithReadBufferSize(16))
	require.NoError(t, err)
	r, err := evloop.New()
	require.NoError(t, err)
	require.NoError(t, r.Add(p))

	wait(t, run(t, r))
	require.True(t, p.closed)

	text := out.String()
	assert.GreaterOrEqual(t, strings.Count(text, "Server answer: "), len(payload)/16)
	require.True(t, strings.HasSuffix(text, "Server disconnected.\n\n"))
	body := strings.TrimSuffix(text, "Server disconnected.\n\n")
	body = strings.ReplaceAll(body, "Server answer: \n    ", "")
	body = strings.ReplaceAll(body, "\n\n", "")
	assert.Equal(t, payload, body)
}

func TestExitIsNotSent(t *testing.T) {
	ln, port := listen(t)
	got := make(chan []byte, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			got <- nil
			return
		}
		defer c.Close()
		b, _ := io.ReadAll(c)
		got <- b
	}()

	p, err := Dial("127.0.0.1", port, WithOutput(io.Discard))
	require.NoError(t, err)
	rfd, wfd := pipe(t)
	r, err := evloop.New()
	require.NoError(t, err)
	require.NoError(t, r.Add(p))
	require.NoError(t, r.Add(console.New(rfd, console.WithSink(p))))

	done := run(t, r)
	_, err = unix.Write(wfd, []byte("exit\n"))
	require.NoError(t, err)
	wait(t, done)

	select {
	case b := <-got:
		assert.Empty(t, b)
	case <-time.After(5 * time.Second):
		t.Fatal("peer socket was not closed")
	}
}

func TestPeerSendRearms(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[1])
	require.NoError(t, unix.SetNonblock(fds[0], true))

	p := NewPeer(fds[0], WithOutput(io.Discard))
	r, err := evloop.New()
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Add(p))

	require.NoError(t, p.Send(r, []byte("hi")))
	assert.Equal(t, 2, p.Pending())
	require.NoError(t, p.OnWritable(r))
	assert.Zero(t, p.Pending())

	buf := make([]byte, 4)
	n, err := unix.Read(fds[1], buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))
}
