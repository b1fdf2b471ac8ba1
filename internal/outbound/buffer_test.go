package outbound

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// sink 每次最多接受 limit 字节，之后一次返回 EAGAIN
type sink struct {
	limit int
	out   bytes.Buffer
	ready bool
}

func (s *sink) write(p []byte) (int, error) {
	if !s.ready {
		return -1, unix.EAGAIN
	}
	s.ready = false
	if len(p) > s.limit {
		p = p[:s.limit]
	}
	s.out.Write(p)
	return len(p), nil
}

func TestFlushAll(t *testing.T) {
	b := New()
	b.Append([]byte("hello "))
	b.Append([]byte("world"))

	var out bytes.Buffer
	n, err := b.Flush(out.Write)
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, "hello world", out.String())
	assert.Equal(t, b.Len(), b.Sent())
	assert.Zero(t, b.Pending())
	assert.Zero(t, b.chunks.Length())
}

func TestFlushNothingPending(t *testing.T) {
	b := New()
	called := false
	n, err := b.Flush(func(p []byte) (int, error) {
		called = true
		return len(p), nil
	})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, called)
}

func TestAppendCopies(t *testing.T) {
	b := New()
	p := []byte("abc")
	b.Append(p)
	p[0] = 'x'

	var out bytes.Buffer
	_, err := b.Flush(out.Write)
	require.NoError(t, err)
	assert.Equal(t, "abc", out.String())
}

func TestFlushEAGAINIsNotAnError(t *testing.T) {
	b := New()
	b.Append([]byte("abc"))
	s := &sink{limit: 10}

	n, err := b.Flush(s.write)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, b.Pending())
}

func TestFlushReturnsWriteError(t *testing.T) {
	b := New()
	b.Append([]byte("abc"))
	_, err := b.Flush(func([]byte) (int, error) { return -1, unix.EPIPE })
	assert.ErrorIs(t, err, unix.EPIPE)
	assert.Zero(t, b.Sent())
}

func TestPartialWritesPreserveOrder(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	b := New()
	var want bytes.Buffer
	for i := 0; i < 50; i++ {
		p := make([]byte, rnd.Intn(40)+1)
		rnd.Read(p)
		b.Append(p)
		want.Write(p)
	}

	s := &sink{limit: 7}
	prev := 0
	for b.Pending() > 0 {
		s.ready = true
		_, err := b.Flush(s.write)
		require.NoError(t, err)
		require.GreaterOrEqual(t, b.Sent(), prev)
		require.LessOrEqual(t, b.Sent(), b.Len())
		prev = b.Sent()
	}
	assert.Equal(t, want.Bytes(), s.out.Bytes())
}

func TestAppendAfterDrainFlushesOnlyNewBytes(t *testing.T) {
	b := New()
	b.Append([]byte("first"))
	var out bytes.Buffer
	_, err := b.Flush(out.Write)
	require.NoError(t, err)
	require.Equal(t, b.Len(), b.Sent())

	out.Reset()
	b.Append([]byte("second"))
	n, err := b.Flush(out.Write)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "second", out.String())
	assert.Equal(t, 11, b.Sent())
}
