// Package outbound 实现连接的发送累积缓冲。
//
// 逻辑上是一段只追加的字节序列加一个发送偏移：偏移之前的字节已经交给内核，
// 永远不会重发。物理上按 chunk 存放，整块发送完的 chunk 会被丢弃，
// 因此内存只与未发送的数据量相关。
package outbound

import (
	"errors"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"
)

// Buffer 非并发安全，只在事件循环 goroutine 中使用
type Buffer struct {
	chunks *queue.Queue // [][]byte，FIFO
	head   int          // 队首 chunk 已发送的字节数
	total  int          // 累计追加
	sent   int          // 累计发送
}

func New() *Buffer {
	return &Buffer{chunks: queue.New()}
}

// Append 复制 p 追加到末尾
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	c := make([]byte, len(p))
	copy(c, p)
	b.chunks.Add(c)
	b.total += len(p)
}

// Len 为累计追加的字节数
func (b *Buffer) Len() int { return b.total }

// Sent 为累计发送的字节数，即发送偏移，0 <= Sent() <= Len()
func (b *Buffer) Sent() int { return b.sent }

// Pending 为尚未发送的字节数
func (b *Buffer) Pending() int { return b.total - b.sent }

// Flush 从当前偏移开始写，按实际写出的字节推进偏移。
// 遇到短写或 EAGAIN 即返回（nil 错误），等待下一次可写通知；其他错误原样返回。
func (b *Buffer) Flush(write func([]byte) (int, error)) (int, error) {
	n := 0
	for b.chunks.Length() > 0 {
		c := b.chunks.Peek().([]byte)
		rest := c[b.head:]
		m, err := write(rest)
		if m > len(rest) {
			m = len(rest)
		}
		if m > 0 {
			b.head += m
			b.sent += m
			n += m
		}
		if b.head == len(c) {
			b.chunks.Remove()
			b.head = 0
		}
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return n, nil
			}
			return n, err
		}
		if m < len(rest) {
			return n, nil
		}
	}
	return n, nil
}
