package server

import (
	"io"
	"os"

	"github.com/legamerdc/evloop"
	"github.com/legamerdc/evloop/poller"
	"go.uber.org/zap"
)

// Config 为服务端配置
type Config struct {
	evloop.Config
	Address string `json:"address"` // 监听地址，如 ":8080"，空 host 表示所有本地地址
}

// DefaultConfig 提供一组可工作的默认值
func DefaultConfig() Config {
	return Config{Config: evloop.DefaultConfig(), Address: ":0"}
}

type options struct {
	log      *zap.Logger
	out      io.Writer // 收到的数据输出到这里
	poller   poller.Poller
	readSize int
}

// Option 配置 Server / Acceptor / Connection
type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithOutput 设置收到数据的输出位置，默认 os.Stdout
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.out = w
		}
	}
}

// WithPoller 替换 reactor 使用的 poller（测试用）
func WithPoller(p poller.Poller) Option {
	return func(o *options) { o.poller = p }
}

// WithReadBufferSize 设置单次 read 的缓冲大小
func WithReadBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readSize = n
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		log:      zap.NewNop(),
		out:      os.Stdout,
		readSize: evloop.DefaultConfig().ReadBufferSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
