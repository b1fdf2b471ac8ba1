package poller

import "errors"

// ErrPlatformNotSupported 当前平台没有可用的就绪通知机制
var ErrPlatformNotSupported = errors.New("poller: platform not supported (requires epoll or kqueue)")

// Interest 为一个 fd 关注的事件集合
type Interest uint8

const (
	// Readable 可读，水平触发
	Readable Interest = 1 << iota
	// Writable 可写，边缘触发，需要重新注册（re-arm）才能再次收到通知
	Writable
)

func (in Interest) String() string {
	switch in {
	case 0:
		return "none"
	case Readable:
		return "r"
	case Writable:
		return "w"
	case Readable | Writable:
		return "rw"
	}
	return "invalid"
}

// Event 为一次 Wait 返回的一条就绪记录。
// 同一条记录可能同时带有多个条件，由调用方决定优先级。
type Event struct {
	FD    int
	Err   bool
	Read  bool
	Write bool
}

// Poller 抽象了两种 OS 就绪通知机制（epoll / kqueue）。
// 所有方法都只应在事件循环所在的 goroutine 中调用。
type Poller interface {
	// Add 注册 fd：可读为水平触发，可写为边缘触发
	Add(fd int, in Interest) error
	// Del 删除 fd 的注册；kqueue 需要知道原先注册的过滤器
	Del(fd int, in Interest) error
	// Wait 阻塞等待，msec < 0 表示无限等待；EINTR 在内部重试
	Wait(events []Event, msec int) (int, error)
	Close() error
}
