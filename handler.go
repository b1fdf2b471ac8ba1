// Package evloop 是单线程 reactor：一个 fd -> handler 注册表，加上 epoll/kqueue 就绪通知，
// 按 错误 > 可读 > 可写 的优先级把事件分发给 handler，注册表为空时 Run 返回。
package evloop

import "github.com/legamerdc/evloop/poller"

// Interest 为 handler 关注的事件集合
type Interest = poller.Interest

const (
	Readable = poller.Readable
	Writable = poller.Writable
)

// Handler 为 Reactor 管理的多态单元。
// 回调都在事件循环 goroutine 中串行执行，要求无阻塞返回。
// 拥有 fd 的 handler 应实现 io.Closer，离开注册表后由 Reactor 关闭。
type Handler interface {
	FD() int
	Interest() Interest
	OnReadable(r *Reactor) error
	OnWritable(r *Reactor) error
	OnError(r *Reactor) error
}

// NopHandler 可嵌入以获得空实现的回调
type NopHandler struct{}

func (NopHandler) OnReadable(*Reactor) error { return nil }
func (NopHandler) OnWritable(*Reactor) error { return nil }
func (NopHandler) OnError(*Reactor) error    { return nil }
