package evloop

import (
	"errors"
	"fmt"
	"io"

	"github.com/legamerdc/evloop/poller"
	"go.uber.org/zap"
)

// entry 为注册表中的一条记录，保存注册时提交给 poller 的事件集合
type entry struct {
	h  Handler
	in Interest
}

// Reactor 为单线程事件分发器：fd -> handler 注册表 + OS 就绪通知机制。
// 注册表只在 Run 所在的 goroutine（包括回调内部）中修改，不需要加锁。
type Reactor struct {
	p         poller.Poller
	log       *zap.Logger
	maxEvents int

	table  map[int]*entry
	events []poller.Event

	// 回调执行期间被移除的 handler，回调返回后再关闭
	dispatching bool
	released    []*entry

	// 当前批次中被移除过的 fd，该批剩余的记录不再分发，即使 fd 号已被新连接复用
	batching bool
	removed  map[int]struct{}
}

// Option 配置 Reactor
type Option func(*Reactor)

// WithPoller 使用指定的 poller（测试中注入脚本化实现）
func WithPoller(p poller.Poller) Option {
	return func(r *Reactor) { r.p = p }
}

// WithLogger 设置 logger，默认不输出
func WithLogger(l *zap.Logger) Option {
	return func(r *Reactor) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMaxEvents 设置单次等待最多处理的就绪记录数
func WithMaxEvents(n int) Option {
	return func(r *Reactor) { r.maxEvents = n }
}

// WithConfig 从 Config 中取 reactor 相关的字段
func WithConfig(cfg Config) Option {
	return func(r *Reactor) { r.maxEvents = cfg.MaxEvents }
}

// New 创建 Reactor 并打开 OS 就绪通知机制
func New(opts ...Option) (*Reactor, error) {
	r := &Reactor{
		log:       zap.NewNop(),
		maxEvents: DefaultConfig().MaxEvents,
		table:     make(map[int]*entry),
		removed:   make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxEvents <= 0 {
		return nil, Setup("reactor", fmt.Errorf("%w: maxEvents=%d", ErrInvalidArgument, r.maxEvents))
	}
	if r.p == nil {
		p, err := poller.New()
		if err != nil {
			return nil, Setup("create poller", err)
		}
		r.p = p
	}
	r.events = make([]poller.Event, r.maxEvents)
	return r, nil
}

// Len 返回注册表中的 handler 数量
func (r *Reactor) Len() int { return len(r.table) }

// Lookup 按 fd 查找 handler
func (r *Reactor) Lookup(fd int) (Handler, bool) {
	e, ok := r.table[fd]
	if !ok {
		return nil, false
	}
	return e.h, true
}

// Add 向 poller 注册 handler 的 fd 与事件集合，并插入注册表
func (r *Reactor) Add(h Handler) error {
	if h == nil {
		return ErrInvalidArgument
	}
	fd, in := h.FD(), h.Interest()
	if _, ok := r.table[fd]; ok {
		return fmt.Errorf("%w: fd=%d", ErrAlreadyRegistered, fd)
	}
	if err := r.p.Add(fd, in); err != nil {
		return fmt.Errorf("evloop: add handler: %w", err)
	}
	r.table[fd] = &entry{h: h, in: in}
	r.log.Debug("handler added", zap.Int("fd", fd), zap.Stringer("interest", in))
	return nil
}

// ReArm 先删除再重新注册同一个 fd，让 poller 重新评估就绪状态。
// 边缘触发的可写事件只通知一次，有新数据要写时必须 re-arm。
func (r *Reactor) ReArm(fd int) error {
	e, ok := r.table[fd]
	if !ok {
		return fmt.Errorf("%w: fd=%d", ErrNotRegistered, fd)
	}
	if err := r.p.Del(fd, e.in); err != nil {
		return fmt.Errorf("evloop: rearm: %w", err)
	}
	if err := r.p.Add(fd, e.in); err != nil {
		// fd 已经不在 poller 中，注册表里也不能留
		delete(r.table, fd)
		r.forget(fd)
		r.release(e)
		return fmt.Errorf("evloop: rearm: %w", err)
	}
	return nil
}

// Delete 删除 fd 的注册并释放 handler。即使 poller 拒绝删除，注册表项也会被移除
func (r *Reactor) Delete(fd int) error {
	e, ok := r.table[fd]
	if !ok {
		return fmt.Errorf("%w: fd=%d", ErrNotRegistered, fd)
	}
	return r.remove(fd, e)
}

// DeleteAll 删除所有注册，Run 随后会因注册表为空而返回
func (r *Reactor) DeleteAll() error {
	var errs []error
	for fd, e := range r.table {
		if err := r.remove(fd, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Reactor) remove(fd int, e *entry) error {
	delete(r.table, fd)
	r.forget(fd)
	err := r.p.Del(fd, e.in)
	r.release(e)
	r.log.Debug("handler deleted", zap.Int("fd", fd))
	if err != nil {
		return fmt.Errorf("evloop: delete: %w", err)
	}
	return nil
}

func (r *Reactor) forget(fd int) {
	if r.batching {
		r.removed[fd] = struct{}{}
	}
}

func (r *Reactor) release(e *entry) {
	if r.dispatching {
		r.released = append(r.released, e)
		return
	}
	r.closeHandler(e)
}

func (r *Reactor) closeHandler(e *entry) {
	c, ok := e.h.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		r.log.Warn("close handler", zap.Int("fd", e.h.FD()), zap.Error(err))
	}
}

// Run 阻塞运行事件循环，直到注册表为空。
// handler 返回的错误只记录日志并移除该 handler，不会中断循环；
// 只有等待本身失败时才返回错误。
func (r *Reactor) Run() error {
	for len(r.table) > 0 {
		n, err := r.p.Wait(r.events, -1)
		if err != nil {
			return fmt.Errorf("evloop: wait: %w", err)
		}
		r.batching = true
		for i := 0; i < n; i++ {
			if _, gone := r.removed[r.events[i].FD]; gone {
				continue
			}
			r.dispatch(r.events[i])
		}
		r.batching = false
		clear(r.removed)
	}
	return nil
}

// dispatch 每条就绪记录只调用一个回调：错误 > 可读 > 可写。
// 与可读同时上报的可写会被推迟到之后的通知（可读回调通常会 re-arm）。
func (r *Reactor) dispatch(ev poller.Event) {
	e, ok := r.table[ev.FD]
	if !ok {
		// 同一批次中已被移除
		return
	}
	var (
		op string
		cb func(*Reactor) error
	)
	switch {
	case ev.Err:
		op, cb = "error", e.h.OnError
	case ev.Read:
		op, cb = "readable", e.h.OnReadable
	case ev.Write:
		op, cb = "writable", e.h.OnWritable
	default:
		return
	}
	err := r.invoke(cb)
	if err == nil {
		return
	}
	var he *HandlerError
	if !errors.As(err, &he) {
		err = &HandlerError{FD: ev.FD, Op: op, Err: err}
	}
	r.log.Error("handler failed", zap.Int("fd", ev.FD), zap.String("event", op), zap.Error(err))
	if he != nil && he.Keep {
		return
	}
	if cur, ok := r.table[ev.FD]; ok && cur == e {
		if derr := r.remove(ev.FD, e); derr != nil {
			r.log.Warn("evict handler", zap.Int("fd", ev.FD), zap.Error(derr))
		}
	}
}

func (r *Reactor) invoke(cb func(*Reactor) error) (err error) {
	r.dispatching = true
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
		r.dispatching = false
		list := r.released
		r.released = nil
		for _, e := range list {
			r.closeHandler(e)
		}
	}()
	return cb(r)
}

// Close 删除剩余的注册并关闭 poller，之后 Reactor 不可再用
func (r *Reactor) Close() error {
	err := r.DeleteAll()
	return errors.Join(err, r.p.Close())
}
