// Package pollertest 提供一个脚本化的 poller.Poller，用于确定性地驱动 Reactor。
package pollertest

import (
	"errors"

	"github.com/legamerdc/evloop/poller"
	"golang.org/x/sys/unix"
)

// ErrExhausted 脚本中的就绪批次已经用完
var ErrExhausted = errors.New("pollertest: no more scripted events")

// Call 记录一次 Add/Del 调用
type Call struct {
	Op string
	FD int
	In poller.Interest
}

// Poller 按 Push 的顺序在每次 Wait 时返回一批就绪记录
type Poller struct {
	Calls      []Call
	Registered map[int]poller.Interest

	// 注入错误
	AddHook func(fd int, in poller.Interest) error // 非 nil 时先于 AddErr 调用
	AddErr  map[int]error
	DelErr  map[int]error
	WaitErr error

	batches [][]poller.Event
	waits   int
	closed  bool
}

func New() *Poller {
	return &Poller{
		Registered: make(map[int]poller.Interest),
		AddErr:     make(map[int]error),
		DelErr:     make(map[int]error),
	}
}

// Push 追加一批就绪记录
func (p *Poller) Push(events ...poller.Event) {
	p.batches = append(p.batches, events)
}

// Waits 返回 Wait 被调用的次数
func (p *Poller) Waits() int { return p.waits }

// Closed 返回 Close 是否被调用
func (p *Poller) Closed() bool { return p.closed }

func (p *Poller) Add(fd int, in poller.Interest) error {
	p.Calls = append(p.Calls, Call{Op: "add", FD: fd, In: in})
	if p.AddHook != nil {
		if err := p.AddHook(fd, in); err != nil {
			return err
		}
	}
	if err := p.AddErr[fd]; err != nil {
		return err
	}
	if _, ok := p.Registered[fd]; ok {
		return unix.EEXIST
	}
	p.Registered[fd] = in
	return nil
}

func (p *Poller) Del(fd int, in poller.Interest) error {
	p.Calls = append(p.Calls, Call{Op: "del", FD: fd, In: in})
	if err := p.DelErr[fd]; err != nil {
		return err
	}
	if _, ok := p.Registered[fd]; !ok {
		return unix.ENOENT
	}
	delete(p.Registered, fd)
	return nil
}

func (p *Poller) Wait(events []poller.Event, _ int) (int, error) {
	p.waits++
	if p.WaitErr != nil {
		return 0, p.WaitErr
	}
	if len(p.batches) == 0 {
		return 0, ErrExhausted
	}
	b := p.batches[0]
	p.batches = p.batches[1:]
	return copy(events, b), nil
}

func (p *Poller) Close() error {
	p.closed = true
	return nil
}

// Readable 构造一条可读记录
func Readable(fd int) poller.Event { return poller.Event{FD: fd, Read: true} }

// Writable 构造一条可写记录
func Writable(fd int) poller.Event { return poller.Event{FD: fd, Write: true} }

// Failed 构造一条错误记录
func Failed(fd int) poller.Event { return poller.Event{FD: fd, Err: true} }
