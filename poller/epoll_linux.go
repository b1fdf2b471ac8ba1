//go:build linux

package poller

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// epollPoller 用两个 epoll 实例表达两种触发方式：EPOLLET 作用于整个注册，
// 同一个实例里无法让读水平触发而写边缘触发。
// rfd 以水平触发登记可读关注；wfd 以 EPOLLOUT|EPOLLET 登记可写关注，
// wfd 本身作为可读 fd 挂在 rfd 上，Wait 只阻塞在 rfd。
type epollPoller struct {
	rfd  int
	wfd  int
	buf  []unix.EpollEvent
	wbuf []unix.EpollEvent
}

// New 创建 epoll 实例
func New() (Poller, error) {
	rfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("poller: epoll_create1: %w", err)
	}
	wfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(rfd)
		return nil, fmt.Errorf("poller: epoll_create1: %w", err)
	}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wfd)}
	if err := unix.EpollCtl(rfd, unix.EPOLL_CTL_ADD, wfd, ev); err != nil {
		unix.Close(wfd)
		unix.Close(rfd)
		return nil, fmt.Errorf("poller: epoll_ctl nest: %w", err)
	}
	return &epollPoller{rfd: rfd, wfd: wfd}, nil
}

func (p *epollPoller) Add(fd int, in Interest) error {
	if in&Readable != 0 {
		ev := &unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLRDHUP, Fd: int32(fd)}
		if err := unix.EpollCtl(p.rfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
			return fmt.Errorf("poller: epoll_ctl add fd=%d: %w", fd, err)
		}
	}
	if in&Writable != 0 {
		ev := &unix.EpollEvent{Events: unix.EPOLLOUT | unix.EPOLLET, Fd: int32(fd)}
		if err := unix.EpollCtl(p.wfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
			if in&Readable != 0 {
				unix.EpollCtl(p.rfd, unix.EPOLL_CTL_DEL, fd, nil)
			}
			return fmt.Errorf("poller: epoll_ctl add fd=%d: %w", fd, err)
		}
	}
	return nil
}

func (p *epollPoller) Del(fd int, in Interest) error {
	var errs []error
	if in&Readable != 0 {
		if err := unix.EpollCtl(p.rfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
			errs = append(errs, fmt.Errorf("poller: epoll_ctl del fd=%d: %w", fd, err))
		}
	}
	if in&Writable != 0 {
		if err := unix.EpollCtl(p.wfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
			errs = append(errs, fmt.Errorf("poller: epoll_ctl del fd=%d: %w", fd, err))
		}
	}
	return errors.Join(errs...)
}

// Wait 可读与可写分别产生记录，同一个 fd 可能在一批里出现两次
func (p *epollPoller) Wait(events []Event, msec int) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	if cap(p.buf) < len(events) {
		p.buf = make([]unix.EpollEvent, len(events))
		p.wbuf = make([]unix.EpollEvent, len(events))
	}
	raw := p.buf[:len(events)]
	n, err := wait(p.rfd, raw, msec)
	if err != nil {
		return 0, err
	}
	count, nested := 0, false
	for i := 0; i < n; i++ {
		if int(raw[i].Fd) == p.wfd {
			nested = true
			continue
		}
		ev := raw[i].Events
		events[count] = Event{
			FD:  int(raw[i].Fd),
			Err: ev&unix.EPOLLERR != 0,
			// 对端挂断时交给读回调，read 会返回 0
			Read: ev&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
		}
		count++
	}
	// wfd 占了 rfd 结果中的一个位置，这里至少还剩一个空位。
	// 没取完的可写事件留在 wfd 中，下一次 Wait 时 rfd 仍会报告它
	if nested && count < len(events) {
		wraw := p.wbuf[:len(events)-count]
		m, err := wait(p.wfd, wraw, 0)
		if err != nil {
			return 0, err
		}
		for i := 0; i < m; i++ {
			ev := wraw[i].Events
			events[count] = Event{
				FD:    int(wraw[i].Fd),
				Err:   ev&unix.EPOLLERR != 0,
				Write: ev&unix.EPOLLOUT != 0,
			}
			count++
		}
	}
	return count, nil
}

func wait(efd int, raw []unix.EpollEvent, msec int) (int, error) {
	for {
		n, err := unix.EpollWait(efd, raw, msec)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("poller: epoll_wait: %w", err)
		}
		return n, nil
	}
}

func (p *epollPoller) Close() error {
	return errors.Join(unix.Close(p.wfd), unix.Close(p.rfd))
}
