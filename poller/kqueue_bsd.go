//go:build darwin || freebsd

package poller

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type kqueuePoller struct {
	kq  int
	buf []unix.Kevent_t
}

// New 创建 kqueue 实例
func New() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("poller: kqueue: %w", err)
	}
	unix.CloseOnExec(kq)
	return &kqueuePoller{kq: kq}, nil
}

func changes(fd int, in Interest, add bool) []unix.Kevent_t {
	var list []unix.Kevent_t
	if in&Readable != 0 {
		var kev unix.Kevent_t
		flags := unix.EV_DELETE
		if add {
			flags = unix.EV_ADD | unix.EV_ENABLE
		}
		unix.SetKevent(&kev, fd, unix.EVFILT_READ, flags)
		list = append(list, kev)
	}
	if in&Writable != 0 {
		var kev unix.Kevent_t
		flags := unix.EV_DELETE
		if add {
			// EV_CLEAR 即边缘触发
			flags = unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR
		}
		unix.SetKevent(&kev, fd, unix.EVFILT_WRITE, flags)
		list = append(list, kev)
	}
	return list
}

func (p *kqueuePoller) Add(fd int, in Interest) error {
	list := changes(fd, in, true)
	if len(list) == 0 {
		return nil
	}
	if _, err := unix.Kevent(p.kq, list, nil, nil); err != nil {
		return fmt.Errorf("poller: kevent add fd=%d: %w", fd, err)
	}
	return nil
}

func (p *kqueuePoller) Del(fd int, in Interest) error {
	list := changes(fd, in, false)
	if len(list) == 0 {
		return nil
	}
	if _, err := unix.Kevent(p.kq, list, nil, nil); err != nil {
		return fmt.Errorf("poller: kevent delete fd=%d: %w", fd, err)
	}
	return nil
}

func (p *kqueuePoller) Wait(events []Event, msec int) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	if cap(p.buf) < len(events) {
		p.buf = make([]unix.Kevent_t, len(events))
	}
	raw := p.buf[:len(events)]
	var ts *unix.Timespec
	if msec >= 0 {
		t := unix.NsecToTimespec(int64(msec) * 1e6)
		ts = &t
	}
	for {
		n, err := unix.Kevent(p.kq, nil, raw, ts)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("poller: kevent wait: %w", err)
		}
		for i := 0; i < n; i++ {
			kev := raw[i]
			ev := Event{FD: int(kev.Ident)}
			switch {
			case kev.Flags&unix.EV_ERROR != 0:
				ev.Err = true
			case kev.Filter == unix.EVFILT_READ && kev.Flags&unix.EV_EOF != 0 && kev.Fflags != 0:
				// EV_EOF 且 fflags 带有 socket 错误码
				ev.Err = true
			case kev.Filter == unix.EVFILT_READ:
				ev.Read = true
			case kev.Filter == unix.EVFILT_WRITE:
				ev.Write = true
			}
			events[i] = ev
		}
		return n, nil
	}
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}
