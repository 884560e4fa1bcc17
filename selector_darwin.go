//go:build darwin

package eventserver

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// backend uses level-triggered kqueue (no EV_CLEAR), woken via a self-pipe.
type backend struct { // betteralign:ignore
	events  [256]unix.Kevent_t
	wakeBuf [64]byte
	kq      int
	wakeR   int
	wakeW   int
}

func openBackend() (*backend, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	unix.CloseOnExec(kq)

	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		_ = unix.Close(kq)
		return nil, os.NewSyscallError("pipe", err)
	}

	b := &backend{kq: kq, wakeR: p[0], wakeW: p[1]}

	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = b.close()
			return nil, os.NewSyscallError("setnonblock", err)
		}
	}

	if err := b.add(b.wakeR); err != nil {
		_ = b.close()
		return nil, err
	}

	return b, nil
}

func (b *backend) change(fd int, flags int) error {
	var ev [1]unix.Kevent_t
	unix.SetKevent(&ev[0], fd, unix.EVFILT_READ, flags)
	if _, err := unix.Kevent(b.kq, ev[:], nil, nil); err != nil {
		return os.NewSyscallError("kevent", err)
	}
	return nil
}

func (b *backend) add(fd int) error { return b.change(fd, unix.EV_ADD|unix.EV_ENABLE) }

func (b *backend) del(fd int) error { return b.change(fd, unix.EV_DELETE) }

// wait blocks until at least one fd is ready, calling ready for each,
// excluding the wake pipe, which is drained.
func (b *backend) wait(ready func(fd int)) error {
	n, err := unix.Kevent(b.kq, nil, b.events[:], nil)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return os.NewSyscallError("kevent", err)
	}
	for i := 0; i < n; i++ {
		fd := int(b.events[i].Ident)
		if fd == b.wakeR {
			b.drainWake()
			continue
		}
		ready(fd)
	}
	return nil
}

func (b *backend) wake() error {
	if _, err := unix.Write(b.wakeW, []byte{1}); err != nil && err != unix.EAGAIN {
		// EAGAIN means the pipe is full, so a wake is already pending
		return os.NewSyscallError("write", err)
	}
	return nil
}

func (b *backend) drainWake() {
	for {
		if _, err := unix.Read(b.wakeR, b.wakeBuf[:]); err != nil {
			return
		}
	}
}

func (b *backend) close() error {
	var errs []error
	for _, fd := range [...]int{b.wakeR, b.wakeW, b.kq} {
		if err := unix.Close(fd); err != nil {
			errs = append(errs, os.NewSyscallError("close", err))
		}
	}
	return errors.Join(errs...)
}
