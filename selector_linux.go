//go:build linux

package eventserver

import (
	"encoding/binary"
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// backend uses level-triggered epoll, woken via an eventfd.
type backend struct { // betteralign:ignore
	events  [256]unix.EpollEvent
	wakeBuf [8]byte
	epfd    int
	wakeFD  int
}

func openBackend() (*backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}

	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, os.NewSyscallError("eventfd", err)
	}

	b := &backend{epfd: epfd, wakeFD: wakeFD}
	if err := b.add(wakeFD); err != nil {
		_ = b.close()
		return nil, err
	}

	return b, nil
}

func (b *backend) add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

func (b *backend) del(fd int) error {
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

// wait blocks until at least one fd is ready, calling ready for each,
// excluding the wake fd, which is drained.
func (b *backend) wait(ready func(fd int)) error {
	n, err := unix.EpollWait(b.epfd, b.events[:], -1)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return os.NewSyscallError("epoll_wait", err)
	}
	for i := 0; i < n; i++ {
		fd := int(b.events[i].Fd)
		if fd == b.wakeFD {
			b.drainWake()
			continue
		}
		ready(fd)
	}
	return nil
}

func (b *backend) wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(b.wakeFD, buf[:]); err != nil && err != unix.EAGAIN {
		// EAGAIN means the counter is saturated, so a wake is already pending
		return os.NewSyscallError("write", err)
	}
	return nil
}

func (b *backend) drainWake() {
	for {
		if _, err := unix.Read(b.wakeFD, b.wakeBuf[:]); err != nil {
			return
		}
	}
}

func (b *backend) close() error {
	var errs []error
	if err := unix.Close(b.wakeFD); err != nil {
		errs = append(errs, os.NewSyscallError("close", err))
	}
	if err := unix.Close(b.epfd); err != nil {
		errs = append(errs, os.NewSyscallError("close", err))
	}
	return errors.Join(errs...)
}
