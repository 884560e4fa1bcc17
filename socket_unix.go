//go:build linux || darwin

package eventserver

import (
	"errors"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

const listenBacklog = unix.SOMAXCONN

// listenTCP opens a non-blocking listening socket, returning the fd and the
// bound address (which resolves port 0).
func listenTCP(address string, port int) (fd int, addr *net.TCPAddr, err error) {
	var tcpAddr *net.TCPAddr
	tcpAddr, err = net.ResolveTCPAddr("tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return -1, nil, err
	}

	family, sa := tcpSockaddr(tcpAddr)

	fd, err = unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, nil, os.NewSyscallError("socket", err)
	}
	defer func() {
		if err != nil {
			_ = unix.Close(fd)
			fd = -1
		}
	}()

	unix.CloseOnExec(fd)

	if err = unix.SetNonblock(fd, true); err != nil {
		return fd, nil, os.NewSyscallError("setnonblock", err)
	}
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fd, nil, os.NewSyscallError("setsockopt", err)
	}
	if err = unix.Bind(fd, sa); err != nil {
		return fd, nil, &net.OpError{Op: "listen", Net: "tcp", Addr: tcpAddr, Err: os.NewSyscallError("bind", err)}
	}
	if err = unix.Listen(fd, listenBacklog); err != nil {
		return fd, nil, &net.OpError{Op: "listen", Net: "tcp", Addr: tcpAddr, Err: os.NewSyscallError("listen", err)}
	}

	var bound unix.Sockaddr
	if bound, err = unix.Getsockname(fd); err != nil {
		return fd, nil, os.NewSyscallError("getsockname", err)
	}

	return fd, sockaddrToTCPAddr(bound), nil
}

// acceptConn accepts a pending connection, as a non-blocking socket.
func acceptConn(lfd int) (fd int, local, remote net.Addr, err error) {
	fd, sa, err := accept(lfd)
	if err != nil {
		return -1, nil, nil, err
	}
	remote = sockaddrToTCPAddr(sa)
	if lsa, err := unix.Getsockname(fd); err == nil {
		local = sockaddrToTCPAddr(lsa)
	}
	return fd, local, remote, nil
}

func readFD(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func writeFD(fd int, p []byte) (int, error) { return unix.Write(fd, p) }

// waitWritable polls fd for writability, returning nil on readiness, or
// after timeout.
func waitWritable(fd int, timeout time.Duration) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	if _, err := unix.Poll(fds, int(timeout/time.Millisecond)); err != nil && err != unix.EINTR {
		return os.NewSyscallError("poll", err)
	}
	return nil
}

func shutdownFD(fd int) error { return unix.Shutdown(fd, unix.SHUT_RDWR) }

func closeFD(fd int) error { return unix.Close(fd) }

// isRetryable returns true if the operation would block, or was interrupted.
func isRetryable(err error) bool {
	return errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.EWOULDBLOCK) ||
		errors.Is(err, unix.EINTR)
}

// isTemporaryAcceptErr returns true for accept failures that concern only
// the pending connection, not the listener.
func isTemporaryAcceptErr(err error) bool {
	return isRetryable(err) ||
		errors.Is(err, unix.ECONNABORTED) ||
		errors.Is(err, unix.EPROTO)
}

func tcpSockaddr(addr *net.TCPAddr) (int, unix.Sockaddr) {
	if ip4 := addr.IP.To4(); ip4 != nil || addr.IP == nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		if ip4 != nil {
			copy(sa.Addr[:], ip4)
		}
		return unix.AF_INET, sa
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	if addr.Zone != "" {
		if ifi, err := net.InterfaceByName(addr.Zone); err == nil {
			sa.ZoneId = uint32(ifi.Index)
		}
	}
	return unix.AF_INET6, sa
}

func sockaddrToTCPAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), sa.Addr[:]...)), Port: sa.Port}
	case *unix.SockaddrInet6:
		addr := &net.TCPAddr{IP: net.IP(append([]byte(nil), sa.Addr[:]...)), Port: sa.Port}
		if sa.ZoneId != 0 {
			if ifi, err := net.InterfaceByIndex(int(sa.ZoneId)); err == nil {
				addr.Zone = ifi.Name
			}
		}
		return addr
	default:
		return nil
	}
}
