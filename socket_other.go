//go:build !linux && !darwin

package eventserver

import (
	"net"
	"time"
)

func listenTCP(string, int) (int, *net.TCPAddr, error) {
	return -1, nil, ErrPlatformNotSupported
}

func acceptConn(int) (int, net.Addr, net.Addr, error) {
	return -1, nil, nil, ErrPlatformNotSupported
}

func readFD(int, []byte) (int, error) { return 0, ErrPlatformNotSupported }

func writeFD(int, []byte) (int, error) { return 0, ErrPlatformNotSupported }

func waitWritable(int, time.Duration) error { return ErrPlatformNotSupported }

func shutdownFD(int) error { return ErrPlatformNotSupported }

func closeFD(int) error { return ErrPlatformNotSupported }

func isRetryable(error) bool { return false }

func isTemporaryAcceptErr(error) bool { return false }
