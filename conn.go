package eventserver

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// writePollInterval bounds how long a blocked Write may delay the reactor
// closing the connection.
const writePollInterval = 10 * time.Millisecond

// Conn identifies an accepted connection. It is safe for concurrent use.
//
// The reactor owns reading and closing the underlying socket. Handlers may
// Write to it, and may request that it be closed, via Close.
type Conn struct {
	local  net.Addr
	remote net.Addr

	// mu guards fd against being closed (and potentially reused) while an
	// operation is in progress
	mu     sync.RWMutex
	id     uint64
	fd     int
	closed bool
}

func newConn(id uint64, fd int, local, remote net.Addr) *Conn {
	return &Conn{id: id, fd: fd, local: local, remote: remote}
}

// ID returns the identifier assigned on accept, unique per server.
func (c *Conn) ID() uint64 { return c.id }

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr { return c.local }

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return c.remote }

func (c *Conn) String() string {
	return fmt.Sprintf("conn(%d, %v)", c.id, c.remote)
}

// Write writes all of p to the connection, waiting for the socket to become
// writable as necessary. It returns ErrConnClosed once the reactor has closed
// the connection.
func (c *Conn) Write(p []byte) (int, error) {
	var n int
	for n < len(p) {
		m, err := c.writeOnce(p[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *Conn) writeOnce(p []byte) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, ErrConnClosed
	}

	n, err := writeFD(c.fd, p)
	if n < 0 {
		n = 0
	}
	if err != nil {
		if isRetryable(err) {
			return n, waitWritable(c.fd, writePollInterval)
		}
		return n, c.opError("write", err)
	}
	return n, nil
}

// Close requests that the connection be closed. It shuts down both
// directions of the socket, which the reactor then observes as end of stream,
// resulting in OnDisconnect, and the release of the socket.
func (c *Conn) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrConnClosed
	}

	if err := shutdownFD(c.fd); err != nil {
		return c.opError("shutdown", err)
	}
	return nil
}

// close releases the socket. Only the reactor may call it.
func (c *Conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := closeFD(c.fd); err != nil {
		return c.opError("close", err)
	}
	return nil
}

func (c *Conn) opError(op string, err error) error {
	return &net.OpError{
		Op:     op,
		Net:    "tcp",
		Source: c.local,
		Addr:   c.remote,
		Err:    os.NewSyscallError(op, err),
	}
}
