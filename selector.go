package eventserver

import (
	"sync"
)

// Ops is a set of readiness conditions a [Registration] is interested in.
type Ops uint8

const (
	// OpAccept indicates a listening socket has a pending connection.
	OpAccept Ops = 1 << iota
	// OpRead indicates a connected socket is readable, which includes end
	// of stream and error conditions.
	OpRead
)

// Registration binds a socket to the selector. The batches fetched by a
// [TCPServer] are the registrations that became ready.
//
// Registrations are only accessed on the reactor goroutine.
type Registration struct {
	conn     *Conn
	fd       int
	interest Ops
	ready    Ops
	valid    bool
}

// Conn returns the connection, or nil for the listening socket.
func (r *Registration) Conn() *Conn { return r.conn }

// IsValid returns false once the registration is canceled, or the selector
// is closed.
func (r *Registration) IsValid() bool { return r.valid }

// IsAcceptable returns true if the listening socket has a pending connection.
func (r *Registration) IsAcceptable() bool { return r.ready&OpAccept != 0 }

// IsReadable returns true if the connection is readable.
func (r *Registration) IsReadable() bool { return r.ready&OpRead != 0 }

// selector multiplexes level-triggered readiness across registered sockets.
// Select, register, cancel and Close must only be called from one goroutine.
// Wake may be called from any goroutine.
type selector struct {
	b        *backend
	keys     map[int]*Registration
	selected []*Registration

	// mu serializes Wake against Close, so the wake fd is never written
	// after it has been released
	mu     sync.Mutex
	closed bool
}

func openSelector() (*selector, error) {
	b, err := openBackend()
	if err != nil {
		return nil, err
	}
	return &selector{
		b:    b,
		keys: make(map[int]*Registration),
	}, nil
}

func (s *selector) register(fd int, interest Ops, conn *Conn) (*Registration, error) {
	if s.closed {
		return nil, ErrSelectorClosed
	}
	if err := s.b.add(fd); err != nil {
		return nil, err
	}
	reg := &Registration{conn: conn, fd: fd, interest: interest, valid: true}
	s.keys[fd] = reg
	return reg, nil
}

// cancel deregisters reg. It must be called before the fd is closed.
func (s *selector) cancel(reg *Registration) error {
	if !reg.valid {
		return nil
	}
	reg.valid = false
	reg.ready = 0
	delete(s.keys, reg.fd)
	if s.closed {
		return nil
	}
	return s.b.del(reg.fd)
}

// Select blocks until at least one registration is ready, or Wake is called,
// returning the ready registrations. The returned slice is reused by the
// next call. A wake, or an interrupted wait, yields an empty batch.
func (s *selector) Select() ([]*Registration, error) {
	clear(s.selected)
	s.selected = s.selected[:0]

	if s.closed {
		return nil, ErrSelectorClosed
	}

	err := s.b.wait(func(fd int) {
		if reg, ok := s.keys[fd]; ok && reg.valid {
			reg.ready = reg.interest
			s.selected = append(s.selected, reg)
		}
	})
	if err != nil {
		return nil, err
	}

	return s.selected, nil
}

// Wake causes a blocked (or the next) Select to return.
func (s *selector) Wake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSelectorClosed
	}
	return s.b.wake()
}

// registrations returns every valid registration.
func (s *selector) registrations() []*Registration {
	regs := make([]*Registration, 0, len(s.keys))
	for _, reg := range s.keys {
		regs = append(regs, reg)
	}
	return regs
}

// Close invalidates every registration, and releases the selector. It does
// not close registered sockets.
func (s *selector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSelectorClosed
	}
	s.closed = true
	for _, reg := range s.keys {
		reg.valid = false
		reg.ready = 0
	}
	s.keys = nil
	clear(s.selected)
	s.selected = nil
	return s.b.close()
}
