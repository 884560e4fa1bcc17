package eventserver

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
)

// DefaultReadBufferSize is the size of the buffer shared by all reads.
const DefaultReadBufferSize = 64 * 1024

// Config models the listening address of a [TCPServer].
type Config struct {
	// Address is the host or IP to bind. An empty value binds all IPv4
	// interfaces.
	Address string

	// Port is the port to bind, or 0 to pick an ephemeral port, see
	// [TCPServer.Port].
	Port int

	// ReadBufferSize is the maximum number of bytes read (and delivered via
	// OnRead) per read readiness event.
	ReadBufferSize int
}

// DefaultConfig binds an ephemeral port on all IPv4 interfaces.
func DefaultConfig() Config {
	return Config{
		Address:        "0.0.0.0",
		Port:           0,
		ReadBufferSize: DefaultReadBufferSize,
	}
}

// Validate returns an error wrapping ErrInvalidConfig if the config is
// unusable.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("%w: read buffer size must be positive", ErrInvalidConfig)
	}
	return nil
}

// TCPServer is a single-threaded reactor, accepting and reading TCP
// connections, and dispatching every event to a [Handler] via an [Executor].
//
// The lifecycle methods (Start, Stop, Wait, State, and the predicates) are
// those of the embedded [Engine]. Like the Engine, a TCPServer is
// single-use.
type TCPServer struct {
	*Engine[[]*Registration]
	r *reactor
}

// NewTCPServer constructs a stopped TCPServer.
func NewTCPServer(cfg Config, handler Handler, executor Executor, opts ...Option) (*TCPServer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, ErrNilHandler
	}
	if executor == nil {
		return nil, ErrNilExecutor
	}

	resolved, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	log, err := newEventLogger(resolved)
	if err != nil {
		return nil, err
	}

	r := &reactor{
		cfg:      cfg,
		handler:  handler,
		executor: executor,
		log:      log,
		listenFD: -1,
	}
	r.engine = newEngine[[]*Registration](r, resolved, log)

	return &TCPServer{Engine: r.engine, r: r}, nil
}

// Config returns the server's config.
func (s *TCPServer) Config() Config { return s.r.cfg }

// Port returns the bound port, resolving port 0, or 0 if the listener has
// not been bound. It is safe to call from any goroutine, and always valid
// within OnStart.
func (s *TCPServer) Port() int { return int(s.r.port.Load()) }

// Addr returns the bound address, or nil if the listener has not been bound.
func (s *TCPServer) Addr() net.Addr {
	if addr := s.r.addr.Load(); addr != nil {
		return addr
	}
	return nil
}

// reactor implements Hooks for TCPServer. Except Interrupt, and the
// atomics, all fields are owned by the run goroutine.
type reactor struct {
	handler  Handler
	executor Executor
	log      *eventLogger
	engine   *Engine[[]*Registration]
	sel      *selector
	addr     atomic.Pointer[net.TCPAddr]
	buf      []byte
	cfg      Config
	listenFD int
	nextID   uint64
	port     atomic.Int32
}

var _ Hooks[[]*Registration] = (*reactor)(nil)

func (r *reactor) Startup() error {
	sel, err := openSelector()
	if err != nil {
		return fmt.Errorf("eventserver: open selector: %w", err)
	}
	r.sel = sel

	fd, addr, err := listenTCP(r.cfg.Address, r.cfg.Port)
	if err != nil {
		return fmt.Errorf("eventserver: listen: %w", err)
	}
	r.listenFD = fd
	r.addr.Store(addr)
	r.port.Store(int32(addr.Port))

	if _, err := r.sel.register(fd, OpAccept, nil); err != nil {
		return fmt.Errorf("eventserver: register listener: %w", err)
	}

	r.buf = make([]byte, r.cfg.ReadBufferSize)

	r.log.info(logCategoryLifecycle).
		Stringer("addr", addr).
		Log("listening")

	return nil
}

func (r *reactor) Fetch() ([]*Registration, error) {
	batch, err := r.sel.Select()
	if err != nil {
		return nil, fmt.Errorf("eventserver: select: %w", err)
	}
	if !r.engine.IsRunning() {
		return nil, nil
	}
	return batch, nil
}

func (r *reactor) Process(batch []*Registration) error {
	for i, reg := range batch {
		batch[i] = nil
		if !reg.IsValid() {
			// cancelled after it was selected
			continue
		}
		switch {
		case reg.IsAcceptable():
			if err := r.accept(reg); err != nil {
				return err
			}
		case reg.IsReadable():
			r.read(reg)
		}
	}
	return nil
}

func (r *reactor) Interrupt() {
	if err := r.sel.Wake(); err != nil && !errors.Is(err, ErrSelectorClosed) {
		r.log.warning(logCategoryLifecycle).
			Err(err).
			Log("failed to wake selector")
	}
}

// Shutdown releases every socket, including connections still open, without
// notifying the handler of their disconnection.
func (r *reactor) Shutdown() error {
	var errs []error

	if r.sel != nil {
		var closed int
		for _, reg := range r.sel.registrations() {
			if reg.conn == nil {
				continue
			}
			if err := reg.conn.close(); err != nil {
				errs = append(errs, err)
			}
			closed++
		}
		if err := r.sel.Close(); err != nil && !errors.Is(err, ErrSelectorClosed) {
			errs = append(errs, fmt.Errorf("eventserver: close selector: %w", err))
		}
		r.log.debug(logCategoryClose).
			Int("connections", closed).
			Log("closed connections")
	}

	if r.listenFD >= 0 {
		if err := closeFD(r.listenFD); err != nil {
			errs = append(errs, fmt.Errorf("eventserver: close listener: %w", err))
		}
		r.listenFD = -1
	}

	return errors.Join(errs...)
}

func (r *reactor) AfterStart() {
	port := int(r.port.Load())
	r.dispatch("start", func() { r.handler.OnStart(port) })
}

func (r *reactor) AfterDone() {
	r.log.info(logCategoryLifecycle).Log("stopped")
	r.dispatch("stop", r.handler.OnStop)
}

func (r *reactor) OnFailure(state State, err error) {
	r.dispatch("failure", func() { r.handler.OnFailure(state, err) })
}

func (r *reactor) accept(reg *Registration) error {
	fd, local, remote, err := acceptConn(reg.fd)
	if err != nil {
		if isTemporaryAcceptErr(err) {
			r.log.debug(logCategoryAccept).
				Err(err).
				Log("skipped accept")
			return nil
		}
		return fmt.Errorf("eventserver: accept: %w", err)
	}

	r.nextID++
	conn := newConn(r.nextID, fd, local, remote)

	if _, err := r.sel.register(fd, OpRead, conn); err != nil {
		if err := conn.close(); err != nil {
			r.log.warning(logCategoryClose).
				Uint64("conn", conn.id).
				Err(err).
				Log("failed to close connection")
		}
		return fmt.Errorf("eventserver: register connection: %w", err)
	}

	r.log.debug(logCategoryAccept).
		Uint64("conn", conn.id).
		Stringer("remote", remote).
		Log("accepted")

	r.dispatch("accept", func() { r.handler.OnAccept(conn) })

	return nil
}

func (r *reactor) read(reg *Registration) {
	conn := reg.conn
	n, err := readFD(reg.fd, r.buf)

	switch {
	case err != nil && isRetryable(err):
		// spurious readiness

	case err != nil:
		// closed without notifying the handler, unlike end of stream
		r.log.warning(logCategoryRead).
			Uint64("conn", conn.id).
			Err(err).
			Log("read failed, closing connection")
		r.release(reg)

	case n > 0:
		data := make([]byte, n)
		copy(data, r.buf[:n])
		r.dispatch("read", func() { r.handler.OnRead(conn, data) })

	default:
		r.log.debug(logCategoryRead).
			Uint64("conn", conn.id).
			Log("end of stream")
		r.dispatch("disconnect", func() { r.handler.OnDisconnect(conn) })
		r.release(reg)
	}
}

// release cancels the registration, then closes the connection. Failures are
// only logged.
func (r *reactor) release(reg *Registration) {
	if err := r.sel.cancel(reg); err != nil {
		r.log.warning(logCategoryClose).
			Uint64("conn", reg.conn.id).
			Err(err).
			Log("failed to cancel registration")
	}
	if err := reg.conn.close(); err != nil {
		r.log.warning(logCategoryClose).
			Uint64("conn", reg.conn.id).
			Err(err).
			Log("failed to close connection")
	}
}

func (r *reactor) dispatch(event string, task func()) {
	if err := r.executor.Submit(task); err != nil {
		r.log.warning(logCategoryDispatch).
			Str("event", event).
			Err(err).
			Log("failed to submit notification")
	}
}
