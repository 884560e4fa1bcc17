package eventserver

// Handler receives the notifications of a [TCPServer]. Every method is
// invoked via the server's [Executor], never on the reactor goroutine.
//
// Notifications for a single connection are submitted in the order they were
// observed (OnAccept first, OnDisconnect last), but an Executor with more
// than one worker may run them out of order.
type Handler interface {
	// OnAccept is called for each accepted connection.
	OnAccept(conn *Conn)

	// OnDisconnect is called when the peer cleanly closed the connection
	// (end of stream). It is NOT called if the connection was closed due to
	// a read error, or because the server shut down.
	OnDisconnect(conn *Conn)

	// OnRead is called with each chunk of bytes read from the connection.
	// The data is owned by the handler. There is no framing: chunk
	// boundaries are arbitrary.
	OnRead(conn *Conn, data []byte)

	// OnStart is called once the server is running, with the resolved
	// listening port.
	OnStart(port int)

	// OnStop is called once the server is done.
	OnStop()

	// OnFailure is called for each failure of the server's lifecycle, with
	// the state at the time of the failure.
	OnFailure(state State, err error)
}

// UnimplementedHandler implements every Handler method as a no-op. It may be
// embedded to implement only a subset of Handler.
type UnimplementedHandler struct{}

var _ Handler = UnimplementedHandler{}

func (UnimplementedHandler) OnAccept(*Conn) {}

func (UnimplementedHandler) OnDisconnect(*Conn) {}

func (UnimplementedHandler) OnRead(*Conn, []byte) {}

func (UnimplementedHandler) OnStart(int) {}

func (UnimplementedHandler) OnStop() {}

func (UnimplementedHandler) OnFailure(State, error) {}

// Executor models the worker pool notifications are dispatched through.
// Submit must not block on the task's execution. The server never shuts the
// Executor down.
//
// See also [github.com/joeycumines/go-eventserver/workerpool].
type Executor interface {
	Submit(task func()) error
}

// ExecutorFunc implements Executor using a function.
type ExecutorFunc func(task func()) error

func (x ExecutorFunc) Submit(task func()) error { return x(task) }
